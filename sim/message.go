package sim

import (
	"fmt"
	"sort"
)

// MessageKind tags each concrete message type. The set is closed: every
// switch over message types in the engine is written against this list.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindInternalDemand
	KindYellowPageRequest
	KindYellowPageAnswer
	KindRequestForQuote
	KindQuote
	KindQuoteBasedOrder
	KindStandaloneOrder
	KindProductionOrder
	KindOrderConfirmation
	KindShipment
	KindBill
	KindPayment
)

var kindNames = map[MessageKind]string{
	KindInternalDemand:    "internal-demand",
	KindYellowPageRequest: "yellow-page-request",
	KindYellowPageAnswer:  "yellow-page-answer",
	KindRequestForQuote:   "rfq",
	KindQuote:             "quote",
	KindQuoteBasedOrder:   "quote-based-order",
	KindStandaloneOrder:   "standalone-order",
	KindProductionOrder:   "production-order",
	KindOrderConfirmation: "order-confirmation",
	KindShipment:          "shipment",
	KindBill:              "bill",
	KindPayment:           "payment",
}

// String returns the stable wire name of the kind.
func (k MessageKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k names a concrete message type.
func (k MessageKind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseMessageKind maps a wire name back to its kind.
func ParseMessageKind(name string) (MessageKind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindUnknown, false
}

// MessageKinds returns all concrete kinds in declaration order.
func MessageKinds() []MessageKind {
	kinds := make([]MessageKind, 0, len(kindNames))
	for k := range kindNames {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Direction tells whether a stored message was sent or received by the store owner.
type Direction int

const (
	Sent Direction = iota + 1
	Received
)

func (d Direction) String() string {
	switch d {
	case Sent:
		return "sent"
	case Received:
		return "received"
	default:
		return "unknown"
	}
}

// MessageHeader carries the fields shared by every message.
// DemandID is the ID of the InternalDemand that started the causal chain;
// for an InternalDemand (and a ProductionOrder) it equals ID.
type MessageHeader struct {
	ID        uint64
	Sender    *Actor
	Receiver  *Actor
	Timestamp int64
	DemandID  uint64
}

// Header returns the shared header.
func (h *MessageHeader) Header() *MessageHeader { return h }

func (h *MessageHeader) sealed() {}

// Message is implemented only by the concrete types in this file.
type Message interface {
	Kind() MessageKind
	Header() *MessageHeader
	sealed()
}

// InternalDemand is an actor's own decision to acquire an amount of a product
// between two delivery dates. It starts every demand chain.
type InternalDemand struct {
	MessageHeader
	Product              *Product
	Amount               float64
	EarliestDeliveryDate int64
	LatestDeliveryDate   int64
	// Attempt counts negotiation restarts for the same need, starting at 0.
	Attempt int
}

func (*InternalDemand) Kind() MessageKind { return KindInternalDemand }

// YellowPageRequest asks a directory for candidate suppliers of a product.
type YellowPageRequest struct {
	MessageHeader
	Product     *Product
	Topic       string
	MaxDistance float64 // 0 means unlimited
	MaxResults  int     // 0 means unlimited
}

func (*YellowPageRequest) Kind() MessageKind { return KindYellowPageRequest }

// YellowPageAnswer lists candidates sorted by ascending distance from the requester.
type YellowPageAnswer struct {
	MessageHeader
	Request    *YellowPageRequest
	Candidates []*Actor
}

func (*YellowPageAnswer) Kind() MessageKind { return KindYellowPageAnswer }

// RequestForQuote asks a supplier to quote for an amount; quotes are accepted until CutoffDate.
type RequestForQuote struct {
	MessageHeader
	Product              *Product
	Amount               float64
	EarliestDeliveryDate int64
	LatestDeliveryDate   int64
	CutoffDate           int64
	Transport            TransportOption
}

func (*RequestForQuote) Kind() MessageKind { return KindRequestForQuote }

// Quote answers an RFQ with a total price and proposed dates.
type Quote struct {
	MessageHeader
	RFQ                  *RequestForQuote
	Price                float64
	ProposedShippingDate int64
	ProposedDeliveryDate int64
	Transport            TransportOption
}

func (*Quote) Kind() MessageKind { return KindQuote }

// OrderTerms are the commercial terms shared by all order variants.
type OrderTerms struct {
	Product      *Product
	Amount       float64
	Price        float64 // total price
	DeliveryDate int64
	Transport    TransportOption
}

// Terms returns the order terms.
func (t *OrderTerms) Terms() *OrderTerms { return t }

// Order is implemented by QuoteBasedOrder and StandaloneOrder.
type Order interface {
	Message
	Terms() *OrderTerms
}

// QuoteBasedOrder accepts a Quote.
type QuoteBasedOrder struct {
	MessageHeader
	OrderTerms
	Quote *Quote
}

func (*QuoteBasedOrder) Kind() MessageKind { return KindQuoteBasedOrder }

// StandaloneOrder is placed directly from an InternalDemand with a known supplier.
type StandaloneOrder struct {
	MessageHeader
	OrderTerms
}

func (*StandaloneOrder) Kind() MessageKind { return KindStandaloneOrder }

// ProductionOrder asks an actor's own production to make an amount of a product.
type ProductionOrder struct {
	MessageHeader
	Product      *Product
	Amount       float64
	DeliveryDate int64
}

func (*ProductionOrder) Kind() MessageKind { return KindProductionOrder }

// OrderConfirmation accepts or rejects an Order.
type OrderConfirmation struct {
	MessageHeader
	Order    Order
	Accepted bool
	Reason   string
}

func (*OrderConfirmation) Kind() MessageKind { return KindOrderConfirmation }

// Shipment carries the goods of an Order.
type Shipment struct {
	MessageHeader
	Order       Order
	Amount      float64
	Value       float64
	ShippedAt   int64
	InTransit   bool
	Delivered   bool
	DeliveredAt int64
}

func (*Shipment) Kind() MessageKind { return KindShipment }

// Bill asks for payment of a shipped Order by FinalPaymentDate.
type Bill struct {
	MessageHeader
	Order            Order
	Shipment         *Shipment
	Amount           float64
	FinalPaymentDate int64
	Paid             bool
	PaidAt           int64
}

func (*Bill) Kind() MessageKind { return KindBill }

// Payment settles a Bill.
type Payment struct {
	MessageHeader
	Bill   *Bill
	Amount float64
}

func (*Payment) Kind() MessageKind { return KindPayment }

// ProductOf returns the product a message is about, following references
// where the message does not carry it directly. Returns nil when unknown.
func ProductOf(msg Message) *Product {
	switch m := msg.(type) {
	case *InternalDemand:
		return m.Product
	case *YellowPageRequest:
		return m.Product
	case *YellowPageAnswer:
		if m.Request != nil {
			return m.Request.Product
		}
	case *RequestForQuote:
		return m.Product
	case *Quote:
		if m.RFQ != nil {
			return m.RFQ.Product
		}
	case *QuoteBasedOrder:
		return m.Product
	case *StandaloneOrder:
		return m.Product
	case *ProductionOrder:
		return m.Product
	case *OrderConfirmation:
		if m.Order != nil {
			return m.Order.Terms().Product
		}
	case *Shipment:
		if m.Order != nil {
			return m.Order.Terms().Product
		}
	case *Bill:
		if m.Order != nil {
			return m.Order.Terms().Product
		}
	case *Payment:
		if m.Bill != nil && m.Bill.Order != nil {
			return m.Bill.Order.Terms().Product
		}
	}
	return nil
}

// Describe renders a message for log lines: kind, id and demand chain.
func Describe(msg Message) string {
	if msg == nil {
		return "<nil message>"
	}
	h := msg.Header()
	return fmt.Sprintf("%s#%d(demand %d)", msg.Kind(), h.ID, h.DemandID)
}
