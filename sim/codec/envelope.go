// Package codec serializes messages to self-describing {kind, payload} JSON
// envelopes. Actors travel as their stable id and are resolved against the
// live model on decode; referenced messages travel as their message id and
// are resolved against messages already decoded in the same Context.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tradesim/tradesim/sim"
)

var (
	// ErrUnknownKind is returned for envelopes whose kind is not a message kind.
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrUnresolvedReference is returned when an actor, product or message reference cannot be resolved.
	ErrUnresolvedReference = errors.New("unresolved reference")
)

// Envelope is the wire form of one message.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type header struct {
	ID        uint64 `json:"id"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Timestamp int64  `json:"timestamp"`
	DemandID  uint64 `json:"demand_id"`
}

type transport struct {
	Mode     string  `json:"mode,omitempty"`
	Duration int64   `json:"duration,omitempty"`
	Cost     float64 `json:"cost,omitempty"`
}

type internalDemand struct {
	header
	Product  string  `json:"product"`
	Amount   float64 `json:"amount"`
	Earliest int64   `json:"earliest_delivery_date"`
	Latest   int64   `json:"latest_delivery_date"`
	Attempt  int     `json:"attempt,omitempty"`
}

type yellowPageRequest struct {
	header
	Product     string  `json:"product"`
	Topic       string  `json:"topic,omitempty"`
	MaxDistance float64 `json:"max_distance,omitempty"`
	MaxResults  int     `json:"max_results,omitempty"`
}

type yellowPageAnswer struct {
	header
	Request    uint64   `json:"request"`
	Candidates []string `json:"candidates"`
}

type requestForQuote struct {
	header
	Product   string    `json:"product"`
	Amount    float64   `json:"amount"`
	Earliest  int64     `json:"earliest_delivery_date"`
	Latest    int64     `json:"latest_delivery_date"`
	Cutoff    int64     `json:"cutoff_date"`
	Transport transport `json:"transport"`
}

type quote struct {
	header
	RFQ       uint64    `json:"rfq"`
	Price     float64   `json:"price"`
	Shipping  int64     `json:"proposed_shipping_date"`
	Delivery  int64     `json:"proposed_delivery_date"`
	Transport transport `json:"transport"`
}

type orderTerms struct {
	Product      string    `json:"product"`
	Amount       float64   `json:"amount"`
	Price        float64   `json:"price"`
	DeliveryDate int64     `json:"delivery_date"`
	Transport    transport `json:"transport"`
}

type quoteBasedOrder struct {
	header
	orderTerms
	Quote uint64 `json:"quote"`
}

type standaloneOrder struct {
	header
	orderTerms
}

type productionOrder struct {
	header
	Product      string  `json:"product"`
	Amount       float64 `json:"amount"`
	DeliveryDate int64   `json:"delivery_date"`
}

type orderConfirmation struct {
	header
	Order    uint64 `json:"order"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

type shipment struct {
	header
	Order       uint64  `json:"order"`
	Amount      float64 `json:"amount"`
	Value       float64 `json:"value"`
	ShippedAt   int64   `json:"shipped_at"`
	InTransit   bool    `json:"in_transit"`
	Delivered   bool    `json:"delivered"`
	DeliveredAt int64   `json:"delivered_at,omitempty"`
}

type bill struct {
	header
	Order            uint64  `json:"order"`
	Shipment         uint64  `json:"shipment,omitempty"`
	Amount           float64 `json:"amount"`
	FinalPaymentDate int64   `json:"final_payment_date"`
	Paid             bool    `json:"paid"`
	PaidAt           int64   `json:"paid_at,omitempty"`
}

type payment struct {
	header
	Bill   uint64  `json:"bill"`
	Amount float64 `json:"amount"`
}

func encodeHeader(h *sim.MessageHeader) header {
	out := header{ID: h.ID, Timestamp: h.Timestamp, DemandID: h.DemandID}
	if h.Sender != nil {
		out.Sender = h.Sender.ID
	}
	if h.Receiver != nil {
		out.Receiver = h.Receiver.ID
	}
	return out
}

func encodeTransport(t sim.TransportOption) transport {
	return transport{Mode: t.Mode, Duration: t.Duration, Cost: t.Cost}
}

func (t transport) option() sim.TransportOption {
	return sim.TransportOption{Mode: t.Mode, Duration: t.Duration, Cost: t.Cost}
}

func productID(p *sim.Product) string {
	if p == nil {
		return ""
	}
	return p.ID
}

func messageID(m sim.Message) uint64 {
	if m == nil {
		return 0
	}
	return m.Header().ID
}

func encodeTerms(t *sim.OrderTerms) orderTerms {
	return orderTerms{
		Product:      productID(t.Product),
		Amount:       t.Amount,
		Price:        t.Price,
		DeliveryDate: t.DeliveryDate,
		Transport:    encodeTransport(t.Transport),
	}
}

// Encode serializes one message into an envelope.
func Encode(msg sim.Message) ([]byte, error) {
	env, err := envelope(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// EncodeAll serializes messages into a JSON array of envelopes.
func EncodeAll(msgs []sim.Message) ([]byte, error) {
	envs := make([]Envelope, 0, len(msgs))
	for _, m := range msgs {
		env, err := envelope(m)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return json.MarshalIndent(envs, "", "  ")
}

func envelope(msg sim.Message) (Envelope, error) {
	if msg == nil {
		return Envelope{}, fmt.Errorf("codec: nil message")
	}
	var payload any
	h := encodeHeader(msg.Header())
	switch m := msg.(type) {
	case *sim.InternalDemand:
		payload = internalDemand{header: h, Product: productID(m.Product), Amount: m.Amount,
			Earliest: m.EarliestDeliveryDate, Latest: m.LatestDeliveryDate, Attempt: m.Attempt}
	case *sim.YellowPageRequest:
		payload = yellowPageRequest{header: h, Product: productID(m.Product), Topic: m.Topic,
			MaxDistance: m.MaxDistance, MaxResults: m.MaxResults}
	case *sim.YellowPageAnswer:
		ids := make([]string, 0, len(m.Candidates))
		for _, a := range m.Candidates {
			ids = append(ids, a.ID)
		}
		var req uint64
		if m.Request != nil {
			req = m.Request.ID
		}
		payload = yellowPageAnswer{header: h, Request: req, Candidates: ids}
	case *sim.RequestForQuote:
		payload = requestForQuote{header: h, Product: productID(m.Product), Amount: m.Amount,
			Earliest: m.EarliestDeliveryDate, Latest: m.LatestDeliveryDate, Cutoff: m.CutoffDate,
			Transport: encodeTransport(m.Transport)}
	case *sim.Quote:
		var rfq uint64
		if m.RFQ != nil {
			rfq = m.RFQ.ID
		}
		payload = quote{header: h, RFQ: rfq, Price: m.Price, Shipping: m.ProposedShippingDate,
			Delivery: m.ProposedDeliveryDate, Transport: encodeTransport(m.Transport)}
	case *sim.QuoteBasedOrder:
		var q uint64
		if m.Quote != nil {
			q = m.Quote.ID
		}
		payload = quoteBasedOrder{header: h, orderTerms: encodeTerms(&m.OrderTerms), Quote: q}
	case *sim.StandaloneOrder:
		payload = standaloneOrder{header: h, orderTerms: encodeTerms(&m.OrderTerms)}
	case *sim.ProductionOrder:
		payload = productionOrder{header: h, Product: productID(m.Product), Amount: m.Amount, DeliveryDate: m.DeliveryDate}
	case *sim.OrderConfirmation:
		payload = orderConfirmation{header: h, Order: messageID(m.Order), Accepted: m.Accepted, Reason: m.Reason}
	case *sim.Shipment:
		payload = shipment{header: h, Order: messageID(m.Order), Amount: m.Amount, Value: m.Value,
			ShippedAt: m.ShippedAt, InTransit: m.InTransit, Delivered: m.Delivered, DeliveredAt: m.DeliveredAt}
	case *sim.Bill:
		var s uint64
		if m.Shipment != nil {
			s = m.Shipment.ID
		}
		payload = bill{header: h, Order: messageID(m.Order), Shipment: s, Amount: m.Amount,
			FinalPaymentDate: m.FinalPaymentDate, Paid: m.Paid, PaidAt: m.PaidAt}
	case *sim.Payment:
		var b uint64
		if m.Bill != nil {
			b = m.Bill.ID
		}
		payload = payment{header: h, Bill: b, Amount: m.Amount}
	default:
		return Envelope{}, fmt.Errorf("codec: %T: %w", msg, ErrUnknownKind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("codec: %s: %w", sim.Describe(msg), err)
	}
	return Envelope{Kind: msg.Kind().String(), Payload: raw}, nil
}
