package policy

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tradesim/tradesim/sim"
)

// DemandToOrder turns an InternalDemand into a StandaloneOrder placed with
// the single configured supplier of the product.
type DemandToOrder struct {
	sim.PolicyBase
	suppliers *sim.SupplierTable
}

// NewDemandToOrder creates the direct ordering rule.
func NewDemandToOrder(owner *sim.Actor, suppliers *sim.SupplierTable) (*DemandToOrder, error) {
	if suppliers == nil {
		return nil, fmt.Errorf("demand-to-order for %s: nil supplier table", owner.Name)
	}
	return &DemandToOrder{
		PolicyBase: sim.NewPolicyBase("demand-to-order", sim.KindInternalDemand, owner),
		suppliers:  suppliers,
	}, nil
}

func (p *DemandToOrder) Handle(msg sim.Message) bool {
	owner := p.Owner()
	d, ok := msg.(*sim.InternalDemand)
	if !ok {
		return unexpected(p, owner, msg)
	}
	terms, ok := p.suppliers.Unique(d.Product)
	if !ok {
		logrus.Warnf("[t %d] %s/%s: no unique supplier for %s, demand %d not ordered",
			owner.Now(), owner.Name, p.ID(), d.Product.ID, d.DemandID)
		return false
	}
	transport, _ := owner.Transport().Select(terms.Supplier, owner, d.Product)
	order := &sim.StandaloneOrder{
		MessageHeader: owner.NewHeader(terms.Supplier, d.DemandID),
		OrderTerms: sim.OrderTerms{
			Product:      d.Product,
			Amount:       d.Amount,
			Price:        (terms.UnitPrice + transport.Cost) * d.Amount,
			DeliveryDate: max(d.EarliestDeliveryDate, owner.Now()+transport.EstimatedDuration(d.Product)),
			Transport:    transport,
		},
	}
	markOrdered(owner, d.Product, d.Amount)
	owner.Model().RecordDecision(owner, p.ID(), d.DemandID, "standalone-order", terms.Supplier.Name)
	owner.Send(order)
	return true
}

// DemandToRFQ broadcasts an RFQ for an InternalDemand to every configured supplier of the product.
type DemandToRFQ struct {
	sim.PolicyBase
	suppliers *sim.SupplierTable
	cutoff    int64
}

// NewDemandToRFQ creates the RFQ fan-out rule. Quotes are collected for cutoff seconds.
func NewDemandToRFQ(owner *sim.Actor, suppliers *sim.SupplierTable, cutoff int64) (*DemandToRFQ, error) {
	if suppliers == nil {
		return nil, fmt.Errorf("demand-to-rfq for %s: nil supplier table", owner.Name)
	}
	if cutoff < 0 {
		return nil, fmt.Errorf("demand-to-rfq for %s: negative cutoff %d", owner.Name, cutoff)
	}
	return &DemandToRFQ{
		PolicyBase: sim.NewPolicyBase("demand-to-rfq", sim.KindInternalDemand, owner),
		suppliers:  suppliers,
		cutoff:     cutoff,
	}, nil
}

func (p *DemandToRFQ) Handle(msg sim.Message) bool {
	owner := p.Owner()
	d, ok := msg.(*sim.InternalDemand)
	if !ok {
		return unexpected(p, owner, msg)
	}
	terms := p.suppliers.Suppliers(d.Product)
	suppliers := make([]*sim.Actor, 0, len(terms))
	for _, t := range terms {
		suppliers = append(suppliers, t.Supplier)
	}
	if sendRFQs(owner, d, suppliers, p.cutoff) == 0 {
		logrus.Warnf("[t %d] %s/%s: no supplier for %s, demand %d dropped",
			owner.Now(), owner.Name, p.ID(), d.Product.ID, d.DemandID)
		return false
	}
	return true
}

// sendRFQs sends one RFQ per supplier, each with its own transport
// selection, and returns how many were sent.
func sendRFQs(owner *sim.Actor, d *sim.InternalDemand, suppliers []*sim.Actor, cutoff int64) int {
	sent := 0
	for _, s := range suppliers {
		if s == nil || s == owner {
			continue
		}
		transport, _ := owner.Transport().Select(s, owner, d.Product)
		owner.Send(&sim.RequestForQuote{
			MessageHeader:        owner.NewHeader(s, d.DemandID),
			Product:              d.Product,
			Amount:               d.Amount,
			EarliestDeliveryDate: d.EarliestDeliveryDate,
			LatestDeliveryDate:   d.LatestDeliveryDate,
			CutoffDate:           owner.Now() + cutoff,
			Transport:            transport,
		})
		sent++
	}
	return sent
}

// DemandToYellowPage asks a directory for suppliers of the demanded product.
type DemandToYellowPage struct {
	sim.PolicyBase
	directory   *sim.Actor
	maxDistance float64
	maxResults  int
}

// NewDemandToYellowPage creates the directory lookup rule.
func NewDemandToYellowPage(owner, directory *sim.Actor, maxDistance float64, maxResults int) (*DemandToYellowPage, error) {
	if directory == nil {
		return nil, fmt.Errorf("demand-to-yellow-page for %s: no directory", owner.Name)
	}
	return &DemandToYellowPage{
		PolicyBase:  sim.NewPolicyBase("demand-to-yellow-page", sim.KindInternalDemand, owner),
		directory:   directory,
		maxDistance: maxDistance,
		maxResults:  maxResults,
	}, nil
}

func (p *DemandToYellowPage) Handle(msg sim.Message) bool {
	owner := p.Owner()
	d, ok := msg.(*sim.InternalDemand)
	if !ok {
		return unexpected(p, owner, msg)
	}
	owner.Send(&sim.YellowPageRequest{
		MessageHeader: owner.NewHeader(p.directory, d.DemandID),
		Product:       d.Product,
		Topic:         d.Product.Topic,
		MaxDistance:   p.maxDistance,
		MaxResults:    p.maxResults,
	})
	return true
}

// AnswerToRFQ sends RFQs to the candidates of a YellowPageAnswer.
type AnswerToRFQ struct {
	sim.PolicyBase
	cutoff int64
}

// NewAnswerToRFQ creates the rule that continues the directory flow.
func NewAnswerToRFQ(owner *sim.Actor, cutoff int64) *AnswerToRFQ {
	return &AnswerToRFQ{
		PolicyBase: sim.NewPolicyBase("answer-to-rfq", sim.KindYellowPageAnswer, owner),
		cutoff:     cutoff,
	}
}

func (p *AnswerToRFQ) Handle(msg sim.Message) bool {
	owner := p.Owner()
	a, ok := msg.(*sim.YellowPageAnswer)
	if !ok {
		return unexpected(p, owner, msg)
	}
	d := owner.Store().Demand(a.DemandID)
	if d == nil {
		return missingPredecessor(p, owner, msg, "internal demand")
	}
	if sendRFQs(owner, d, a.Candidates, p.cutoff) == 0 {
		logrus.Warnf("[t %d] %s/%s: directory found no supplier for %s", owner.Now(), owner.Name, p.ID(), d.Product.ID)
		return false
	}
	return true
}

// QuoteToOrder waits until the RFQ cutoff, then orders from the best quote
// received for the chain. Quotes arriving after the order are ignored.
type QuoteToOrder struct {
	sim.PolicyBase
	pending map[uint64]sim.Handle
}

// NewQuoteToOrder creates the quote selection rule.
func NewQuoteToOrder(owner *sim.Actor) *QuoteToOrder {
	return &QuoteToOrder{
		PolicyBase: sim.NewPolicyBase("quote-to-order", sim.KindQuote, owner),
		pending:    make(map[uint64]sim.Handle),
	}
}

func (p *QuoteToOrder) Handle(msg sim.Message) bool {
	owner := p.Owner()
	q, ok := msg.(*sim.Quote)
	if !ok {
		return unexpected(p, owner, msg)
	}
	id := q.DemandID
	store := owner.Store()
	if store.Ordered(id) {
		logrus.Debugf("[t %d] %s/%s: late %s ignored, already ordered", owner.Now(), owner.Name, p.ID(), sim.Describe(q))
		return true
	}
	if store.Demand(id) == nil {
		return missingPredecessor(p, owner, msg, "internal demand")
	}
	if _, scheduled := p.pending[id]; scheduled {
		return true
	}
	at := owner.Now()
	if q.RFQ != nil {
		at = max(at, q.RFQ.CutoffDate)
	}
	p.pending[id] = owner.Model().Scheduler.ScheduleAt(at, "select quote", func() {
		p.decide(id)
	})
	return true
}

func (p *QuoteToOrder) decide(id uint64) {
	delete(p.pending, id)
	owner := p.Owner()
	best := SelectQuote(owner.Store().QueryDirection(id, sim.KindQuote, sim.Received))
	if best == nil {
		logrus.Warnf("[t %d] %s/%s: no live quote for demand %d at cutoff", owner.Now(), owner.Name, p.ID(), id)
		return
	}
	rfq := best.RFQ
	order := &sim.QuoteBasedOrder{
		MessageHeader: owner.NewHeader(best.Sender, id),
		OrderTerms: sim.OrderTerms{
			Product:      rfq.Product,
			Amount:       rfq.Amount,
			Price:        best.Price,
			DeliveryDate: best.ProposedDeliveryDate,
			Transport:    best.Transport,
		},
		Quote: best,
	}
	markOrdered(owner, rfq.Product, rfq.Amount)
	owner.Model().RecordDecision(owner, p.ID(), id, "quote-selected", fmt.Sprintf("%s at %.2f", best.Sender.Name, best.Price))
	owner.Send(order)
}

// SelectQuote returns the cheapest quote; ties go to the earlier proposed
// delivery, then to the first received. Quotes without an RFQ are skipped.
func SelectQuote(quotes []sim.Message) *sim.Quote {
	var best *sim.Quote
	for _, m := range quotes {
		q, ok := m.(*sim.Quote)
		if !ok || q.RFQ == nil {
			continue
		}
		switch {
		case best == nil:
			best = q
		case q.Price < best.Price:
			best = q
		case q.Price == best.Price && q.ProposedDeliveryDate < best.ProposedDeliveryDate:
			best = q
		}
	}
	return best
}

func markOrdered(owner *sim.Actor, p *sim.Product, amount float64) {
	if inv := owner.Inventory(); inv != nil {
		if err := inv.MarkOrdered(p, amount); err != nil {
			logrus.Warnf("[t %d] %s: %v", owner.Now(), owner.Name, err)
		}
	}
}

// ConfirmationHandler reacts to OrderConfirmations. A rejection restarts
// the negotiation with a fresh InternalDemand for the same need, up to
// Config.MaxRestarts times.
type ConfirmationHandler struct {
	sim.PolicyBase
}

// NewConfirmationHandler creates the confirmation rule.
func NewConfirmationHandler(owner *sim.Actor) *ConfirmationHandler {
	return &ConfirmationHandler{
		PolicyBase: sim.NewPolicyBase("order-confirmation", sim.KindOrderConfirmation, owner),
	}
}

func (p *ConfirmationHandler) Handle(msg sim.Message) bool {
	owner := p.Owner()
	c, ok := msg.(*sim.OrderConfirmation)
	if !ok {
		return unexpected(p, owner, msg)
	}
	if c.Accepted {
		logrus.Debugf("[t %d] %s: order for demand %d confirmed by %s", owner.Now(), owner.Name, c.DemandID, c.Sender.Name)
		return true
	}
	store := owner.Store()
	old := store.Demand(c.DemandID)
	if old == nil {
		return missingPredecessor(p, owner, msg, "internal demand")
	}
	if inv := owner.Inventory(); inv != nil && c.Order != nil {
		t := c.Order.Terms()
		if err := inv.CancelOrdered(t.Product, t.Amount); err != nil {
			logrus.Warnf("[t %d] %s: %v", owner.Now(), owner.Name, err)
		}
	}
	store.RemoveChain(c.DemandID)

	m := owner.Model()
	if old.Attempt >= m.Config.MaxRestarts {
		logrus.Warnf("[t %d] %s: order for demand %d rejected by %s (%s), giving up after %d restarts",
			owner.Now(), owner.Name, c.DemandID, c.Sender.Name, c.Reason, old.Attempt)
		m.RecordDecision(owner, p.ID(), c.DemandID, "restart-abandoned", c.Reason)
		return true
	}
	d := sim.NewInternalDemand(owner, old.Product, old.Amount, old.EarliestDeliveryDate, old.LatestDeliveryDate)
	d.Attempt = old.Attempt + 1
	logrus.Infof("[t %d] %s: order for demand %d rejected by %s (%s), restarting as demand %d",
		owner.Now(), owner.Name, c.DemandID, c.Sender.Name, c.Reason, d.ID)
	m.RecordDecision(owner, p.ID(), c.DemandID, "negotiation-restarted", fmt.Sprintf("demand %d", d.ID))
	owner.Send(d)
	return true
}

// ShipmentReceiver books delivered goods into inventory and, when
// configured, fines the seller for late delivery.
type ShipmentReceiver struct {
	sim.PolicyBase
	fine *Fine
}

// NewShipmentReceiver creates the goods receipt rule. fine may be nil.
func NewShipmentReceiver(owner *sim.Actor, fine *Fine) *ShipmentReceiver {
	return &ShipmentReceiver{
		PolicyBase: sim.NewPolicyBase("shipment-receiver", sim.KindShipment, owner),
		fine:       fine,
	}
}

func (p *ShipmentReceiver) Handle(msg sim.Message) bool {
	owner := p.Owner()
	s, ok := msg.(*sim.Shipment)
	if !ok {
		return unexpected(p, owner, msg)
	}
	inv := owner.Inventory()
	if inv == nil {
		logrus.Warnf("[t %d] %s/%s: no inventory to receive %s", owner.Now(), owner.Name, p.ID(), sim.Describe(s))
		return false
	}
	product := sim.ProductOf(s)
	if err := inv.Receive(product, s.Amount); err != nil {
		logrus.Warnf("[t %d] %s/%s: %v", owner.Now(), owner.Name, p.ID(), err)
		return false
	}
	s.InTransit = false
	s.Delivered = true
	s.DeliveredAt = owner.Now()
	if p.fine != nil && s.Order != nil {
		late := owner.Now() - s.Order.Terms().DeliveryDate
		levyFine(p, owner, "late-delivery", s.DemandID, s.Sender, owner, p.fine.Amount(late))
	}
	settle(owner, s.DemandID)
	return true
}
