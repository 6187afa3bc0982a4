package policy

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tradesim/tradesim/sim"
)

// RFQToQuote answers RFQs for catalog products with a priced Quote.
// RFQs whose delivery window cannot be met are declined silently.
type RFQToQuote struct {
	sim.PolicyBase
	catalog  *sim.Catalog
	handling int64
}

// NewRFQToQuote creates the quoting rule. handling is the minimum time
// between now and the earliest possible shipping date.
func NewRFQToQuote(owner *sim.Actor, catalog *sim.Catalog, handling int64) (*RFQToQuote, error) {
	if catalog == nil {
		return nil, fmt.Errorf("rfq-to-quote for %s: nil catalog", owner.Name)
	}
	return &RFQToQuote{
		PolicyBase: sim.NewPolicyBase("rfq-to-quote", sim.KindRequestForQuote, owner),
		catalog:    catalog,
		handling:   max(0, handling),
	}, nil
}

func (p *RFQToQuote) Handle(msg sim.Message) bool {
	owner := p.Owner()
	r, ok := msg.(*sim.RequestForQuote)
	if !ok {
		return unexpected(p, owner, msg)
	}
	unitPrice, sold := p.catalog.Price(r.Product)
	if !sold {
		logrus.Debugf("[t %d] %s/%s: %s not in catalog", owner.Now(), owner.Name, p.ID(), r.Product.ID)
		return false
	}
	transport := r.Transport
	if transport.IsZero() {
		transport, _ = owner.Transport().Select(owner, r.Sender, r.Product)
	}
	duration := transport.EstimatedDuration(r.Product)
	shipping := max(owner.Now()+p.handling, r.EarliestDeliveryDate-duration)
	delivery := shipping + duration
	if r.LatestDeliveryDate > 0 && delivery > r.LatestDeliveryDate {
		logrus.Debugf("[t %d] %s/%s: cannot deliver %s by %d (earliest %d), declining",
			owner.Now(), owner.Name, p.ID(), sim.Describe(r), r.LatestDeliveryDate, delivery)
		owner.Model().RecordDecision(owner, p.ID(), r.DemandID, "quote-declined", "delivery window missed")
		return true
	}
	owner.Send(&sim.Quote{
		MessageHeader:        owner.NewHeader(r.Sender, r.DemandID),
		RFQ:                  r,
		Price:                (unitPrice + transport.Cost) * r.Amount,
		ProposedShippingDate: shipping,
		ProposedDeliveryDate: delivery,
		Transport:            transport,
	})
	return true
}

// OrderToShipment confirms orders, ships them when due and bills the buyer.
// Orders for products outside the catalog are rejected. When stock stays
// short for Config.MaxRetries rechecks the claim is released and the buyer
// receives a rejection instead.
type OrderToShipment struct {
	sim.PolicyBase
	catalog     *sim.Catalog
	handling    int64
	paymentTerm int64
}

// NewOrderToShipment creates the fulfilment rule for one order kind.
func NewOrderToShipment(owner *sim.Actor, kind sim.MessageKind, catalog *sim.Catalog, handling, paymentTerm int64) (*OrderToShipment, error) {
	if kind != sim.KindQuoteBasedOrder && kind != sim.KindStandaloneOrder {
		return nil, fmt.Errorf("order-to-shipment for %s: %s is not an order kind", owner.Name, kind)
	}
	if catalog == nil {
		return nil, fmt.Errorf("order-to-shipment for %s: nil catalog", owner.Name)
	}
	return &OrderToShipment{
		PolicyBase:  sim.NewPolicyBase("order-to-shipment/"+kind.String(), kind, owner),
		catalog:     catalog,
		handling:    max(0, handling),
		paymentTerm: max(0, paymentTerm),
	}, nil
}

func (p *OrderToShipment) Handle(msg sim.Message) bool {
	owner := p.Owner()
	o, ok := msg.(sim.Order)
	if !ok {
		return unexpected(p, owner, msg)
	}
	terms := o.Terms()
	inv := owner.Inventory()
	if _, sold := p.catalog.Price(terms.Product); !sold || inv == nil {
		p.confirm(o, false, "product not sold")
		owner.Store().RemoveChain(o.Header().DemandID)
		return true
	}
	p.confirm(o, true, "")
	if err := inv.Claim(terms.Product, terms.Amount); err != nil {
		logrus.Warnf("[t %d] %s/%s: %v", owner.Now(), owner.Name, p.ID(), err)
	}

	id := o.Header().DemandID
	shipAt := max(terms.DeliveryDate-terms.Transport.EstimatedDuration(terms.Product), owner.Now()+p.handling)
	loop := &retryLoop{
		owner:    owner,
		policy:   p.ID(),
		reason:   "insufficient-stock",
		demandID: id,
		attempt:  func() error { return p.ship(o) },
		giveUp: func(error) {
			if err := inv.ReleaseClaim(terms.Product, terms.Amount); err != nil {
				logrus.Warnf("[t %d] %s/%s: %v", owner.Now(), owner.Name, p.ID(), err)
			}
			p.confirm(o, false, "stock unavailable")
			owner.Store().RemoveChain(id)
		},
	}
	owner.Model().Scheduler.ScheduleAt(shipAt, "ship order", loop.run)
	return true
}

func (p *OrderToShipment) confirm(o sim.Order, accepted bool, reason string) {
	owner := p.Owner()
	h := o.Header()
	owner.Send(&sim.OrderConfirmation{
		MessageHeader: owner.NewHeader(h.Sender, h.DemandID),
		Order:         o,
		Accepted:      accepted,
		Reason:        reason,
	})
	decision := "order-accepted"
	if !accepted {
		decision = "order-rejected"
	}
	owner.Model().RecordDecision(owner, p.ID(), h.DemandID, decision, reason)
}

// ship moves the goods out of stock, puts them in transit and bills the buyer.
func (p *OrderToShipment) ship(o sim.Order) error {
	owner := p.Owner()
	terms := o.Terms()
	if err := owner.Inventory().Ship(terms.Product, terms.Amount); err != nil {
		return err
	}
	h := o.Header()
	shipment := &sim.Shipment{
		MessageHeader: owner.NewHeader(h.Sender, h.DemandID),
		Order:         o,
		Amount:        terms.Amount,
		Value:         terms.Price,
		ShippedAt:     owner.Now(),
		InTransit:     true,
	}
	owner.SendAfter(shipment, terms.Transport.EstimatedDuration(terms.Product))
	owner.Send(&sim.Bill{
		MessageHeader:    owner.NewHeader(h.Sender, h.DemandID),
		Order:            o,
		Shipment:         shipment,
		Amount:           terms.Price,
		FinalPaymentDate: owner.Now() + p.paymentTerm,
	})
	logrus.Debugf("[t %d] %s: shipped %.1f %s to %s", owner.Now(), owner.Name, terms.Amount, terms.Product.ID, h.Sender.Name)
	return nil
}
