package codec

import (
	"encoding/json"
	"fmt"

	"github.com/tradesim/tradesim/sim"
)

// Context resolves references while decoding messages of one run. Actors
// and products come from the model; referenced messages must have been
// decoded (or remembered) earlier through the same Context.
type Context struct {
	model    *sim.Model
	messages map[uint64]sim.Message
}

// NewContext creates a decode context bound to m.
func NewContext(m *sim.Model) *Context {
	return &Context{model: m, messages: make(map[uint64]sim.Message)}
}

// Remember makes msg available as a reference target.
func (c *Context) Remember(msg sim.Message) {
	if msg != nil {
		c.messages[msg.Header().ID] = msg
	}
}

// Decode reconstructs one message from an envelope and remembers it.
func (c *Context) Decode(data []byte) (sim.Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	return c.decodeEnvelope(env)
}

// DecodeAll reconstructs a JSON array of envelopes in order.
func (c *Context) DecodeAll(data []byte) ([]sim.Message, error) {
	var envs []Envelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	out := make([]sim.Message, 0, len(envs))
	for i, env := range envs {
		msg, err := c.decodeEnvelope(env)
		if err != nil {
			return nil, fmt.Errorf("envelope %d: %w", i, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (c *Context) decodeEnvelope(env Envelope) (sim.Message, error) {
	kind, ok := sim.ParseMessageKind(env.Kind)
	if !ok {
		return nil, fmt.Errorf("codec: %q: %w", env.Kind, ErrUnknownKind)
	}
	msg, err := c.decodePayload(kind, env.Payload)
	if err != nil {
		return nil, fmt.Errorf("codec: %s: %w", env.Kind, err)
	}
	c.Remember(msg)
	return msg, nil
}

func (c *Context) decodePayload(kind sim.MessageKind, raw json.RawMessage) (sim.Message, error) {
	// r collects the first reference error so each case stays linear.
	r := &resolver{ctx: c}
	var msg sim.Message
	switch kind {
	case sim.KindInternalDemand:
		var p internalDemand
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		msg = &sim.InternalDemand{MessageHeader: r.header(p.header), Product: r.product(p.Product), Amount: p.Amount,
			EarliestDeliveryDate: p.Earliest, LatestDeliveryDate: p.Latest, Attempt: p.Attempt}
	case sim.KindYellowPageRequest:
		var p yellowPageRequest
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		msg = &sim.YellowPageRequest{MessageHeader: r.header(p.header), Product: r.product(p.Product), Topic: p.Topic,
			MaxDistance: p.MaxDistance, MaxResults: p.MaxResults}
	case sim.KindYellowPageAnswer:
		var p yellowPageAnswer
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		candidates := make([]*sim.Actor, 0, len(p.Candidates))
		for _, id := range p.Candidates {
			candidates = append(candidates, r.actor(id))
		}
		req := r.request(p.Request)
		msg = &sim.YellowPageAnswer{MessageHeader: r.header(p.header), Request: req, Candidates: candidates}
	case sim.KindRequestForQuote:
		var p requestForQuote
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		msg = &sim.RequestForQuote{MessageHeader: r.header(p.header), Product: r.product(p.Product), Amount: p.Amount,
			EarliestDeliveryDate: p.Earliest, LatestDeliveryDate: p.Latest, CutoffDate: p.Cutoff,
			Transport: p.Transport.option()}
	case sim.KindQuote:
		var p quote
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		rfq := r.rfq(p.RFQ)
		msg = &sim.Quote{MessageHeader: r.header(p.header), RFQ: rfq, Price: p.Price,
			ProposedShippingDate: p.Shipping, ProposedDeliveryDate: p.Delivery, Transport: p.Transport.option()}
	case sim.KindQuoteBasedOrder:
		var p quoteBasedOrder
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		q := r.quote(p.Quote)
		msg = &sim.QuoteBasedOrder{MessageHeader: r.header(p.header), OrderTerms: r.terms(p.orderTerms), Quote: q}
	case sim.KindStandaloneOrder:
		var p standaloneOrder
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		msg = &sim.StandaloneOrder{MessageHeader: r.header(p.header), OrderTerms: r.terms(p.orderTerms)}
	case sim.KindProductionOrder:
		var p productionOrder
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		msg = &sim.ProductionOrder{MessageHeader: r.header(p.header), Product: r.product(p.Product), Amount: p.Amount,
			DeliveryDate: p.DeliveryDate}
	case sim.KindOrderConfirmation:
		var p orderConfirmation
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		msg = &sim.OrderConfirmation{MessageHeader: r.header(p.header), Order: r.order(p.Order), Accepted: p.Accepted, Reason: p.Reason}
	case sim.KindShipment:
		var p shipment
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		msg = &sim.Shipment{MessageHeader: r.header(p.header), Order: r.order(p.Order), Amount: p.Amount, Value: p.Value,
			ShippedAt: p.ShippedAt, InTransit: p.InTransit, Delivered: p.Delivered, DeliveredAt: p.DeliveredAt}
	case sim.KindBill:
		var p bill
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		s := r.shipment(p.Shipment)
		msg = &sim.Bill{MessageHeader: r.header(p.header), Order: r.order(p.Order), Shipment: s, Amount: p.Amount,
			FinalPaymentDate: p.FinalPaymentDate, Paid: p.Paid, PaidAt: p.PaidAt}
	case sim.KindPayment:
		var p payment
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		b := r.bill(p.Bill)
		msg = &sim.Payment{MessageHeader: r.header(p.header), Bill: b, Amount: p.Amount}
	default:
		return nil, ErrUnknownKind
	}
	if r.err != nil {
		return nil, r.err
	}
	return msg, nil
}

type resolver struct {
	ctx *Context
	err error
}

func (r *resolver) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format+": %w", append(args, ErrUnresolvedReference)...)
	}
}

func (r *resolver) actor(id string) *sim.Actor {
	if id == "" {
		return nil
	}
	a := r.ctx.model.Actor(id)
	if a == nil {
		r.fail("actor %s", id)
	}
	return a
}

func (r *resolver) product(id string) *sim.Product {
	if id == "" {
		return nil
	}
	p := r.ctx.model.Product(id)
	if p == nil {
		r.fail("product %s", id)
	}
	return p
}

// message resolves a message id; 0 means no reference.
func (r *resolver) message(id uint64) sim.Message {
	if id == 0 {
		return nil
	}
	m, ok := r.ctx.messages[id]
	if !ok {
		r.fail("message %d", id)
		return nil
	}
	return m
}

func (r *resolver) order(id uint64) sim.Order {
	m := r.message(id)
	if m == nil {
		return nil
	}
	o, ok := m.(sim.Order)
	if !ok {
		r.fail("message %d is a %s, not an order", id, m.Kind())
		return nil
	}
	return o
}

// typed resolves id to a message of kind want and reports any other kind.
func typed[T sim.Message](r *resolver, id uint64, want sim.MessageKind) T {
	var zero T
	m := r.message(id)
	if m == nil {
		return zero
	}
	t, ok := m.(T)
	if !ok {
		r.fail("message %d is a %s, not a %s", id, m.Kind(), want)
		return zero
	}
	return t
}

func (r *resolver) request(id uint64) *sim.YellowPageRequest {
	return typed[*sim.YellowPageRequest](r, id, sim.KindYellowPageRequest)
}

func (r *resolver) rfq(id uint64) *sim.RequestForQuote {
	return typed[*sim.RequestForQuote](r, id, sim.KindRequestForQuote)
}

func (r *resolver) quote(id uint64) *sim.Quote {
	return typed[*sim.Quote](r, id, sim.KindQuote)
}

func (r *resolver) shipment(id uint64) *sim.Shipment {
	return typed[*sim.Shipment](r, id, sim.KindShipment)
}

func (r *resolver) bill(id uint64) *sim.Bill {
	return typed[*sim.Bill](r, id, sim.KindBill)
}

func (r *resolver) header(h header) sim.MessageHeader {
	return sim.MessageHeader{
		ID:        h.ID,
		Sender:    r.actor(h.Sender),
		Receiver:  r.actor(h.Receiver),
		Timestamp: h.Timestamp,
		DemandID:  h.DemandID,
	}
}

func (r *resolver) terms(t orderTerms) sim.OrderTerms {
	return sim.OrderTerms{
		Product:      r.product(t.Product),
		Amount:       t.Amount,
		Price:        t.Price,
		DeliveryDate: t.DeliveryDate,
		Transport:    t.Transport.option(),
	}
}
