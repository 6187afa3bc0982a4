package sim

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/tradesim/tradesim/sim/trace"
)

// storeEntry is one (message, direction) record. An armed entry owns the
// handle of its timeout so that superseding it cancels the timer.
type storeEntry struct {
	msg   Message
	dir   Direction
	timer Handle
	armed bool
}

// origin is the InternalDemand that opened a chain, kept until the chain is
// purged so that late messages can still find what was originally asked for.
type origin struct {
	demand  *InternalDemand
	ordered bool
}

// MessageStore is an actor's ledger of in-flight messages, indexed by demand chain.
//
// Each recorded message gets a deadline computed from its business dates. If
// the entry is still present when the deadline passes it is removed. A reply
// evicts the entry it answers and cancels that entry's timer.
type MessageStore struct {
	owner   *Actor
	chains  map[uint64][]*storeEntry
	origins map[uint64]*origin
	size    int
}

func newMessageStore(owner *Actor) *MessageStore {
	return &MessageStore{
		owner:   owner,
		chains:  make(map[uint64][]*storeEntry),
		origins: make(map[uint64]*origin),
	}
}

func (s *MessageStore) now() int64 {
	return s.owner.model.Scheduler.Now()
}

// Deadline returns when an entry for msg recorded at now times out, and
// whether the kind is timed at all. Every deadline is at least now.
func Deadline(msg Message, dir Direction, now int64) (int64, bool) {
	switch m := msg.(type) {
	case *InternalDemand:
		return maxTime(now, m.LatestDeliveryDate), true
	case *RequestForQuote:
		if dir == Sent {
			return maxTime(now, m.CutoffDate+Day), true
		}
		return maxTime(now, m.CutoffDate), true
	case *Quote:
		d := maxTime(now, m.ProposedDeliveryDate)
		if m.RFQ != nil {
			d = maxTime(d, m.RFQ.CutoffDate+Day, m.RFQ.LatestDeliveryDate)
		}
		return d, true
	case *QuoteBasedOrder:
		d := maxTime(now, m.DeliveryDate)
		if m.Quote != nil {
			d = maxTime(d, m.Quote.ProposedDeliveryDate)
			if m.Quote.RFQ != nil {
				d = maxTime(d, m.Quote.RFQ.LatestDeliveryDate)
			}
		}
		return d, true
	case *StandaloneOrder:
		return maxTime(now, m.DeliveryDate), true
	}
	return now, false
}

// Record adds msg to the store. Depending on its kind it evicts the entry it
// supersedes and arms a timeout. Unknown kinds are logged and ignored.
func (s *MessageStore) Record(msg Message, dir Direction) {
	if msg == nil {
		logrus.Warnf("%s store: ignoring nil message", s.owner.Name)
		return
	}
	id := msg.Header().DemandID
	switch m := msg.(type) {
	case *InternalDemand:
		if _, ok := s.origins[id]; !ok {
			s.origins[id] = &origin{demand: m}
		}
	case *RequestForQuote:
		s.evictKind(id, KindInternalDemand)
	case *Quote:
		s.evictMessage(m.RFQ)
	case *QuoteBasedOrder:
		s.evictMessage(m.Quote)
		s.markOrdered(id, dir)
	case *StandaloneOrder:
		s.evictKind(id, KindInternalDemand)
		s.markOrdered(id, dir)
	case *OrderConfirmation:
		s.evictMessage(m.Order)
	case *ProductionOrder, *Shipment, *Bill, *Payment, *YellowPageRequest, *YellowPageAnswer:
	default:
		logrus.Warnf("[t %d] %s store: unknown message kind %s (%T), not recorded", s.now(), s.owner.Name, msg.Kind(), msg)
		return
	}

	e := &storeEntry{msg: msg, dir: dir}
	s.chains[id] = append(s.chains[id], e)
	s.size++
	if deadline, timed := Deadline(msg, dir, s.now()); timed {
		s.arm(e, deadline)
	}
	s.owner.model.Metrics.SetStoreEntries(s.owner.Name, s.size)
}

func (s *MessageStore) markOrdered(id uint64, dir Direction) {
	if o, ok := s.origins[id]; ok && dir == Sent {
		o.ordered = true
	}
}

func (s *MessageStore) arm(e *storeEntry, deadline int64) {
	name := "timeout " + e.msg.Kind().String()
	e.timer = scheduleAt(s.owner.model.Scheduler, deadline, PriorityTimeout, name, func() {
		s.expire(e)
	})
	e.armed = true
}

// expire is the timeout callback. It is a no-op when the entry is already gone.
func (s *MessageStore) expire(e *storeEntry) {
	e.armed = false
	id := e.msg.Header().DemandID
	if !s.detach(e) {
		return
	}
	logrus.Debugf("[t %d] %s store: %s %s timed out", s.now(), s.owner.Name, e.dir, Describe(e.msg))
	s.owner.model.Metrics.TimeoutFired(e.msg.Kind().String())
	s.owner.model.recordMessage(e.msg, trace.EventTimeout)
	// A chain with nothing left waiting on a deadline and no confirmed order is dead.
	if !s.hasArmed(id) && !s.Has(id, KindOrderConfirmation, Sent) && !s.Has(id, KindOrderConfirmation, Received) {
		if n := s.RemoveChain(id); n > 0 {
			logrus.Debugf("[t %d] %s store: purged %d stale entries of demand %d", s.now(), s.owner.Name, n, id)
		}
		delete(s.origins, id)
	}
	s.owner.model.Metrics.SetStoreEntries(s.owner.Name, s.size)
}

func (s *MessageStore) hasArmed(id uint64) bool {
	for _, e := range s.chains[id] {
		if e.armed {
			return true
		}
	}
	return false
}

// detach removes e from its chain and cancels its timer. Returns false if e was not present.
func (s *MessageStore) detach(e *storeEntry) bool {
	id := e.msg.Header().DemandID
	chain := s.chains[id]
	for i, c := range chain {
		if c != e {
			continue
		}
		s.chains[id] = append(chain[:i:i], chain[i+1:]...)
		s.size--
		if e.armed {
			s.owner.model.Scheduler.Cancel(e.timer)
			e.armed = false
		}
		return true
	}
	return false
}

func (s *MessageStore) evictKind(id uint64, kind MessageKind) {
	for _, e := range append([]*storeEntry(nil), s.chains[id]...) {
		if e.msg.Kind() == kind {
			s.detach(e)
		}
	}
}

func (s *MessageStore) evictMessage(msg Message) {
	if msg == nil {
		return
	}
	h := msg.Header()
	for _, e := range append([]*storeEntry(nil), s.chains[h.DemandID]...) {
		if e.msg.Header().ID == h.ID {
			s.detach(e)
		}
	}
}

// Remove deletes the entry for msg in the given direction and cancels its timer.
func (s *MessageStore) Remove(msg Message, dir Direction) bool {
	if msg == nil {
		return false
	}
	h := msg.Header()
	for _, e := range s.chains[h.DemandID] {
		if e.msg.Header().ID == h.ID && e.dir == dir {
			removed := s.detach(e)
			s.owner.model.Metrics.SetStoreEntries(s.owner.Name, s.size)
			return removed
		}
	}
	return false
}

// RemoveChain deletes every entry of a demand chain, cancels their timers and
// forgets the chain's origin. Returns the number of entries removed.
func (s *MessageStore) RemoveChain(demandID uint64) int {
	chain := s.chains[demandID]
	for _, e := range chain {
		if e.armed {
			s.owner.model.Scheduler.Cancel(e.timer)
			e.armed = false
		}
	}
	delete(s.chains, demandID)
	delete(s.origins, demandID)
	s.size -= len(chain)
	s.owner.model.Metrics.SetStoreEntries(s.owner.Name, s.size)
	return len(chain)
}

// Query returns the messages of a kind in a chain, both directions, in insertion order.
func (s *MessageStore) Query(demandID uint64, kind MessageKind) []Message {
	var out []Message
	for _, e := range s.chains[demandID] {
		if e.msg.Kind() == kind {
			out = append(out, e.msg)
		}
	}
	return out
}

// QueryDirection is Query restricted to one direction.
func (s *MessageStore) QueryDirection(demandID uint64, kind MessageKind, dir Direction) []Message {
	var out []Message
	for _, e := range s.chains[demandID] {
		if e.msg.Kind() == kind && e.dir == dir {
			out = append(out, e.msg)
		}
	}
	return out
}

// Has reports whether the chain holds a message of kind in direction dir.
func (s *MessageStore) Has(demandID uint64, kind MessageKind, dir Direction) bool {
	for _, e := range s.chains[demandID] {
		if e.msg.Kind() == kind && e.dir == dir {
			return true
		}
	}
	return false
}

// Chain returns every message of a chain in insertion order.
func (s *MessageStore) Chain(demandID uint64) []Message {
	chain := s.chains[demandID]
	out := make([]Message, 0, len(chain))
	for _, e := range chain {
		out = append(out, e.msg)
	}
	return out
}

// Demand returns the InternalDemand that opened a chain, or nil if the
// chain was purged or never originated here.
func (s *MessageStore) Demand(demandID uint64) *InternalDemand {
	if o, ok := s.origins[demandID]; ok {
		return o.demand
	}
	return nil
}

// Negotiating returns the total amount of p requested by open demands that
// have not yet produced an order.
func (s *MessageStore) Negotiating(p *Product) float64 {
	total := 0.0
	for _, o := range s.origins {
		if !o.ordered && o.demand.Product == p {
			total += o.demand.Amount
		}
	}
	return total
}

// Len returns the number of live entries.
func (s *MessageStore) Len() int {
	return s.size
}

// Chains returns the ids of chains with live entries, sorted.
func (s *MessageStore) Chains() []uint64 {
	ids := make([]uint64, 0, len(s.chains))
	for id, chain := range s.chains {
		if len(chain) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Ordered reports whether an order has been sent for the chain.
func (s *MessageStore) Ordered(demandID uint64) bool {
	o, ok := s.origins[demandID]
	return ok && o.ordered
}
