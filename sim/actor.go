package sim

import (
	"fmt"
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/tradesim/tradesim/sim/trace"
)

// Actor is a trading participant: a customer, retailer, manufacturer,
// supplier, bank or directory. What it can do is decided by its roles
// and the capabilities attached to it, not by its type.
type Actor struct {
	ID       string
	Name     string
	Location Location

	model        *Model
	roles        []*Role
	store        *MessageStore
	capabilities []any
}

func (a *Actor) String() string {
	return a.Name
}

// Model returns the run the actor belongs to.
func (a *Actor) Model() *Model {
	return a.model
}

// Now returns the current simulated time.
func (a *Actor) Now() int64 {
	return a.model.Now()
}

// Store returns the actor's message store.
func (a *Actor) Store() *MessageStore {
	return a.store
}

// AddRole creates a named role. Role names are unique per actor.
func (a *Actor) AddRole(name string) (*Role, error) {
	for _, r := range a.roles {
		if r.name == name {
			return nil, fmt.Errorf("actor %s role %q: %w", a.Name, name, ErrDuplicateRole)
		}
	}
	r := &Role{
		name:     name,
		owner:    a,
		policies: make(map[MessageKind][]Policy),
		ids:      make(map[string]bool),
	}
	a.roles = append(a.roles, r)
	return r, nil
}

// Role returns the role with the given name, or nil.
func (a *Actor) Role(name string) *Role {
	for _, r := range a.roles {
		if r.name == name {
			return r
		}
	}
	return nil
}

// Roles returns the roles in creation order.
func (a *Actor) Roles() []*Role {
	return append([]*Role(nil), a.roles...)
}

// Attach adds a capability component. At most one capability of each
// concrete type may be attached.
func (a *Actor) Attach(c any) error {
	if c == nil || reflect.ValueOf(c).Kind() == reflect.Ptr && reflect.ValueOf(c).IsNil() {
		return fmt.Errorf("actor %s: nil capability", a.Name)
	}
	for _, existing := range a.capabilities {
		if reflect.TypeOf(existing) == reflect.TypeOf(c) {
			return fmt.Errorf("actor %s: capability %T already attached", a.Name, c)
		}
	}
	a.capabilities = append(a.capabilities, c)
	if inv, ok := c.(*Inventory); ok {
		a.watchInventory(inv)
	}
	return nil
}

// Capability returns the first capability of the actor assignable to T.
func Capability[T any](a *Actor) (T, bool) {
	var zero T
	if a == nil {
		return zero, false
	}
	for _, c := range a.capabilities {
		if t, ok := c.(T); ok {
			return t, true
		}
	}
	return zero, false
}

// Inventory returns the attached inventory, or nil.
func (a *Actor) Inventory() *Inventory {
	inv, _ := Capability[*Inventory](a)
	return inv
}

// Account returns the attached bank account, or nil.
func (a *Actor) Account() *Account {
	acc, _ := Capability[*Account](a)
	return acc
}

// Transport returns the actor's own transport, falling back to the model default.
func (a *Actor) Transport() *Transport {
	if t, ok := Capability[*Transport](a); ok {
		return t
	}
	return a.model.Transport
}

func (a *Actor) watchInventory(inv *Inventory) {
	inv.Watch(func(p *Product, level StockLevel) {
		a.model.Metrics.SetInventoryLevel(a.Name, p.ID, level.Actual)
	})
}

// NewHeader stamps a header for a message from a to receiver in the given demand chain.
func (a *Actor) NewHeader(receiver *Actor, demandID uint64) MessageHeader {
	return MessageHeader{
		ID:        a.model.NextMessageID(),
		Sender:    a,
		Receiver:  receiver,
		Timestamp: a.Now(),
		DemandID:  demandID,
	}
}

// Send records msg as sent and schedules its delivery after the model's message delay.
func (a *Actor) Send(msg Message) {
	a.SendAfter(msg, a.model.Config.MessageDelay)
}

// SendAfter records msg as sent and schedules its delivery after delay.
// Self-addressed messages are recorded once, on receipt.
func (a *Actor) SendAfter(msg Message, delay int64) {
	if msg == nil {
		logrus.Warnf("[t %d] %s: refusing to send nil message", a.Now(), a.Name)
		return
	}
	h := msg.Header()
	if h.Sender != a {
		logrus.Warnf("[t %d] %s: %s has sender %s, dropped", a.Now(), a.Name, Describe(msg), actorName(h.Sender))
		a.model.recordMessage(msg, trace.EventDropped)
		return
	}
	if h.Receiver == nil {
		logrus.Warnf("[t %d] %s: %s has no receiver, dropped", a.Now(), a.Name, Describe(msg))
		a.model.recordMessage(msg, trace.EventDropped)
		return
	}
	if h.Receiver != a {
		a.store.Record(msg, Sent)
	}
	a.model.journalMessage(msg)
	a.model.Metrics.MessageSent(msg.Kind().String())
	a.model.recordMessage(msg, trace.EventSent)
	logrus.Debugf("[t %d] %s -> %s: %s", a.Now(), a.Name, h.Receiver.Name, Describe(msg))

	to := h.Receiver
	if delay < 0 {
		delay = 0
	}
	scheduleAt(a.model.Scheduler, a.Now()+delay, PriorityDelivery, "deliver "+msg.Kind().String(), func() {
		to.Receive(msg)
	})
}

// Receive records msg in the store and dispatches it to every role.
// Returns whether any policy handled it. Never panics on protocol mismatches.
func (a *Actor) Receive(msg Message) bool {
	if msg == nil {
		logrus.Warnf("[t %d] %s: received nil message", a.Now(), a.Name)
		return false
	}
	h := msg.Header()
	if h.Receiver != a {
		logrus.Warnf("[t %d] %s: %s addressed to %s, dropped", a.Now(), a.Name, Describe(msg), actorName(h.Receiver))
		a.model.recordMessage(msg, trace.EventDropped)
		return false
	}
	a.store.Record(msg, Received)
	a.model.Metrics.MessageReceived(msg.Kind().String())
	a.model.recordMessage(msg, trace.EventReceived)

	handled := false
	for _, r := range a.roles {
		if r.Dispatch(msg) {
			handled = true
		}
	}
	if !handled {
		logrus.Warnf("[t %d] %s: no policy handled %s from %s", a.Now(), a.Name, Describe(msg), actorName(h.Sender))
		a.model.Metrics.MessageUnhandled(msg.Kind().String())
		a.model.recordMessage(msg, trace.EventUnhandled)
	}
	return handled
}
