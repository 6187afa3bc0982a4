package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Policy is a single business rule. It declares the one message kind it
// accepts and reacts to matching messages with follow-up messages or state
// changes. Handle reports whether the message was acted upon.
type Policy interface {
	ID() string
	Kind() MessageKind
	Accepts(msg Message) bool
	Handle(msg Message) bool
}

// PolicyBase holds the configuration every policy shares: its id, accepted
// kind, owner, and optional product and partner filters. Concrete policies
// embed it and implement Handle.
type PolicyBase struct {
	id            string
	kind          MessageKind
	owner         *Actor
	validProducts map[string]bool
	validPartners map[string]bool
}

// NewPolicyBase creates the shared part of a policy. Empty filters accept everything.
func NewPolicyBase(id string, kind MessageKind, owner *Actor) PolicyBase {
	return PolicyBase{
		id:            id,
		kind:          kind,
		owner:         owner,
		validProducts: make(map[string]bool),
		validPartners: make(map[string]bool),
	}
}

func (b *PolicyBase) ID() string        { return b.id }
func (b *PolicyBase) Kind() MessageKind { return b.kind }
func (b *PolicyBase) Owner() *Actor     { return b.owner }

// RestrictProducts limits the policy to messages about the given products.
func (b *PolicyBase) RestrictProducts(products ...*Product) {
	for _, p := range products {
		if p != nil {
			b.validProducts[p.ID] = true
		}
	}
}

// RestrictPartners limits the policy to messages from the given senders.
func (b *PolicyBase) RestrictPartners(partners ...*Actor) {
	for _, a := range partners {
		if a != nil {
			b.validPartners[a.ID] = true
		}
	}
}

// Accepts applies the product and partner filters.
func (b *PolicyBase) Accepts(msg Message) bool {
	if msg == nil {
		return false
	}
	if len(b.validProducts) > 0 {
		p := ProductOf(msg)
		if p == nil || !b.validProducts[p.ID] {
			return false
		}
	}
	if len(b.validPartners) > 0 {
		s := msg.Header().Sender
		if s == nil || !b.validPartners[s.ID] {
			return false
		}
	}
	return true
}

// Role is a named bundle of policies owned by one actor, with a typed
// registry keyed by message kind. Registration order is invocation order.
type Role struct {
	name     string
	owner    *Actor
	policies map[MessageKind][]Policy
	ids      map[string]bool
}

// Name returns the role name.
func (r *Role) Name() string { return r.name }

// Owner returns the actor the role belongs to.
func (r *Role) Owner() *Actor { return r.owner }

// Register adds a policy. Policy ids must be unique within the role and
// the declared kind must be a concrete message kind.
func (r *Role) Register(p Policy) error {
	if p == nil {
		return fmt.Errorf("role %s/%s: nil policy", r.owner.Name, r.name)
	}
	if !p.Kind().Valid() {
		return fmt.Errorf("role %s/%s: policy %s declares unknown kind %s", r.owner.Name, r.name, p.ID(), p.Kind())
	}
	if r.ids[p.ID()] {
		return fmt.Errorf("role %s/%s policy %s: %w", r.owner.Name, r.name, p.ID(), ErrDuplicatePolicy)
	}
	r.ids[p.ID()] = true
	r.policies[p.Kind()] = append(r.policies[p.Kind()], p)
	return nil
}

// MustRegister registers p and panics on configuration errors.
func (r *Role) MustRegister(p Policy) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Policies returns the policies registered for kind, in registration order.
func (r *Role) Policies(kind MessageKind) []Policy {
	return append([]Policy(nil), r.policies[kind]...)
}

// Dispatch invokes every matching policy for msg and returns the OR of
// their results. A policy is invoked only when its kind matches exactly,
// msg is addressed to the owner, and its product and partner filters accept msg.
func (r *Role) Dispatch(msg Message) bool {
	if msg == nil {
		logrus.Warnf("%s/%s: dispatch of nil message", r.owner.Name, r.name)
		return false
	}
	if msg.Header().Receiver != r.owner {
		logrus.Warnf("[t %d] %s/%s: %s addressed to %s, not dispatched",
			r.owner.Now(), r.owner.Name, r.name, Describe(msg), actorName(msg.Header().Receiver))
		return false
	}
	policies := r.policies[msg.Kind()]
	if len(policies) == 0 {
		logrus.Tracef("%s/%s: no policy for %s", r.owner.Name, r.name, msg.Kind())
		return false
	}
	handled := false
	for _, p := range policies {
		if p.Kind() != msg.Kind() {
			logrus.Warnf("%s/%s: policy %s declares %s, skipped for %s", r.owner.Name, r.name, p.ID(), p.Kind(), Describe(msg))
			continue
		}
		if !p.Accepts(msg) {
			continue
		}
		if p.Handle(msg) {
			handled = true
		} else {
			logrus.Debugf("[t %d] %s/%s: policy %s did not handle %s", r.owner.Now(), r.owner.Name, r.name, p.ID(), Describe(msg))
		}
	}
	return handled
}
