package sim

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tradesim/tradesim/sim/metrics"
	"github.com/tradesim/tradesim/sim/trace"
)

// actorNamespace derives stable actor ids from actor names.
var actorNamespace = uuid.MustParse("5c1b7a52-3f0e-4c8e-9d59-0f4f3b2a6e11")

// Config holds the run-wide protocol parameters.
type Config struct {
	// MessageDelay is the modeled latency of every non-shipment message.
	MessageDelay int64
	// RetryInterval is how long a policy waits before rechecking stock or funds.
	RetryInterval int64
	// MaxRetries caps rechecks; the loop is abandoned after this many failures.
	MaxRetries int
	// MaxRestarts caps negotiation restarts after rejected order confirmations.
	MaxRestarts int
}

// DefaultConfig returns the protocol defaults: instant messages,
// daily rechecks for a month, five negotiation restarts.
func DefaultConfig() Config {
	return Config{
		MessageDelay:  0,
		RetryInterval: Day,
		MaxRetries:    30,
		MaxRestarts:   5,
	}
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.MessageDelay < 0 {
		return fmt.Errorf("message delay must be non-negative, got %d", c.MessageDelay)
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry interval must be positive, got %d", c.RetryInterval)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.MaxRestarts < 0 {
		return fmt.Errorf("max restarts must be non-negative, got %d", c.MaxRestarts)
	}
	return nil
}

// Model is the explicit context of one simulation run: clock, actors,
// products, message ids and the optional trace and metrics sinks.
// Nothing in the engine is global; two Models never share state.
type Model struct {
	Scheduler Scheduler
	Config    Config
	RNG       *PartitionedRNG
	Trace     *trace.SimulationTrace
	Metrics   *metrics.Collector
	// Transport is the default transport used by actors without their own.
	Transport *Transport

	actors        []*Actor
	actorsByID    map[string]*Actor
	actorsByName  map[string]*Actor
	products      map[string]*Product
	nextMessageID uint64
	journal       []Message
	keepJournal   bool
}

// NewModel creates a Model. Returns an error if the scheduler is nil or the config is invalid.
func NewModel(scheduler Scheduler, config Config, seed int64) (*Model, error) {
	if scheduler == nil {
		return nil, fmt.Errorf("model: nil scheduler")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	rng := NewPartitionedRNG(seed)
	return &Model{
		Scheduler:    scheduler,
		Config:       config,
		RNG:          rng,
		Transport:    &Transport{Options: &ModeTransportProvider{}, Choice: FastestChoice{}},
		actorsByID:   make(map[string]*Actor),
		actorsByName: make(map[string]*Actor),
		products:     make(map[string]*Product),
	}, nil
}

// Now returns the current simulated time.
func (m *Model) Now() int64 {
	return m.Scheduler.Now()
}

// NextMessageID returns a fresh message id, unique within the run.
func (m *Model) NextMessageID() uint64 {
	m.nextMessageID++
	return m.nextMessageID
}

// ActorID returns the stable id an actor with this name receives.
func ActorID(name string) string {
	return uuid.NewSHA1(actorNamespace, []byte(name)).String()
}

// NewActor creates and registers an actor. Names must be unique within the model.
func (m *Model) NewActor(name string, location Location) (*Actor, error) {
	if name == "" {
		return nil, fmt.Errorf("model: actor name must not be empty")
	}
	if _, exists := m.actorsByName[name]; exists {
		return nil, fmt.Errorf("actor %q: %w", name, ErrDuplicateActor)
	}
	a := &Actor{
		ID:       ActorID(name),
		Name:     name,
		Location: location,
		model:    m,
	}
	a.store = newMessageStore(a)
	m.actors = append(m.actors, a)
	m.actorsByID[a.ID] = a
	m.actorsByName[name] = a
	logrus.Debugf("model: registered actor %s (%s)", name, a.ID)
	return a, nil
}

// Actor returns the actor with the given id, or nil.
func (m *Model) Actor(id string) *Actor {
	return m.actorsByID[id]
}

// ActorByName returns the actor with the given name, or nil.
func (m *Model) ActorByName(name string) *Actor {
	return m.actorsByName[name]
}

// Actors returns all actors in registration order.
func (m *Model) Actors() []*Actor {
	return append([]*Actor(nil), m.actors...)
}

// AddProduct registers a product. Product ids must be unique.
func (m *Model) AddProduct(p *Product) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("model: product needs an id")
	}
	if _, exists := m.products[p.ID]; exists {
		return fmt.Errorf("product %q: %w", p.ID, ErrDuplicateProduct)
	}
	m.products[p.ID] = p
	return nil
}

// Product returns the product with the given id, or nil.
func (m *Model) Product(id string) *Product {
	return m.products[id]
}

// Products returns all products sorted by id.
func (m *Model) Products() []*Product {
	out := make([]*Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EnableJournal keeps every sent message for later export.
func (m *Model) EnableJournal() {
	m.keepJournal = true
}

// Journal returns sent messages in send order. A message is always sent
// after the messages it refers to, so the journal decodes front to back.
func (m *Model) Journal() []Message {
	return append([]Message(nil), m.journal...)
}

func (m *Model) journalMessage(msg Message) {
	if m.keepJournal {
		m.journal = append(m.journal, msg)
	}
}

// RecordDecision adds a decision record to the trace, if tracing is enabled.
func (m *Model) RecordDecision(actor *Actor, policy string, demandID uint64, decision, detail string) {
	if m.Trace == nil {
		return
	}
	name := ""
	if actor != nil {
		name = actor.Name
	}
	m.Trace.RecordDecision(trace.DecisionRecord{
		Actor:    name,
		Policy:   policy,
		DemandID: demandID,
		Clock:    m.Now(),
		Decision: decision,
		Detail:   detail,
	})
}

func (m *Model) recordMessage(msg Message, event trace.EventType) {
	if m.Trace == nil || msg == nil {
		return
	}
	h := msg.Header()
	m.Trace.RecordMessage(trace.MessageRecord{
		MessageID: h.ID,
		DemandID:  h.DemandID,
		Kind:      msg.Kind().String(),
		Sender:    actorName(h.Sender),
		Receiver:  actorName(h.Receiver),
		Clock:     m.Now(),
		Event:     event,
	})
}

func actorName(a *Actor) string {
	if a == nil {
		return ""
	}
	return a.Name
}
