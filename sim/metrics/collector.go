// Package metrics exposes Prometheus counters for the trade-message protocol.
// It has no dependencies on sim/ so that every layer can report into it.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the protocol metrics of one simulation run.
// All methods are safe on a nil *Collector, which disables collection.
type Collector struct {
	gatherer prometheus.Gatherer

	MessagesSent      *prometheus.CounterVec
	MessagesReceived  *prometheus.CounterVec
	MessagesUnhandled *prometheus.CounterVec
	Timeouts          *prometheus.CounterVec
	Retries           *prometheus.CounterVec
	RetriesExhausted  *prometheus.CounterVec
	DemandsCreated    *prometheus.CounterVec
	Fines             *prometheus.CounterVec
	FineAmount        prometheus.Counter
	StoreEntries      *prometheus.GaugeVec
	InventoryLevel    *prometheus.GaugeVec
}

// NewCollector registers the protocol metrics against reg.
// A nil reg creates a private registry.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error
	if c.MessagesSent, err = registerCounterVec(reg, "tradesim_messages_sent_total",
		"Messages sent, by message kind.", "kind"); err != nil {
		return nil, err
	}
	if c.MessagesReceived, err = registerCounterVec(reg, "tradesim_messages_received_total",
		"Messages delivered to their receiver, by message kind.", "kind"); err != nil {
		return nil, err
	}
	if c.MessagesUnhandled, err = registerCounterVec(reg, "tradesim_messages_unhandled_total",
		"Messages no policy handled, by message kind.", "kind"); err != nil {
		return nil, err
	}
	if c.Timeouts, err = registerCounterVec(reg, "tradesim_store_timeouts_total",
		"Message store entries removed by their deadline, by message kind.", "kind"); err != nil {
		return nil, err
	}
	if c.Retries, err = registerCounterVec(reg, "tradesim_retries_total",
		"Deferred rechecks after a resource was unavailable, by reason.", "reason"); err != nil {
		return nil, err
	}
	if c.RetriesExhausted, err = registerCounterVec(reg, "tradesim_retries_exhausted_total",
		"Retry loops abandoned after the retry cap, by reason.", "reason"); err != nil {
		return nil, err
	}
	if c.DemandsCreated, err = registerCounterVec(reg, "tradesim_demands_created_total",
		"Internal demands and production orders created, by actor.", "actor"); err != nil {
		return nil, err
	}
	if c.Fines, err = registerCounterVec(reg, "tradesim_fines_total",
		"Penalties levied, by kind of missed deadline.", "kind"); err != nil {
		return nil, err
	}
	fineAmount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tradesim_fine_amount_total",
		Help: "Sum of all penalty amounts transferred.",
	})
	if err = reg.Register(fineAmount); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("registering tradesim_fine_amount_total: %w", err)
		}
		existing, ok := are.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("collector tradesim_fine_amount_total already registered with incompatible type")
		}
		fineAmount = existing
	}
	c.FineAmount = fineAmount
	if c.StoreEntries, err = registerGaugeVec(reg, "tradesim_store_entries",
		"Live message store entries, by actor.", "actor"); err != nil {
		return nil, err
	}
	if c.InventoryLevel, err = registerGaugeVec(reg, "tradesim_inventory_level",
		"Units on hand, by actor and product.", "actor", "product"); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the gatherer the metrics were registered with.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// WriteTextfile writes the current metrics in the Prometheus text format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return fmt.Errorf("metrics collection disabled")
	}
	return prometheus.WriteToTextfile(path, c.gatherer)
}

func (c *Collector) MessageSent(kind string) {
	if c == nil {
		return
	}
	c.MessagesSent.WithLabelValues(kind).Inc()
}

func (c *Collector) MessageReceived(kind string) {
	if c == nil {
		return
	}
	c.MessagesReceived.WithLabelValues(kind).Inc()
}

func (c *Collector) MessageUnhandled(kind string) {
	if c == nil {
		return
	}
	c.MessagesUnhandled.WithLabelValues(kind).Inc()
}

func (c *Collector) TimeoutFired(kind string) {
	if c == nil {
		return
	}
	c.Timeouts.WithLabelValues(kind).Inc()
}

func (c *Collector) Retry(reason string) {
	if c == nil {
		return
	}
	c.Retries.WithLabelValues(reason).Inc()
}

func (c *Collector) RetryExhausted(reason string) {
	if c == nil {
		return
	}
	c.RetriesExhausted.WithLabelValues(reason).Inc()
}

func (c *Collector) DemandCreated(actor string) {
	if c == nil {
		return
	}
	c.DemandsCreated.WithLabelValues(actor).Inc()
}

// FineLevied counts a penalty and adds its amount. Negative amounts are ignored.
func (c *Collector) FineLevied(kind string, amount float64) {
	if c == nil || amount < 0 {
		return
	}
	c.Fines.WithLabelValues(kind).Inc()
	c.FineAmount.Add(amount)
}

func (c *Collector) SetStoreEntries(actor string, n int) {
	if c == nil {
		return
	}
	c.StoreEntries.WithLabelValues(actor).Set(float64(n))
}

func (c *Collector) SetInventoryLevel(actor, product string, level float64) {
	if c == nil {
		return
	}
	c.InventoryLevel.WithLabelValues(actor, product).Set(level)
}

func registerCounterVec(reg prometheus.Registerer, name, help string, labels ...string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, name, help string, labels ...string) (*prometheus.GaugeVec, error) {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
