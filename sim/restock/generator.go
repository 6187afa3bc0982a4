package restock

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/tradesim/tradesim/sim"
)

// GeneratorConfig describes an autonomous demand source, typically an end customer.
type GeneratorConfig struct {
	Product  *sim.Product
	Interval int64
	// Amounts are drawn uniformly from [MinAmount, MaxAmount] and rounded to whole units.
	MinAmount           float64
	MaxAmount           float64
	MaxDeliveryDuration int64
	// Limit stops the generator after that many demands; 0 means no limit.
	Limit int
}

// Validate checks the generator parameters.
func (c GeneratorConfig) Validate() error {
	if c.Product == nil {
		return fmt.Errorf("demand generator: no product")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("demand generator %s: interval must be positive, got %d", c.Product.ID, c.Interval)
	}
	if c.MinAmount <= 0 || c.MaxAmount < c.MinAmount {
		return fmt.Errorf("demand generator %s: invalid amount range [%g, %g]", c.Product.ID, c.MinAmount, c.MaxAmount)
	}
	if c.Limit < 0 || c.MaxDeliveryDuration < 0 {
		return fmt.Errorf("demand generator %s: negative limit or delivery duration", c.Product.ID)
	}
	return nil
}

// Generator creates InternalDemands at a fixed interval with seeded random amounts.
type Generator struct {
	owner *sim.Actor
	cfg   GeneratorConfig
	rng   *rand.Rand
	timer sim.Handle

	running bool
	count   int
}

// NewGenerator creates a generator drawing from the model's demand RNG stream.
func NewGenerator(owner *sim.Actor, cfg GeneratorConfig) (*Generator, error) {
	if owner == nil {
		return nil, fmt.Errorf("demand generator: nil owner")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", owner.Name, err)
	}
	return &Generator{
		owner: owner,
		cfg:   cfg,
		rng:   owner.Model().RNG.Stream(sim.StreamDemand),
	}, nil
}

// Start schedules the first demand one interval from now.
func (g *Generator) Start() {
	g.running = true
	g.timer = g.owner.Model().Scheduler.ScheduleAfter(g.cfg.Interval, "generate demand", g.fire)
}

// Stop cancels the next demand.
func (g *Generator) Stop() {
	if g.running {
		g.owner.Model().Scheduler.Cancel(g.timer)
		g.running = false
	}
}

// Count returns how many demands were generated.
func (g *Generator) Count() int {
	return g.count
}

func (g *Generator) fire() {
	amount := g.cfg.MinAmount
	if span := g.cfg.MaxAmount - g.cfg.MinAmount; span > 0 {
		amount += g.rng.Float64() * span
	}
	amount = math.Max(1, math.Round(amount))
	d := CreateInternalDemand(g.owner, g.cfg.Product, amount, g.cfg.MaxDeliveryDuration)
	g.count++
	logrus.Debugf("[t %d] %s: generated demand %d for %.0f %s", g.owner.Now(), g.owner.Name, d.ID, amount, g.cfg.Product.ID)
	if g.cfg.Limit > 0 && g.count >= g.cfg.Limit {
		g.running = false
		return
	}
	g.timer = g.owner.Model().Scheduler.ScheduleAfter(g.cfg.Interval, "generate demand", g.fire)
}
