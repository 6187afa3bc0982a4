package restock

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tradesim/tradesim/sim"
)

// Config parameterizes a Controller for one product.
type Config struct {
	Product  *sim.Product
	Strategy Strategy
	// Interval between periodic checks; 0 disables the periodic loop.
	Interval int64
	// Reactive evaluates again whenever a part of the stock level that Level
	// counts changes. Changes to stock on order only count with IncludePipeline.
	Reactive bool
	// MaxDeliveryDuration sets the delivery window of created demands: [now, now+MaxDeliveryDuration].
	MaxDeliveryDuration int64
	// NetClaims subtracts stock claimed by confirmed customer orders from the level.
	NetClaims bool
	// IncludePipeline adds stock on order and amounts still under negotiation to the level.
	IncludePipeline bool
	// Production emits ProductionOrders instead of InternalDemands.
	Production bool
}

// Validate checks that the controller can run.
func (c Config) Validate() error {
	if c.Product == nil {
		return fmt.Errorf("restock: no product")
	}
	if c.Strategy == nil {
		return fmt.Errorf("restock %s: no strategy", c.Product.ID)
	}
	if c.Interval < 0 || c.MaxDeliveryDuration < 0 {
		return fmt.Errorf("restock %s: negative interval or delivery duration", c.Product.ID)
	}
	if c.Interval == 0 && !c.Reactive {
		return fmt.Errorf("restock %s: needs an interval or reactive evaluation", c.Product.ID)
	}
	return nil
}

// Controller runs Idle -> Evaluate -> (Idle | request) for one product of one actor.
type Controller struct {
	owner *sim.Actor
	cfg   Config

	started  bool
	timer    sim.Handle
	ticking  bool
	reactive bool // an evaluation is already scheduled for the current instant
	seen     sim.StockLevel

	requests int
	total    float64
}

// NewController creates a controller. The owner must have an inventory.
func NewController(owner *sim.Actor, cfg Config) (*Controller, error) {
	if owner == nil {
		return nil, fmt.Errorf("restock: nil owner")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", owner.Name, err)
	}
	if owner.Inventory() == nil {
		return nil, fmt.Errorf("restock %s/%s: actor has no inventory", owner.Name, cfg.Product.ID)
	}
	return &Controller{owner: owner, cfg: cfg}, nil
}

// Start begins the periodic loop with an immediate check and installs the
// inventory watcher for reactive controllers. Calling Start twice panics.
func (c *Controller) Start() {
	if c.started {
		panic(fmt.Sprintf("restock controller %s/%s started twice", c.owner.Name, c.cfg.Product.ID))
	}
	c.started = true
	if c.cfg.Reactive {
		c.seen = c.owner.Inventory().Level(c.cfg.Product)
		c.owner.Inventory().Watch(func(p *sim.Product, level sim.StockLevel) {
			if p == c.cfg.Product && c.observe(level) {
				c.react()
			}
		})
	}
	if c.cfg.Interval > 0 {
		c.ticking = true
		c.timer = c.owner.Model().Scheduler.ScheduleAfter(0, "restock check", c.tick)
	}
}

// Stop cancels the periodic loop. Reactive watchers become no-ops.
func (c *Controller) Stop() {
	if c.ticking {
		c.owner.Model().Scheduler.Cancel(c.timer)
		c.ticking = false
	}
	c.started = false
}

// Requests returns how many demands or production orders were created and their total amount.
func (c *Controller) Requests() (int, float64) {
	return c.requests, c.total
}

func (c *Controller) tick() {
	c.Evaluate()
	if c.ticking {
		c.timer = c.owner.Model().Scheduler.ScheduleAfter(c.cfg.Interval, "restock check", c.tick)
	}
}

// observe remembers level and reports whether a component Level counts changed.
// The controller's own requests only move Ordered, so without the pipeline
// they never wake it again.
func (c *Controller) observe(level sim.StockLevel) bool {
	prev := c.seen
	c.seen = level
	if level.Actual != prev.Actual {
		return true
	}
	if c.cfg.NetClaims && level.Claimed != prev.Claimed {
		return true
	}
	return c.cfg.IncludePipeline && level.Ordered != prev.Ordered
}

// react coalesces bursts of inventory changes into one evaluation.
func (c *Controller) react() {
	if !c.started || c.reactive {
		return
	}
	c.reactive = true
	c.owner.Model().Scheduler.ScheduleAfter(0, "restock reaction", func() {
		c.reactive = false
		if !c.started {
			return
		}
		c.Evaluate()
	})
}

// Level returns the stock level the strategy sees.
func (c *Controller) Level() float64 {
	lvl := c.owner.Inventory().Level(c.cfg.Product)
	level := lvl.Actual
	if c.cfg.NetClaims {
		level -= lvl.Claimed
	}
	if c.cfg.IncludePipeline {
		level += lvl.Ordered + c.owner.Store().Negotiating(c.cfg.Product)
	}
	return level
}

// Evaluate runs the strategy once and creates a request when it asks for one.
// Returns the requested amount, zero when nothing was requested.
func (c *Controller) Evaluate() float64 {
	level := c.Level()
	amount := c.cfg.Strategy.Amount(level)
	if amount <= 0 {
		logrus.Tracef("[t %d] %s restock %s: level %.1f, nothing to do", c.owner.Now(), c.owner.Name, c.cfg.Product.ID, level)
		return 0
	}
	c.requests++
	c.total += amount
	m := c.owner.Model()
	m.RecordDecision(c.owner, "restock/"+c.cfg.Strategy.Name(), 0, "restock",
		fmt.Sprintf("%s level %.1f, requesting %.1f", c.cfg.Product.ID, level, amount))
	if c.cfg.Production {
		po := sim.NewProductionOrder(c.owner, c.cfg.Product, amount, c.owner.Now()+c.cfg.MaxDeliveryDuration)
		logrus.Debugf("[t %d] %s restock %s: level %.1f, producing %.1f", c.owner.Now(), c.owner.Name, c.cfg.Product.ID, level, amount)
		m.Metrics.DemandCreated(c.owner.Name)
		c.owner.SendAfter(po, 0)
		return amount
	}
	CreateInternalDemand(c.owner, c.cfg.Product, amount, c.cfg.MaxDeliveryDuration)
	logrus.Debugf("[t %d] %s restock %s: level %.1f, requesting %.1f", c.owner.Now(), c.owner.Name, c.cfg.Product.ID, level, amount)
	return amount
}

// CreateInternalDemand opens a new demand chain for amount units of p, to
// be delivered between now and now+maxDelivery. The demand is handed to the
// owner's own policies without message delay.
func CreateInternalDemand(owner *sim.Actor, p *sim.Product, amount float64, maxDelivery int64) *sim.InternalDemand {
	now := owner.Now()
	d := sim.NewInternalDemand(owner, p, amount, now, now+maxDelivery)
	owner.Model().Metrics.DemandCreated(owner.Name)
	owner.SendAfter(d, 0)
	return d
}
