package policy

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tradesim/tradesim/sim"
)

// Ingredient is one input of a Recipe, consumed PerUnit times per unit of output.
type Ingredient struct {
	Product *sim.Product
	PerUnit float64
}

// Recipe is a bill of materials: the inputs for one unit of Output and how
// long a production run takes.
type Recipe struct {
	Output   *sim.Product
	Inputs   []Ingredient
	Duration int64
}

// Validate checks that the recipe is usable.
func (r Recipe) Validate() error {
	if r.Output == nil {
		return fmt.Errorf("recipe: no output product")
	}
	if r.Duration < 0 {
		return fmt.Errorf("recipe %s: negative duration %d", r.Output.ID, r.Duration)
	}
	for _, in := range r.Inputs {
		if in.Product == nil || in.PerUnit <= 0 {
			return fmt.Errorf("recipe %s: invalid ingredient", r.Output.ID)
		}
	}
	return nil
}

// Production executes ProductionOrders: it consumes the inputs, waits for
// the recipe duration and books the output into inventory. Missing inputs
// are rechecked like any other stock shortage.
type Production struct {
	sim.PolicyBase
	recipes map[string]Recipe
}

// NewProduction creates the production rule for the given recipes.
func NewProduction(owner *sim.Actor, recipes ...Recipe) (*Production, error) {
	p := &Production{
		PolicyBase: sim.NewPolicyBase("production", sim.KindProductionOrder, owner),
		recipes:    make(map[string]Recipe, len(recipes)),
	}
	for _, r := range recipes {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("production for %s: %w", owner.Name, err)
		}
		if _, dup := p.recipes[r.Output.ID]; dup {
			return nil, fmt.Errorf("production for %s: two recipes for %s", owner.Name, r.Output.ID)
		}
		p.recipes[r.Output.ID] = r
	}
	return p, nil
}

func (p *Production) Handle(msg sim.Message) bool {
	owner := p.Owner()
	po, ok := msg.(*sim.ProductionOrder)
	if !ok {
		return unexpected(p, owner, msg)
	}
	recipe, ok := p.recipes[po.Product.ID]
	if !ok {
		logrus.Warnf("[t %d] %s/%s: no recipe for %s", owner.Now(), owner.Name, p.ID(), po.Product.ID)
		return false
	}
	inv := owner.Inventory()
	if inv == nil {
		logrus.Warnf("[t %d] %s/%s: no inventory", owner.Now(), owner.Name, p.ID())
		return false
	}
	markOrdered(owner, po.Product, po.Amount)
	loop := &retryLoop{
		owner:    owner,
		policy:   p.ID(),
		reason:   "insufficient-inputs",
		demandID: po.DemandID,
		attempt:  func() error { return p.start(recipe, po) },
		giveUp: func(error) {
			if err := inv.CancelOrdered(po.Product, po.Amount); err != nil {
				logrus.Warnf("[t %d] %s/%s: %v", owner.Now(), owner.Name, p.ID(), err)
			}
			owner.Store().RemoveChain(po.DemandID)
		},
	}
	loop.run()
	return true
}

// start consumes all inputs or none and schedules the completion.
func (p *Production) start(r Recipe, po *sim.ProductionOrder) error {
	owner := p.Owner()
	inv := owner.Inventory()
	for _, in := range r.Inputs {
		need := in.PerUnit * po.Amount
		if have := inv.Level(in.Product).Actual; have < need {
			return fmt.Errorf("produce %s needs %f %s (have %f): %w", po.Product.ID, need, in.Product.ID, have, sim.ErrInsufficientStock)
		}
	}
	for _, in := range r.Inputs {
		if err := inv.Remove(in.Product, in.PerUnit*po.Amount); err != nil {
			return err
		}
	}
	owner.Model().RecordDecision(owner, p.ID(), po.DemandID, "production-started", fmt.Sprintf("%.1f %s", po.Amount, po.Product.ID))
	owner.Model().Scheduler.ScheduleAfter(r.Duration, "production done", func() {
		if err := inv.Receive(po.Product, po.Amount); err != nil {
			logrus.Warnf("[t %d] %s/%s: %v", owner.Now(), owner.Name, p.ID(), err)
		}
		owner.Store().RemoveChain(po.DemandID)
		logrus.Debugf("[t %d] %s: produced %.1f %s", owner.Now(), owner.Name, po.Amount, po.Product.ID)
	})
	return nil
}
