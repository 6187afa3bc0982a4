// Package testutil provides fixtures shared by the sim sub-package tests:
// a small model driven by a real event loop, plus helpers to populate it.
package testutil

import (
	"testing"

	"github.com/tradesim/tradesim/sim"
)

// World is a Model driven by an EventLoop starting at time zero.
type World struct {
	t     testing.TB
	Loop  *sim.EventLoop
	Model *sim.Model
}

// NewWorld creates a World with the default protocol config.
func NewWorld(t testing.TB) *World {
	t.Helper()
	return NewWorldWithConfig(t, sim.DefaultConfig())
}

// NewWorldWithConfig creates a World with the given config.
func NewWorldWithConfig(t testing.TB, cfg sim.Config) *World {
	t.Helper()
	loop := sim.NewEventLoop(0)
	m, err := sim.NewModel(loop, cfg, 42)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return &World{t: t, Loop: loop, Model: m}
}

// Product registers a product with the given id and topic.
func (w *World) Product(id, topic string) *sim.Product {
	w.t.Helper()
	p := &sim.Product{ID: id, Name: id, Unit: "pcs", Topic: topic}
	if err := w.Model.AddProduct(p); err != nil {
		w.t.Fatalf("AddProduct(%s): %v", id, err)
	}
	return p
}

// Actor registers a bare actor at (x, y).
func (w *World) Actor(name string, x, y float64) *sim.Actor {
	w.t.Helper()
	a, err := w.Model.NewActor(name, sim.Location{X: x, Y: y})
	if err != nil {
		w.t.Fatalf("NewActor(%s): %v", name, err)
	}
	return a
}

// Trader registers an actor with an account holding balance and an empty inventory.
func (w *World) Trader(name string, x, y, balance float64) *sim.Actor {
	w.t.Helper()
	a := w.Actor(name, x, y)
	if err := a.Attach(sim.NewInventory()); err != nil {
		w.t.Fatalf("attach inventory: %v", err)
	}
	if err := a.Attach(sim.NewAccount(balance)); err != nil {
		w.t.Fatalf("attach account: %v", err)
	}
	return a
}

// Stock puts amount units of p on hand at a.
func (w *World) Stock(a *sim.Actor, p *sim.Product, amount float64) {
	w.t.Helper()
	if err := a.Inventory().Add(p, amount); err != nil {
		w.t.Fatalf("stock %s at %s: %v", p.ID, a.Name, err)
	}
}

// Demand sends a fresh InternalDemand from a to itself.
func (w *World) Demand(a *sim.Actor, p *sim.Product, amount float64, earliest, latest int64) *sim.InternalDemand {
	d := sim.NewInternalDemand(a, p, amount, earliest, latest)
	a.Send(d)
	return d
}

// RunDays runs the loop for the given number of simulated days from now.
func (w *World) RunDays(days int64) int {
	return w.Loop.Run(w.Loop.Now() + days*sim.Day)
}

// Captured is a Policy that records every message it sees.
type Captured struct {
	sim.PolicyBase
	Messages []sim.Message
	Result   bool
}

// Capture registers a recording policy for kind on a fresh role of a.
func Capture(t testing.TB, a *sim.Actor, role string, kind sim.MessageKind) *Captured {
	t.Helper()
	r := a.Role(role)
	if r == nil {
		var err error
		if r, err = a.AddRole(role); err != nil {
			t.Fatalf("AddRole: %v", err)
		}
	}
	c := &Captured{PolicyBase: sim.NewPolicyBase("capture-"+kind.String(), kind, a), Result: true}
	if err := r.Register(c); err != nil {
		t.Fatalf("register capture: %v", err)
	}
	return c
}

func (c *Captured) Handle(msg sim.Message) bool {
	c.Messages = append(c.Messages, msg)
	return c.Result
}
