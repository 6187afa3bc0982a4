package sim

import (
	"fmt"
	"sort"
)

// StockLevel is a snapshot of one product in an Inventory.
//
//	Actual  - units physically on hand
//	Claimed - units promised to confirmed customer orders, not yet shipped
//	Ordered - units on order from suppliers (or in production), not yet received
type StockLevel struct {
	Actual  float64
	Claimed float64
	Ordered float64
}

// Net returns on-hand stock minus claims. Negative values are a backlog.
func (l StockLevel) Net() float64 {
	return l.Actual - l.Claimed
}

// Position returns Net plus the amount on order.
func (l StockLevel) Position() float64 {
	return l.Net() + l.Ordered
}

type stockEntry struct {
	product *Product
	level   StockLevel
}

// Inventory tracks stock per product for one actor.
type Inventory struct {
	items    map[string]*stockEntry
	watchers []func(p *Product, level StockLevel)
}

// NewInventory creates an empty Inventory.
func NewInventory() *Inventory {
	return &Inventory{items: make(map[string]*stockEntry)}
}

// Watch registers fn to be called after every change, with the new level.
func (inv *Inventory) Watch(fn func(p *Product, level StockLevel)) {
	inv.watchers = append(inv.watchers, fn)
}

func (inv *Inventory) entry(p *Product) *stockEntry {
	e, ok := inv.items[p.ID]
	if !ok {
		e = &stockEntry{product: p}
		inv.items[p.ID] = e
	}
	return e
}

func (inv *Inventory) changed(e *stockEntry) {
	for _, w := range inv.watchers {
		w(e.product, e.level)
	}
}

func checkAmount(p *Product, amount float64) error {
	if p == nil {
		return fmt.Errorf("inventory: nil product")
	}
	if amount < 0 {
		return fmt.Errorf("inventory %s: %w (%f)", p.ID, ErrNegativeAmount, amount)
	}
	return nil
}

// Level returns the stock level of p. Unknown products have a zero level.
func (inv *Inventory) Level(p *Product) StockLevel {
	if p == nil {
		return StockLevel{}
	}
	if e, ok := inv.items[p.ID]; ok {
		return e.level
	}
	return StockLevel{}
}

// Add puts amount units of p on hand.
func (inv *Inventory) Add(p *Product, amount float64) error {
	if err := checkAmount(p, amount); err != nil {
		return err
	}
	e := inv.entry(p)
	e.level.Actual += amount
	inv.changed(e)
	return nil
}

// Remove takes amount units of p off hand, ignoring claims.
func (inv *Inventory) Remove(p *Product, amount float64) error {
	if err := checkAmount(p, amount); err != nil {
		return err
	}
	e := inv.entry(p)
	if e.level.Actual < amount {
		return fmt.Errorf("remove %f %s (have %f): %w", amount, p.ID, e.level.Actual, ErrInsufficientStock)
	}
	e.level.Actual -= amount
	inv.changed(e)
	return nil
}

// Claim reserves amount units of p for a confirmed customer order.
// Claims may exceed the stock on hand.
func (inv *Inventory) Claim(p *Product, amount float64) error {
	if err := checkAmount(p, amount); err != nil {
		return err
	}
	e := inv.entry(p)
	e.level.Claimed += amount
	inv.changed(e)
	return nil
}

// ReleaseClaim drops a claim without shipping.
func (inv *Inventory) ReleaseClaim(p *Product, amount float64) error {
	if err := checkAmount(p, amount); err != nil {
		return err
	}
	e := inv.entry(p)
	e.level.Claimed = max(0, e.level.Claimed-amount)
	inv.changed(e)
	return nil
}

// Ship removes amount units of p from hand and from the claims.
func (inv *Inventory) Ship(p *Product, amount float64) error {
	if err := checkAmount(p, amount); err != nil {
		return err
	}
	e := inv.entry(p)
	if e.level.Actual < amount {
		return fmt.Errorf("ship %f %s (have %f): %w", amount, p.ID, e.level.Actual, ErrInsufficientStock)
	}
	e.level.Actual -= amount
	e.level.Claimed = max(0, e.level.Claimed-amount)
	inv.changed(e)
	return nil
}

// MarkOrdered records amount units of p as on order.
func (inv *Inventory) MarkOrdered(p *Product, amount float64) error {
	if err := checkAmount(p, amount); err != nil {
		return err
	}
	e := inv.entry(p)
	e.level.Ordered += amount
	inv.changed(e)
	return nil
}

// CancelOrdered removes amount units of p from the on-order quantity.
func (inv *Inventory) CancelOrdered(p *Product, amount float64) error {
	if err := checkAmount(p, amount); err != nil {
		return err
	}
	e := inv.entry(p)
	e.level.Ordered = max(0, e.level.Ordered-amount)
	inv.changed(e)
	return nil
}

// Receive moves amount units of p from on-order to on-hand.
func (inv *Inventory) Receive(p *Product, amount float64) error {
	if err := checkAmount(p, amount); err != nil {
		return err
	}
	e := inv.entry(p)
	e.level.Ordered = max(0, e.level.Ordered-amount)
	e.level.Actual += amount
	inv.changed(e)
	return nil
}

// Products returns the products with an inventory entry, sorted by ID.
func (inv *Inventory) Products() []*Product {
	out := make([]*Product, 0, len(inv.items))
	for _, e := range inv.items {
		out = append(out, e.product)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
