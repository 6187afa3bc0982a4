// Package restock implements the control loops that keep actors supplied:
// restocking controllers that watch an inventory and create InternalDemands
// or ProductionOrders, and the autonomous demand generator used by customers.
package restock

import (
	"fmt"
	"math"
	"sort"
)

// Strategy turns an observed stock level into an amount to request.
// Zero or less means no request.
type Strategy interface {
	Name() string
	Amount(level float64) float64
}

// Fixed always requests the same quantity.
type Fixed struct {
	Quantity float64
}

func (Fixed) Name() string { return "fixed" }
func (s Fixed) Amount(_ float64) float64 { return s.Quantity }

// Ceiling orders up to a target level.
type Ceiling struct {
	Ceiling float64
}

func (Ceiling) Name() string { return "ceiling" }

func (s Ceiling) Amount(level float64) float64 {
	if level >= s.Ceiling {
		return 0
	}
	return s.Ceiling - level
}

// Safety acts only once the level falls below Floor, then orders up to Target.
type Safety struct {
	Floor  float64
	Target float64
}

func (Safety) Name() string { return "safety" }

func (s Safety) Amount(level float64) float64 {
	if level >= s.Floor {
		return 0
	}
	return math.Max(s.Target-level, 0)
}

// Oscillation orders Base units while stock is positive but short of Base,
// and overreacts once stock is at or below zero: ceil(Base + |level|*Margin).
type Oscillation struct {
	Base   float64
	Margin float64
}

func (Oscillation) Name() string { return "oscillation" }

func (s Oscillation) Amount(level float64) float64 {
	if level <= 0 {
		return math.Ceil(s.Base + math.Abs(level)*s.Margin)
	}
	if level >= s.Base {
		return 0
	}
	return s.Base - level
}

// StrategyConfig is the name-keyed form of a Strategy used by scenario files.
type StrategyConfig struct {
	Name     string  `yaml:"name"`
	Quantity float64 `yaml:"quantity,omitempty"`
	Ceiling  float64 `yaml:"ceiling,omitempty"`
	Floor    float64 `yaml:"floor,omitempty"`
	Target   float64 `yaml:"target,omitempty"`
	Base     float64 `yaml:"base,omitempty"`
	Margin   float64 `yaml:"margin,omitempty"`
}

// ValidRestockStrategies is the set of recognized strategy names.
var ValidRestockStrategies = map[string]bool{"fixed": true, "ceiling": true, "safety": true, "oscillation": true}

// StrategyNames returns the recognized names, sorted.
func StrategyNames() []string {
	names := make([]string, 0, len(ValidRestockStrategies))
	for n := range ValidRestockStrategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewStrategy creates a Strategy from its config.
func NewStrategy(c StrategyConfig) (Strategy, error) {
	switch c.Name {
	case "fixed":
		if c.Quantity <= 0 {
			return nil, fmt.Errorf("fixed strategy needs a positive quantity, got %g", c.Quantity)
		}
		return Fixed{Quantity: c.Quantity}, nil
	case "ceiling":
		if c.Ceiling <= 0 {
			return nil, fmt.Errorf("ceiling strategy needs a positive ceiling, got %g", c.Ceiling)
		}
		return Ceiling{Ceiling: c.Ceiling}, nil
	case "safety":
		if c.Target < c.Floor {
			return nil, fmt.Errorf("safety strategy target %g below floor %g", c.Target, c.Floor)
		}
		return Safety{Floor: c.Floor, Target: c.Target}, nil
	case "oscillation":
		if c.Base <= 0 || c.Margin < 0 {
			return nil, fmt.Errorf("oscillation strategy needs base > 0 and margin >= 0, got %g/%g", c.Base, c.Margin)
		}
		return Oscillation{Base: c.Base, Margin: c.Margin}, nil
	default:
		return nil, fmt.Errorf("unknown restock strategy %q; valid: %v", c.Name, StrategyNames())
	}
}
