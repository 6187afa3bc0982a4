package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// TransportOption is one way of moving goods between two actors.
type TransportOption struct {
	Mode     string
	Duration int64   // door-to-door duration in simulated seconds
	Cost     float64 // cost per unit of product
}

// EstimatedDuration returns the expected transit time for the given product.
func (o TransportOption) EstimatedDuration(_ *Product) int64 {
	return o.Duration
}

// IsZero reports whether no option was chosen.
func (o TransportOption) IsZero() bool {
	return o.Mode == "" && o.Duration == 0 && o.Cost == 0
}

// TransportOptionProvider lists the transport options between two actors.
type TransportOptionProvider interface {
	ProvideOptions(from, to *Actor) []TransportOption
}

// TransportChoiceProvider picks one option for a product.
type TransportChoiceProvider interface {
	Choose(options []TransportOption, product *Product) (TransportOption, bool)
}

// TransportMode parameterizes ModeTransportProvider.
type TransportMode struct {
	Name            string
	SpeedPerDay     float64 // distance units per simulated day; 0 means distance is free
	FixedDuration   int64   // handling overhead added to every trip
	CostPerDistance float64 // per unit of product
}

// ModeTransportProvider derives one option per mode from the planar distance between actors.
type ModeTransportProvider struct {
	Modes []TransportMode
}

// ProvideOptions implements TransportOptionProvider.
func (p *ModeTransportProvider) ProvideOptions(from, to *Actor) []TransportOption {
	if from == nil || to == nil {
		return nil
	}
	dist := from.Location.DistanceTo(to.Location)
	options := make([]TransportOption, 0, len(p.Modes))
	for _, m := range p.Modes {
		d := m.FixedDuration
		if m.SpeedPerDay > 0 {
			d += int64(math.Ceil(dist / m.SpeedPerDay * float64(Day)))
		}
		options = append(options, TransportOption{
			Mode:     m.Name,
			Duration: d,
			Cost:     dist * m.CostPerDistance,
		})
	}
	return options
}

// FastestChoice picks the option with the shortest duration; ties go to the cheaper one.
type FastestChoice struct{}

func (FastestChoice) Choose(options []TransportOption, product *Product) (TransportOption, bool) {
	return pickBest(options, func(a, b TransportOption) bool {
		if a.EstimatedDuration(product) != b.EstimatedDuration(product) {
			return a.EstimatedDuration(product) < b.EstimatedDuration(product)
		}
		return a.Cost < b.Cost
	})
}

// CheapestChoice picks the option with the lowest cost; ties go to the faster one.
type CheapestChoice struct{}

func (CheapestChoice) Choose(options []TransportOption, product *Product) (TransportOption, bool) {
	return pickBest(options, func(a, b TransportOption) bool {
		if a.Cost != b.Cost {
			return a.Cost < b.Cost
		}
		return a.EstimatedDuration(product) < b.EstimatedDuration(product)
	})
}

// RandomChoice picks uniformly among the options.
type RandomChoice struct {
	rng *rand.Rand
}

// NewRandomChoice creates a RandomChoice drawing from rng.
func NewRandomChoice(rng *rand.Rand) *RandomChoice {
	return &RandomChoice{rng: rng}
}

func (c *RandomChoice) Choose(options []TransportOption, _ *Product) (TransportOption, bool) {
	if len(options) == 0 {
		return TransportOption{}, false
	}
	return options[c.rng.Intn(len(options))], true
}

func pickBest(options []TransportOption, less func(a, b TransportOption) bool) (TransportOption, bool) {
	if len(options) == 0 {
		return TransportOption{}, false
	}
	sorted := append([]TransportOption(nil), options...)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	return sorted[0], true
}

// ValidTransportChoices is the set of recognized transport choice names.
var ValidTransportChoices = map[string]bool{"": true, "fastest": true, "cheapest": true, "random": true}

// NewTransportChoice creates a choice provider by name. An empty name defaults to fastest.
func NewTransportChoice(name string, rng *rand.Rand) (TransportChoiceProvider, error) {
	switch name {
	case "", "fastest":
		return FastestChoice{}, nil
	case "cheapest":
		return CheapestChoice{}, nil
	case "random":
		if rng == nil {
			return nil, fmt.Errorf("random transport choice needs an RNG")
		}
		return NewRandomChoice(rng), nil
	default:
		return nil, fmt.Errorf("unknown transport choice %q", name)
	}
}

// Transport bundles the option and choice providers an actor uses.
type Transport struct {
	Options TransportOptionProvider
	Choice  TransportChoiceProvider
}

// Select returns the chosen option for moving product from one actor to another.
func (t *Transport) Select(from, to *Actor, product *Product) (TransportOption, bool) {
	if t == nil || t.Options == nil || t.Choice == nil {
		return TransportOption{}, false
	}
	return t.Choice.Choose(t.Options.ProvideOptions(from, to), product)
}
