// Package scenario loads YAML descriptions of trading networks and builds
// runnable simulations from them.
package scenario

import (
	"bytes"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/tradesim/tradesim/sim"
	"github.com/tradesim/tradesim/sim/policy"
	"github.com/tradesim/tradesim/sim/restock"
)

// CurrentVersion is written by tools that generate scenarios.
const CurrentVersion = "1.0.0"

// supportedVersions is the range of scenario file versions this build reads.
const supportedVersions = ">= 1.0.0, < 2.0.0"

// Spec is the top-level scenario file.
type Spec struct {
	Version     string        `yaml:"version"`
	Seed        int64         `yaml:"seed"`
	HorizonDays float64       `yaml:"horizon_days"`
	Protocol    ProtocolSpec  `yaml:"protocol"`
	Transport   TransportSpec `yaml:"transport"`
	Topics      []TopicSpec   `yaml:"topics"`
	Products    []ProductSpec `yaml:"products"`
	Actors      []ActorSpec   `yaml:"actors"`
}

// ProtocolSpec overrides the protocol defaults. Nil fields keep the default.
type ProtocolSpec struct {
	MessageDelaySeconds *int64   `yaml:"message_delay_seconds"`
	RetryIntervalDays   *float64 `yaml:"retry_interval_days"`
	MaxRetries          *int     `yaml:"max_retries"`
	MaxRestarts         *int     `yaml:"max_restarts"`
}

// TransportSpec configures the default transport of every actor.
type TransportSpec struct {
	Choice string     `yaml:"choice"`
	Modes  []ModeSpec `yaml:"modes"`
}

// ModeSpec is one transport mode.
type ModeSpec struct {
	Name            string  `yaml:"name"`
	SpeedPerDay     float64 `yaml:"speed_per_day"`
	FixedDays       float64 `yaml:"fixed_days"`
	CostPerDistance float64 `yaml:"cost_per_distance"`
}

// TopicSpec declares a directory category.
type TopicSpec struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent"`
}

// ProductSpec declares a product.
type ProductSpec struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Unit  string `yaml:"unit"`
	Topic string `yaml:"topic"`
}

// LocationSpec is a point on the plane.
type LocationSpec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// ActorSpec declares one actor and the roles it plays.
type ActorSpec struct {
	Name      string             `yaml:"name"`
	Location  LocationSpec       `yaml:"location"`
	Balance   *float64           `yaml:"balance"`
	Inventory map[string]float64 `yaml:"inventory"`
	// Directory makes the actor a yellow-page service.
	Directory bool `yaml:"directory"`
	// Listings are supplier entries kept by a directory actor.
	Listings []ListingSpec `yaml:"listings"`
	// Register lists the topics under which the actor registers with every directory.
	Register   []string         `yaml:"register"`
	Selling    *SellingSpec     `yaml:"selling"`
	Buying     *BuyingSpec      `yaml:"buying"`
	Restock    []RestockSpec    `yaml:"restock"`
	Demand     []DemandSpec     `yaml:"demand"`
	Production []ProductionSpec `yaml:"production"`
}

// ListingSpec lists an actor as a supplier of a product in a directory.
type ListingSpec struct {
	Product string `yaml:"product"`
	Actor   string `yaml:"actor"`
}

// FineSpec is a lateness penalty.
type FineSpec struct {
	Fixed  float64 `yaml:"fixed"`
	PerDay float64 `yaml:"per_day"`
}

// SellingSpec configures the seller role.
type SellingSpec struct {
	Catalog         map[string]float64 `yaml:"catalog"`
	HandlingDays    float64            `yaml:"handling_days"`
	PaymentTermDays float64            `yaml:"payment_term_days"`
	LatePaymentFine *FineSpec          `yaml:"late_payment_fine"`
}

// SupplierSpec is a pre-negotiated supplier entry of a buyer.
type SupplierSpec struct {
	Product   string  `yaml:"product"`
	Actor     string  `yaml:"actor"`
	UnitPrice float64 `yaml:"unit_price"`
}

// PaymentSpec selects a payment timing.
type PaymentSpec struct {
	Timing     string  `yaml:"timing"`
	OffsetDays float64 `yaml:"offset_days"`
}

// BuyingSpec configures the buyer role.
type BuyingSpec struct {
	Strategy         string         `yaml:"strategy"`
	CutoffDays       float64        `yaml:"cutoff_days"`
	Payment          PaymentSpec    `yaml:"payment"`
	Directory        string         `yaml:"directory"`
	MaxDistance      float64        `yaml:"max_distance"`
	MaxResults       int            `yaml:"max_results"`
	Suppliers        []SupplierSpec `yaml:"suppliers"`
	LateDeliveryFine *FineSpec      `yaml:"late_delivery_fine"`
	Products         []string       `yaml:"products"`
}

// RestockSpec configures one restocking controller.
type RestockSpec struct {
	Product         string                 `yaml:"product"`
	Strategy        restock.StrategyConfig `yaml:"strategy"`
	IntervalDays    float64                `yaml:"interval_days"`
	Reactive        bool                   `yaml:"reactive"`
	MaxDeliveryDays float64                `yaml:"max_delivery_days"`
	NetClaims       bool                   `yaml:"net_claims"`
	IncludePipeline bool                   `yaml:"include_pipeline"`
	Production      bool                   `yaml:"production"`
}

// DemandSpec configures one autonomous demand generator.
type DemandSpec struct {
	Product         string  `yaml:"product"`
	IntervalDays    float64 `yaml:"interval_days"`
	MinAmount       float64 `yaml:"min_amount"`
	MaxAmount       float64 `yaml:"max_amount"`
	MaxDeliveryDays float64 `yaml:"max_delivery_days"`
	Limit           int     `yaml:"limit"`
}

// ProductionSpec is one recipe of a producer.
type ProductionSpec struct {
	Output       string           `yaml:"output"`
	DurationDays float64          `yaml:"duration_days"`
	Inputs       []IngredientSpec `yaml:"inputs"`
}

// IngredientSpec is one recipe input.
type IngredientSpec struct {
	Product string  `yaml:"product"`
	PerUnit float64 `yaml:"per_unit"`
}

// Load reads and parses a scenario file. Unknown fields are rejected.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes a scenario document and normalizes its version.
func Parse(data []byte) (*Spec, error) {
	var spec Spec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if spec.Version == "" {
		logrus.Warnf("scenario has no version, assuming %s", CurrentVersion)
		spec.Version = CurrentVersion
	}
	return &spec, nil
}

// days converts a day count from the file into simulated seconds.
func days(d float64) int64 {
	return int64(d * float64(sim.Day))
}

// Validate checks the scenario for the first problem it can find.
func (s *Spec) Validate() error {
	if err := checkVersion(s.Version); err != nil {
		return err
	}
	if s.HorizonDays <= 0 {
		return fmt.Errorf("horizon_days must be positive, got %g", s.HorizonDays)
	}
	if err := s.protocolConfig().Validate(); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if !sim.ValidTransportChoices[s.Transport.Choice] {
		return fmt.Errorf("unknown transport choice %q", s.Transport.Choice)
	}
	for i, m := range s.Transport.Modes {
		if m.Name == "" || m.SpeedPerDay < 0 || m.FixedDays < 0 || m.CostPerDistance < 0 {
			return fmt.Errorf("transport mode %d: needs a name and non-negative parameters", i)
		}
	}

	products := make(map[string]bool)
	for i, p := range s.Products {
		if p.ID == "" {
			return fmt.Errorf("product %d: missing id", i)
		}
		if products[p.ID] {
			return fmt.Errorf("product %q declared twice", p.ID)
		}
		products[p.ID] = true
	}
	actors := make(map[string]*ActorSpec)
	directories := make(map[string]bool)
	for i := range s.Actors {
		a := &s.Actors[i]
		if a.Name == "" {
			return fmt.Errorf("actor %d: missing name", i)
		}
		if actors[a.Name] != nil {
			return fmt.Errorf("actor %q declared twice", a.Name)
		}
		actors[a.Name] = a
		if a.Directory {
			directories[a.Name] = true
		}
	}
	for _, a := range s.Actors {
		if err := validateActor(&a, products, actors, directories); err != nil {
			return fmt.Errorf("actor %q: %w", a.Name, err)
		}
	}
	return nil
}

func checkVersion(v string) error {
	version, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid scenario version %q: %w", v, err)
	}
	c, err := semver.NewConstraint(supportedVersions)
	if err != nil {
		return err
	}
	if !c.Check(version) {
		return fmt.Errorf("scenario version %s not supported (need %s)", version, supportedVersions)
	}
	return nil
}

func validateActor(a *ActorSpec, products map[string]bool, actors map[string]*ActorSpec, directories map[string]bool) error {
	knownProduct := func(field, id string) error {
		if !products[id] {
			return fmt.Errorf("%s: unknown product %q", field, id)
		}
		return nil
	}
	if a.Balance != nil && *a.Balance < 0 {
		return fmt.Errorf("balance must be non-negative, got %g", *a.Balance)
	}
	for id, amount := range a.Inventory {
		if err := knownProduct("inventory", id); err != nil {
			return err
		}
		if amount < 0 {
			return fmt.Errorf("inventory %s: negative amount %g", id, amount)
		}
	}
	if len(a.Listings) > 0 && !a.Directory {
		return fmt.Errorf("listings require directory: true")
	}
	for _, l := range a.Listings {
		if err := knownProduct("listings", l.Product); err != nil {
			return err
		}
		if actors[l.Actor] == nil {
			return fmt.Errorf("listings: unknown actor %q", l.Actor)
		}
	}
	if len(a.Register) > 0 && len(directories) == 0 {
		return fmt.Errorf("register: no directory actor in scenario")
	}
	if s := a.Selling; s != nil {
		if len(s.Catalog) == 0 {
			return fmt.Errorf("selling: empty catalog")
		}
		for id, price := range s.Catalog {
			if err := knownProduct("selling.catalog", id); err != nil {
				return err
			}
			if price < 0 {
				return fmt.Errorf("selling.catalog %s: negative price", id)
			}
		}
		if s.HandlingDays < 0 || s.PaymentTermDays < 0 {
			return fmt.Errorf("selling: negative handling or payment term")
		}
	}
	if b := a.Buying; b != nil {
		if !policy.ValidBuyingStrategies[b.Strategy] {
			return fmt.Errorf("buying: unknown strategy %q", b.Strategy)
		}
		if !policy.ValidPaymentTimings[b.Payment.Timing] {
			return fmt.Errorf("buying: unknown payment timing %q", b.Payment.Timing)
		}
		if b.CutoffDays < 0 || b.Payment.OffsetDays < 0 {
			return fmt.Errorf("buying: negative cutoff or payment offset")
		}
		if b.Strategy == policy.StrategyYellowPage && !directories[b.Directory] {
			return fmt.Errorf("buying: yellow-page strategy needs a directory actor, got %q", b.Directory)
		}
		for _, sup := range b.Suppliers {
			if err := knownProduct("buying.suppliers", sup.Product); err != nil {
				return err
			}
			if actors[sup.Actor] == nil {
				return fmt.Errorf("buying.suppliers: unknown actor %q", sup.Actor)
			}
			if actors[sup.Actor].Selling == nil {
				return fmt.Errorf("buying.suppliers: %q does not sell", sup.Actor)
			}
		}
		for _, id := range b.Products {
			if err := knownProduct("buying.products", id); err != nil {
				return err
			}
		}
	}
	if (len(a.Restock) > 0 || len(a.Demand) > 0) && a.Buying == nil && len(a.Production) == 0 {
		return fmt.Errorf("restock and demand need a buying or production role")
	}
	for i, r := range a.Restock {
		if err := knownProduct(fmt.Sprintf("restock[%d]", i), r.Product); err != nil {
			return err
		}
		if !restock.ValidRestockStrategies[r.Strategy.Name] {
			return fmt.Errorf("restock[%d]: unknown strategy %q", i, r.Strategy.Name)
		}
		if r.IntervalDays < 0 || r.MaxDeliveryDays < 0 {
			return fmt.Errorf("restock[%d]: negative interval or delivery window", i)
		}
		if r.IntervalDays == 0 && !r.Reactive {
			return fmt.Errorf("restock[%d]: needs interval_days or reactive", i)
		}
		if r.Production && len(a.Production) == 0 {
			return fmt.Errorf("restock[%d]: production restock without a production recipe", i)
		}
	}
	for i, d := range a.Demand {
		if err := knownProduct(fmt.Sprintf("demand[%d]", i), d.Product); err != nil {
			return err
		}
		if d.IntervalDays <= 0 {
			return fmt.Errorf("demand[%d]: interval_days must be positive", i)
		}
		if d.MinAmount <= 0 || d.MaxAmount < d.MinAmount {
			return fmt.Errorf("demand[%d]: invalid amount range [%g, %g]", i, d.MinAmount, d.MaxAmount)
		}
	}
	for i, p := range a.Production {
		if err := knownProduct(fmt.Sprintf("production[%d]", i), p.Output); err != nil {
			return err
		}
		if p.DurationDays < 0 {
			return fmt.Errorf("production[%d]: negative duration", i)
		}
		for _, in := range p.Inputs {
			if err := knownProduct(fmt.Sprintf("production[%d].inputs", i), in.Product); err != nil {
				return err
			}
			if in.PerUnit <= 0 {
				return fmt.Errorf("production[%d]: per_unit must be positive", i)
			}
		}
	}
	return nil
}

// protocolConfig applies the overrides to the defaults.
func (s *Spec) protocolConfig() sim.Config {
	cfg := sim.DefaultConfig()
	p := s.Protocol
	if p.MessageDelaySeconds != nil {
		cfg.MessageDelay = *p.MessageDelaySeconds
	}
	if p.RetryIntervalDays != nil {
		cfg.RetryInterval = days(*p.RetryIntervalDays)
	}
	if p.MaxRetries != nil {
		cfg.MaxRetries = *p.MaxRetries
	}
	if p.MaxRestarts != nil {
		cfg.MaxRestarts = *p.MaxRestarts
	}
	return cfg
}
