package scenario

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/tradesim/tradesim/sim"
	"github.com/tradesim/tradesim/sim/directory"
	"github.com/tradesim/tradesim/sim/metrics"
	"github.com/tradesim/tradesim/sim/policy"
	"github.com/tradesim/tradesim/sim/restock"
	"github.com/tradesim/tradesim/sim/trace"
)

// Options override scenario settings at build time.
type Options struct {
	// Seed replaces the scenario seed when non-nil.
	Seed *int64
	// HorizonDays replaces the scenario horizon when positive.
	HorizonDays float64
	TraceLevel  trace.TraceLevel
	// Metrics enables the Prometheus collector. A nil Registerer uses a private registry.
	Metrics    bool
	Registerer prometheus.Registerer
	// Journal keeps every sent message for export.
	Journal bool
}

// Simulation is a built, ready-to-run scenario.
type Simulation struct {
	RunID       string
	Spec        *Spec
	Loop        *sim.EventLoop
	Model       *sim.Model
	Horizon     int64
	Directories []*directory.Directory
	Controllers []*restock.Controller
	Generators  []*restock.Generator

	started bool
}

// Build validates spec and wires actors, roles, controllers and generators into a new model.
func Build(spec *Spec, opts Options) (*Simulation, error) {
	if spec == nil {
		return nil, fmt.Errorf("scenario: nil spec")
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	seed := spec.Seed
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	horizon := spec.HorizonDays
	if opts.HorizonDays > 0 {
		horizon = opts.HorizonDays
	}
	if !trace.IsValidTraceLevel(string(opts.TraceLevel)) {
		return nil, fmt.Errorf("scenario: unknown trace level %q", opts.TraceLevel)
	}

	loop := sim.NewEventLoop(0)
	model, err := sim.NewModel(loop, spec.protocolConfig(), seed)
	if err != nil {
		return nil, err
	}
	s := &Simulation{
		RunID:   uuid.NewString(),
		Spec:    spec,
		Loop:    loop,
		Model:   model,
		Horizon: days(horizon),
	}
	if opts.TraceLevel != "" && opts.TraceLevel != trace.TraceLevelNone {
		model.Trace = trace.NewSimulationTrace(trace.TraceConfig{Level: opts.TraceLevel})
		model.Trace.RunID = s.RunID
	}
	if opts.Metrics {
		c, err := metrics.NewCollector(opts.Registerer)
		if err != nil {
			return nil, fmt.Errorf("scenario: %w", err)
		}
		model.Metrics = c
	}
	if opts.Journal {
		model.EnableJournal()
	}

	b := &builder{spec: spec, sim: s, model: model}
	steps := []func() error{
		b.transport,
		b.products,
		b.actors,
		b.directories,
		b.sellers,
		b.buyers,
		b.producers,
		b.restocking,
		b.demand,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("scenario: %w", err)
		}
	}
	logrus.Infof("scenario %s: %d actors, %d products, %d controllers, %d generators (seed %d, horizon %gd)",
		s.RunID, len(model.Actors()), len(model.Products()), len(s.Controllers), len(s.Generators), seed, horizon)
	return s, nil
}

type builder struct {
	spec  *Spec
	sim   *Simulation
	model *sim.Model
	tree  *directory.TopicTree
}

func (b *builder) transport() error {
	modes := make([]sim.TransportMode, 0, len(b.spec.Transport.Modes))
	for _, m := range b.spec.Transport.Modes {
		modes = append(modes, sim.TransportMode{
			Name:            m.Name,
			SpeedPerDay:     m.SpeedPerDay,
			FixedDuration:   days(m.FixedDays),
			CostPerDistance: m.CostPerDistance,
		})
	}
	choice, err := sim.NewTransportChoice(b.spec.Transport.Choice, b.model.RNG.Stream(sim.StreamTransport))
	if err != nil {
		return err
	}
	b.model.Transport = &sim.Transport{Options: &sim.ModeTransportProvider{Modes: modes}, Choice: choice}
	return nil
}

func (b *builder) products() error {
	b.tree = directory.NewTopicTree()
	for _, t := range b.spec.Topics {
		if err := b.tree.Add(t.Name, t.Parent); err != nil {
			return err
		}
	}
	for _, p := range b.spec.Products {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		if err := b.model.AddProduct(&sim.Product{ID: p.ID, Name: name, Unit: p.Unit, Topic: p.Topic}); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) product(id string) *sim.Product {
	return b.model.Product(id)
}

func (b *builder) actor(name string) *sim.Actor {
	return b.model.ActorByName(name)
}

// actors creates every actor with an inventory and an account, then stocks it.
// Inventory map keys are visited in sorted order so stocking is reproducible.
func (b *builder) actors() error {
	for _, as := range b.spec.Actors {
		a, err := b.model.NewActor(as.Name, sim.Location{X: as.Location.X, Y: as.Location.Y})
		if err != nil {
			return err
		}
		balance := 0.0
		if as.Balance != nil {
			balance = *as.Balance
		}
		inv := sim.NewInventory()
		if err := a.Attach(inv); err != nil {
			return err
		}
		if err := a.Attach(sim.NewAccount(balance)); err != nil {
			return err
		}
		for _, id := range sortedKeys(as.Inventory) {
			if err := inv.Add(b.product(id), as.Inventory[id]); err != nil {
				return fmt.Errorf("actor %s: %w", as.Name, err)
			}
		}
	}
	return nil
}

func (b *builder) directories() error {
	for _, as := range b.spec.Actors {
		if !as.Directory {
			continue
		}
		d, err := directory.New(b.actor(as.Name), b.tree)
		if err != nil {
			return err
		}
		if _, err := directory.Install(d); err != nil {
			return err
		}
		for _, l := range as.Listings {
			if err := d.AddSupplier(b.product(l.Product), b.actor(l.Actor)); err != nil {
				return err
			}
		}
		b.sim.Directories = append(b.sim.Directories, d)
	}
	for _, as := range b.spec.Actors {
		for _, topic := range as.Register {
			for _, d := range b.sim.Directories {
				if err := d.Register(b.actor(as.Name), topic); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (b *builder) sellers() error {
	for _, as := range b.spec.Actors {
		if as.Selling == nil {
			continue
		}
		a := b.actor(as.Name)
		catalog := sim.NewCatalog()
		for _, id := range sortedKeys(as.Selling.Catalog) {
			if err := catalog.SetPrice(b.product(id), as.Selling.Catalog[id]); err != nil {
				return err
			}
		}
		if err := a.Attach(catalog); err != nil {
			return err
		}
		_, err := policy.InstallSeller(a, policy.SellerConfig{
			Catalog:         catalog,
			Handling:        days(as.Selling.HandlingDays),
			PaymentTerm:     days(as.Selling.PaymentTermDays),
			LatePaymentFine: fine(as.Selling.LatePaymentFine),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) buyers() error {
	for _, as := range b.spec.Actors {
		bs := as.Buying
		if bs == nil {
			continue
		}
		a := b.actor(as.Name)
		suppliers := sim.NewSupplierTable()
		for _, s := range bs.Suppliers {
			if err := suppliers.Add(b.product(s.Product), b.actor(s.Actor), s.UnitPrice); err != nil {
				return err
			}
		}
		if err := a.Attach(suppliers); err != nil {
			return err
		}
		timing, err := policy.NewPaymentTiming(bs.Payment.Timing, days(bs.Payment.OffsetDays))
		if err != nil {
			return fmt.Errorf("actor %s: %w", as.Name, err)
		}
		products := make([]*sim.Product, 0, len(bs.Products))
		for _, id := range bs.Products {
			products = append(products, b.product(id))
		}
		cfg := policy.BuyerConfig{
			Strategy:         bs.Strategy,
			Suppliers:        suppliers,
			MaxDistance:      bs.MaxDistance,
			MaxResults:       bs.MaxResults,
			Cutoff:           days(bs.CutoffDays),
			Payment:          timing,
			LateDeliveryFine: fine(bs.LateDeliveryFine),
			Products:         products,
		}
		if bs.Directory != "" {
			cfg.Directory = b.actor(bs.Directory)
		}
		if _, err := policy.InstallBuyer(a, cfg); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) producers() error {
	for _, as := range b.spec.Actors {
		if len(as.Production) == 0 {
			continue
		}
		recipes := make([]policy.Recipe, 0, len(as.Production))
		for _, ps := range as.Production {
			r := policy.Recipe{Output: b.product(ps.Output), Duration: days(ps.DurationDays)}
			for _, in := range ps.Inputs {
				r.Inputs = append(r.Inputs, policy.Ingredient{Product: b.product(in.Product), PerUnit: in.PerUnit})
			}
			recipes = append(recipes, r)
		}
		if _, err := policy.InstallProducer(b.actor(as.Name), recipes...); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) restocking() error {
	for _, as := range b.spec.Actors {
		for _, rs := range as.Restock {
			strategy, err := restock.NewStrategy(rs.Strategy)
			if err != nil {
				return fmt.Errorf("actor %s: %w", as.Name, err)
			}
			c, err := restock.NewController(b.actor(as.Name), restock.Config{
				Product:             b.product(rs.Product),
				Strategy:            strategy,
				Interval:            days(rs.IntervalDays),
				Reactive:            rs.Reactive,
				MaxDeliveryDuration: days(rs.MaxDeliveryDays),
				NetClaims:           rs.NetClaims,
				IncludePipeline:     rs.IncludePipeline,
				Production:          rs.Production,
			})
			if err != nil {
				return err
			}
			b.sim.Controllers = append(b.sim.Controllers, c)
		}
	}
	return nil
}

func (b *builder) demand() error {
	for _, as := range b.spec.Actors {
		for _, ds := range as.Demand {
			g, err := restock.NewGenerator(b.actor(as.Name), restock.GeneratorConfig{
				Product:             b.product(ds.Product),
				Interval:            days(ds.IntervalDays),
				MinAmount:           ds.MinAmount,
				MaxAmount:           ds.MaxAmount,
				MaxDeliveryDuration: days(ds.MaxDeliveryDays),
				Limit:               ds.Limit,
			})
			if err != nil {
				return err
			}
			b.sim.Generators = append(b.sim.Generators, g)
		}
	}
	return nil
}

func fine(f *FineSpec) *policy.Fine {
	if f == nil {
		return nil
	}
	return &policy.Fine{Fixed: f.Fixed, PerDay: f.PerDay}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Run starts controllers and generators on the first call and advances the
// loop to the horizon. It returns the end-of-run report.
func (s *Simulation) Run() *Report {
	if !s.started {
		s.started = true
		for _, c := range s.Controllers {
			c.Start()
		}
		for _, g := range s.Generators {
			g.Start()
		}
	}
	n := s.Loop.Run(s.Horizon)
	logrus.Infof("scenario %s: ran %d events up to t=%d", s.RunID, n, s.Loop.Now())
	return s.Report()
}
