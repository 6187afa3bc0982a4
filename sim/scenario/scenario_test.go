package scenario

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradesim/tradesim/sim"
	"github.com/tradesim/tradesim/sim/trace"
)

const directTrade = `
version: "1.0.0"
seed: 7
horizon_days: 10
products:
  - {id: widget, topic: goods/widget}
actors:
  - name: shop
    location: {x: 0, y: 0}
    balance: 1000
    buying:
      strategy: direct
      payment: {timing: immediate}
      suppliers:
        - {product: widget, actor: depot, unit_price: 2}
    restock:
      - product: widget
        strategy: {name: ceiling, ceiling: 10}
        interval_days: 1
        max_delivery_days: 3
        include_pipeline: true
  - name: depot
    location: {x: 3, y: 4}
    inventory: {widget: 100}
    selling:
      catalog: {widget: 2}
`

func mustParse(t *testing.T, doc string) *Spec {
	t.Helper()
	spec, err := Parse([]byte(doc))
	require.NoError(t, err)
	return spec
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("version: \"1.0.0\"\nhorizon: 3\n"))
	assert.Error(t, err)
}

func TestParse_MissingVersionDefaultsToCurrent(t *testing.T) {
	spec := mustParse(t, "horizon_days: 1\n")
	assert.Equal(t, CurrentVersion, spec.Version)
	assert.NoError(t, spec.Validate())
}

func TestValidate_ReportsFirstProblem(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Spec)
		want   string
	}{
		{"future version", func(s *Spec) { s.Version = "2.1.0" }, "not supported"},
		{"garbage version", func(s *Spec) { s.Version = "one" }, "invalid scenario version"},
		{"no horizon", func(s *Spec) { s.HorizonDays = 0 }, "horizon_days"},
		{"bad transport choice", func(s *Spec) { s.Transport.Choice = "teleport" }, "transport choice"},
		{"negative retries", func(s *Spec) { n := -1; s.Protocol.MaxRetries = &n }, "protocol"},
		{"duplicate product", func(s *Spec) { s.Products = append(s.Products, s.Products[0]) }, "declared twice"},
		{"unknown stock product", func(s *Spec) { s.Actors[1].Inventory["gizmo"] = 1 }, "unknown product"},
		{"unknown buying strategy", func(s *Spec) { s.Actors[0].Buying.Strategy = "barter" }, "unknown strategy"},
		{"yellow pages without directory", func(s *Spec) { s.Actors[0].Buying.Strategy = "yellow-page" }, "directory"},
		{"supplier that does not sell", func(s *Spec) { s.Actors[1].Selling = nil }, "does not sell"},
		{"unknown restock strategy", func(s *Spec) { s.Actors[0].Restock[0].Strategy.Name = "hoard" }, "unknown strategy"},
		{"restock without buying", func(s *Spec) { s.Actors[0].Buying = nil }, "restock and demand"},
		{"register without directory", func(s *Spec) { s.Actors[1].Register = []string{"goods"} }, "no directory"},
		{"unknown payment timing", func(s *Spec) { s.Actors[0].Buying.Payment.Timing = "never" }, "payment timing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := mustParse(t, directTrade)
			require.NoError(t, spec.Validate())
			tt.mutate(spec)
			err := spec.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuild_DirectTradeRestocksToCeiling(t *testing.T) {
	// GIVEN a shop that restocks to 10 widgets from a depot every day
	s, err := Build(mustParse(t, directTrade), Options{TraceLevel: trace.TraceLevelMessages, Metrics: true})
	require.NoError(t, err)

	// WHEN the scenario runs for its horizon
	report := s.Run()

	// THEN one restock request was placed and fully settled
	assert.Equal(t, int64(10*sim.Day), report.Clock)
	assert.Equal(t, 1, report.Restocks)
	shop, depot := report.Actor("shop"), report.Actor("depot")
	require.NotNil(t, shop)
	require.NotNil(t, depot)
	assert.Equal(t, []StockReport{{Product: "widget", Actual: 10}}, shop.Stock)
	assert.Equal(t, []StockReport{{Product: "widget", Actual: 90}}, depot.Stock)
	assert.InDelta(t, 980.0, shop.Balance, 1e-9)
	assert.InDelta(t, 20.0, depot.Balance, 1e-9)
	assert.Equal(t, 0, shop.StoreEntries)
	assert.Equal(t, 0, depot.StoreEntries)

	// AND the trace covers the whole chain under one demand id
	require.NotNil(t, report.Trace)
	assert.Equal(t, 1, report.Trace.SentByKind["standalone-order"])
	assert.Equal(t, 1, report.Trace.SentByKind["payment"])
	assert.Equal(t, s.RunID, s.Model.Trace.RunID)
}

func TestBuild_CapabilitiesAttached(t *testing.T) {
	s, err := Build(mustParse(t, directTrade), Options{})
	require.NoError(t, err)

	shop := s.Model.ActorByName("shop")
	depot := s.Model.ActorByName("depot")
	_, ok := sim.Capability[*sim.SupplierTable](shop)
	assert.True(t, ok)
	catalog, ok := sim.Capability[*sim.Catalog](depot)
	require.True(t, ok)
	price, sold := catalog.Price(s.Model.Product("widget"))
	assert.True(t, sold)
	assert.Equal(t, 2.0, price)
	assert.Equal(t, sim.ActorID("shop"), shop.ID)
	assert.NotNil(t, shop.Role("buyer"))
	assert.NotNil(t, depot.Role("seller"))
}

func TestBuild_OptionsOverrideSeedAndHorizon(t *testing.T) {
	seed := int64(99)
	s, err := Build(mustParse(t, directTrade), Options{Seed: &seed, HorizonDays: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2*sim.Day), s.Horizon)
	assert.Equal(t, sim.SimulationKey(99), s.Model.RNG.Key())

	_, err = Build(mustParse(t, directTrade), Options{TraceLevel: "verbose"})
	assert.Error(t, err)
}

func TestBullwhip_SameSeedSameOutcome(t *testing.T) {
	// GIVEN the sample scenario built twice with the same seed
	run := func() *Report {
		spec, err := Load("../../scenarios/bullwhip.yaml")
		require.NoError(t, err)
		s, err := Build(spec, Options{})
		require.NoError(t, err)
		return s.Run()
	}

	// WHEN both run to the horizon
	a, b := run(), run()

	// THEN actor states are identical and run ids differ
	assert.Equal(t, a.Actors, b.Actors)
	assert.Equal(t, a.Events, b.Events)
	assert.NotEqual(t, a.RunID, b.RunID)

	// AND customers received beer and demand was generated every day
	customers := a.Actor("customers")
	require.NotNil(t, customers)
	require.NotEmpty(t, customers.Stock)
	assert.Greater(t, customers.Stock[0].Actual, 0.0)
	assert.Greater(t, a.Generated, 100)
}

func TestReport_PrintAndJSON(t *testing.T) {
	s, err := Build(mustParse(t, directTrade), Options{TraceLevel: trace.TraceLevelMessages})
	require.NoError(t, err)
	report := s.Run()

	var out bytes.Buffer
	report.Print(&out)
	assert.True(t, strings.HasPrefix(out.String(), "=== Simulation Report ==="))
	assert.Contains(t, out.String(), "--- shop: balance 980.00")

	out.Reset()
	require.NoError(t, report.WriteJSON(&out))
	var decoded Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, report.RunID, decoded.RunID)
	assert.Len(t, decoded.Actors, 2)
}

func TestCompose_MergesFragments(t *testing.T) {
	// GIVEN the direct trade plus a fragment adding a second buyer of the same product
	base := mustParse(t, directTrade)
	extra := mustParse(t, `
horizon_days: 20
products:
  - {id: widget, topic: goods/widget}
actors:
  - name: kiosk
    location: {x: 1, y: 1}
    balance: 50
    buying:
      strategy: direct
      payment: {timing: on-time}
      suppliers:
        - {product: widget, actor: depot, unit_price: 2}
`)

	// WHEN they are composed
	merged, err := Compose([]*Spec{base, extra})
	require.NoError(t, err)

	// THEN the shared product appears once, actors are concatenated and the horizon is the longest
	assert.Len(t, merged.Products, 1)
	assert.Len(t, merged.Actors, 3)
	assert.Equal(t, 20.0, merged.HorizonDays)
	assert.Equal(t, int64(7), merged.Seed)
	assert.NoError(t, merged.Validate())
}

func TestCompose_Conflicts(t *testing.T) {
	base := mustParse(t, directTrade)

	redefined := mustParse(t, "horizon_days: 1\nproducts:\n  - {id: widget, topic: other}\n")
	_, err := Compose([]*Spec{base, redefined})
	assert.ErrorContains(t, err, "redefined")

	_, err = Compose([]*Spec{base, mustParse(t, directTrade)})
	assert.ErrorContains(t, err, "already defined")

	_, err = Compose(nil)
	assert.Error(t, err)
}
