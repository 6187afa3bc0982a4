package policy

import (
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradesim/tradesim/sim"
	"github.com/tradesim/tradesim/sim/internal/testutil"
	"github.com/tradesim/tradesim/sim/metrics"
)

// market is a one-product, one-buyer, one-seller setup with instant transport.
type market struct {
	w         *testutil.World
	widget    *sim.Product
	retailer  *sim.Actor
	wholesale *sim.Actor
	suppliers *sim.SupplierTable
	catalog   *sim.Catalog
}

func newMarket(t *testing.T, cfg sim.Config, stock float64) *market {
	t.Helper()
	w := testutil.NewWorldWithConfig(t, cfg)
	m := &market{
		w:         w,
		widget:    w.Product("widget", "goods/widget"),
		retailer:  w.Trader("retailer", 0, 0, 1000),
		wholesale: w.Trader("wholesaler", 3, 4, 0),
		suppliers: sim.NewSupplierTable(),
		catalog:   sim.NewCatalog(),
	}
	w.Stock(m.wholesale, m.widget, stock)
	require.NoError(t, m.suppliers.Add(m.widget, m.wholesale, 2))
	return m
}

func (m *market) sells(t *testing.T, cfg SellerConfig) {
	t.Helper()
	if cfg.Catalog == nil {
		cfg.Catalog = m.catalog
	}
	_, err := InstallSeller(m.wholesale, cfg)
	require.NoError(t, err)
}

func (m *market) buys(t *testing.T, cfg BuyerConfig) {
	t.Helper()
	cfg.Suppliers = m.suppliers
	_, err := InstallBuyer(m.retailer, cfg)
	require.NoError(t, err)
}

func TestRFQFlow_HappyPath_SettlesAndClosesChain(t *testing.T) {
	// GIVEN a retailer buying by RFQ from a stocked wholesaler that bills with a 7-day term
	m := newMarket(t, sim.DefaultConfig(), 100)
	require.NoError(t, m.catalog.SetPrice(m.widget, 2))
	m.sells(t, SellerConfig{PaymentTerm: 7 * sim.Day})
	m.buys(t, BuyerConfig{Strategy: StrategyRFQ, Cutoff: sim.Day, Payment: Immediate{}})

	// WHEN the retailer needs 10 widgets within 5 days
	m.w.Demand(m.retailer, m.widget, 10, 0, 5*sim.Day)
	m.w.RunDays(10)

	// THEN goods and money moved once
	buyer := m.retailer.Inventory().Level(m.widget)
	assert.Equal(t, 10.0, buyer.Actual)
	assert.Equal(t, 0.0, buyer.Ordered)
	seller := m.wholesale.Inventory().Level(m.widget)
	assert.Equal(t, 90.0, seller.Actual)
	assert.Equal(t, 0.0, seller.Claimed)
	assert.InDelta(t, 980.0, m.retailer.Account().Balance(), 1e-9)
	assert.InDelta(t, 20.0, m.wholesale.Account().Balance(), 1e-9)

	// AND both stores are empty
	assert.Equal(t, 0, m.retailer.Store().Len())
	assert.Equal(t, 0, m.wholesale.Store().Len())
}

func TestRFQFlow_DeclinedRFQ_ChainIsPurgedAfterTimeout(t *testing.T) {
	// GIVEN a wholesaler that needs ten days of handling
	m := newMarket(t, sim.DefaultConfig(), 100)
	require.NoError(t, m.catalog.SetPrice(m.widget, 2))
	m.sells(t, SellerConfig{Handling: 10 * sim.Day})
	m.buys(t, BuyerConfig{Strategy: StrategyRFQ, Cutoff: sim.Day})

	// WHEN the retailer asks for delivery within 5 days
	m.w.Demand(m.retailer, m.widget, 10, 0, 5*sim.Day)
	m.w.RunDays(10)

	// THEN no order was placed and nothing lingers in either store
	assert.Equal(t, 0.0, m.retailer.Inventory().Level(m.widget).Ordered)
	assert.Equal(t, 0, m.retailer.Store().Len())
	assert.Equal(t, 0, m.wholesale.Store().Len())
	assert.Equal(t, 0.0, m.retailer.Store().Negotiating(m.widget))
}

func TestDirectFlow_RejectedOrder_RestartsUpToLimit(t *testing.T) {
	// GIVEN a wholesaler whose catalog does not carry widgets
	cfg := sim.DefaultConfig()
	cfg.MaxRestarts = 2
	m := newMarket(t, cfg, 100)
	m.sells(t, SellerConfig{})
	m.buys(t, BuyerConfig{Strategy: StrategyDirect})
	orders := testutil.Capture(t, m.wholesale, "audit", sim.KindStandaloneOrder)
	demands := testutil.Capture(t, m.retailer, "audit", sim.KindInternalDemand)

	// WHEN the retailer orders directly
	first := m.w.Demand(m.retailer, m.widget, 10, 0, 5*sim.Day)
	m.w.RunDays(10)

	// THEN the first order and two restarts were sent, then the need was abandoned
	assert.Len(t, orders.Messages, 3)

	// AND each restart reissued the same need under a fresh demand id and purged the old chain
	require.Len(t, demands.Messages, 3)
	seen := make(map[uint64]bool)
	for i, msg := range demands.Messages {
		d := msg.(*sim.InternalDemand)
		assert.Same(t, m.widget, d.Product)
		assert.Equal(t, first.Amount, d.Amount)
		assert.Equal(t, first.EarliestDeliveryDate, d.EarliestDeliveryDate)
		assert.Equal(t, first.LatestDeliveryDate, d.LatestDeliveryDate)
		assert.Equal(t, i, d.Attempt)
		assert.Equal(t, d.ID, d.DemandID)
		assert.False(t, seen[d.DemandID], "demand id %d reused", d.DemandID)
		seen[d.DemandID] = true
		assert.Empty(t, m.retailer.Store().Chain(d.DemandID))
		assert.Nil(t, m.retailer.Store().Demand(d.DemandID))
	}
	assert.Same(t, first, demands.Messages[0])
	assert.Equal(t, 0.0, m.retailer.Inventory().Level(m.widget).Ordered)
	assert.Equal(t, 0, m.retailer.Store().Len())
	assert.Equal(t, 0, m.wholesale.Store().Len())
	assert.Equal(t, 1000.0, m.retailer.Account().Balance())
}

func TestDirectFlow_StockNeverArrives_ClaimReleasedAndOrderRejected(t *testing.T) {
	// GIVEN an empty wholesaler and a short retry budget
	cfg := sim.DefaultConfig()
	cfg.MaxRetries = 2
	cfg.MaxRestarts = 0
	m := newMarket(t, cfg, 0)
	collector, err := metrics.NewCollector(nil)
	require.NoError(t, err)
	m.w.Model.Metrics = collector
	require.NoError(t, m.catalog.SetPrice(m.widget, 2))
	m.sells(t, SellerConfig{})
	m.buys(t, BuyerConfig{Strategy: StrategyDirect})
	confirmations := testutil.Capture(t, m.retailer, "audit", sim.KindOrderConfirmation)

	// WHEN the retailer orders
	m.w.Demand(m.retailer, m.widget, 10, 0, 5*sim.Day)
	m.w.RunDays(10)

	// THEN the order was first accepted, then rejected after the retries ran out
	require.Len(t, confirmations.Messages, 2)
	assert.True(t, confirmations.Messages[0].(*sim.OrderConfirmation).Accepted)
	assert.False(t, confirmations.Messages[1].(*sim.OrderConfirmation).Accepted)
	assert.Equal(t, 2.0, promtest.ToFloat64(collector.Retries.WithLabelValues("insufficient-stock")))
	assert.Equal(t, 1.0, promtest.ToFloat64(collector.RetriesExhausted.WithLabelValues("insufficient-stock")))

	// AND no claim or on-order quantity is left behind
	assert.Equal(t, 0.0, m.wholesale.Inventory().Level(m.widget).Claimed)
	assert.Equal(t, 0.0, m.retailer.Inventory().Level(m.widget).Ordered)
	assert.Equal(t, 0, m.retailer.Store().Len())
	assert.Equal(t, 0, m.wholesale.Store().Len())
}

func TestDirectFlow_LatePayment_IsFined(t *testing.T) {
	// GIVEN a seller fining 5 plus 1 per day late, and a buyer paying two days late
	m := newMarket(t, sim.DefaultConfig(), 100)
	require.NoError(t, m.catalog.SetPrice(m.widget, 2))
	m.sells(t, SellerConfig{LatePaymentFine: &Fine{Fixed: 5, PerDay: 1}})
	m.buys(t, BuyerConfig{Strategy: StrategyDirect, Payment: Late{Offset: 2 * sim.Day}})

	// WHEN 10 widgets are traded
	m.w.Demand(m.retailer, m.widget, 10, 0, 5*sim.Day)
	m.w.RunDays(10)

	// THEN the buyer paid the price plus a fine of 7
	assert.InDelta(t, 1000.0-20-7, m.retailer.Account().Balance(), 1e-9)
	assert.InDelta(t, 27.0, m.wholesale.Account().Balance(), 1e-9)
	assert.Equal(t, 0, m.wholesale.Store().Len())
}

func TestBillToPayment_InsufficientFunds_AbandonsAfterRetries(t *testing.T) {
	// GIVEN a broke retailer
	cfg := sim.DefaultConfig()
	cfg.MaxRetries = 1
	m := newMarket(t, cfg, 100)
	require.NoError(t, m.retailer.Account().Withdraw(1000))
	require.NoError(t, m.catalog.SetPrice(m.widget, 2))
	m.sells(t, SellerConfig{})
	m.buys(t, BuyerConfig{Strategy: StrategyDirect, Payment: Immediate{}})

	// WHEN it orders and receives the goods
	m.w.Demand(m.retailer, m.widget, 10, 0, 5*sim.Day)
	m.w.RunDays(10)

	// THEN the goods arrived but no payment was ever made
	assert.Equal(t, 10.0, m.retailer.Inventory().Level(m.widget).Actual)
	assert.Equal(t, 0.0, m.wholesale.Account().Balance())
	assert.Equal(t, 0, m.retailer.Store().Len())
}

func TestInstallBuyer_UnknownStrategy_Fails(t *testing.T) {
	m := newMarket(t, sim.DefaultConfig(), 0)
	_, err := InstallBuyer(m.retailer, BuyerConfig{Strategy: "barter", Suppliers: m.suppliers})
	assert.Error(t, err)
}

func TestInstallBuyer_ProductFilter_IgnoresOtherProducts(t *testing.T) {
	// GIVEN a buyer restricted to gadgets
	m := newMarket(t, sim.DefaultConfig(), 100)
	gadget := m.w.Product("gadget", "goods/gadget")
	m.buys(t, BuyerConfig{Strategy: StrategyDirect, Products: []*sim.Product{gadget}})
	orders := testutil.Capture(t, m.wholesale, "audit", sim.KindStandaloneOrder)

	// WHEN a widget demand arrives
	m.w.Demand(m.retailer, m.widget, 10, 0, 5*sim.Day)
	m.w.RunDays(1)

	// THEN nothing was ordered
	assert.Empty(t, orders.Messages)
}
