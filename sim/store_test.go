package sim

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradesim/tradesim/sim/metrics"
)

type storeFixture struct {
	loop          *EventLoop
	buyer, seller *Actor
	widget        *Product
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	loop, m := newTestModel(t, DefaultConfig())
	return &storeFixture{
		loop:   loop,
		buyer:  newTestActor(t, m, "buyer"),
		seller: newTestActor(t, m, "seller"),
		widget: newTestProduct(t, m, "widget"),
	}
}

func (f *storeFixture) rfq(d *InternalDemand, cutoff int64) *RequestForQuote {
	return &RequestForQuote{
		MessageHeader:        f.buyer.NewHeader(f.seller, d.DemandID),
		Product:              d.Product,
		Amount:               d.Amount,
		EarliestDeliveryDate: d.EarliestDeliveryDate,
		LatestDeliveryDate:   d.LatestDeliveryDate,
		CutoffDate:           cutoff,
	}
}

func TestDeadline_NeverBeforeNow(t *testing.T) {
	f := newStoreFixture(t)
	d := NewInternalDemand(f.buyer, f.widget, 5, 0, 2*Day)
	rfq := f.rfq(d, Hour)
	q := &Quote{MessageHeader: f.seller.NewHeader(f.buyer, d.DemandID), RFQ: rfq, ProposedDeliveryDate: Day}
	qbo := &QuoteBasedOrder{MessageHeader: f.buyer.NewHeader(f.seller, d.DemandID), Quote: q}
	so := &StandaloneOrder{MessageHeader: f.buyer.NewHeader(f.seller, d.DemandID)}
	now := 10 * Day

	tests := []struct {
		name  string
		msg   Message
		dir   Direction
		timed bool
		want  int64
	}{
		{"demand in the past", d, Received, true, now},
		{"rfq sent keeps a day after cutoff", rfq, Sent, true, now},
		{"quote", q, Received, true, now},
		{"quote-based order", qbo, Sent, true, now},
		{"standalone order", so, Sent, true, now},
		{"shipment is untimed", &Shipment{MessageHeader: f.seller.NewHeader(f.buyer, d.DemandID)}, Received, false, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, timed := Deadline(tt.msg, tt.dir, now)
			assert.Equal(t, tt.timed, timed)
			assert.Equal(t, tt.want, got)
		})
	}

	got, _ := Deadline(rfq, Sent, 0)
	assert.Equal(t, Hour+Day, got)
	got, _ = Deadline(rfq, Received, 0)
	assert.Equal(t, Hour, got)
	got, _ = Deadline(q, Received, 0)
	assert.Equal(t, 2*Day, got, "a quote lives until the latest requested delivery")
}

func TestMessageStore_DemandTimesOutAndChainIsPurged(t *testing.T) {
	// GIVEN a recorded demand due within one day and an untimed shipment in the same chain
	f := newStoreFixture(t)
	s := f.buyer.Store()
	d := NewInternalDemand(f.buyer, f.widget, 5, 0, Day)
	s.Record(d, Received)
	s.Record(&Shipment{MessageHeader: f.seller.NewHeader(f.buyer, d.DemandID)}, Received)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, 5.0, s.Negotiating(f.widget))

	// WHEN the deadline passes
	f.loop.Run(2 * Day)

	// THEN the whole chain and its origin are gone
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Demand(d.DemandID))
	assert.Equal(t, 0.0, s.Negotiating(f.widget))
	assert.Empty(t, s.Chains())
}

func TestMessageStore_ConfirmedChainSurvivesTimeout(t *testing.T) {
	// GIVEN a chain holding a received order confirmation
	f := newStoreFixture(t)
	s := f.buyer.Store()
	d := NewInternalDemand(f.buyer, f.widget, 5, 0, Day)
	s.Record(d, Received)
	order := &StandaloneOrder{MessageHeader: f.buyer.NewHeader(f.seller, 999)}
	s.Record(&OrderConfirmation{MessageHeader: f.seller.NewHeader(f.buyer, d.DemandID), Order: order, Accepted: true}, Received)

	// WHEN the demand times out
	f.loop.Run(2 * Day)

	// THEN only the demand entry is removed
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Has(d.DemandID, KindOrderConfirmation, Received))
}

func TestMessageStore_RepliesEvictWhatTheyAnswer(t *testing.T) {
	// GIVEN a demand that turns into an RFQ, a quote and an order
	f := newStoreFixture(t)
	s := f.buyer.Store()
	d := NewInternalDemand(f.buyer, f.widget, 5, 0, 3*Day)
	s.Record(d, Received)
	rfq := f.rfq(d, Hour)

	// WHEN the RFQ is sent
	s.Record(rfq, Sent)

	// THEN the demand entry is replaced but the origin remains available
	assert.Empty(t, s.Query(d.DemandID, KindInternalDemand))
	assert.Same(t, d, s.Demand(d.DemandID))
	assert.Equal(t, 5.0, s.Negotiating(f.widget))

	// WHEN a quote arrives and an order is sent
	q := &Quote{MessageHeader: f.seller.NewHeader(f.buyer, d.DemandID), RFQ: rfq, ProposedDeliveryDate: Day}
	s.Record(q, Received)
	assert.Empty(t, s.Query(d.DemandID, KindRequestForQuote))
	s.Record(&QuoteBasedOrder{MessageHeader: f.buyer.NewHeader(f.seller, d.DemandID), Quote: q}, Sent)

	// THEN only the order remains and the amount is no longer under negotiation
	chain := s.Chain(d.DemandID)
	require.Len(t, chain, 1)
	assert.Equal(t, KindQuoteBasedOrder, chain[0].Kind())
	assert.True(t, s.Ordered(d.DemandID))
	assert.Equal(t, 0.0, s.Negotiating(f.widget))
	assert.Equal(t, 1, f.loop.Pending(), "evicted entries cancel their timers")
}

func TestMessageStore_RemoveCancelsTimer(t *testing.T) {
	f := newStoreFixture(t)
	s := f.buyer.Store()
	d := NewInternalDemand(f.buyer, f.widget, 5, 0, Day)
	s.Record(d, Received)
	require.Equal(t, 1, f.loop.Pending())

	assert.False(t, s.Remove(d, Sent), "direction must match")
	assert.True(t, s.Remove(d, Received))
	assert.False(t, s.Remove(d, Received))
	assert.Equal(t, 0, f.loop.Pending())
	assert.Equal(t, 0, s.Len())

	// A timer that fires for a removed entry does nothing.
	f.loop.Run(2 * Day)
	assert.Equal(t, 0, s.Len())
}

func TestMessageStore_TimeoutFiringTwiceIsHarmless(t *testing.T) {
	// GIVEN a confirmed chain whose demand entry has a timeout armed for one day
	f := newStoreFixture(t)
	collector, err := metrics.NewCollector(nil)
	require.NoError(t, err)
	f.buyer.Model().Metrics = collector
	s := f.buyer.Store()
	d := NewInternalDemand(f.buyer, f.widget, 5, 0, Day)
	s.Record(d, Received)
	order := &StandaloneOrder{MessageHeader: f.buyer.NewHeader(f.seller, 999)}
	s.Record(&OrderConfirmation{MessageHeader: f.seller.NewHeader(f.buyer, d.DemandID), Order: order, Accepted: true}, Received)
	entry := s.chains[d.DemandID][0]
	require.Same(t, Message(d), entry.msg)

	// WHEN the same entry expires two more times after its own timer
	f.loop.ScheduleAt(Day, "duplicate timeout", func() { s.expire(entry) })
	f.loop.ScheduleAt(2*Day, "late timeout", func() { s.expire(entry) })
	f.loop.Run(3 * Day)

	// THEN the entry was removed and counted once and the confirmation is untouched
	assert.Equal(t, 1, s.Len())
	assert.Empty(t, s.Query(d.DemandID, KindInternalDemand))
	assert.True(t, s.Has(d.DemandID, KindOrderConfirmation, Received))
	assert.Same(t, d, s.Demand(d.DemandID))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Timeouts.WithLabelValues(KindInternalDemand.String())))

	// WHEN the chain is removed and the entry expires once more
	assert.Equal(t, 1, s.RemoveChain(d.DemandID))
	s.expire(entry)

	// THEN the store stays empty
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Chains())
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Timeouts.WithLabelValues(KindInternalDemand.String())))
}

func TestMessageStore_RemoveChain(t *testing.T) {
	f := newStoreFixture(t)
	s := f.buyer.Store()
	d := NewInternalDemand(f.buyer, f.widget, 5, 0, Day)
	s.Record(d, Received)
	s.Record(f.rfq(d, Hour), Sent)
	s.Record(&Payment{MessageHeader: f.buyer.NewHeader(f.seller, d.DemandID)}, Sent)

	assert.Equal(t, 2, s.RemoveChain(d.DemandID))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, f.loop.Pending())
	assert.Nil(t, s.Demand(d.DemandID))
	assert.Equal(t, 0, s.RemoveChain(d.DemandID))
}

func TestMessageStore_UnknownKindIgnored(t *testing.T) {
	f := newStoreFixture(t)
	s := f.buyer.Store()
	s.Record(&bogus{MessageHeader: f.seller.NewHeader(f.buyer, 1)}, Received)
	s.Record(nil, Received)
	assert.Equal(t, 0, s.Len())
}

func TestMessageStore_QueryByDirection(t *testing.T) {
	f := newStoreFixture(t)
	s := f.buyer.Store()
	sent := &Payment{MessageHeader: f.buyer.NewHeader(f.seller, 7)}
	received := &Payment{MessageHeader: f.seller.NewHeader(f.buyer, 7)}
	s.Record(sent, Sent)
	s.Record(received, Received)

	assert.Len(t, s.Query(7, KindPayment), 2)
	assert.Equal(t, []Message{sent}, s.QueryDirection(7, KindPayment, Sent))
	assert.True(t, s.Has(7, KindPayment, Received))
	assert.False(t, s.Has(7, KindBill, Received))
	assert.Equal(t, []uint64{7}, s.Chains())
}
