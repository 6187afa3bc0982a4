package codec

import (
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradesim/tradesim/sim"
	"github.com/tradesim/tradesim/sim/internal/testutil"
	"github.com/tradesim/tradesim/sim/policy"
)

// tradeJournal runs one RFQ trade and returns the sent messages.
// A positive transit ships the goods by a truck that takes that long.
func tradeJournal(t *testing.T, transit int64) (*testutil.World, []sim.Message) {
	t.Helper()
	w := testutil.NewWorld(t)
	w.Model.EnableJournal()
	if transit > 0 {
		w.Model.Transport = &sim.Transport{
			Options: &sim.ModeTransportProvider{Modes: []sim.TransportMode{{Name: "truck", FixedDuration: transit}}},
			Choice:  sim.FastestChoice{},
		}
	}
	widget := w.Product("widget", "goods/widget")
	buyer := w.Trader("buyer", 0, 0, 100)
	seller := w.Trader("seller", 0, 0, 0)
	w.Stock(seller, widget, 10)

	suppliers := sim.NewSupplierTable()
	require.NoError(t, suppliers.Add(widget, seller, 1))
	catalog := sim.NewCatalog()
	require.NoError(t, catalog.SetPrice(widget, 1))
	_, err := policy.InstallSeller(seller, policy.SellerConfig{Catalog: catalog})
	require.NoError(t, err)
	_, err = policy.InstallBuyer(buyer, policy.BuyerConfig{Strategy: policy.StrategyRFQ, Suppliers: suppliers, Cutoff: sim.Hour})
	require.NoError(t, err)

	w.Demand(buyer, widget, 5, 0, 3*sim.Day)
	w.RunDays(5)
	return w, w.Model.Journal()
}

func TestEncodeAll_DecodeAll_ReconstructsChain(t *testing.T) {
	// GIVEN the journal of a complete trade
	w, journal := tradeJournal(t, 0)
	require.NotEmpty(t, journal)

	// WHEN it is encoded and decoded against the same model
	data, err := EncodeAll(journal)
	require.NoError(t, err)
	decoded, err := NewContext(w.Model).DecodeAll(data)
	require.NoError(t, err)

	// THEN every message comes back with the same kind, id, chain and live actors
	require.Len(t, decoded, len(journal))
	for i, orig := range journal {
		got := decoded[i]
		assert.Equal(t, orig.Kind(), got.Kind())
		assert.Equal(t, orig.Header().ID, got.Header().ID)
		assert.Equal(t, orig.Header().DemandID, got.Header().DemandID)
		assert.Same(t, orig.Header().Sender, got.Header().Sender)
		assert.Same(t, orig.Header().Receiver, got.Header().Receiver)
		assert.Same(t, sim.ProductOf(orig), sim.ProductOf(got))
	}

	// AND references point at the decoded predecessors
	kinds := make(map[sim.MessageKind]sim.Message)
	for _, m := range decoded {
		kinds[m.Kind()] = m
	}
	q := kinds[sim.KindQuote].(*sim.Quote)
	assert.Same(t, kinds[sim.KindRequestForQuote], sim.Message(q.RFQ))
	p := kinds[sim.KindPayment].(*sim.Payment)
	assert.Same(t, kinds[sim.KindBill], sim.Message(p.Bill))
	b := kinds[sim.KindBill].(*sim.Bill)
	assert.Same(t, kinds[sim.KindQuoteBasedOrder], sim.Message(b.Order))
}

func TestDecodeAll_ShipmentInTransit_BillResolvesShipment(t *testing.T) {
	// GIVEN a trade whose goods spend a day on a truck, so the bill arrives before the shipment
	w, journal := tradeJournal(t, sim.Day)
	shipped := -1
	for i, m := range journal {
		if m.Kind() == sim.KindShipment {
			shipped = i
		}
	}
	require.GreaterOrEqual(t, shipped, 0)
	require.True(t, journal[shipped].(*sim.Shipment).Delivered)

	// WHEN the journal is encoded and decoded
	data, err := EncodeAll(journal)
	require.NoError(t, err)
	decoded, err := NewContext(w.Model).DecodeAll(data)
	require.NoError(t, err)

	// THEN the bill and payment reference the decoded shipment and bill
	require.Len(t, decoded, len(journal))
	var b *sim.Bill
	var p *sim.Payment
	for _, m := range decoded {
		switch m := m.(type) {
		case *sim.Bill:
			b = m
		case *sim.Payment:
			p = m
		}
	}
	require.NotNil(t, b)
	require.NotNil(t, p)
	assert.Same(t, decoded[shipped], sim.Message(b.Shipment))
	assert.Same(t, b, p.Bill)
}

func TestEncode_EnvelopeCarriesKindName(t *testing.T) {
	_, journal := tradeJournal(t, 0)
	data, err := Encode(journal[0])
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "internal-demand", env.Kind)
	assert.Contains(t, string(env.Payload), `"product":"widget"`)
}

func TestDecode_UnknownKind(t *testing.T) {
	w := testutil.NewWorld(t)
	_, err := NewContext(w.Model).Decode([]byte(`{"kind":"telegram","payload":{}}`))
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestDecode_UnresolvedReferences(t *testing.T) {
	w := testutil.NewWorld(t)
	w.Product("widget", "goods/widget")
	buyer := w.Actor("buyer", 0, 0)
	ctx := NewContext(w.Model)

	tests := []struct {
		name    string
		payload string
	}{
		{"unknown actor", `{"kind":"internal-demand","payload":{"id":1,"sender":"nobody","receiver":"nobody","product":"widget"}}`},
		{"unknown product", `{"kind":"internal-demand","payload":{"id":1,"sender":"` + buyer.ID + `","receiver":"` + buyer.ID + `","product":"gizmo"}}`},
		{"unknown rfq", `{"kind":"quote","payload":{"id":2,"sender":"` + buyer.ID + `","receiver":"` + buyer.ID + `","rfq":99}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ctx.Decode([]byte(tt.payload))
			assert.True(t, errors.Is(err, ErrUnresolvedReference), "got %v", err)
		})
	}
}

func TestDecode_OrderReferenceMustBeAnOrder(t *testing.T) {
	w := testutil.NewWorld(t)
	widget := w.Product("widget", "goods/widget")
	buyer := w.Actor("buyer", 0, 0)
	ctx := NewContext(w.Model)
	ctx.Remember(sim.NewInternalDemand(buyer, widget, 1, 0, 0))

	_, err := ctx.Decode([]byte(`{"kind":"order-confirmation","payload":{"id":5,"order":1}}`))
	assert.True(t, errors.Is(err, ErrUnresolvedReference))
}

func TestDecode_MessageReferenceMustMatchKind(t *testing.T) {
	// GIVEN a context that only knows an internal demand with id 1
	w := testutil.NewWorld(t)
	widget := w.Product("widget", "goods/widget")
	buyer := w.Actor("buyer", 0, 0)
	d := sim.NewInternalDemand(buyer, widget, 1, 0, 0)
	ref := strconv.FormatUint(d.ID, 10)

	tests := []struct {
		name    string
		payload string
	}{
		{"answer to a non-request", `{"kind":"yellow-page-answer","payload":{"id":90,"request":` + ref + `}}`},
		{"quote for a non-rfq", `{"kind":"quote","payload":{"id":91,"rfq":` + ref + `}}`},
		{"order on a non-quote", `{"kind":"quote-based-order","payload":{"id":92,"quote":` + ref + `}}`},
		{"bill for a non-shipment", `{"kind":"bill","payload":{"id":93,"shipment":` + ref + `}}`},
		{"payment of a non-bill", `{"kind":"payment","payload":{"id":94,"bill":` + ref + `}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewContext(w.Model)
			ctx.Remember(d)

			// WHEN the referencing message is decoded
			_, err := ctx.Decode([]byte(tt.payload))

			// THEN the kind mismatch is reported as an unresolved reference
			assert.True(t, errors.Is(err, ErrUnresolvedReference), "got %v", err)
		})
	}
}
