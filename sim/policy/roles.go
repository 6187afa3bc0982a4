package policy

import (
	"fmt"

	"github.com/tradesim/tradesim/sim"
)

// Role names used by the Install helpers.
const (
	RoleBuyer    = "buyer"
	RoleSeller   = "seller"
	RoleProducer = "producer"
)

// Buying strategies.
const (
	StrategyDirect     = "direct"
	StrategyRFQ        = "rfq"
	StrategyYellowPage = "yellow-page"
)

// ValidBuyingStrategies is the set of recognized buying strategy names.
var ValidBuyingStrategies = map[string]bool{StrategyDirect: true, StrategyRFQ: true, StrategyYellowPage: true}

// BuyerConfig parameterizes InstallBuyer.
type BuyerConfig struct {
	Strategy  string
	Suppliers *sim.SupplierTable
	// Directory, MaxDistance and MaxResults apply to the yellow-page strategy.
	Directory   *sim.Actor
	MaxDistance float64
	MaxResults  int
	// Cutoff is how long quotes are collected after the RFQs go out.
	Cutoff           int64
	Payment          PaymentTiming
	LateDeliveryFine *Fine
	// Products restricts the role to these products; empty means all.
	Products []*sim.Product
}

// SellerConfig parameterizes InstallSeller.
type SellerConfig struct {
	Catalog         *sim.Catalog
	Handling        int64
	PaymentTerm     int64
	LatePaymentFine *Fine
}

// InstallBuyer adds a buyer role running the configured strategy plus the
// confirmation, goods receipt and payment rules.
func InstallBuyer(a *sim.Actor, cfg BuyerConfig) (*sim.Role, error) {
	var policies []sim.Policy
	switch cfg.Strategy {
	case StrategyDirect:
		p, err := NewDemandToOrder(a, cfg.Suppliers)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	case StrategyRFQ:
		p, err := NewDemandToRFQ(a, cfg.Suppliers, cfg.Cutoff)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p, NewQuoteToOrder(a))
	case StrategyYellowPage:
		p, err := NewDemandToYellowPage(a, cfg.Directory, cfg.MaxDistance, cfg.MaxResults)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p, NewAnswerToRFQ(a, cfg.Cutoff), NewQuoteToOrder(a))
	default:
		return nil, fmt.Errorf("buyer %s: unknown strategy %q", a.Name, cfg.Strategy)
	}
	policies = append(policies,
		NewConfirmationHandler(a),
		NewShipmentReceiver(a, cfg.LateDeliveryFine),
		NewBillToPayment(a, cfg.Payment),
	)
	return install(a, RoleBuyer, policies, cfg.Products)
}

// InstallSeller adds a seller role: quoting, order fulfilment for both
// order kinds and payment receipt.
func InstallSeller(a *sim.Actor, cfg SellerConfig) (*sim.Role, error) {
	quote, err := NewRFQToQuote(a, cfg.Catalog, cfg.Handling)
	if err != nil {
		return nil, err
	}
	policies := []sim.Policy{quote}
	for _, kind := range []sim.MessageKind{sim.KindQuoteBasedOrder, sim.KindStandaloneOrder} {
		p, err := NewOrderToShipment(a, kind, cfg.Catalog, cfg.Handling, cfg.PaymentTerm)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	policies = append(policies, NewPaymentReceiver(a, cfg.LatePaymentFine))
	return install(a, RoleSeller, policies, nil)
}

// InstallProducer adds a producer role executing ProductionOrders.
func InstallProducer(a *sim.Actor, recipes ...Recipe) (*sim.Role, error) {
	p, err := NewProduction(a, recipes...)
	if err != nil {
		return nil, err
	}
	return install(a, RoleProducer, []sim.Policy{p}, nil)
}

type restrictable interface {
	RestrictProducts(products ...*sim.Product)
}

func install(a *sim.Actor, name string, policies []sim.Policy, products []*sim.Product) (*sim.Role, error) {
	role, err := a.AddRole(name)
	if err != nil {
		return nil, err
	}
	for _, p := range policies {
		if r, ok := p.(restrictable); ok && len(products) > 0 {
			r.RestrictProducts(products...)
		}
		if err := role.Register(p); err != nil {
			return nil, err
		}
	}
	return role, nil
}
