package sim

import "fmt"

// SupplierTerms is a pre-negotiated supplier and unit price for a product.
type SupplierTerms struct {
	Supplier  *Actor
	UnitPrice float64
}

// SupplierTable is the buying side's list of known suppliers per product.
type SupplierTable struct {
	suppliers map[string][]SupplierTerms
}

// NewSupplierTable creates an empty SupplierTable.
func NewSupplierTable() *SupplierTable {
	return &SupplierTable{suppliers: make(map[string][]SupplierTerms)}
}

// Add registers a supplier for a product. A supplier may be listed once per product.
func (t *SupplierTable) Add(p *Product, supplier *Actor, unitPrice float64) error {
	if p == nil || supplier == nil {
		return fmt.Errorf("supplier table: nil product or supplier")
	}
	if unitPrice < 0 {
		return fmt.Errorf("supplier table %s/%s: %w", p.ID, supplier.Name, ErrNegativeAmount)
	}
	for _, s := range t.suppliers[p.ID] {
		if s.Supplier == supplier {
			return fmt.Errorf("supplier %s already listed for %s", supplier.Name, p.ID)
		}
	}
	t.suppliers[p.ID] = append(t.suppliers[p.ID], SupplierTerms{Supplier: supplier, UnitPrice: unitPrice})
	return nil
}

// Suppliers returns the suppliers for p in registration order.
func (t *SupplierTable) Suppliers(p *Product) []SupplierTerms {
	if p == nil {
		return nil
	}
	return append([]SupplierTerms(nil), t.suppliers[p.ID]...)
}

// Unique returns the supplier for p when exactly one is configured.
func (t *SupplierTable) Unique(p *Product) (SupplierTerms, bool) {
	s := t.Suppliers(p)
	if len(s) != 1 {
		return SupplierTerms{}, false
	}
	return s[0], true
}

// Catalog is the selling side's price list.
type Catalog struct {
	prices map[string]float64
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{prices: make(map[string]float64)}
}

// SetPrice sets the unit price of p.
func (c *Catalog) SetPrice(p *Product, unitPrice float64) error {
	if p == nil {
		return fmt.Errorf("catalog: nil product")
	}
	if unitPrice < 0 {
		return fmt.Errorf("catalog %s: %w", p.ID, ErrNegativeAmount)
	}
	c.prices[p.ID] = unitPrice
	return nil
}

// Price returns the unit price of p and whether it is sold at all.
func (c *Catalog) Price(p *Product) (float64, bool) {
	if p == nil {
		return 0, false
	}
	price, ok := c.prices[p.ID]
	return price, ok
}
