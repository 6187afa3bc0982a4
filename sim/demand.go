package sim

// NewInternalDemand creates a self-addressed InternalDemand that opens a new demand chain.
func NewInternalDemand(a *Actor, p *Product, amount float64, earliest, latest int64) *InternalDemand {
	id := a.model.NextMessageID()
	return &InternalDemand{
		MessageHeader: MessageHeader{
			ID:        id,
			Sender:    a,
			Receiver:  a,
			Timestamp: a.Now(),
			DemandID:  id,
		},
		Product:              p,
		Amount:               amount,
		EarliestDeliveryDate: earliest,
		LatestDeliveryDate:   latest,
	}
}

// NewProductionOrder creates a self-addressed ProductionOrder; like an
// InternalDemand it opens its own chain.
func NewProductionOrder(a *Actor, p *Product, amount float64, deliveryDate int64) *ProductionOrder {
	id := a.model.NextMessageID()
	return &ProductionOrder{
		MessageHeader: MessageHeader{
			ID:        id,
			Sender:    a,
			Receiver:  a,
			Timestamp: a.Now(),
			DemandID:  id,
		},
		Product:      p,
		Amount:       amount,
		DeliveryDate: deliveryDate,
	}
}
