package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventAllocation costo de un funcionario alocado a un evento.
type EventAllocation struct {
	RecordMeta
	EventID     string          `json:"event_id"`
	EmployeeID  string          `json:"employee_id"`
	Value       decimal.Decimal `json:"value"`
	Paid        bool            `json:"paid"`
	PaymentDate *time.Time      `json:"payment_date,omitempty"`
}

func (a *EventAllocation) Type() RecordType { return RecordEventAllocation }

func (a *EventAllocation) Validate() error {
	if err := requireRef("event_id", a.EventID); err != nil {
		return err
	}
	if err := requireRef("employee_id", a.EmployeeID); err != nil {
		return err
	}
	return requireNonNegative("value", a.Value)
}

func (a *EventAllocation) Effects() []Effect {
	return []Effect{add(a.EventID, FieldEventCostTotal, a.Value, a.ID)}
}

func (a *EventAllocation) CheckCorrection(prior Record) error {
	if err := sameType(prior, RecordEventAllocation); err != nil {
		return err
	}
	p := prior.(*EventAllocation)
	switch {
	case p.EventID != a.EventID:
		return immutable("event_id")
	case p.EmployeeID != a.EmployeeID:
		return immutable("employee_id")
	}
	return nil
}

func (a *EventAllocation) AggregateIDs() []string { return nonEmpty(a.EventID) }

func (a *EventAllocation) Clone() Record {
	c := *a
	return &c
}

// EventConsumption producto del estoque consumido en un evento.
// Suma costo unitario × cantidad al costo del evento y descuenta la cantidad del estoque.
type EventConsumption struct {
	RecordMeta
	EventID   string          `json:"event_id"`
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

func (c *EventConsumption) Type() RecordType { return RecordEventConsumption }

func (c *EventConsumption) Validate() error {
	if err := requireRef("event_id", c.EventID); err != nil {
		return err
	}
	if err := requireRef("product_id", c.ProductID); err != nil {
		return err
	}
	if err := requirePositive("quantity", c.Quantity); err != nil {
		return err
	}
	return requireNonNegative("unit_cost", c.UnitCost)
}

// TotalCost costo total del consumo.
func (c *EventConsumption) TotalCost() decimal.Decimal { return c.UnitCost.Mul(c.Quantity) }

func (c *EventConsumption) Effects() []Effect {
	return []Effect{
		add(c.EventID, FieldEventCostTotal, c.TotalCost(), c.ID),
		add(c.ProductID, FieldStockQuantity, c.Quantity.Neg(), c.ID),
	}
}

func (c *EventConsumption) CheckCorrection(prior Record) error {
	if err := sameType(prior, RecordEventConsumption); err != nil {
		return err
	}
	p := prior.(*EventConsumption)
	switch {
	case p.EventID != c.EventID:
		return immutable("event_id")
	case p.ProductID != c.ProductID:
		return immutable("product_id")
	}
	return nil
}

func (c *EventConsumption) AggregateIDs() []string { return nonEmpty(c.EventID, c.ProductID) }

func (c *EventConsumption) Clone() Record {
	cp := *c
	return &cp
}
