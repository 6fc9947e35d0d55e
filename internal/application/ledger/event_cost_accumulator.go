package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Eventos-api/internal/domain"
	"github.com/jhoicas/Eventos-api/internal/domain/entity"
)

// EventTotals totales corrientes de un evento. Profit es el lucro estimado (receita − custo).
type EventTotals struct {
	EventID string
	Revenue decimal.Decimal
	Cost    decimal.Decimal
	Profit  decimal.Decimal
}

// EventCostAccumulator compone alocaciones, consumos y lanzamientos financieros sobre los dos totales
// del evento. No recalcula sumas recorriendo registros: todo pasa por el protocolo de deltas del motor.
type EventCostAccumulator struct {
	engine *Engine
}

// NewEventCostAccumulator construye el acumulador sobre el motor.
func NewEventCostAccumulator(engine *Engine) *EventCostAccumulator {
	return &EventCostAccumulator{engine: engine}
}

// Allocate registra el costo de un funcionario en el evento.
func (a *EventCostAccumulator) Allocate(ctx context.Context, eventID, employeeID string, value decimal.Decimal, createdBy string) (string, error) {
	rec := &entity.EventAllocation{EventID: eventID, EmployeeID: employeeID, Value: value}
	rec.CreatedBy = createdBy
	res, err := a.engine.Submit(ctx, rec, true)
	if err != nil {
		return "", err
	}
	return res.RecordID, nil
}

// CorrectAllocation corrige el valor de una alocación ya confirmada.
func (a *EventCostAccumulator) CorrectAllocation(ctx context.Context, allocationID string, value decimal.Decimal) error {
	_, err := a.engine.UpdateRecord(ctx, allocationID, UpdateRecordInput{Fields: RecordFields{Value: &value}})
	return err
}

// Consume descuenta producto del estoque y suma su costo al evento (ambos o ninguno).
func (a *EventCostAccumulator) Consume(ctx context.Context, eventID, productID string, quantity, unitCost decimal.Decimal, createdBy string) (string, error) {
	rec := &entity.EventConsumption{EventID: eventID, ProductID: productID, Quantity: quantity, UnitCost: unitCost}
	rec.CreatedBy = createdBy
	res, err := a.engine.Submit(ctx, rec, true)
	if err != nil {
		return "", err
	}
	return res.RecordID, nil
}

// PostEntry registra un lanzamiento financiero vinculado (o no) al evento.
func (a *EventCostAccumulator) PostEntry(ctx context.Context, entry *entity.FinancialEntry) (string, error) {
	if entry.Status == "" {
		entry.Status = entity.EntryStatusPending
	}
	res, err := a.engine.Submit(ctx, entry, true)
	if err != nil {
		return "", err
	}
	return res.RecordID, nil
}

// Totals lee los totales confirmados del evento en una sola lectura.
func (a *EventCostAccumulator) Totals(ctx context.Context, eventID string) (EventTotals, error) {
	aggs, err := a.engine.AggregateFields(ctx, eventID)
	if err != nil {
		return EventTotals{}, err
	}
	t := EventTotals{EventID: eventID, Revenue: decimal.Zero, Cost: decimal.Zero}
	found := false
	for _, agg := range aggs {
		switch agg.Field {
		case entity.FieldEventRevenueTotal:
			t.Revenue = agg.Value
			found = true
		case entity.FieldEventCostTotal:
			t.Cost = agg.Value
			found = true
		}
	}
	if !found {
		return EventTotals{}, domain.ErrNotFound
	}
	t.Profit = t.Revenue.Sub(t.Cost)
	return t, nil
}
