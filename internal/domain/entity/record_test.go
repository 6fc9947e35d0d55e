package entity_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Eventos-api/internal/domain"
	"github.com/jhoicas/Eventos-api/internal/domain/entity"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// ──────────────────────────────────────────────────────────────────────────────
// f(registro) -> efectos
// ──────────────────────────────────────────────────────────────────────────────

func TestStockMovement_Effects(t *testing.T) {
	in := &entity.StockMovement{RecordMeta: entity.RecordMeta{ID: "m1"}, MovementType: entity.MovementTypeEntrada, ProductID: "p1", Quantity: d(5)}
	effs := in.Effects()
	require.Len(t, effs, 1)
	assert.Equal(t, entity.OpAdd, effs[0].Op)
	assert.True(t, d(5).Equal(effs[0].Amount))
	assert.Equal(t, "m1", effs[0].RecordID)

	out := &entity.StockMovement{MovementType: entity.MovementTypeSaida, ProductID: "p1", Quantity: d(5)}
	assert.True(t, d(-5).Equal(out.Effects()[0].Amount))

	tr := &entity.StockMovement{MovementType: entity.MovementTypeTransferencia, ProductID: "p1", Quantity: d(1), FromLocation: "a", ToLocation: "b"}
	effs = tr.Effects()
	require.Len(t, effs, 1)
	assert.Equal(t, entity.OpPoint, effs[0].Op)
	assert.Equal(t, entity.FieldStockLocation, effs[0].Key.Field)
	assert.Equal(t, "b", effs[0].Ref)
}

func TestEventConsumption_Effects(t *testing.T) {
	c := &entity.EventConsumption{EventID: "e1", ProductID: "p1", Quantity: d(3), UnitCost: decimal.RequireFromString("2.5")}
	effs := c.Effects()
	require.Len(t, effs, 2)
	assert.Equal(t, entity.AggregateKey{ID: "e1", Field: entity.FieldEventCostTotal}, effs[0].Key)
	assert.True(t, decimal.RequireFromString("7.5").Equal(effs[0].Amount))
	assert.Equal(t, entity.AggregateKey{ID: "p1", Field: entity.FieldStockQuantity}, effs[1].Key)
	assert.True(t, d(-3).Equal(effs[1].Amount))
}

func TestFinancialEntry_Effects(t *testing.T) {
	entry := &entity.FinancialEntry{CategoryKind: entity.CategoryExpense, CashAccountID: "c1", EventID: "e1", Value: d(40), Status: entity.EntryStatusPending}
	effs := entry.Effects()
	require.Len(t, effs, 1, "pendiente: solo el total del evento")
	assert.Equal(t, entity.FieldEventCostTotal, effs[0].Key.Field)

	entry.Status = entity.EntryStatusPaid
	effs = entry.Effects()
	require.Len(t, effs, 2)
	assert.Equal(t, entity.FieldCashBalance, effs[1].Key.Field)
	assert.True(t, d(-40).Equal(effs[1].Amount))

	entry.Status = entity.EntryStatusCancelled
	assert.Empty(t, entry.Effects())
}

func TestVehicleTrip_Effects(t *testing.T) {
	trip := &entity.VehicleTrip{VehicleID: "v1", EmployeeID: "f1", DepartedAt: time.Now(), DepartureOdometer: 100}
	assert.Empty(t, trip.Effects(), "sin llegada no hay efecto")

	arrival := int64(180)
	trip.ArrivalOdometer = &arrival
	effs := trip.Effects()
	require.Len(t, effs, 1)
	assert.Equal(t, entity.OpSet, effs[0].Op)
	assert.True(t, d(180).Equal(effs[0].Amount))
	require.NotNil(t, effs[0].Floor)
	assert.True(t, d(100).Equal(*effs[0].Floor))
}

// ──────────────────────────────────────────────────────────────────────────────
// Correcciones
// ──────────────────────────────────────────────────────────────────────────────

func TestCheckCorrection_CamposInmutables(t *testing.T) {
	prior := &entity.EventAllocation{EventID: "e1", EmployeeID: "f1", Value: d(200)}

	next := prior.Clone().(*entity.EventAllocation)
	next.Value = d(150)
	next.Paid = true
	assert.NoError(t, next.CheckCorrection(prior))

	next.EventID = "e2"
	assert.ErrorIs(t, next.CheckCorrection(prior), domain.ErrInvalidInput)

	other := &entity.StockMovement{MovementType: entity.MovementTypeEntrada, ProductID: "p1", Quantity: d(1)}
	assert.ErrorIs(t, other.CheckCorrection(prior), domain.ErrInvalidInput, "no se cambia el tipo de registro")
}

func TestVehicleTrip_NoBorraLlegada(t *testing.T) {
	arrival := int64(150)
	prior := &entity.VehicleTrip{VehicleID: "v1", EmployeeID: "f1", DepartureOdometer: 100, ArrivalOdometer: &arrival}
	next := prior.Clone().(*entity.VehicleTrip)
	next.ArrivalOdometer = nil
	assert.ErrorIs(t, next.CheckCorrection(prior), domain.ErrInvalidInput)

	*prior.ArrivalOdometer = 160
	assert.Nil(t, next.ArrivalOdometer, "Clone no comparte punteros")
}

// ──────────────────────────────────────────────────────────────────────────────
// Persistencia del payload
// ──────────────────────────────────────────────────────────────────────────────

func TestDecodeRecord_ReconstruyeTipo(t *testing.T) {
	paid := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	entry := &entity.FinancialEntry{
		RecordMeta:    entity.RecordMeta{ID: "f1", Version: 3},
		CategoryKind:  entity.CategoryRevenue,
		CashAccountID: "c1",
		Value:         decimal.RequireFromString("1000.50"),
		Status:        entity.EntryStatusPaid,
		PaymentDate:   &paid,
	}
	payload, err := entity.EncodeRecord(entry)
	require.NoError(t, err)

	rec, err := entity.DecodeRecord(entity.RecordFinancialEntry, payload)
	require.NoError(t, err)
	got, ok := rec.(*entity.FinancialEntry)
	require.True(t, ok)
	assert.Equal(t, int64(3), got.Version)
	assert.True(t, entry.Value.Equal(got.Value))
	require.NotNil(t, got.PaymentDate)
	assert.True(t, paid.Equal(*got.PaymentDate))
}

func TestNewRecord_TipoDesconocido(t *testing.T) {
	_, err := entity.NewRecord(entity.RecordType("nota_fiscal"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewAggregates_UnaFilaPorCampo(t *testing.T) {
	now := time.Now()
	rows := entity.NewAggregates(entity.AggregateProduct, "p1", entity.Opening{
		Values: map[entity.Field]decimal.Decimal{entity.FieldStockQuantity: d(7)},
		Refs:   map[entity.Field]string{entity.FieldStockLocation: "bodega-a"},
	}, now)
	require.Len(t, rows, 2)
	assert.True(t, d(7).Equal(rows[0].Value))
	assert.Equal(t, "bodega-a", rows[1].Ref)
	assert.Equal(t, int64(0), rows[0].Version)
}
