package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// RegisterAggregateRequest body para POST /api/aggregates.
type RegisterAggregateRequest struct {
	Kind   string                     `json:"kind"` // product | event | cash_account | vehicle
	ID     string                     `json:"id"`
	Values map[string]decimal.Decimal `json:"values,omitempty"` // apertura: stock inicial, saldo, odómetro
	Refs   map[string]string          `json:"refs,omitempty"`   // apertura: ubicación del producto
}

// AggregateResponse valor de un campo derivado.
type AggregateResponse struct {
	ID        string          `json:"id"`
	Field     string          `json:"field"`
	Kind      string          `json:"kind"`
	Value     decimal.Decimal `json:"value"`
	Ref       string          `json:"ref,omitempty"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RecordRequest body para POST /api/records (Type obligatorio) y PUT /api/records/:id.
// Campos nil = no informados; en una corrección se conserva el valor vigente.
type RecordRequest struct {
	Type    string `json:"type,omitempty"`
	ID      string `json:"id,omitempty"`      // clave de idempotencia opcional al crear
	Version *int64 `json:"version,omitempty"` // versión objetivo opcional al corregir

	MovementType      *string          `json:"movement_type,omitempty"`
	ProductID         *string          `json:"product_id,omitempty"`
	FromLocation      *string          `json:"from_location,omitempty"`
	ToLocation        *string          `json:"to_location,omitempty"`
	EventID           *string          `json:"event_id,omitempty"`
	EmployeeID        *string          `json:"employee_id,omitempty"`
	CategoryKind      *string          `json:"category_kind,omitempty"`
	CategoryID        *string          `json:"category_id,omitempty"`
	CashAccountID     *string          `json:"cash_account_id,omitempty"`
	ContractID        *string          `json:"contract_id,omitempty"`
	VehicleID         *string          `json:"vehicle_id,omitempty"`
	Status            *string          `json:"status,omitempty"`
	Notes             *string          `json:"notes,omitempty"`
	Quantity          *decimal.Decimal `json:"quantity,omitempty"`
	Value             *decimal.Decimal `json:"value,omitempty"`
	UnitCost          *decimal.Decimal `json:"unit_cost,omitempty"`
	Paid              *bool            `json:"paid,omitempty"`
	PaymentDate       *time.Time       `json:"payment_date,omitempty"`
	DueDate           *time.Time       `json:"due_date,omitempty"`
	DepartedAt        *time.Time       `json:"departed_at,omitempty"`
	DepartureOdometer *int64           `json:"departure_odometer,omitempty"`
	ArrivedAt         *time.Time       `json:"arrived_at,omitempty"`
	ArrivalOdometer   *int64           `json:"arrival_odometer,omitempty"`
}

// SubmitResponse resultado de crear o corregir un registro.
type SubmitResponse struct {
	RecordID   string              `json:"record_id"`
	Version    int64               `json:"version"`
	Replayed   bool                `json:"replayed"`
	Aggregates []AggregateResponse `json:"aggregates"`
}

// RecordResponse registro con su tipo (el cuerpo depende del tipo).
type RecordResponse struct {
	Type   string `json:"type"`
	Record any    `json:"record"`
}

// RecordListResponse registros que alimentan un agregado.
type RecordListResponse struct {
	AggregateID string           `json:"aggregate_id"`
	Records     []RecordResponse `json:"records"`
	Page        PageResponse     `json:"page"`
}

// EventTotalsResponse totales corrientes de un evento.
type EventTotalsResponse struct {
	EventID string          `json:"event_id"`
	Revenue decimal.Decimal `json:"revenue"`
	Cost    decimal.Decimal `json:"cost"`
	Profit  decimal.Decimal `json:"profit"`
}

// InvariantViolationDetails detalle de una transición rechazada por el guard.
type InvariantViolationDetails struct {
	AggregateID string          `json:"aggregate_id"`
	Field       string          `json:"field"`
	Current     decimal.Decimal `json:"current"`
	Attempted   decimal.Decimal `json:"attempted"`
	Constraint  string          `json:"constraint"`
}
