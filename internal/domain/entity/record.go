package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Eventos-api/internal/domain"
)

// RecordType familia de registro transaccional.
type RecordType string

const (
	RecordStockMovement    RecordType = "stock_movement"
	RecordEventAllocation  RecordType = "event_allocation"
	RecordEventConsumption RecordType = "event_consumption"
	RecordFinancialEntry   RecordType = "financial_entry"
	RecordVehicleTrip      RecordType = "vehicle_trip"
)

// RecordMeta campos comunes a todo registro transaccional.
// Version empieza en 1 al crear y se incrementa en cada corrección confirmada.
type RecordMeta struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Meta devuelve los metadatos (promovido a cada registro por embedding).
func (m *RecordMeta) Meta() *RecordMeta { return m }

// Record hecho de negocio que alimenta uno o más agregados.
type Record interface {
	Meta() *RecordMeta
	Type() RecordType
	// Validate rechaza entrada mal formada con un ValidationError.
	Validate() error
	// Effects implementa f(registro) -> [(aggregateId, field, amount)].
	Effects() []Effect
	// CheckCorrection verifica que frente a prior solo cambien campos corregibles.
	CheckCorrection(prior Record) error
	// AggregateIDs agregados a los que el registro hace referencia.
	AggregateIDs() []string
	Clone() Record
}

// NewRecord instancia un registro vacío del tipo indicado.
func NewRecord(t RecordType) (Record, error) {
	switch t {
	case RecordStockMovement:
		return &StockMovement{}, nil
	case RecordEventAllocation:
		return &EventAllocation{}, nil
	case RecordEventConsumption:
		return &EventConsumption{}, nil
	case RecordFinancialEntry:
		return &FinancialEntry{}, nil
	case RecordVehicleTrip:
		return &VehicleTrip{}, nil
	}
	return nil, domain.NewValidationError("type", fmt.Sprintf("tipo de registro desconocido %q", t))
}

// DecodeRecord reconstruye un registro desde su payload JSON persistido.
func DecodeRecord(t RecordType, payload []byte) (Record, error) {
	rec, err := NewRecord(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return rec, nil
}

// EncodeRecord serializa el registro para persistirlo.
func EncodeRecord(rec Record) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Type(), err)
	}
	return b, nil
}

func immutable(field string) error {
	return domain.NewValidationError(field, "campo no corregible después de confirmado")
}

func requirePositive(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return domain.NewValidationError(field, "debe ser mayor que cero")
	}
	return nil
}

func requireNonNegative(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return domain.NewValidationError(field, "no puede ser negativo")
	}
	return nil
}

func requireRef(field, v string) error {
	if v == "" {
		return domain.NewValidationError(field, "requerido")
	}
	return nil
}

func sameType(prior Record, t RecordType) error {
	if prior.Type() != t {
		return immutable("type")
	}
	return nil
}

func nonEmpty(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
