package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// AggregateKind tipo de entidad que expone totales derivados.
type AggregateKind string

const (
	AggregateProduct     AggregateKind = "product"
	AggregateEvent       AggregateKind = "event"
	AggregateCashAccount AggregateKind = "cash_account"
	AggregateVehicle     AggregateKind = "vehicle"
)

// Field campo numérico (o puntero) mantenido por el motor de propagación.
type Field string

const (
	FieldStockQuantity     Field = "stock_quantity"      // suma, nunca negativa
	FieldStockLocation     Field = "stock_location"      // puntero, última escritura gana
	FieldEventRevenueTotal Field = "event_revenue_total" // suma
	FieldEventCostTotal    Field = "event_cost_total"    // suma
	FieldCashBalance       Field = "cash_balance"        // suma
	FieldVehicleOdometer   Field = "vehicle_odometer"    // última escritura gana, monótono
)

// Fields devuelve los campos que posee cada tipo de agregado.
func (k AggregateKind) Fields() []Field {
	switch k {
	case AggregateProduct:
		return []Field{FieldStockQuantity, FieldStockLocation}
	case AggregateEvent:
		return []Field{FieldEventRevenueTotal, FieldEventCostTotal}
	case AggregateCashAccount:
		return []Field{FieldCashBalance}
	case AggregateVehicle:
		return []Field{FieldVehicleOdometer}
	}
	return nil
}

// Valid indica si el tipo es conocido.
func (k AggregateKind) Valid() bool { return len(k.Fields()) > 0 }

// Kind devuelve el tipo de agregado dueño del campo.
func (f Field) Kind() AggregateKind {
	switch f {
	case FieldStockQuantity, FieldStockLocation:
		return AggregateProduct
	case FieldEventRevenueTotal, FieldEventCostTotal:
		return AggregateEvent
	case FieldCashBalance:
		return AggregateCashAccount
	case FieldVehicleOdometer:
		return AggregateVehicle
	}
	return ""
}

// Valid indica si el campo es conocido.
func (f Field) Valid() bool { return f.Kind() != "" }

// AggregateKey direcciona un valor almacenado: (aggregateId, field).
type AggregateKey struct {
	ID    string
	Field Field
}

func (k AggregateKey) String() string { return k.ID + "/" + string(k.Field) }

// Less orden total usado para adquirir locks siempre en la misma secuencia.
func (k AggregateKey) Less(o AggregateKey) bool {
	if k.ID != o.ID {
		return k.ID < o.ID
	}
	return k.Field < o.Field
}

// Aggregate valor actual de un campo derivado.
// Version es el contador CAS; LastRecordID/LastRecordVersion marcan la última versión de registro aplicada
// (detección de reenvíos). SetBy es el registro que escribió por última vez un campo "última escritura gana".
type Aggregate struct {
	AggregateKey
	Kind              AggregateKind
	Value             decimal.Decimal
	Ref               string
	Version           int64
	SetBy             string
	LastRecordID      string
	LastRecordVersion int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Clone copia por valor (los stores nunca exponen punteros internos).
func (a *Aggregate) Clone() *Aggregate {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// Opening valores iniciales al registrar un agregado (saldo de apertura, odómetro inicial, ubicación).
type Opening struct {
	Values map[Field]decimal.Decimal
	Refs   map[Field]string
}

// NewAggregates construye las filas de un agregado nuevo, una por campo del tipo.
func NewAggregates(kind AggregateKind, id string, opening Opening, now time.Time) []*Aggregate {
	fields := kind.Fields()
	out := make([]*Aggregate, 0, len(fields))
	for _, f := range fields {
		a := &Aggregate{
			AggregateKey: AggregateKey{ID: id, Field: f},
			Kind:         kind,
			Value:        decimal.Zero,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if v, ok := opening.Values[f]; ok {
			a.Value = v
		}
		if r, ok := opening.Refs[f]; ok {
			a.Ref = r
		}
		out = append(out, a)
	}
	return out
}
