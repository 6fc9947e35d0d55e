package ledger

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Eventos-api/internal/domain"
	"github.com/jhoicas/Eventos-api/internal/domain/entity"
)

// RecordFields campos de un registro; nil = no informado.
// En una creación se parte de un registro vacío; en una corrección, de la versión vigente.
type RecordFields struct {
	MovementType      *string
	ProductID         *string
	FromLocation      *string
	ToLocation        *string
	EventID           *string
	EmployeeID        *string
	CategoryKind      *string
	CategoryID        *string
	CashAccountID     *string
	ContractID        *string
	VehicleID         *string
	Status            *string
	Notes             *string
	Quantity          *decimal.Decimal
	Value             *decimal.Decimal
	UnitCost          *decimal.Decimal
	Paid              *bool
	PaymentDate       *time.Time
	DueDate           *time.Time
	DepartedAt        *time.Time
	DepartureOdometer *int64
	ArrivedAt         *time.Time
	ArrivalOdometer   *int64
}

// CreateRecordInput createRecord(type, fields). ID opcional: sirve como clave de idempotencia.
type CreateRecordInput struct {
	Type      entity.RecordType
	ID        string
	CreatedBy string
	Fields    RecordFields
}

// UpdateRecordInput updateRecord(id, fields). Version opcional: si se informa, un reenvío de la misma
// versión es un no-op; si no, el motor usa la siguiente a la vigente.
type UpdateRecordInput struct {
	Version *int64
	Fields  RecordFields
}

// CreateRecord construye el registro desde los campos y lo propaga como nuevo.
func (e *Engine) CreateRecord(ctx context.Context, in CreateRecordInput) (*SubmitResult, error) {
	rec, err := entity.NewRecord(in.Type)
	if err != nil {
		return nil, err
	}
	if err := applyFields(rec, in.Fields); err != nil {
		return nil, err
	}
	meta := rec.Meta()
	meta.ID = in.ID
	meta.CreatedBy = in.CreatedBy
	return e.Submit(ctx, rec, true)
}

// UpdateRecord aplica una corrección sobre la versión vigente. Si otra corrección se confirma en el
// medio, relee y vuelve a aplicar (solo cuando la versión no fue fijada por el llamador).
func (e *Engine) UpdateRecord(ctx context.Context, id string, in UpdateRecordInput) (*SubmitResult, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "requerido")
	}
	for attempt := 0; ; attempt++ {
		prior, err := e.Record(ctx, id)
		if err != nil {
			return nil, err
		}
		next := prior.Clone()
		if err := applyFields(next, in.Fields); err != nil {
			return nil, err
		}
		if in.Version != nil {
			next.Meta().Version = *in.Version
		} else {
			next.Meta().Version = prior.Meta().Version + 1
		}
		res, err := e.Submit(ctx, next, false)
		if in.Version == nil && errors.Is(err, ErrStaleVersion) && attempt < e.cfg.MaxRetries {
			if serr := e.waitRetry(ctx, attempt); serr != nil {
				return nil, serr
			}
			continue
		}
		return res, err
	}
}

// campos aceptados por tipo de registro.
var allowedFields = map[entity.RecordType][]string{
	entity.RecordStockMovement:    {"movement_type", "product_id", "from_location", "to_location", "quantity", "notes"},
	entity.RecordEventAllocation:  {"event_id", "employee_id", "value", "paid", "payment_date", "notes"},
	entity.RecordEventConsumption: {"event_id", "product_id", "quantity", "unit_cost", "notes"},
	entity.RecordFinancialEntry: {"category_kind", "category_id", "cash_account_id", "contract_id", "event_id",
		"value", "status", "due_date", "payment_date", "notes"},
	entity.RecordVehicleTrip: {"vehicle_id", "employee_id", "departed_at", "departure_odometer", "arrived_at",
		"arrival_odometer", "notes"},
}

func (f RecordFields) present() []string {
	var out []string
	mark := func(name string, set bool) {
		if set {
			out = append(out, name)
		}
	}
	mark("movement_type", f.MovementType != nil)
	mark("product_id", f.ProductID != nil)
	mark("from_location", f.FromLocation != nil)
	mark("to_location", f.ToLocation != nil)
	mark("event_id", f.EventID != nil)
	mark("employee_id", f.EmployeeID != nil)
	mark("category_kind", f.CategoryKind != nil)
	mark("category_id", f.CategoryID != nil)
	mark("cash_account_id", f.CashAccountID != nil)
	mark("contract_id", f.ContractID != nil)
	mark("vehicle_id", f.VehicleID != nil)
	mark("status", f.Status != nil)
	mark("notes", f.Notes != nil)
	mark("quantity", f.Quantity != nil)
	mark("value", f.Value != nil)
	mark("unit_cost", f.UnitCost != nil)
	mark("paid", f.Paid != nil)
	mark("payment_date", f.PaymentDate != nil)
	mark("due_date", f.DueDate != nil)
	mark("departed_at", f.DepartedAt != nil)
	mark("departure_odometer", f.DepartureOdometer != nil)
	mark("arrived_at", f.ArrivedAt != nil)
	mark("arrival_odometer", f.ArrivalOdometer != nil)
	return out
}

func applyFields(rec entity.Record, f RecordFields) error {
	allowed := allowedFields[rec.Type()]
	for _, name := range f.present() {
		if !slices.Contains(allowed, name) {
			return domain.NewValidationError(name, "no aplica a "+string(rec.Type()))
		}
	}
	if f.Notes != nil {
		rec.Meta().Notes = *f.Notes
	}

	switch r := rec.(type) {
	case *entity.StockMovement:
		setString(&r.MovementType, f.MovementType)
		setString(&r.ProductID, f.ProductID)
		setString(&r.FromLocation, f.FromLocation)
		setString(&r.ToLocation, f.ToLocation)
		setDecimal(&r.Quantity, f.Quantity)
	case *entity.EventAllocation:
		setString(&r.EventID, f.EventID)
		setString(&r.EmployeeID, f.EmployeeID)
		setDecimal(&r.Value, f.Value)
		if f.Paid != nil {
			r.Paid = *f.Paid
		}
		setTime(&r.PaymentDate, f.PaymentDate)
	case *entity.EventConsumption:
		setString(&r.EventID, f.EventID)
		setString(&r.ProductID, f.ProductID)
		setDecimal(&r.Quantity, f.Quantity)
		setDecimal(&r.UnitCost, f.UnitCost)
	case *entity.FinancialEntry:
		setString(&r.CategoryKind, f.CategoryKind)
		setString(&r.CategoryID, f.CategoryID)
		setString(&r.CashAccountID, f.CashAccountID)
		setString(&r.ContractID, f.ContractID)
		setString(&r.EventID, f.EventID)
		setDecimal(&r.Value, f.Value)
		setString(&r.Status, f.Status)
		if r.Status == "" {
			r.Status = entity.EntryStatusPending
		}
		setTime(&r.DueDate, f.DueDate)
		setTime(&r.PaymentDate, f.PaymentDate)
	case *entity.VehicleTrip:
		setString(&r.VehicleID, f.VehicleID)
		setString(&r.EmployeeID, f.EmployeeID)
		if f.DepartedAt != nil {
			r.DepartedAt = *f.DepartedAt
		}
		if f.DepartureOdometer != nil {
			r.DepartureOdometer = *f.DepartureOdometer
		}
		setTime(&r.ArrivedAt, f.ArrivedAt)
		if f.ArrivalOdometer != nil {
			v := *f.ArrivalOdometer
			r.ArrivalOdometer = &v
		}
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDecimal(dst *decimal.Decimal, v *decimal.Decimal) {
	if v != nil {
		*dst = *v
	}
}

func setTime(dst **time.Time, v *time.Time) {
	if v != nil {
		t := *v
		*dst = &t
	}
}

// sameContent compara dos versiones ignorando versión y marcas de auditoría.
func sameContent(a, b entity.Record) bool {
	if a.Type() != b.Type() {
		return false
	}
	ca, cb := a.Clone(), b.Clone()
	for _, m := range []*entity.RecordMeta{ca.Meta(), cb.Meta()} {
		m.Version = 0
		m.CreatedBy = ""
		m.CreatedAt = time.Time{}
		m.UpdatedAt = time.Time{}
	}
	ea, err := entity.EncodeRecord(ca)
	if err != nil {
		return false
	}
	eb, err := entity.EncodeRecord(cb)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}
