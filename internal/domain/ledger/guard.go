package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Eventos-api/internal/domain"
	"github.com/jhoicas/Eventos-api/internal/domain/entity"
)

// Check es el ConsistencyGuard: evalúa el valor prospectivo (actual + delta) sin efectos secundarios.
// Invariantes: stock_quantity ≥ 0; vehicle_odometer no decreciente. Cuando un registro escribe el
// odómetro por primera vez, su salida (Floor) y su llegada no pueden ser menores que el valor actual; el
// último escritor puede corregir su propia llegada, nunca por debajo de su salida, que ya fue verificada.
func Check(agg entity.Aggregate, eff entity.Effect) error {
	switch eff.Op {
	case entity.OpAdd:
		attempted := agg.Value.Add(eff.Amount)
		if agg.Field == entity.FieldStockQuantity && attempted.IsNegative() {
			return violation(agg, attempted, domain.ConstraintNonNegativeStock)
		}
	case entity.OpSet:
		attempted := eff.Amount
		if eff.Floor != nil && attempted.LessThan(*eff.Floor) {
			return violation(agg, attempted, domain.ConstraintMonotonicOdometer)
		}
		if agg.Field == entity.FieldVehicleOdometer && agg.SetBy != eff.RecordID {
			// primera escritura del registro: ni la salida ni la llegada bajan del valor vigente
			if eff.Floor != nil && eff.Floor.LessThan(agg.Value) {
				return violation(agg, *eff.Floor, domain.ConstraintMonotonicOdometer)
			}
			if attempted.LessThan(agg.Value) {
				return violation(agg, attempted, domain.ConstraintMonotonicOdometer)
			}
		}
	case entity.OpPoint:
	default:
		return domain.NewValidationError("op", "operación de efecto desconocida")
	}
	return nil
}

func violation(agg entity.Aggregate, attempted decimal.Decimal, constraint string) error {
	return &domain.InvariantViolation{
		AggregateID: agg.ID,
		Field:       string(agg.Field),
		Current:     agg.Value,
		Attempted:   attempted,
		Constraint:  constraint,
	}
}

// Superseded indica que una corrección "última escritura gana" llega tarde: otro registro ya escribió
// el campo después, así que la corrección se guarda en el registro pero no reapunta el agregado.
func Superseded(agg entity.Aggregate, eff entity.Effect) bool {
	return eff.Op != entity.OpAdd && eff.Correction && agg.SetBy != eff.RecordID
}

// Apply valida y calcula el agregado resultante sin persistir nada.
// applied=false cuando el efecto quedó superado (ver Superseded).
func Apply(agg entity.Aggregate, eff entity.Effect, recordVersion int64, now time.Time) (next entity.Aggregate, applied bool, err error) {
	if Superseded(agg, eff) {
		return agg, false, nil
	}
	if err := Check(agg, eff); err != nil {
		return agg, false, err
	}
	next = agg
	switch eff.Op {
	case entity.OpAdd:
		next.Value = agg.Value.Add(eff.Amount)
	case entity.OpSet:
		next.Value = eff.Amount
		next.SetBy = eff.RecordID
	case entity.OpPoint:
		next.Ref = eff.Ref
		next.SetBy = eff.RecordID
	}
	next.Version = agg.Version + 1
	next.LastRecordID = eff.RecordID
	next.LastRecordVersion = recordVersion
	next.UpdatedAt = now
	return next, true, nil
}

// Replayed marca del agregado: la versión del registro ya fue aplicada.
func Replayed(agg entity.Aggregate, recordID string, version int64) bool {
	return recordID != "" && agg.LastRecordID == recordID && agg.LastRecordVersion >= version
}
