package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Eventos-api/internal/domain"
)

// VehicleTrip registro de salida/llegada de un vehículo.
// Al registrar la llegada, el odómetro del vehículo pasa a la lectura de llegada.
type VehicleTrip struct {
	RecordMeta
	VehicleID         string     `json:"vehicle_id"`
	EmployeeID        string     `json:"employee_id"`
	DepartedAt        time.Time  `json:"departed_at"`
	DepartureOdometer int64      `json:"departure_odometer"`
	ArrivedAt         *time.Time `json:"arrived_at,omitempty"`
	ArrivalOdometer   *int64     `json:"arrival_odometer,omitempty"`
}

func (t *VehicleTrip) Type() RecordType { return RecordVehicleTrip }

// Arrived indica si la llegada ya fue registrada.
func (t *VehicleTrip) Arrived() bool { return t.ArrivalOdometer != nil }

func (t *VehicleTrip) Validate() error {
	if err := requireRef("vehicle_id", t.VehicleID); err != nil {
		return err
	}
	if err := requireRef("employee_id", t.EmployeeID); err != nil {
		return err
	}
	if t.DepartedAt.IsZero() {
		return domain.NewValidationError("departed_at", "requerido")
	}
	if t.DepartureOdometer < 0 {
		return domain.NewValidationError("departure_odometer", "no puede ser negativo")
	}
	if t.ArrivedAt != nil && t.ArrivedAt.Before(t.DepartedAt) {
		return domain.NewValidationError("arrived_at", "anterior a la salida")
	}
	if t.ArrivedAt != nil && t.ArrivalOdometer == nil {
		return domain.NewValidationError("arrival_odometer", "requerido cuando hay llegada")
	}
	return nil
}

// Effects la lectura de salida es el piso: la llegada nunca puede ser menor (la verifica el guard).
func (t *VehicleTrip) Effects() []Effect {
	if !t.Arrived() {
		return nil
	}
	floor := decimal.NewFromInt(t.DepartureOdometer)
	return []Effect{{
		Key:      AggregateKey{ID: t.VehicleID, Field: FieldVehicleOdometer},
		Op:       OpSet,
		Amount:   decimal.NewFromInt(*t.ArrivalOdometer),
		Floor:    &floor,
		RecordID: t.ID,
	}}
}

func (t *VehicleTrip) CheckCorrection(prior Record) error {
	if err := sameType(prior, RecordVehicleTrip); err != nil {
		return err
	}
	p := prior.(*VehicleTrip)
	switch {
	case p.VehicleID != t.VehicleID:
		return immutable("vehicle_id")
	case p.EmployeeID != t.EmployeeID:
		return immutable("employee_id")
	case !p.DepartedAt.Equal(t.DepartedAt):
		return immutable("departed_at")
	case p.DepartureOdometer != t.DepartureOdometer:
		return immutable("departure_odometer")
	case p.Arrived() && !t.Arrived():
		return domain.NewValidationError("arrival_odometer", "la llegada registrada no se puede borrar")
	}
	return nil
}

func (t *VehicleTrip) AggregateIDs() []string { return nonEmpty(t.VehicleID) }

func (t *VehicleTrip) Clone() Record {
	c := *t
	if t.ArrivalOdometer != nil {
		v := *t.ArrivalOdometer
		c.ArrivalOdometer = &v
	}
	return &c
}
