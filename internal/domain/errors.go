package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound            = errors.New("recurso no encontrado")
	ErrInvalidInput        = errors.New("entrada inválida")
	ErrDuplicate           = errors.New("recurso duplicado")
	ErrConflict            = errors.New("conflicto con el estado actual")
	ErrInsufficientStock   = errors.New("stock insuficiente")
	ErrInvariantViolation  = errors.New("violación de invariante del agregado")
	ErrConcurrencyConflict = errors.New("conflicto de concurrencia")
)

// ValidationError entrada mal formada; se rechaza antes de tocar cualquier agregado.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validación: " + e.Reason
	}
	return fmt.Sprintf("validación: %s: %s", e.Field, e.Reason)
}

// Is permite errors.Is(err, ErrInvalidInput).
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError atajo para construir un ValidationError.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Restricciones conocidas por el ConsistencyGuard.
const (
	ConstraintNonNegativeStock  = "stock_no_negativo"
	ConstraintMonotonicOdometer = "odometro_monotono"
)

// InvariantViolation transición rechazada porque dejaría el agregado fuera de su rango legal.
type InvariantViolation struct {
	AggregateID string
	Field       string
	Current     decimal.Decimal
	Attempted   decimal.Decimal
	Constraint  string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariante %s violada en %s/%s: actual %s, intento %s",
		e.Constraint, e.AggregateID, e.Field, e.Current.String(), e.Attempted.String())
}

// Is permite errors.Is(err, ErrInvariantViolation); un stock negativo además es ErrInsufficientStock.
func (e *InvariantViolation) Is(target error) bool {
	if target == ErrInvariantViolation {
		return true
	}
	return target == ErrInsufficientStock && e.Constraint == ConstraintNonNegativeStock
}
