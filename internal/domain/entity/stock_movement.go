package entity

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Eventos-api/internal/domain"
)

// Tipos de movimiento de estoque.
const (
	MovementTypeEntrada       = "E" // entrada: +cantidad
	MovementTypeSaida         = "S" // salida: −cantidad
	MovementTypeAjuste        = "A" // ajuste: reubica el producto
	MovementTypeTransferencia = "T" // transferencia: reubica el producto
)

// StockMovement movimiento de estoque de un producto.
// Entrada/Saída alteran la cantidad; Ajuste/Transferência solo mueven el puntero de ubicación.
type StockMovement struct {
	RecordMeta
	MovementType string          `json:"movement_type"`
	ProductID    string          `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	FromLocation string          `json:"from_location,omitempty"`
	ToLocation   string          `json:"to_location,omitempty"`
}

func (m *StockMovement) Type() RecordType { return RecordStockMovement }

func (m *StockMovement) Validate() error {
	if err := requireRef("product_id", m.ProductID); err != nil {
		return err
	}
	if err := requirePositive("quantity", m.Quantity); err != nil {
		return err
	}
	switch m.MovementType {
	case MovementTypeEntrada, MovementTypeSaida:
	case MovementTypeAjuste, MovementTypeTransferencia:
		if m.ToLocation == "" {
			return domain.NewValidationError("to_location", "requerido para ajuste o transferencia")
		}
		if m.MovementType == MovementTypeTransferencia && m.FromLocation == m.ToLocation {
			return domain.NewValidationError("to_location", "origen y destino iguales")
		}
	default:
		return domain.NewValidationError("movement_type", "debe ser E, S, A o T")
	}
	return nil
}

func (m *StockMovement) Effects() []Effect {
	switch m.MovementType {
	case MovementTypeEntrada:
		return []Effect{add(m.ProductID, FieldStockQuantity, m.Quantity, m.ID)}
	case MovementTypeSaida:
		return []Effect{add(m.ProductID, FieldStockQuantity, m.Quantity.Neg(), m.ID)}
	case MovementTypeAjuste, MovementTypeTransferencia:
		return []Effect{{
			Key:      AggregateKey{ID: m.ProductID, Field: FieldStockLocation},
			Op:       OpPoint,
			Ref:      m.ToLocation,
			RecordID: m.ID,
		}}
	}
	return nil
}

func (m *StockMovement) CheckCorrection(prior Record) error {
	if err := sameType(prior, RecordStockMovement); err != nil {
		return err
	}
	p := prior.(*StockMovement)
	switch {
	case p.MovementType != m.MovementType:
		return immutable("movement_type")
	case p.ProductID != m.ProductID:
		return immutable("product_id")
	case p.FromLocation != m.FromLocation:
		return immutable("from_location")
	}
	return nil
}

func (m *StockMovement) AggregateIDs() []string { return nonEmpty(m.ProductID) }

func (m *StockMovement) Clone() Record {
	c := *m
	return &c
}
