package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Eventos-api/internal/domain"
)

// Tipos de categoría financiera.
const (
	CategoryRevenue = "RE" // receita
	CategoryExpense = "DE" // despesa
)

// Estados del lanzamiento financiero.
const (
	EntryStatusPending   = "PE"
	EntryStatusPaid      = "PA"
	EntryStatusCancelled = "CA"
)

// FinancialEntry lanzamiento financiero.
// Afecta los totales del evento desde que se registra (independiente del pago) y el saldo de caja
// solo cuando está pagado. Un lanzamiento cancelado no contribuye a nada.
type FinancialEntry struct {
	RecordMeta
	CategoryKind  string          `json:"category_kind"`
	CategoryID    string          `json:"category_id,omitempty"`
	CashAccountID string          `json:"cash_account_id"`
	ContractID    string          `json:"contract_id,omitempty"`
	EventID       string          `json:"event_id,omitempty"`
	Value         decimal.Decimal `json:"value"`
	Status        string          `json:"status"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	PaymentDate   *time.Time      `json:"payment_date,omitempty"`
}

func (e *FinancialEntry) Type() RecordType { return RecordFinancialEntry }

func (e *FinancialEntry) Validate() error {
	if e.CategoryKind != CategoryRevenue && e.CategoryKind != CategoryExpense {
		return domain.NewValidationError("category_kind", "debe ser RE o DE")
	}
	if err := requireRef("cash_account_id", e.CashAccountID); err != nil {
		return err
	}
	if err := requirePositive("value", e.Value); err != nil {
		return err
	}
	switch e.Status {
	case EntryStatusPending, EntryStatusPaid, EntryStatusCancelled:
	default:
		return domain.NewValidationError("status", "debe ser PE, PA o CA")
	}
	return nil
}

func (e *FinancialEntry) Effects() []Effect {
	if e.Status == EntryStatusCancelled {
		return nil
	}
	var out []Effect
	if e.EventID != "" {
		field := FieldEventRevenueTotal
		if e.CategoryKind == CategoryExpense {
			field = FieldEventCostTotal
		}
		out = append(out, add(e.EventID, field, e.Value, e.ID))
	}
	if e.Status == EntryStatusPaid {
		amount := e.Value
		if e.CategoryKind == CategoryExpense {
			amount = amount.Neg()
		}
		out = append(out, add(e.CashAccountID, FieldCashBalance, amount, e.ID))
	}
	return out
}

func (e *FinancialEntry) CheckCorrection(prior Record) error {
	if err := sameType(prior, RecordFinancialEntry); err != nil {
		return err
	}
	p := prior.(*FinancialEntry)
	switch {
	case p.CategoryKind != e.CategoryKind:
		return immutable("category_kind")
	case p.CategoryID != e.CategoryID:
		return immutable("category_id")
	case p.CashAccountID != e.CashAccountID:
		return immutable("cash_account_id")
	case p.ContractID != e.ContractID:
		return immutable("contract_id")
	case p.EventID != e.EventID:
		return immutable("event_id")
	}
	return nil
}

func (e *FinancialEntry) AggregateIDs() []string { return nonEmpty(e.EventID, e.CashAccountID) }

func (e *FinancialEntry) Clone() Record {
	c := *e
	return &c
}
