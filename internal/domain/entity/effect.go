package entity

import "github.com/shopspring/decimal"

// EffectOp forma en que un efecto modifica el agregado.
type EffectOp string

const (
	OpAdd   EffectOp = "add"   // suma con signo
	OpSet   EffectOp = "set"   // última escritura gana (numérico)
	OpPoint EffectOp = "point" // última escritura gana (referencia)
)

// Effect contribución de un registro a un agregado: f(registro) -> [(aggregateId, field, amount)].
// Floor solo aplica a OpSet: límite inferior de la lectura (p.ej. odómetro de salida).
// Correction marca una reescritura "última escritura gana" de un registro que ya había escrito ese campo.
type Effect struct {
	Key        AggregateKey
	Op         EffectOp
	Amount     decimal.Decimal
	Ref        string
	Floor      *decimal.Decimal
	RecordID   string
	Correction bool
}

func add(id string, f Field, amount decimal.Decimal, recordID string) Effect {
	return Effect{Key: AggregateKey{ID: id, Field: f}, Op: OpAdd, Amount: amount, RecordID: recordID}
}
