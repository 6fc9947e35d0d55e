package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Eventos-api/internal/domain/entity"
)

// Net calcula el delta neto de una edición: f(next) − f(prior), campo por campo.
// Para sumas se emite una sola diferencia por agregado (reversión y reaplicación en un paso, sin
// estado intermedio inválido). Para campos "última escritura gana" solo se emite el valor nuevo si
// cambió respecto de la versión anterior. En una creación prior es nil.
// El resultado sale ordenado por clave: es el orden en que se toman los locks.
func Net(prior, next []entity.Effect) []entity.Effect {
	sums := make(map[entity.AggregateKey]decimal.Decimal)
	var order []entity.AggregateKey
	recordID := ""

	track := func(k entity.AggregateKey) {
		if _, ok := sums[k]; !ok {
			sums[k] = decimal.Zero
			order = append(order, k)
		}
	}

	priorLatest := make(map[entity.AggregateKey]entity.Effect)
	for _, e := range prior {
		recordID = e.RecordID
		if e.Op == entity.OpAdd {
			track(e.Key)
			sums[e.Key] = sums[e.Key].Sub(e.Amount)
			continue
		}
		priorLatest[e.Key] = e
	}

	var out []entity.Effect
	for _, e := range next {
		recordID = e.RecordID
		if e.Op == entity.OpAdd {
			track(e.Key)
			sums[e.Key] = sums[e.Key].Add(e.Amount)
			continue
		}
		p, had := priorLatest[e.Key]
		if had && sameWrite(p, e) {
			continue
		}
		e.Correction = had
		out = append(out, e)
	}

	for _, k := range order {
		if sums[k].IsZero() {
			continue
		}
		out = append(out, entity.Effect{Key: k, Op: entity.OpAdd, Amount: sums[k], RecordID: recordID})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

func sameWrite(a, b entity.Effect) bool {
	if a.Op != b.Op {
		return false
	}
	if a.Op == entity.OpPoint {
		return a.Ref == b.Ref
	}
	return a.Amount.Equal(b.Amount)
}

// Keys claves distintas de los efectos, en orden.
func Keys(effects []entity.Effect) []entity.AggregateKey {
	seen := make(map[entity.AggregateKey]bool, len(effects))
	keys := make([]entity.AggregateKey, 0, len(effects))
	for _, e := range effects {
		if seen[e.Key] {
			continue
		}
		seen[e.Key] = true
		keys = append(keys, e.Key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
