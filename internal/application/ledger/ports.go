package ledger

import (
	"context"

	"github.com/jhoicas/Eventos-api/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción, pasando repositorios atados a esa tx.
// Si fn devuelve error no queda ningún cambio visible (rollback); si no, todo se confirma junto.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		aggRepo repository.AggregateRepository,
		recRepo repository.RecordRepository,
	) error) error
}
