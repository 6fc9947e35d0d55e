package repository

import (
	"context"

	"github.com/jhoicas/Eventos-api/internal/domain/entity"
)

// AggregateRepository puerto del AggregateStore: valores actuales de los agregados.
// Solo el motor de propagación escribe aquí; no existe otro camino de escritura.
type AggregateRepository interface {
	// Get lee el valor confirmado (sin lock). nil si no existe.
	Get(ctx context.Context, key entity.AggregateKey) (*entity.Aggregate, error)
	// ListByID devuelve todos los campos de un agregado.
	ListByID(ctx context.Context, id string) ([]*entity.Aggregate, error)
	// GetForUpdate bloquea las filas en orden de clave (SELECT FOR UPDATE). Las claves ausentes no aparecen en el mapa.
	GetForUpdate(ctx context.Context, keys []entity.AggregateKey) (map[entity.AggregateKey]*entity.Aggregate, error)
	// Create inserta las filas de un agregado nuevo; ErrDuplicate si ya existe.
	Create(ctx context.Context, aggs []*entity.Aggregate) error
	// Update escribe agg solo si la versión almacenada sigue siendo expectedVersion (CAS);
	// si no, ErrConcurrencyConflict.
	Update(ctx context.Context, agg *entity.Aggregate, expectedVersion int64) error
}
