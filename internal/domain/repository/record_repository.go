package repository

import (
	"context"

	"github.com/jhoicas/Eventos-api/internal/domain/entity"
)

// RecordRepository puerto de persistencia de registros transaccionales.
type RecordRepository interface {
	// Get devuelve el registro confirmado o nil si no existe.
	Get(ctx context.Context, id string) (entity.Record, error)
	// GetForUpdate igual que Get pero bloquea el registro hasta el fin de la transacción.
	GetForUpdate(ctx context.Context, id string) (entity.Record, error)
	// Insert persiste un registro nuevo; ErrDuplicate si el ID ya existe.
	Insert(ctx context.Context, rec entity.Record) error
	// Update reemplaza el registro si la versión almacenada es expectedVersion; si no, ErrConcurrencyConflict.
	Update(ctx context.Context, rec entity.Record, expectedVersion int64) error
	// ListByAggregate registros que referencian el agregado, del más reciente al más antiguo.
	ListByAggregate(ctx context.Context, aggregateID string, limit, offset int) ([]entity.Record, error)
}
