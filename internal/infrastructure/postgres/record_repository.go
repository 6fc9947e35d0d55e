package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/Eventos-api/internal/domain"
	"github.com/jhoicas/Eventos-api/internal/domain/entity"
	"github.com/jhoicas/Eventos-api/internal/domain/repository"
)

var _ repository.RecordRepository = (*RecordRepo)(nil)

// RecordRepo registros transaccionales como payload JSONB más los ids de agregado que alimentan.
type RecordRepo struct {
	q Querier
}

// NewRecordRepository construye el adaptador de registros. Pasar pool o tx (Querier).
func NewRecordRepository(q Querier) *RecordRepo {
	return &RecordRepo{q: q}
}

func scanRecord(row pgx.Row) (entity.Record, error) {
	var typ string
	var payload []byte
	if err := row.Scan(&typ, &payload); err != nil {
		return nil, err
	}
	return entity.DecodeRecord(entity.RecordType(typ), payload)
}

// Get versión confirmada; nil si no existe.
func (r *RecordRepo) Get(ctx context.Context, id string) (entity.Record, error) {
	query := `SELECT record_type, payload FROM ledger_records WHERE id = $1`
	rec, err := scanRecord(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(err, "get record")
	}
	return rec, nil
}

// GetForUpdate serializa por id aunque la fila todavía no exista (advisory lock de transacción),
// de modo que dos creaciones con la misma clave de idempotencia no corren en paralelo.
func (r *RecordRepo) GetForUpdate(ctx context.Context, id string) (entity.Record, error) {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, id); err != nil {
		return nil, mapError(err, "lock record")
	}
	query := `SELECT record_type, payload FROM ledger_records WHERE id = $1 FOR UPDATE`
	rec, err := scanRecord(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(err, "get record for update")
	}
	return rec, nil
}

// Insert persiste la primera versión; ErrDuplicate si el id ya existe.
func (r *RecordRepo) Insert(ctx context.Context, rec entity.Record) error {
	payload, err := entity.EncodeRecord(rec)
	if err != nil {
		return err
	}
	m := rec.Meta()
	query := `
		INSERT INTO ledger_records (id, record_type, version, payload, aggregate_ids, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	var createdBy *string
	if m.CreatedBy != "" {
		createdBy = &m.CreatedBy
	}
	_, err = r.q.Exec(ctx, query,
		m.ID, string(rec.Type()), m.Version, payload, rec.AggregateIDs(), createdBy, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return mapError(err, "insert record")
	}
	return nil
}

// Update reemplaza la versión vigente solo si sigue siendo expectedVersion.
func (r *RecordRepo) Update(ctx context.Context, rec entity.Record, expectedVersion int64) error {
	payload, err := entity.EncodeRecord(rec)
	if err != nil {
		return err
	}
	m := rec.Meta()
	query := `
		UPDATE ledger_records
		SET version = $2, payload = $3, aggregate_ids = $4, updated_at = $5
		WHERE id = $1 AND version = $6`
	tag, err := r.q.Exec(ctx, query, m.ID, m.Version, payload, rec.AggregateIDs(), m.UpdatedAt, expectedVersion)
	if err != nil {
		return mapError(err, "update record")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("registro %s versión %d: %w", m.ID, expectedVersion, domain.ErrConcurrencyConflict)
	}
	return nil
}

// ListByAggregate registros que alimentan el agregado, del más reciente al más antiguo.
func (r *RecordRepo) ListByAggregate(ctx context.Context, aggregateID string, limit, offset int) ([]entity.Record, error) {
	query := `
		SELECT record_type, payload
		FROM ledger_records
		WHERE aggregate_ids @> ARRAY[$1::text]
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.q.Query(ctx, query, aggregateID, limit, offset)
	if err != nil {
		return nil, mapError(err, "list records")
	}
	defer rows.Close()

	out := []entity.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, mapError(err, "scan record")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "rows records")
	}
	return out, nil
}
