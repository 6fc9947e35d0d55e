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

var _ repository.AggregateRepository = (*AggregateRepo)(nil)

const aggregateColumns = `aggregate_id, field, kind, value, ref, version, set_by, last_record_id, last_record_version, created_at, updated_at`

// AggregateRepo implementación de AggregateRepository sobre PostgreSQL (usable con pool o tx).
type AggregateRepo struct {
	q Querier
}

// NewAggregateRepository construye el adaptador de agregados. Pasar pool o tx (Querier).
func NewAggregateRepository(q Querier) *AggregateRepo {
	return &AggregateRepo{q: q}
}

func scanAggregate(row pgx.Row) (*entity.Aggregate, error) {
	var a entity.Aggregate
	var field, kind string
	err := row.Scan(
		&a.ID, &field, &kind, &a.Value, &a.Ref, &a.Version, &a.SetBy,
		&a.LastRecordID, &a.LastRecordVersion, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Field = entity.Field(field)
	a.Kind = entity.AggregateKind(kind)
	return &a, nil
}

// Get devuelve el valor confirmado; nil si no existe.
func (r *AggregateRepo) Get(ctx context.Context, key entity.AggregateKey) (*entity.Aggregate, error) {
	query := `SELECT ` + aggregateColumns + ` FROM aggregates WHERE aggregate_id = $1 AND field = $2`
	a, err := scanAggregate(r.q.QueryRow(ctx, query, key.ID, string(key.Field)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(err, "get aggregate")
	}
	return a, nil
}

// ListByID todos los campos de un agregado, ordenados por campo.
func (r *AggregateRepo) ListByID(ctx context.Context, id string) ([]*entity.Aggregate, error) {
	query := `SELECT ` + aggregateColumns + ` FROM aggregates WHERE aggregate_id = $1 ORDER BY field COLLATE "C"`
	rows, err := r.q.Query(ctx, query, id)
	if err != nil {
		return nil, mapError(err, "list aggregates")
	}
	defer rows.Close()
	return collectAggregates(rows)
}

// GetForUpdate bloquea las filas (SELECT FOR UPDATE) en el orden de las claves.
// El ORDER BY con collation "C" coincide con AggregateKey.Less, así dos transacciones nunca se cruzan.
func (r *AggregateRepo) GetForUpdate(ctx context.Context, keys []entity.AggregateKey) (map[entity.AggregateKey]*entity.Aggregate, error) {
	out := make(map[entity.AggregateKey]*entity.Aggregate, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	ids := make([]string, len(keys))
	fields := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.ID
		fields[i] = string(k.Field)
	}
	query := `
		SELECT a.aggregate_id, a.field, a.kind, a.value, a.ref, a.version, a.set_by,
		       a.last_record_id, a.last_record_version, a.created_at, a.updated_at
		FROM aggregates a
		JOIN unnest($1::text[], $2::text[]) AS k(aggregate_id, field)
		  ON a.aggregate_id = k.aggregate_id AND a.field = k.field
		ORDER BY a.aggregate_id COLLATE "C", a.field COLLATE "C"
		FOR UPDATE OF a`
	rows, err := r.q.Query(ctx, query, ids, fields)
	if err != nil {
		return nil, mapError(err, "get aggregates for update")
	}
	defer rows.Close()
	aggs, err := collectAggregates(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range aggs {
		out[a.AggregateKey] = a
	}
	return out, nil
}

func collectAggregates(rows pgx.Rows) ([]*entity.Aggregate, error) {
	var out []*entity.Aggregate
	for rows.Next() {
		a, err := scanAggregate(rows)
		if err != nil {
			return nil, mapError(err, "scan aggregate")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "rows aggregates")
	}
	return out, nil
}

// Create inserta las filas de un agregado nuevo; ErrDuplicate si alguna ya existe.
func (r *AggregateRepo) Create(ctx context.Context, aggs []*entity.Aggregate) error {
	query := `
		INSERT INTO aggregates (` + aggregateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	for _, a := range aggs {
		_, err := r.q.Exec(ctx, query,
			a.ID, string(a.Field), string(a.Kind), a.Value, a.Ref, a.Version, a.SetBy,
			a.LastRecordID, a.LastRecordVersion, a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return mapError(err, fmt.Sprintf("create aggregate %s", a.AggregateKey))
		}
	}
	return nil
}

// Update escribe el nuevo estado solo si la versión almacenada sigue siendo expectedVersion (CAS).
func (r *AggregateRepo) Update(ctx context.Context, agg *entity.Aggregate, expectedVersion int64) error {
	query := `
		UPDATE aggregates
		SET value = $3, ref = $4, version = $5, set_by = $6,
		    last_record_id = $7, last_record_version = $8, updated_at = $9
		WHERE aggregate_id = $1 AND field = $2 AND version = $10`
	tag, err := r.q.Exec(ctx, query,
		agg.ID, string(agg.Field), agg.Value, agg.Ref, agg.Version, agg.SetBy,
		agg.LastRecordID, agg.LastRecordVersion, agg.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return mapError(err, "update aggregate")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agregado %s versión %d: %w", agg.AggregateKey, expectedVersion, domain.ErrConcurrencyConflict)
	}
	return nil
}
