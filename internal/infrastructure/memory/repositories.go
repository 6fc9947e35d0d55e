package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/jhoicas/Eventos-api/internal/domain"
	"github.com/jhoicas/Eventos-api/internal/domain/entity"
	"github.com/jhoicas/Eventos-api/internal/domain/repository"
)

var (
	_ repository.AggregateRepository = (*aggregateRepo)(nil)
	_ repository.RecordRepository    = (*recordRepo)(nil)
)

// aggregateRepo con tx == nil lee lo confirmado y escribe en una transacción propia.
type aggregateRepo struct {
	s  *Store
	tx *tx
}

// visible devuelve la vista de la transacción (sus escrituras primero) o lo confirmado.
func (r *aggregateRepo) visible(k entity.AggregateKey) (entity.Aggregate, bool) {
	if r.tx != nil {
		if st, ok := r.tx.aggs[k]; ok {
			return st.agg, true
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.aggs[k]
	return a, ok
}

func (r *aggregateRepo) Get(_ context.Context, key entity.AggregateKey) (*entity.Aggregate, error) {
	a, ok := r.visible(key)
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *aggregateRepo) ListByID(_ context.Context, id string) ([]*entity.Aggregate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.Aggregate
	for k, a := range r.s.aggs {
		if k.ID != id {
			continue
		}
		cp := a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out, nil
}

func (r *aggregateRepo) GetForUpdate(ctx context.Context, keys []entity.AggregateKey) (map[entity.AggregateKey]*entity.Aggregate, error) {
	if r.tx == nil {
		return nil, fmt.Errorf("GetForUpdate fuera de transacción: %w", domain.ErrConflict)
	}
	out := make(map[entity.AggregateKey]*entity.Aggregate, len(keys))
	for _, k := range sortKeys(keys) {
		if err := r.tx.lock(aggLockName(k)); err != nil {
			return nil, err
		}
		if a, ok := r.visible(k); ok {
			cp := a
			out[k] = &cp
		}
	}
	return out, nil
}

func (r *aggregateRepo) Create(ctx context.Context, aggs []*entity.Aggregate) error {
	if r.tx == nil {
		return r.s.Run(ctx, func(aggRepo repository.AggregateRepository, _ repository.RecordRepository) error {
			return aggRepo.Create(ctx, aggs)
		})
	}
	keys := make([]entity.AggregateKey, 0, len(aggs))
	for _, a := range aggs {
		keys = append(keys, a.AggregateKey)
	}
	for _, k := range sortKeys(keys) {
		if err := r.tx.lock(aggLockName(k)); err != nil {
			return err
		}
	}
	for _, a := range aggs {
		if _, exists := r.visible(a.AggregateKey); exists {
			return fmt.Errorf("agregado %s: %w", a.AggregateKey, domain.ErrDuplicate)
		}
	}
	for _, a := range aggs {
		r.tx.aggs[a.AggregateKey] = stagedAggregate{agg: *a, create: true}
		r.tx.aggKeys = append(r.tx.aggKeys, a.AggregateKey)
	}
	return nil
}

func (r *aggregateRepo) Update(ctx context.Context, agg *entity.Aggregate, expectedVersion int64) error {
	if r.tx == nil {
		return r.s.Run(ctx, func(aggRepo repository.AggregateRepository, _ repository.RecordRepository) error {
			return aggRepo.Update(ctx, agg, expectedVersion)
		})
	}
	k := agg.AggregateKey
	if err := r.tx.lock(aggLockName(k)); err != nil {
		return err
	}
	cur, ok := r.visible(k)
	if !ok {
		return fmt.Errorf("agregado %s: %w", k, domain.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("agregado %s versión %d != %d: %w", k, cur.Version, expectedVersion, domain.ErrConcurrencyConflict)
	}
	st, staged := r.tx.aggs[k]
	if !staged {
		st = stagedAggregate{expectedVersion: cur.Version}
		r.tx.aggKeys = append(r.tx.aggKeys, k)
	}
	st.agg = *agg
	r.tx.aggs[k] = st
	return nil
}

// recordRepo persiste el payload codificado: nunca se comparten punteros con el llamador.
type recordRepo struct {
	s  *Store
	tx *tx
}

func (r *recordRepo) visible(id string) (storedRecord, bool) {
	if r.tx != nil {
		if st, ok := r.tx.records[id]; ok {
			return st.rec, true
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.records[id]
	return rec, ok
}

func (r *recordRepo) Get(_ context.Context, id string) (entity.Record, error) {
	sr, ok := r.visible(id)
	if !ok {
		return nil, nil
	}
	return entity.DecodeRecord(sr.typ, sr.payload)
}

func (r *recordRepo) GetForUpdate(ctx context.Context, id string) (entity.Record, error) {
	if r.tx == nil {
		return nil, fmt.Errorf("GetForUpdate fuera de transacción: %w", domain.ErrConflict)
	}
	if err := r.tx.lock(recLockName(id)); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func encode(rec entity.Record) (storedRecord, error) {
	payload, err := entity.EncodeRecord(rec)
	if err != nil {
		return storedRecord{}, err
	}
	return storedRecord{
		typ:          rec.Type(),
		version:      rec.Meta().Version,
		payload:      payload,
		aggregateIDs: rec.AggregateIDs(),
	}, nil
}

func (r *recordRepo) Insert(ctx context.Context, rec entity.Record) error {
	if r.tx == nil {
		return r.s.Run(ctx, func(_ repository.AggregateRepository, recRepo repository.RecordRepository) error {
			return recRepo.Insert(ctx, rec)
		})
	}
	id := rec.Meta().ID
	if err := r.tx.lock(recLockName(id)); err != nil {
		return err
	}
	if _, exists := r.visible(id); exists {
		return fmt.Errorf("registro %s: %w", id, domain.ErrDuplicate)
	}
	sr, err := encode(rec)
	if err != nil {
		return err
	}
	r.tx.records[id] = stagedRecord{rec: sr, create: true}
	r.tx.recIDs = append(r.tx.recIDs, id)
	return nil
}

func (r *recordRepo) Update(ctx context.Context, rec entity.Record, expectedVersion int64) error {
	if r.tx == nil {
		return r.s.Run(ctx, func(_ repository.AggregateRepository, recRepo repository.RecordRepository) error {
			return recRepo.Update(ctx, rec, expectedVersion)
		})
	}
	id := rec.Meta().ID
	if err := r.tx.lock(recLockName(id)); err != nil {
		return err
	}
	cur, ok := r.visible(id)
	if !ok {
		return fmt.Errorf("registro %s: %w", id, domain.ErrNotFound)
	}
	if cur.version != expectedVersion {
		return fmt.Errorf("registro %s versión %d != %d: %w", id, cur.version, expectedVersion, domain.ErrConcurrencyConflict)
	}
	sr, err := encode(rec)
	if err != nil {
		return err
	}
	st, staged := r.tx.records[id]
	if !staged {
		st = stagedRecord{expectedVersion: cur.version}
		r.tx.recIDs = append(r.tx.recIDs, id)
	}
	st.rec = sr
	r.tx.records[id] = st
	return nil
}

func (r *recordRepo) ListByAggregate(_ context.Context, aggregateID string, limit, offset int) ([]entity.Record, error) {
	r.s.mu.RLock()
	var matches []storedRecord
	for _, sr := range r.s.records {
		if slices.Contains(sr.aggregateIDs, aggregateID) {
			matches = append(matches, sr)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].seq > matches[j].seq })
	if offset >= len(matches) {
		return []entity.Record{}, nil
	}
	matches = matches[offset:]
	if limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}
	out := make([]entity.Record, 0, len(matches))
	for _, sr := range matches {
		rec, err := entity.DecodeRecord(sr.typ, sr.payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
