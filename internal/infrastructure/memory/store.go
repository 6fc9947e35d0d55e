// Package memory implementa el AggregateStore y el almacén de registros en proceso.
// Cada transacción toma locks por clave (registro y agregado) con espera acotada, acumula sus escrituras
// y solo las publica al confirmar: ninguna lectura ve estado de una transacción en vuelo.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/Eventos-api/internal/application/ledger"
	"github.com/jhoicas/Eventos-api/internal/domain"
	"github.com/jhoicas/Eventos-api/internal/domain/entity"
	"github.com/jhoicas/Eventos-api/internal/domain/repository"
)

var _ ledger.TxRunner = (*Store)(nil)

// DefaultLockTimeout espera máxima por un lock antes de devolver ErrConcurrencyConflict.
const DefaultLockTimeout = 2 * time.Second

type storedRecord struct {
	typ          entity.RecordType
	version      int64
	payload      []byte
	aggregateIDs []string
	seq          int64
}

// Store estado confirmado más la tabla de locks.
type Store struct {
	mu      sync.RWMutex
	aggs    map[entity.AggregateKey]entity.Aggregate
	records map[string]storedRecord
	seq     int64

	locks       *lockTable
	lockTimeout time.Duration
}

// NewStore construye un store vacío. lockTimeout <= 0 usa DefaultLockTimeout.
func NewStore(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Store{
		aggs:        make(map[entity.AggregateKey]entity.Aggregate),
		records:     make(map[string]storedRecord),
		locks:       newLockTable(),
		lockTimeout: lockTimeout,
	}
}

// Aggregates repositorio de lecturas confirmadas (las escrituras abren su propia transacción).
func (s *Store) Aggregates() repository.AggregateRepository { return &aggregateRepo{s: s} }

// Records repositorio de lecturas confirmadas (las escrituras abren su propia transacción).
func (s *Store) Records() repository.RecordRepository { return &recordRepo{s: s} }

// Run ejecuta fn en una transacción; confirma si fn no devuelve error.
func (s *Store) Run(ctx context.Context, fn func(
	aggRepo repository.AggregateRepository,
	recRepo repository.RecordRepository,
) error) error {
	t := s.begin(ctx)
	defer t.release()
	if err := fn(&aggregateRepo{s: s, tx: t}, &recordRepo{s: s, tx: t}); err != nil {
		return err
	}
	return t.commit()
}

type stagedAggregate struct {
	agg             entity.Aggregate
	create          bool
	expectedVersion int64
}

type stagedRecord struct {
	rec             storedRecord
	create          bool
	expectedVersion int64
}

type tx struct {
	s       *Store
	ctx     context.Context
	held    []string
	holding map[string]bool
	aggs    map[entity.AggregateKey]stagedAggregate
	aggKeys []entity.AggregateKey
	records map[string]stagedRecord
	recIDs  []string
}

func (s *Store) begin(ctx context.Context) *tx {
	return &tx{
		s:       s,
		ctx:     ctx,
		holding: make(map[string]bool),
		aggs:    make(map[entity.AggregateKey]stagedAggregate),
		records: make(map[string]stagedRecord),
	}
}

func (t *tx) lock(name string) error {
	if t.holding[name] {
		return nil
	}
	if err := t.s.locks.acquire(t.ctx, name, t.s.lockTimeout); err != nil {
		return err
	}
	t.holding[name] = true
	t.held = append(t.held, name)
	return nil
}

func (t *tx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.s.locks.release(t.held[i])
	}
	t.held = nil
	t.holding = map[string]bool{}
}

// commit publica todas las escrituras o ninguna: revalida existencia y versiones bajo el mutex global.
func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range t.aggKeys {
		st := t.aggs[k]
		cur, exists := s.aggs[k]
		switch {
		case st.create && exists:
			return fmt.Errorf("agregado %s: %w", k, domain.ErrDuplicate)
		case !st.create && (!exists || cur.Version != st.expectedVersion):
			return fmt.Errorf("agregado %s: %w", k, domain.ErrConcurrencyConflict)
		}
	}
	for _, id := range t.recIDs {
		st := t.records[id]
		cur, exists := s.records[id]
		switch {
		case st.create && exists:
			return fmt.Errorf("registro %s: %w", id, domain.ErrDuplicate)
		case !st.create && (!exists || cur.version != st.expectedVersion):
			return fmt.Errorf("registro %s: %w", id, domain.ErrConcurrencyConflict)
		}
	}

	for _, k := range t.aggKeys {
		s.aggs[k] = t.aggs[k].agg
	}
	for _, id := range t.recIDs {
		st := t.records[id]
		if st.create {
			s.seq++
			st.rec.seq = s.seq
		} else {
			st.rec.seq = s.records[id].seq
		}
		s.records[id] = st.rec
	}
	return nil
}

// lockTable un semáforo de capacidad 1 por nombre; la espera está acotada por timeout y contexto.
// Cada entrada cuenta quién la tiene o la espera y se borra al quedar sin uso.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]*lockSlot)}
}

func (l *lockTable) ref(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, ok := l.slots[name]
	if !ok {
		sl = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[name] = sl
	}
	sl.refs++
	return sl.ch
}

func (l *lockTable) unref(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, ok := l.slots[name]
	if !ok {
		return
	}
	sl.refs--
	if sl.refs <= 0 {
		delete(l.slots, name)
	}
}

func (l *lockTable) acquire(ctx context.Context, name string, timeout time.Duration) error {
	ch := l.ref(name)
	select {
	case ch <- struct{}{}:
		return nil
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		l.unref(name)
		return fmt.Errorf("lock %s: %w", name, domain.ErrConcurrencyConflict)
	case <-ctx.Done():
		l.unref(name)
		return fmt.Errorf("lock %s: %w", name, ctx.Err())
	}
}

// release libera un lock tomado con acquire.
func (l *lockTable) release(name string) {
	l.mu.Lock()
	sl, ok := l.slots[name]
	l.mu.Unlock()
	if !ok {
		return
	}
	<-sl.ch
	l.unref(name)
}

func aggLockName(k entity.AggregateKey) string { return "agg:" + k.String() }
func recLockName(id string) string            { return "rec:" + id }

func sortKeys(keys []entity.AggregateKey) []entity.AggregateKey {
	out := append([]entity.AggregateKey(nil), keys...)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
