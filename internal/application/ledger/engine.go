package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LerianStudio/lib-uncommons/v2/uncommons/backoff"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhoicas/Eventos-api/internal/domain"
	"github.com/jhoicas/Eventos-api/internal/domain/entity"
	domledger "github.com/jhoicas/Eventos-api/internal/domain/ledger"
	"github.com/jhoicas/Eventos-api/internal/domain/repository"
)

var tracer = otel.Tracer("github.com/jhoicas/Eventos-api/internal/application/ledger")

// ErrStaleVersion la corrección se calculó sobre una versión que ya no es la vigente.
// No se reintenta dentro de Submit: hay que releer el registro (UpdateRecord lo hace).
var ErrStaleVersion = fmt.Errorf("%w: versión del registro desactualizada", domain.ErrConcurrencyConflict)

// Config política de reintentos ante conflictos de concurrencia.
type Config struct {
	MaxRetries    int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// DefaultConfig valores usados cuando la configuración viene vacía.
func DefaultConfig() Config {
	return Config{MaxRetries: 5, RetryBase: 10 * time.Millisecond, RetryMaxDelay: 500 * time.Millisecond}
}

// Engine es el motor de propagación: único punto de escritura de registros y agregados.
type Engine struct {
	txRunner TxRunner
	aggRepo  repository.AggregateRepository
	recRepo  repository.RecordRepository
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
}

// NewEngine construye el motor. aggRepo y recRepo se usan solo para lecturas confirmadas.
func NewEngine(
	txRunner TxRunner,
	aggRepo repository.AggregateRepository,
	recRepo repository.RecordRepository,
	cfg Config,
	log zerolog.Logger,
) *Engine {
	def := DefaultConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = def.RetryMaxDelay
	}
	return &Engine{
		txRunner: txRunner,
		aggRepo:  aggRepo,
		recRepo:  recRepo,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// SubmitResult resultado de una propagación confirmada.
type SubmitResult struct {
	RecordID string
	Version  int64
	Replayed bool
	// Aggregates valores resultantes de los agregados tocados (vacío en un reenvío).
	Aggregates []entity.Aggregate
}

// Submit crea (isNew) o corrige un registro y propaga sus deltas en una sola transacción:
// carga la versión previa, calcula f(nuevo) − f(previo), valida cada valor prospectivo con el
// ConsistencyGuard y solo entonces aplica todos los deltas y persiste el registro. Si algo falla no
// queda ningún cambio. Los conflictos de concurrencia se reintentan con backoff acotado.
func (e *Engine) Submit(ctx context.Context, rec entity.Record, isNew bool) (*SubmitResult, error) {
	if rec == nil {
		return nil, domain.NewValidationError("record", "requerido")
	}
	meta := rec.Meta()
	if isNew && meta.ID == "" {
		meta.ID = uuid.New().String()
	}

	ctx, span := tracer.Start(ctx, "ledger.Submit", trace.WithAttributes(
		attribute.String("record.type", string(rec.Type())),
		attribute.String("record.id", meta.ID),
		attribute.Bool("record.new", isNew),
	))
	defer span.End()

	res, err := e.submit(ctx, rec, isNew)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logRejected(rec, isNew, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("record.version", res.Version), attribute.Bool("record.replayed", res.Replayed))
	e.log.Info().
		Str("record_type", string(rec.Type())).
		Str("record_id", res.RecordID).
		Int64("version", res.Version).
		Bool("new", isNew).
		Bool("replayed", res.Replayed).
		Int("aggregates", len(res.Aggregates)).
		Msg("registro propagado")
	return res, nil
}

func (e *Engine) submit(ctx context.Context, rec entity.Record, isNew bool) (*SubmitResult, error) {
	meta := rec.Meta()
	if meta.ID == "" {
		return nil, domain.NewValidationError("id", "requerido para corregir")
	}
	if isNew && meta.Version != 0 && meta.Version != 1 {
		return nil, domain.NewValidationError("version", "un registro nuevo empieza en la versión 1")
	}
	if meta.Version < 0 {
		return nil, domain.NewValidationError("version", "no puede ser negativa")
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	var res *SubmitResult
	err := e.retry(ctx, func() error {
		attempt := rec.Clone()
		r, err := e.submitOnce(ctx, attempt, isNew)
		if err != nil {
			return err
		}
		*meta = *attempt.Meta()
		res = r
		return nil
	})
	return res, err
}

func (e *Engine) submitOnce(ctx context.Context, rec entity.Record, isNew bool) (*SubmitResult, error) {
	res := &SubmitResult{RecordID: rec.Meta().ID}
	err := e.txRunner.Run(ctx, func(aggRepo repository.AggregateRepository, recRepo repository.RecordRepository) error {
		meta := rec.Meta()
		now := e.now()

		prior, err := recRepo.GetForUpdate(ctx, meta.ID)
		if err != nil {
			return err
		}
		replayed, err := e.stamp(rec, prior, isNew, now)
		if err != nil {
			return err
		}
		if replayed {
			*meta = *prior.Meta()
			res.Replayed = true
			res.Version = meta.Version
			return nil
		}

		var priorEffects []entity.Effect
		if !isNew {
			priorEffects = prior.Effects()
		}
		effects := domledger.Net(priorEffects, rec.Effects())
		keys := domledger.Keys(effects)

		current, err := aggRepo.GetForUpdate(ctx, keys)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if current[k] == nil {
				return fmt.Errorf("agregado %s: %w", k, domain.ErrNotFound)
			}
		}

		// Fase 1: todos los valores prospectivos pasan por el guard antes de escribir nada.
		staged := make(map[entity.AggregateKey]entity.Aggregate, len(keys))
		for _, eff := range effects {
			agg, ok := staged[eff.Key]
			if !ok {
				agg = *current[eff.Key]
			}
			if domledger.Replayed(agg, meta.ID, meta.Version) {
				continue
			}
			next, applied, err := domledger.Apply(agg, eff, meta.Version, now)
			if err != nil {
				return err
			}
			if applied {
				staged[eff.Key] = next
			}
		}

		// Fase 2: aplicar deltas y persistir el registro en la misma unidad atómica.
		for _, k := range keys {
			next, ok := staged[k]
			if !ok {
				continue
			}
			if err := aggRepo.Update(ctx, &next, current[k].Version); err != nil {
				return err
			}
			res.Aggregates = append(res.Aggregates, next)
		}
		if isNew {
			err = recRepo.Insert(ctx, rec)
		} else {
			err = recRepo.Update(ctx, rec, prior.Meta().Version)
		}
		if err != nil {
			return err
		}
		res.Version = meta.Version
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// stamp resuelve versión y marcas de tiempo del registro frente a su versión previa y detecta reenvíos.
func (e *Engine) stamp(rec, prior entity.Record, isNew bool, now time.Time) (replayed bool, err error) {
	meta := rec.Meta()
	if isNew {
		if prior != nil {
			pm := prior.Meta()
			if pm.Version > 1 || sameContent(prior, rec) {
				return true, nil
			}
			return false, fmt.Errorf("registro %s: %w", meta.ID, domain.ErrDuplicate)
		}
		meta.Version = 1
		meta.CreatedAt = now
		meta.UpdatedAt = now
		return false, nil
	}

	if prior == nil {
		return false, fmt.Errorf("registro %s: %w", meta.ID, domain.ErrNotFound)
	}
	pm := prior.Meta()
	switch {
	case meta.Version == 0:
		meta.Version = pm.Version + 1
	case meta.Version < pm.Version:
		return true, nil
	case meta.Version == pm.Version:
		if sameContent(prior, rec) {
			return true, nil
		}
		return false, ErrStaleVersion
	case meta.Version > pm.Version+1:
		return false, fmt.Errorf("versión %d tras %d: %w", meta.Version, pm.Version, domain.ErrConflict)
	}
	if err := rec.CheckCorrection(prior); err != nil {
		return false, err
	}
	meta.CreatedAt = pm.CreatedAt
	meta.CreatedBy = pm.CreatedBy
	meta.UpdatedAt = now
	return false, nil
}

// waitRetry espera antes del reintento attempt (desde 0): full jitter exponencial limitado a RetryMaxDelay.
func (e *Engine) waitRetry(ctx context.Context, attempt int) error {
	wait := min(backoff.ExponentialWithJitter(e.cfg.RetryBase, attempt), e.cfg.RetryMaxDelay)
	return backoff.WaitContext(ctx, wait)
}

// retry reintenta op mientras falle por conflicto de concurrencia transitorio (lock o CAS).
func (e *Engine) retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if serr := e.waitRetry(ctx, attempt-1); serr != nil {
				return serr
			}
		}
		err = op()
		if !retryable(err) {
			return err
		}
		e.log.Warn().Err(err).Int("attempt", attempt+1).Msg("conflicto de concurrencia, reintentando")
	}
	return fmt.Errorf("reintentos agotados (%d): %w", e.cfg.MaxRetries+1, err)
}

func retryable(err error) bool {
	return errors.Is(err, domain.ErrConcurrencyConflict) && !errors.Is(err, ErrStaleVersion)
}

func (e *Engine) logRejected(rec entity.Record, isNew bool, err error) {
	ev := e.log.Warn()
	if !errors.Is(err, domain.ErrInvalidInput) && !errors.Is(err, domain.ErrInvariantViolation) &&
		!errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrDuplicate) &&
		!errors.Is(err, domain.ErrConcurrencyConflict) && !errors.Is(err, domain.ErrConflict) {
		ev = e.log.Error()
	}
	ev.Err(err).
		Str("record_type", string(rec.Type())).
		Str("record_id", rec.Meta().ID).
		Bool("new", isNew).
		Msg("registro rechazado")
}

// RegisterAggregate crea las filas de un agregado (producto, evento, caja, vehículo) con sus valores de apertura.
// Es la única escritura de agregados fuera de Submit y nunca modifica uno existente.
func (e *Engine) RegisterAggregate(ctx context.Context, kind entity.AggregateKind, id string, opening entity.Opening) error {
	if !kind.Valid() {
		return domain.NewValidationError("kind", fmt.Sprintf("tipo de agregado desconocido %q", kind))
	}
	if id == "" {
		return domain.NewValidationError("id", "requerido")
	}
	for f, v := range opening.Values {
		if f.Kind() != kind {
			return domain.NewValidationError(string(f), "no pertenece al tipo de agregado")
		}
		if f == entity.FieldStockQuantity && v.IsNegative() {
			return domain.NewValidationError(string(f), "no puede ser negativo")
		}
	}
	for f := range opening.Refs {
		if f.Kind() != kind {
			return domain.NewValidationError(string(f), "no pertenece al tipo de agregado")
		}
	}
	rows := entity.NewAggregates(kind, id, opening, e.now())
	err := e.retry(ctx, func() error {
		return e.txRunner.Run(ctx, func(aggRepo repository.AggregateRepository, _ repository.RecordRepository) error {
			return aggRepo.Create(ctx, rows)
		})
	})
	if err != nil {
		return err
	}
	e.log.Info().Str("kind", string(kind)).Str("aggregate_id", id).Msg("agregado registrado")
	return nil
}

// AggregateValue getAggregateValue: valor confirmado de un campo.
func (e *Engine) AggregateValue(ctx context.Context, id string, field entity.Field) (decimal.Decimal, error) {
	agg, err := e.Aggregate(ctx, id, field)
	if err != nil {
		return decimal.Zero, err
	}
	return agg.Value, nil
}

// Aggregate devuelve la fila completa (incluye Ref para la ubicación del producto).
func (e *Engine) Aggregate(ctx context.Context, id string, field entity.Field) (*entity.Aggregate, error) {
	if !field.Valid() {
		return nil, domain.NewValidationError("field", fmt.Sprintf("campo desconocido %q", field))
	}
	agg, err := e.aggRepo.Get(ctx, entity.AggregateKey{ID: id, Field: field})
	if err != nil {
		return nil, err
	}
	if agg == nil {
		return nil, domain.ErrNotFound
	}
	return agg, nil
}

// AggregateFields todos los campos de un agregado.
func (e *Engine) AggregateFields(ctx context.Context, id string) ([]*entity.Aggregate, error) {
	aggs, err := e.aggRepo.ListByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(aggs) == 0 {
		return nil, domain.ErrNotFound
	}
	return aggs, nil
}

// Record devuelve la versión confirmada de un registro.
func (e *Engine) Record(ctx context.Context, id string) (entity.Record, error) {
	rec, err := e.recRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

// RecordsForAggregate registros que alimentan un agregado.
func (e *Engine) RecordsForAggregate(ctx context.Context, aggregateID string, limit, offset int) ([]entity.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return e.recRepo.ListByAggregate(ctx, aggregateID, limit, offset)
}
