package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Eventos-api/internal/domain"
	"github.com/jhoicas/Eventos-api/internal/domain/entity"
	"github.com/jhoicas/Eventos-api/internal/domain/repository"
	"github.com/jhoicas/Eventos-api/internal/infrastructure/memory"
)

var stockKey = entity.AggregateKey{ID: "prod-1", Field: entity.FieldStockQuantity}

func seed(t *testing.T, s *memory.Store) {
	t.Helper()
	rows := entity.NewAggregates(entity.AggregateProduct, "prod-1", entity.Opening{
		Values: map[entity.Field]decimal.Decimal{entity.FieldStockQuantity: decimal.NewFromInt(10)},
	}, time.Now())
	require.NoError(t, s.Aggregates().Create(context.Background(), rows))
}

func TestRun_ErrorDescartaEscrituras(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore(0)
	seed(t, s)

	boom := errors.New("boom")
	err := s.Run(ctx, func(aggRepo repository.AggregateRepository, recRepo repository.RecordRepository) error {
		cur, err := aggRepo.GetForUpdate(ctx, []entity.AggregateKey{stockKey})
		require.NoError(t, err)
		next := *cur[stockKey]
		next.Value = decimal.NewFromInt(99)
		next.Version++
		require.NoError(t, aggRepo.Update(ctx, &next, cur[stockKey].Version))

		// Dentro de la transacción se lee la propia escritura; fuera todavía no.
		own, err := aggRepo.Get(ctx, stockKey)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(99).Equal(own.Value))
		committed, err := s.Aggregates().Get(ctx, stockKey)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(10).Equal(committed.Value))

		require.NoError(t, recRepo.Insert(ctx, &entity.StockMovement{RecordMeta: entity.RecordMeta{ID: "m1", Version: 1}, ProductID: "prod-1"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	agg, err := s.Aggregates().Get(ctx, stockKey)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(agg.Value))
	rec, err := s.Records().Get(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestUpdate_VersionEsperadaDistinta_Conflicto(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore(0)
	seed(t, s)

	agg, err := s.Aggregates().Get(ctx, stockKey)
	require.NoError(t, err)
	next := *agg
	next.Version++
	require.NoError(t, s.Aggregates().Update(ctx, &next, agg.Version))

	err = s.Aggregates().Update(ctx, &next, agg.Version)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
}

func TestCreate_Duplicado(t *testing.T) {
	s := memory.NewStore(0)
	seed(t, s)
	rows := entity.NewAggregates(entity.AggregateProduct, "prod-1", entity.Opening{}, time.Now())
	assert.ErrorIs(t, s.Aggregates().Create(context.Background(), rows), domain.ErrDuplicate)
}

// Un lock retenido más allá del timeout devuelve conflicto de concurrencia.
func TestGetForUpdate_LockOcupado_Timeout(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore(30 * time.Millisecond)
	seed(t, s)

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx, func(aggRepo repository.AggregateRepository, _ repository.RecordRepository) error {
			_, err := aggRepo.GetForUpdate(ctx, []entity.AggregateKey{stockKey})
			close(locked)
			<-done
			return err
		})
	}()
	<-locked

	err := s.Run(ctx, func(aggRepo repository.AggregateRepository, _ repository.RecordRepository) error {
		_, err := aggRepo.GetForUpdate(ctx, []entity.AggregateKey{stockKey})
		return err
	})
	close(done)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
}

func TestGetForUpdate_OmiteClavesInexistentes(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore(0)
	seed(t, s)

	missing := entity.AggregateKey{ID: "prod-2", Field: entity.FieldStockQuantity}
	err := s.Run(ctx, func(aggRepo repository.AggregateRepository, _ repository.RecordRepository) error {
		got, err := aggRepo.GetForUpdate(ctx, []entity.AggregateKey{missing, stockKey})
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.NotNil(t, got[stockKey])
		return nil
	})
	require.NoError(t, err)
}

func TestRecords_UpdateYListado(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore(0)

	rec := &entity.StockMovement{RecordMeta: entity.RecordMeta{ID: "m1", Version: 1}, MovementType: entity.MovementTypeEntrada, ProductID: "prod-1", Quantity: decimal.NewFromInt(1)}
	require.NoError(t, s.Records().Insert(ctx, rec))
	assert.ErrorIs(t, s.Records().Insert(ctx, rec), domain.ErrDuplicate)

	next := rec.Clone().(*entity.StockMovement)
	next.Version = 2
	next.Quantity = decimal.NewFromInt(4)
	require.NoError(t, s.Records().Update(ctx, next, 1))
	assert.ErrorIs(t, s.Records().Update(ctx, next, 1), domain.ErrConcurrencyConflict)

	// Mutar el registro original no altera lo persistido.
	next.Quantity = decimal.NewFromInt(100)

	list, err := s.Records().ListByAggregate(ctx, "prod-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].Meta().Version)
	assert.True(t, decimal.NewFromInt(4).Equal(list[0].(*entity.StockMovement).Quantity))

	list, err = s.Records().ListByAggregate(ctx, "prod-2", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
