package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/Eventos-api/internal/application/ledger"
	"github.com/jhoicas/Eventos-api/internal/domain/repository"
	"github.com/jhoicas/Eventos-api/internal/infrastructure/memory"
	"github.com/jhoicas/Eventos-api/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/Eventos-api/internal/interfaces/http"
	"github.com/jhoicas/Eventos-api/pkg/config"
	"github.com/jhoicas/Eventos-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("store", cfg.Store.Driver).
		Msg("iniciando aplicación")

	ctx := context.Background()

	var (
		txRunner ledger.TxRunner
		aggRepo  repository.AggregateRepository
		recRepo  repository.RecordRepository
	)
	switch cfg.Store.Driver {
	case config.StoreMemory:
		// Solo desarrollo: los datos se pierden al reiniciar.
		store := memory.NewStore(cfg.Ledger.LockTimeout())
		txRunner, aggRepo, recRepo = store, store.Aggregates(), store.Records()
	default:
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("esquema del ledger")
		}
		txRunner = postgres.NewTxRunner(pool, cfg.Ledger.LockTimeout())
		aggRepo = postgres.NewAggregateRepository(pool)
		recRepo = postgres.NewRecordRepository(pool)
	}

	engine := ledger.NewEngine(txRunner, aggRepo, recRepo, ledger.Config{
		MaxRetries:    cfg.Ledger.MaxRetries,
		RetryBase:     cfg.Ledger.RetryBase(),
		RetryMaxDelay: cfg.Ledger.RetryMaxDelay(),
	}, log.Component("ledger"))
	events := ledger.NewEventCostAccumulator(engine)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "store": cfg.Store.Driver})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Engine:    engine,
		Events:    events,
		JWTSecret: cfg.JWT.Secret,
		Log:       log.Component("http"),
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
