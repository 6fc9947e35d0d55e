// seed registra los agregados (productos, eventos, cajas, vehículos) con sus saldos de apertura a partir
// de una planilla exportada del sistema anterior.
//
// Uso: go run ./cmd/seed [-charset ISO-8859-1] aperturas.csv
// Usa la misma configuración que la API (DB_*, LEDGER_*). Los agregados ya existentes se informan y se saltan.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/jhoicas/Eventos-api/internal/application/ledger"
	"github.com/jhoicas/Eventos-api/internal/domain"
	"github.com/jhoicas/Eventos-api/internal/infrastructure/postgres"
	"github.com/jhoicas/Eventos-api/pkg/config"
	"github.com/jhoicas/Eventos-api/pkg/logger"
)

func main() {
	charset := flag.String("charset", "UTF-8", "codificación de la planilla (UTF-8, ISO-8859-1, Windows-1252)")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "uso: seed [-charset ISO-8859-1] aperturas.csv")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargar configuración: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatal().Err(err).Msg("abrir planilla")
	}
	defer f.Close()

	openings, err := parseOpenings(decodeReader(f, *charset))
	if err != nil {
		log.Fatal().Err(err).Msg("planilla inválida")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("esquema del ledger")
	}

	engine := ledger.NewEngine(
		postgres.NewTxRunner(pool, cfg.Ledger.LockTimeout()),
		postgres.NewAggregateRepository(pool),
		postgres.NewRecordRepository(pool),
		ledger.Config{
			MaxRetries:    cfg.Ledger.MaxRetries,
			RetryBase:     cfg.Ledger.RetryBase(),
			RetryMaxDelay: cfg.Ledger.RetryMaxDelay(),
		},
		log.Component("seed"),
	)

	created, skipped := 0, 0
	for _, o := range openings {
		err := engine.RegisterAggregate(ctx, o.Kind, o.ID, o.Opening)
		switch {
		case errors.Is(err, domain.ErrDuplicate):
			skipped++
			log.Warn().Str("aggregate_id", o.ID).Msg("agregado ya existe, se salta")
		case err != nil:
			log.Fatal().Err(err).Str("aggregate_id", o.ID).Msg("registrar agregado")
		default:
			created++
		}
	}
	log.Info().Int("creados", created).Int("saltados", skipped).Msg("aperturas cargadas")
}
