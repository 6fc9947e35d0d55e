package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/Eventos-api/internal/application/ledger"
	"github.com/jhoicas/Eventos-api/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Engine    *ledger.Engine
	Events    *ledger.EventCostAccumulator
	JWTSecret string
	Log       zerolog.Logger
}

// Router registra las rutas de la API. Todas requieren Bearer Token.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))
	h := NewLedgerHandler(deps.Engine, deps.Events, deps.Log)

	writers := RequireRole(jwt.RoleAdmin, jwt.RoleOperador, jwt.RoleFinanzas)

	// Agregados: solo admin los da de alta; cualquier rol consulta.
	aggregates := api.Group("/aggregates")
	aggregates.Post("/", RequireRole(jwt.RoleAdmin), h.RegisterAggregate)
	aggregates.Get("/:id", h.GetAggregate)
	aggregates.Get("/:id/records", h.ListAggregateRecords)
	aggregates.Get("/:id/:field", h.GetAggregateValue)

	// Registros transaccionales
	records := api.Group("/records")
	records.Post("/", writers, h.CreateRecord)
	records.Put("/:id", writers, h.UpdateRecord)
	records.Get("/:id", h.GetRecord)

	// Eventos
	api.Get("/events/:id/totals", h.GetEventTotals)
}
