package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Eventos-api/internal/application/dto"
	"github.com/jhoicas/Eventos-api/internal/application/ledger"
	"github.com/jhoicas/Eventos-api/internal/domain"
	"github.com/jhoicas/Eventos-api/internal/domain/entity"
)

// LedgerHandler expone el motor de propagación al front-end administrativo (protegido).
type LedgerHandler struct {
	engine *ledger.Engine
	events *ledger.EventCostAccumulator
	log    zerolog.Logger
}

// NewLedgerHandler construye el handler.
func NewLedgerHandler(engine *ledger.Engine, events *ledger.EventCostAccumulator, log zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{engine: engine, events: events, log: log}
}

// RegisterAggregate godoc
// @Summary      Registrar agregado (producto, evento, caja, vehículo) con valores de apertura
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RegisterAggregateRequest  true  "kind, id, values, refs"
// @Success      201   {array}   dto.AggregateResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/aggregates [post]
func (h *LedgerHandler) RegisterAggregate(c *fiber.Ctx) error {
	var in dto.RegisterAggregateRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	opening := entity.Opening{
		Values: make(map[entity.Field]decimal.Decimal, len(in.Values)),
		Refs:   make(map[entity.Field]string, len(in.Refs)),
	}
	for f, v := range in.Values {
		opening.Values[entity.Field(f)] = v
	}
	for f, r := range in.Refs {
		opening.Refs[entity.Field(f)] = r
	}
	if err := h.engine.RegisterAggregate(c.Context(), entity.AggregateKind(in.Kind), in.ID, opening); err != nil {
		return h.writeError(c, err)
	}
	aggs, err := h.engine.AggregateFields(c.Context(), in.ID)
	if err != nil {
		return h.writeError(c, err)
	}
	out := make([]dto.AggregateResponse, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, toAggregateResponse(*a))
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// GetAggregate godoc
// @Summary      Todos los campos de un agregado
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID del agregado"
// @Success      200  {array}   dto.AggregateResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/aggregates/{id} [get]
func (h *LedgerHandler) GetAggregate(c *fiber.Ctx) error {
	aggs, err := h.engine.AggregateFields(c.Context(), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	out := make([]dto.AggregateResponse, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, toAggregateResponse(*a))
	}
	return c.JSON(out)
}

// GetAggregateValue godoc
// @Summary      Valor confirmado de un campo (getAggregateValue)
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        id     path  string  true  "ID del agregado"
// @Param        field  path  string  true  "stock_quantity | stock_location | event_revenue_total | event_cost_total | cash_balance | vehicle_odometer"
// @Success      200  {object}  dto.AggregateResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/aggregates/{id}/{field} [get]
func (h *LedgerHandler) GetAggregateValue(c *fiber.Ctx) error {
	agg, err := h.engine.Aggregate(c.Context(), c.Params("id"), entity.Field(c.Params("field")))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(toAggregateResponse(*agg))
}

// ListAggregateRecords godoc
// @Summary      Registros que alimentan un agregado (más reciente primero)
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        id      path   string  true   "ID del agregado"
// @Param        limit   query  int     false  "máximo 100"
// @Param        offset  query  int     false  "desplazamiento"
// @Success      200  {object}  dto.RecordListResponse
// @Router       /api/aggregates/{id}/records [get]
func (h *LedgerHandler) ListAggregateRecords(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_QUERY", Message: "limit/offset inválidos"})
	}
	page.DefaultPage()
	id := c.Params("id")
	recs, err := h.engine.RecordsForAggregate(c.Context(), id, page.Limit, page.Offset)
	if err != nil {
		return h.writeError(c, err)
	}
	out := dto.RecordListResponse{
		AggregateID: id,
		Records:     make([]dto.RecordResponse, 0, len(recs)),
		Page:        dto.PageResponse{Limit: page.Limit, Offset: page.Offset},
	}
	for _, r := range recs {
		out.Records = append(out.Records, dto.RecordResponse{Type: string(r.Type()), Record: r})
	}
	return c.JSON(out)
}

// CreateRecord godoc
// @Summary      Crear registro transaccional y propagar sus efectos
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RecordRequest  true  "type + campos del tipo; id opcional (idempotencia)"
// @Success      201  {object}  dto.SubmitResponse
// @Success      200  {object}  dto.SubmitResponse  "reenvío idempotente"
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/records [post]
func (h *LedgerHandler) CreateRecord(c *fiber.Ctx) error {
	var in dto.RecordRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	res, err := h.engine.CreateRecord(c.Context(), ledger.CreateRecordInput{
		Type:      entity.RecordType(in.Type),
		ID:        in.ID,
		CreatedBy: GetUserID(c),
		Fields:    toRecordFields(in),
	})
	if err != nil {
		return h.writeError(c, err)
	}
	status := fiber.StatusCreated
	if res.Replayed {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(toSubmitResponse(res))
}

// UpdateRecord godoc
// @Summary      Corregir registro (aplica solo el delta neto)
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "ID del registro"
// @Param        body  body  dto.RecordRequest  true  "campos a corregir; version opcional"
// @Success      200  {object}  dto.SubmitResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/records/{id} [put]
func (h *LedgerHandler) UpdateRecord(c *fiber.Ctx) error {
	var in dto.RecordRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.Type != "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "el tipo de un registro no se corrige"})
	}
	res, err := h.engine.UpdateRecord(c.Context(), c.Params("id"), ledger.UpdateRecordInput{
		Version: in.Version,
		Fields:  toRecordFields(in),
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(toSubmitResponse(res))
}

// GetRecord godoc
// @Summary      Versión vigente de un registro
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID del registro"
// @Success      200  {object}  dto.RecordResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/records/{id} [get]
func (h *LedgerHandler) GetRecord(c *fiber.Ctx) error {
	rec, err := h.engine.Record(c.Context(), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(dto.RecordResponse{Type: string(rec.Type()), Record: rec})
}

// GetEventTotals godoc
// @Summary      Receita, costo y lucro estimado de un evento
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID del evento"
// @Success      200  {object}  dto.EventTotalsResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/events/{id}/totals [get]
func (h *LedgerHandler) GetEventTotals(c *fiber.Ctx) error {
	t, err := h.events.Totals(c.Context(), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(dto.EventTotalsResponse{EventID: t.EventID, Revenue: t.Revenue, Cost: t.Cost, Profit: t.Profit})
}

// writeError traduce errores de dominio a status HTTP.
func (h *LedgerHandler) writeError(c *fiber.Ctx, err error) error {
	var ve *domain.ValidationError
	var iv *domain.InvariantViolation
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Code: "VALIDATION", Message: ve.Error(), Details: fiber.Map{"field": ve.Field},
		})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.As(err, &iv):
		code := "INVARIANT_VIOLATION"
		if errors.Is(err, domain.ErrInsufficientStock) {
			code = "INSUFFICIENT_STOCK"
		}
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Code:    code,
			Message: iv.Error(),
			Details: dto.InvariantViolationDetails{
				AggregateID: iv.AggregateID,
				Field:       iv.Field,
				Current:     iv.Current,
				Attempted:   iv.Attempted,
				Constraint:  iv.Constraint,
			},
		})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "DUPLICATE", Message: err.Error()})
	case errors.Is(err, ledger.ErrStaleVersion):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "STALE_VERSION", Message: "el registro cambió; relea y reintente"})
	case errors.Is(err, domain.ErrConcurrencyConflict):
		c.Set(fiber.HeaderRetryAfter, "1")
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "CONCURRENCY_CONFLICT", Message: "conflicto de concurrencia, intente de nuevo"})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	}
	h.log.Error().Err(err).Str("path", c.Path()).Msg("error interno")
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: "error interno"})
}

func toAggregateResponse(a entity.Aggregate) dto.AggregateResponse {
	return dto.AggregateResponse{
		ID:        a.ID,
		Field:     string(a.Field),
		Kind:      string(a.Kind),
		Value:     a.Value,
		Ref:       a.Ref,
		Version:   a.Version,
		UpdatedAt: a.UpdatedAt,
	}
}

func toSubmitResponse(res *ledger.SubmitResult) dto.SubmitResponse {
	out := dto.SubmitResponse{
		RecordID:   res.RecordID,
		Version:    res.Version,
		Replayed:   res.Replayed,
		Aggregates: make([]dto.AggregateResponse, 0, len(res.Aggregates)),
	}
	for _, a := range res.Aggregates {
		out.Aggregates = append(out.Aggregates, toAggregateResponse(a))
	}
	return out
}

func toRecordFields(in dto.RecordRequest) ledger.RecordFields {
	return ledger.RecordFields{
		MovementType:      in.MovementType,
		ProductID:         in.ProductID,
		FromLocation:      in.FromLocation,
		ToLocation:        in.ToLocation,
		EventID:           in.EventID,
		EmployeeID:        in.EmployeeID,
		CategoryKind:      in.CategoryKind,
		CategoryID:        in.CategoryID,
		CashAccountID:     in.CashAccountID,
		ContractID:        in.ContractID,
		VehicleID:         in.VehicleID,
		Status:            in.Status,
		Notes:             in.Notes,
		Quantity:          in.Quantity,
		Value:             in.Value,
		UnitCost:          in.UnitCost,
		Paid:              in.Paid,
		PaymentDate:       in.PaymentDate,
		DueDate:           in.DueDate,
		DepartedAt:        in.DepartedAt,
		DepartureOdometer: in.DepartureOdometer,
		ArrivedAt:         in.ArrivedAt,
		ArrivalOdometer:   in.ArrivalOdometer,
	}
}
