package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Eventos-api/internal/application/ledger"
	"github.com/jhoicas/Eventos-api/internal/domain"
	"github.com/jhoicas/Eventos-api/internal/domain/repository"
	"github.com/jhoicas/Eventos-api/internal/infrastructure/memory"
	apphttp "github.com/jhoicas/Eventos-api/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/Eventos-api/pkg/jwt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

func buildLedgerApp(t *testing.T) *fiber.App {
	t.Helper()
	store := memory.NewStore(500 * time.Millisecond)
	cfg := ledger.Config{MaxRetries: 10, RetryBase: time.Millisecond, RetryMaxDelay: 10 * time.Millisecond}
	engine := ledger.NewEngine(store, store.Aggregates(), store.Records(), cfg, zerolog.Nop())
	return newApp(engine)
}

func newApp(engine *ledger.Engine) *fiber.App {
	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		Engine:    engine,
		Events:    ledger.NewEventCostAccumulator(engine),
		JWTSecret: testJWTSecret,
		Log:       zerolog.Nop(),
	})
	return app
}

// call lanza la petición con un token del rol dado y decodifica el cuerpo JSON.
func call(t *testing.T, app *fiber.App, role, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", tokenForRole(t, role))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func seedProduct(t *testing.T, app *fiber.App, id, stock string) {
	t.Helper()
	status, _ := call(t, app, pkgjwt.RoleAdmin, http.MethodPost, "/api/aggregates",
		`{"kind":"product","id":"`+id+`","values":{"stock_quantity":"`+stock+`"},"refs":{"stock_location":"deposito"}}`)
	require.Equal(t, http.StatusCreated, status)
}

func stockOf(t *testing.T, app *fiber.App, id string) string {
	t.Helper()
	status, body := call(t, app, pkgjwt.RoleConsulta, http.MethodGet, "/api/aggregates/"+id+"/stock_quantity", "")
	require.Equal(t, http.StatusOK, status)
	return body["value"].(string)
}

// ──────────────────────────────────────────────────────────────────────────────
// Registro de agregados
// ──────────────────────────────────────────────────────────────────────────────

func TestRegisterAggregate_SoloAdmin(t *testing.T) {
	app := buildLedgerApp(t)
	status, body := call(t, app, pkgjwt.RoleOperador, http.MethodPost, "/api/aggregates", `{"kind":"product","id":"p1"}`)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["code"])
}

func TestRegisterAggregate_DuplicadoRetorna409(t *testing.T) {
	app := buildLedgerApp(t)
	seedProduct(t, app, "p1", "10")
	status, body := call(t, app, pkgjwt.RoleAdmin, http.MethodPost, "/api/aggregates", `{"kind":"product","id":"p1"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "DUPLICATE", body["code"])
}

func TestRegisterAggregate_TipoDesconocidoRetorna400(t *testing.T) {
	app := buildLedgerApp(t)
	status, body := call(t, app, pkgjwt.RoleAdmin, http.MethodPost, "/api/aggregates", `{"kind":"barco","id":"x"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION", body["code"])
	assert.Equal(t, "kind", body["details"].(map[string]any)["field"])
}

func TestGetAggregateValue_Inexistente404(t *testing.T) {
	app := buildLedgerApp(t)
	status, body := call(t, app, pkgjwt.RoleConsulta, http.MethodGet, "/api/aggregates/nada/stock_quantity", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

// ──────────────────────────────────────────────────────────────────────────────
// Registros: creación, corrección, errores
// ──────────────────────────────────────────────────────────────────────────────

func TestCreateRecord_EntradaSumaYReenvioRetorna200(t *testing.T) {
	app := buildLedgerApp(t)
	seedProduct(t, app, "p1", "10")

	req := `{"type":"stock_movement","id":"m1","movement_type":"E","product_id":"p1","quantity":"5"}`
	status, body := call(t, app, pkgjwt.RoleOperador, http.MethodPost, "/api/records", req)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "m1", body["record_id"])
	assert.Equal(t, false, body["replayed"])
	assert.Equal(t, "15", stockOf(t, app, "p1"))

	status, body = call(t, app, pkgjwt.RoleOperador, http.MethodPost, "/api/records", req)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["replayed"])
	assert.Equal(t, "15", stockOf(t, app, "p1"), "el reenvío no vuelve a sumar")

	status, body = call(t, app, pkgjwt.RoleConsulta, http.MethodGet, "/api/records/m1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "stock_movement", body["type"])
	rec := body["record"].(map[string]any)
	assert.Equal(t, testUserID, rec["created_by"])
}

func TestCreateRecord_ConsultaNoEscribe(t *testing.T) {
	app := buildLedgerApp(t)
	status, _ := call(t, app, pkgjwt.RoleConsulta, http.MethodPost, "/api/records", `{"type":"stock_movement"}`)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestCreateRecord_SaidaMayorAlStockRetorna409ConDetalle(t *testing.T) {
	app := buildLedgerApp(t)
	seedProduct(t, app, "p1", "10")

	status, body := call(t, app, pkgjwt.RoleOperador, http.MethodPost, "/api/records",
		`{"type":"stock_movement","movement_type":"S","product_id":"p1","quantity":"11"}`)
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INSUFFICIENT_STOCK", body["code"])

	details := body["details"].(map[string]any)
	assert.Equal(t, "p1", details["aggregate_id"])
	assert.Equal(t, "stock_quantity", details["field"])
	assert.Equal(t, "10", details["current"])
	assert.Equal(t, "-1", details["attempted"])
	assert.Equal(t, domain.ConstraintNonNegativeStock, details["constraint"])
	assert.Equal(t, "10", stockOf(t, app, "p1"))
}

func TestCreateRecord_ValidacionRetorna400(t *testing.T) {
	app := buildLedgerApp(t)
	seedProduct(t, app, "p1", "10")

	cases := []struct {
		name string
		body string
	}{
		{"tipo desconocido", `{"type":"otro"}`},
		{"cantidad cero", `{"type":"stock_movement","movement_type":"E","product_id":"p1","quantity":"0"}`},
		{"campo ajeno al tipo", `{"type":"stock_movement","movement_type":"E","product_id":"p1","quantity":"1","vehicle_id":"v1"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := call(t, app, pkgjwt.RoleOperador, http.MethodPost, "/api/records", tc.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "VALIDATION", body["code"])
		})
	}

	status, body := call(t, app, pkgjwt.RoleOperador, http.MethodPost, "/api/records", `{"type":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_BODY", body["code"])
}

func TestCreateRecord_AgregadoInexistenteRetorna404(t *testing.T) {
	app := buildLedgerApp(t)
	status, body := call(t, app, pkgjwt.RoleOperador, http.MethodPost, "/api/records",
		`{"type":"stock_movement","movement_type":"E","product_id":"fantasma","quantity":"1"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestUpdateRecord_AplicaDeltaYVersiones(t *testing.T) {
	app := buildLedgerApp(t)
	seedProduct(t, app, "p1", "0")
	status, _ := call(t, app, pkgjwt.RoleOperador, http.MethodPost, "/api/records",
		`{"type":"stock_movement","id":"m1","movement_type":"E","product_id":"p1","quantity":"10"}`)
	require.Equal(t, http.StatusCreated, status)

	status, body := call(t, app, pkgjwt.RoleOperador, http.MethodPut, "/api/records/m1", `{"version":2,"quantity":"6"}`)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["version"])
	assert.Equal(t, "6", stockOf(t, app, "p1"))

	// misma versión con otro contenido: otra corrección ganó
	status, body = call(t, app, pkgjwt.RoleOperador, http.MethodPut, "/api/records/m1", `{"version":2,"quantity":"7"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "STALE_VERSION", body["code"])

	// salto de versión
	status, body = call(t, app, pkgjwt.RoleOperador, http.MethodPut, "/api/records/m1", `{"version":9,"quantity":"7"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body["code"])

	status, body = call(t, app, pkgjwt.RoleOperador, http.MethodPut, "/api/records/m1", `{"type":"vehicle_trip"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION", body["code"])

	status, _ = call(t, app, pkgjwt.RoleOperador, http.MethodPut, "/api/records/nada", `{"quantity":"1"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "6", stockOf(t, app, "p1"))
}

func TestListAggregateRecords_MasRecientePrimero(t *testing.T) {
	app := buildLedgerApp(t)
	seedProduct(t, app, "p1", "0")
	for _, id := range []string{"m1", "m2", "m3"} {
		status, _ := call(t, app, pkgjwt.RoleOperador, http.MethodPost, "/api/records",
			`{"type":"stock_movement","id":"`+id+`","movement_type":"E","product_id":"p1","quantity":"1"}`)
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := call(t, app, pkgjwt.RoleConsulta, http.MethodGet, "/api/aggregates/p1/records?limit=2", "")
	require.Equal(t, http.StatusOK, status)
	records := body["records"].([]any)
	require.Len(t, records, 2)
	first := records[0].(map[string]any)["record"].(map[string]any)
	assert.Equal(t, "m3", first["id"])
	assert.EqualValues(t, 2, body["page"].(map[string]any)["limit"])
}

// ──────────────────────────────────────────────────────────────────────────────
// Totales del evento
// ──────────────────────────────────────────────────────────────────────────────

func TestGetEventTotals_ReceitaCustoLucro(t *testing.T) {
	app := buildLedgerApp(t)
	status, _ := call(t, app, pkgjwt.RoleAdmin, http.MethodPost, "/api/aggregates", `{"kind":"event","id":"ev1"}`)
	require.Equal(t, http.StatusCreated, status)
	status, _ = call(t, app, pkgjwt.RoleAdmin, http.MethodPost, "/api/aggregates", `{"kind":"cash_account","id":"caja"}`)
	require.Equal(t, http.StatusCreated, status)

	status, _ = call(t, app, pkgjwt.RoleFinanzas, http.MethodPost, "/api/records",
		`{"type":"financial_entry","category_kind":"RE","cash_account_id":"caja","event_id":"ev1","value":"1000","status":"PE"}`)
	require.Equal(t, http.StatusCreated, status)
	status, _ = call(t, app, pkgjwt.RoleOperador, http.MethodPost, "/api/records",
		`{"type":"event_allocation","event_id":"ev1","employee_id":"e1","value":"200"}`)
	require.Equal(t, http.StatusCreated, status)

	status, body := call(t, app, pkgjwt.RoleConsulta, http.MethodGet, "/api/events/ev1/totals", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1000", body["revenue"])
	assert.Equal(t, "200", body["cost"])
	assert.Equal(t, "800", body["profit"])

	status, _ = call(t, app, pkgjwt.RoleConsulta, http.MethodGet, "/api/events/nada/totals", "")
	assert.Equal(t, http.StatusNotFound, status)
}

// ──────────────────────────────────────────────────────────────────────────────
// Conflicto de concurrencia persistente → 503
// ──────────────────────────────────────────────────────────────────────────────

type busyRunner struct{}

func (busyRunner) Run(context.Context, func(repository.AggregateRepository, repository.RecordRepository) error) error {
	return domain.ErrConcurrencyConflict
}

func TestCreateRecord_ConflictoPersistenteRetorna503(t *testing.T) {
	store := memory.NewStore(time.Second)
	cfg := ledger.Config{MaxRetries: 2, RetryBase: time.Millisecond, RetryMaxDelay: time.Millisecond}
	engine := ledger.NewEngine(busyRunner{}, store.Aggregates(), store.Records(), cfg, zerolog.Nop())
	app := newApp(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/records",
		strings.NewReader(`{"type":"stock_movement","movement_type":"E","product_id":"p1","quantity":"1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", tokenForRole(t, pkgjwt.RoleOperador))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "CONCURRENCY_CONFLICT")
}
