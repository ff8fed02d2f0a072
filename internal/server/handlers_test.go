package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/wxbrief/config"
	"github.com/mohammad-safakhou/wxbrief/internal/archive"
	"github.com/mohammad-safakhou/wxbrief/internal/orchestrator"
	"github.com/mohammad-safakhou/wxbrief/internal/store"
)

func testServerConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		General: config.GeneralConfig{
			Units:         "imperial",
			Style:         "standard",
			Persona:       "default",
			Offline:       true,
			QueryDeadline: 30 * time.Second,
		},
		Sources: config.SourcesConfig{
			AdapterTimeout:  time.Second,
			AssemblyTimeout: 2 * time.Second,
			Priority:        []string{"geocode", "obs", "outlook", "alerts", "profile", "discussion"},
			UserAgent:       "wxbrief-test",
		},
		Providers: config.ProvidersConfig{
			MaxRetries:  1,
			BaseBackoff: time.Millisecond,
			MaxBackoff:  time.Millisecond,
			WallBudget:  5 * time.Second,
			Temperature: 0.2,
			MaxTokens:   900,
		},
		Budget:  config.BudgetConfig{Cap: 400},
		Privacy: config.PrivacyConfig{Enabled: false, StateDir: t.TempDir()},
	}
}

func newBriefHandler(t *testing.T) (*BriefHandler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	orch, err := orchestrator.New(testServerConfig(t), nil, nil)
	if err != nil {
		db.Close()
		t.Fatalf("orchestrator.New: %v", err)
	}
	idx, err := archive.New()
	if err != nil {
		db.Close()
		t.Fatalf("archive.New: %v", err)
	}
	h := &BriefHandler{Orch: orch, Store: &store.Store{DB: db}, Archive: idx}
	cleanup := func() {
		idx.Close()
		db.Close()
	}
	return h, mock, cleanup
}

func getContext(target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

var insertBrief = regexp.QuoteMeta(`
INSERT INTO briefs (place, kind, question, provider, model, synthetic, degraded, response)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id, created_at
`)

func TestHealthEndpoint(t *testing.T) {
	h := &BriefHandler{}
	ctx, rec := getContext("/api/health")
	if err := h.health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" || resp["version"] != Version {
		t.Fatalf("unexpected health payload: %+v", resp)
	}
}

func TestBriefEndpointForecast(t *testing.T) {
	h, mock, cleanup := newBriefHandler(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(insertBrief).
		WithArgs("Boise", "forecast", nil, "synthesizer", nil, true, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("b1", now))

	ctx, rec := getContext("/api/brief?place=Boise&kind=forecast")
	if err := h.brief(ctx); err != nil {
		t.Fatalf("brief: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var b orchestrator.Brief
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("unmarshal brief: %v", err)
	}
	if b.Kind() != orchestrator.KindForecast || !b.Synthetic {
		t.Fatalf("unexpected brief: kind=%q synthetic=%v", b.Kind(), b.Synthetic)
	}
	if b.Response == nil || b.Response.BottomLine == "" {
		t.Fatal("expected a synthesized response")
	}
	if h.Archive.Len() != 1 {
		t.Fatalf("expected brief indexed, archive holds %d", h.Archive.Len())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBriefEndpointDefaultsToForecast(t *testing.T) {
	h, mock, cleanup := newBriefHandler(t)
	defer cleanup()

	mock.ExpectQuery(insertBrief).
		WithArgs("Boise", "forecast", nil, "synthesizer", nil, true, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("b1", time.Now().UTC()))

	ctx, rec := getContext("/api/brief?place=Boise")
	if err := h.brief(ctx); err != nil {
		t.Fatalf("brief: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBriefEndpointRiskCarriesHazards(t *testing.T) {
	h, mock, cleanup := newBriefHandler(t)
	defer cleanup()

	mock.ExpectQuery(insertBrief).
		WithArgs("Moore", "risk", nil, "synthesizer", nil, true, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("b2", time.Now().UTC()))

	ctx, rec := getContext("/api/brief?place=Moore&kind=risk&hazards=hail,wind")
	if err := h.brief(ctx); err != nil {
		t.Fatalf("brief: %v", err)
	}

	var b orchestrator.Brief
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("unmarshal brief: %v", err)
	}
	if len(b.Pack.Query.Hazards) != 2 || b.Pack.Query.Hazards[0] != "hail" || b.Pack.Query.Hazards[1] != "wind" {
		t.Fatalf("expected hazards [hail wind], got %v", b.Pack.Query.Hazards)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBriefEndpointRejectsUnknownKind(t *testing.T) {
	h, _, cleanup := newBriefHandler(t)
	defer cleanup()

	ctx, _ := getContext("/api/brief?place=Boise&kind=nowcast")
	err := h.brief(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %v", err)
	}
}

func TestBriefEndpointRequiresPlace(t *testing.T) {
	h, _, cleanup := newBriefHandler(t)
	defer cleanup()

	ctx, _ := getContext("/api/brief")
	err := h.brief(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without place, got %v", err)
	}
}

func TestAlertsEndpointComposedLocally(t *testing.T) {
	h, mock, cleanup := newBriefHandler(t)
	defer cleanup()

	mock.ExpectQuery(insertBrief).
		WithArgs("Moore", "alerts", nil, "local", nil, false, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("b3", time.Now().UTC()))

	ctx, rec := getContext("/api/alerts?place=Moore")
	if err := h.alerts(ctx); err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var b orchestrator.Brief
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("unmarshal brief: %v", err)
	}
	if b.Response.Provider != "local" || b.Synthetic {
		t.Fatalf("expected locally composed brief, got provider=%q synthetic=%v", b.Response.Provider, b.Synthetic)
	}
	if len(b.Attempts) != 0 {
		t.Fatalf("local composition should not attempt providers, got %d", len(b.Attempts))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWorldviewEndpoint(t *testing.T) {
	h, mock, cleanup := newBriefHandler(t)
	defer cleanup()

	mock.ExpectQuery(insertBrief).
		WithArgs("worldwide", "worldview", nil, "local", nil, false, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("b4", time.Now().UTC()))

	ctx, rec := getContext("/api/worldview?severe=true")
	if err := h.worldview(ctx); err != nil {
		t.Fatalf("worldview: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var b orchestrator.Brief
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("unmarshal brief: %v", err)
	}
	if b.Place() != "worldwide" || b.Response == nil {
		t.Fatalf("unexpected worldview brief: %+v", b)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchEndpoint(t *testing.T) {
	h, _, cleanup := newBriefHandler(t)
	defer cleanup()

	err := h.Archive.Add(store.BriefRecord{
		ID:        "b9",
		Place:     "Austin, TX",
		Kind:      "risk",
		Response:  json.RawMessage(`{"bottom_line":"Hail possible south of town after sunset."}`),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("archive add: %v", err)
	}

	ctx, rec := getContext("/api/search?q=hail")
	if err := h.search(ctx); err != nil {
		t.Fatalf("search: %v", err)
	}
	var hits []archive.Hit
	if err := json.Unmarshal(rec.Body.Bytes(), &hits); err != nil {
		t.Fatalf("unmarshal hits: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "b9" {
		t.Fatalf("unexpected hits: %+v", hits)
	}

	ctx, _ = getContext("/api/search")
	if err := h.search(ctx); err == nil {
		t.Fatal("expected 400 without q")
	}
}

func TestListBriefsEndpoint(t *testing.T) {
	h, mock, cleanup := newBriefHandler(t)
	defer cleanup()

	now := time.Now().UTC()
	query := regexp.QuoteMeta(`
SELECT id, place, kind, COALESCE(question,''), COALESCE(provider,''), COALESCE(model,''), synthetic, degraded, response, created_at
FROM briefs
ORDER BY created_at DESC
LIMIT $1
`)
	mock.ExpectQuery(query).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "place", "kind", "question", "provider", "model", "synthetic", "degraded", "response", "created_at"}).
			AddRow("b1", "Boise", "forecast", "", "synthesizer", "", true, false, []byte(`{"bottom_line":"quiet"}`), now))

	ctx, rec := getContext("/api/briefs")
	if err := h.listBriefs(ctx); err != nil {
		t.Fatalf("listBriefs: %v", err)
	}
	var recs []store.BriefRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &recs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "b1" {
		t.Fatalf("unexpected records: %+v", recs)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetBriefEndpointMissing(t *testing.T) {
	h, mock, cleanup := newBriefHandler(t)
	defer cleanup()

	query := regexp.QuoteMeta(`
SELECT id, place, kind, COALESCE(question,''), COALESCE(provider,''), COALESCE(model,''), synthetic, degraded, response, created_at
FROM briefs
WHERE id=$1
`)
	mock.ExpectQuery(query).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/briefs/nope", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("nope")

	err := h.getBrief(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
