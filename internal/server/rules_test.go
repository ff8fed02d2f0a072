package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"

	"github.com/mohammad-safakhou/wxbrief/internal/rules"
	"github.com/mohammad-safakhou/wxbrief/internal/store"
)

func newRulesHandler(t *testing.T) (*RulesHandler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return &RulesHandler{Store: &store.Store{DB: db}}, mock, func() { db.Close() }
}

func jsonContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

var insertRule = regexp.QuoteMeta(`
INSERT INTO rules (name, place, condition, schedule, severity, method, webhook_url, enabled)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id, created_at, updated_at
`)

func TestRulesCreate(t *testing.T) {
	h, mock, cleanup := newRulesHandler(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(insertRule).
		WithArgs("heat check", "Austin, TX", "temp > 100", "@hourly", "high", "log", nil, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("r1", now, now))

	ctx, rec := jsonContext(http.MethodPost, "/api/rules",
		`{"name":"heat check","place":"Austin, TX","condition":"temp > 100","schedule":"@hourly"}`)
	if err := h.create(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var r rules.Rule
	if err := json.Unmarshal(rec.Body.Bytes(), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.ID != "r1" || r.Severity != "high" || r.Method != rules.MethodLog || !r.Enabled {
		t.Fatalf("unexpected rule: %+v", r)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRulesCreateDefaultsSchedule(t *testing.T) {
	h, mock, cleanup := newRulesHandler(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(insertRule).
		WithArgs("wind watch", "Chicago, IL", "gusts >= 40", "@daily", "high", "log", nil, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("r2", now, now))

	ctx, _ := jsonContext(http.MethodPost, "/api/rules",
		`{"name":"wind watch","place":"Chicago, IL","condition":"gusts >= 40"}`)
	if err := h.create(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRulesCreateValidates(t *testing.T) {
	h, _, cleanup := newRulesHandler(t)
	defer cleanup()

	ctx, _ := jsonContext(http.MethodPost, "/api/rules",
		`{"name":"broken","place":"Austin, TX","condition":"pressure > 1000","schedule":"@hourly"}`)
	err := h.create(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad condition, got %v", err)
	}
}

func TestRulesCreateConflict(t *testing.T) {
	h, mock, cleanup := newRulesHandler(t)
	defer cleanup()

	mock.ExpectQuery(insertRule).
		WithArgs("heat check", "Austin, TX", "temp > 100", "@hourly", "high", "log", nil, true).
		WillReturnError(&pq.Error{Code: "23505"})

	ctx, _ := jsonContext(http.MethodPost, "/api/rules",
		`{"name":"heat check","place":"Austin, TX","condition":"temp > 100","schedule":"@hourly"}`)
	err := h.create(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate name, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRulesListEmpty(t *testing.T) {
	h, mock, cleanup := newRulesHandler(t)
	defer cleanup()

	query := regexp.QuoteMeta(`
SELECT id, name, place, condition, schedule, severity, method, COALESCE(webhook_url,''), enabled, last_triggered, created_at, updated_at
FROM rules
ORDER BY created_at DESC
`)
	mock.ExpectQuery(query).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "place", "condition", "schedule", "severity", "method", "webhook_url", "enabled", "last_triggered", "created_at", "updated_at"}))

	ctx, rec := jsonContext(http.MethodGet, "/api/rules", "")
	if err := h.list(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected [] for empty list, got %q", rec.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRulesDelete(t *testing.T) {
	h, mock, cleanup := newRulesHandler(t)
	defer cleanup()

	del := regexp.QuoteMeta(`DELETE FROM rules WHERE id=$1`)
	mock.ExpectExec(del).WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(del).WithArgs("r-missing").WillReturnResult(sqlmock.NewResult(0, 0))

	withParam := func(id string) (echo.Context, *httptest.ResponseRecorder) {
		ctx, rec := jsonContext(http.MethodDelete, "/api/rules/"+id, "")
		ctx.SetParamNames("id")
		ctx.SetParamValues(id)
		return ctx, rec
	}

	ctx, rec := withParam("r1")
	if err := h.remove(ctx); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	ctx, _ = withParam("r-missing")
	err := h.remove(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing rule, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRulesEvents(t *testing.T) {
	h, mock, cleanup := newRulesHandler(t)
	defer cleanup()

	now := time.Now().UTC()
	query := regexp.QuoteMeta(`
SELECT id, rule_id, fired, COALESCE(detail,''), checked_at
FROM rule_events
WHERE rule_id=$1
ORDER BY checked_at DESC
LIMIT $2
`)
	mock.ExpectQuery(query).WithArgs("r1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "rule_id", "fired", "detail", "checked_at"}).
			AddRow(int64(3), "r1", true, "Austin, TX: temp > 100 (observed 104, threshold > 100)", now))

	ctx, rec := jsonContext(http.MethodGet, "/api/rules/r1/events", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("r1")
	if err := h.events(ctx); err != nil {
		t.Fatalf("events: %v", err)
	}

	var out []store.RuleEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || !out[0].Fired {
		t.Fatalf("unexpected events: %+v", out)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRulesGroupRequiresAuth(t *testing.T) {
	h, mock, cleanup := newRulesHandler(t)
	defer cleanup()

	secret := []byte("test-secret")
	e := echo.New()
	h.Register(e.Group("/api/rules"), secret)

	req := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	query := regexp.QuoteMeta(`
SELECT id, name, place, condition, schedule, severity, method, COALESCE(webhook_url,''), enabled, last_triggered, created_at, updated_at
FROM rules
ORDER BY created_at DESC
`)
	mock.ExpectQuery(query).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "place", "condition", "schedule", "severity", "method", "webhook_url", "enabled", "last_triggered", "created_at", "updated_at"}))

	signed, err := signJWT("admin", secret, time.Hour)
	if err != nil {
		t.Fatalf("signJWT: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/rules", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
