package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/wxbrief/internal/archive"
	"github.com/mohammad-safakhou/wxbrief/internal/orchestrator"
	"github.com/mohammad-safakhou/wxbrief/internal/store"
)

// briefTTL bounds how long an identical brief request is served from redis.
const briefTTL = 5 * time.Minute

// BriefHandler serves briefs, alerts, the worldview and archive search. Every
// generated brief is persisted and indexed; with redis configured, repeat
// requests inside briefTTL are answered from cache without re-assembly.
type BriefHandler struct {
	Orch    *orchestrator.Orchestrator
	Store   *store.Store
	Archive *archive.Archive
	Rdb     *redis.Client
}

func (h *BriefHandler) Register(g *echo.Group) {
	g.GET("/health", h.health)
	g.GET("/brief", h.brief)
	g.GET("/alerts", h.alerts)
	g.GET("/worldview", h.worldview)
	g.GET("/search", h.search)
	g.GET("/briefs", h.listBriefs)
	g.GET("/briefs/:id", h.getBrief)
}

func (h *BriefHandler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func (h *BriefHandler) brief(c echo.Context) error {
	place := strings.TrimSpace(c.QueryParam("place"))
	if place == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "place required")
	}
	kind := c.QueryParam("kind")
	if kind == "" {
		kind = orchestrator.KindForecast
	}
	words, _ := strconv.Atoi(c.QueryParam("words"))
	opts := orchestrator.Options{Words: words, When: c.QueryParam("when"), Focus: c.QueryParam("focus")}

	key := cacheKey("brief", kind, place, strconv.Itoa(words))
	if raw, ok := h.cached(c.Request().Context(), key); ok {
		return c.JSONBlob(http.StatusOK, raw)
	}

	ctx := c.Request().Context()
	var (
		b   *orchestrator.Brief
		err error
	)
	switch kind {
	case orchestrator.KindForecast:
		b, err = h.Orch.Forecast(ctx, place, opts)
	case orchestrator.KindRisk:
		b, err = h.Orch.Risk(ctx, place, splitList(c.QueryParam("hazards")), opts)
	case orchestrator.KindStory:
		b, err = h.Orch.Story(ctx, place, opts)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "kind must be forecast, risk or story")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.persist(ctx, b)
	return h.respond(c, key, b)
}

func (h *BriefHandler) alerts(c echo.Context) error {
	place := strings.TrimSpace(c.QueryParam("place"))
	if place == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "place required")
	}
	ai, _ := strconv.ParseBool(c.QueryParam("ai"))

	key := cacheKey("alerts", place, strconv.FormatBool(ai))
	if raw, ok := h.cached(c.Request().Context(), key); ok {
		return c.JSONBlob(http.StatusOK, raw)
	}

	ctx := c.Request().Context()
	b, err := h.Orch.Alerts(ctx, place, ai, orchestrator.Options{})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.persist(ctx, b)
	return h.respond(c, key, b)
}

func (h *BriefHandler) worldview(c echo.Context) error {
	severe, _ := strconv.ParseBool(c.QueryParam("severe"))

	key := cacheKey("worldview", strconv.FormatBool(severe))
	if raw, ok := h.cached(c.Request().Context(), key); ok {
		return c.JSONBlob(http.StatusOK, raw)
	}

	ctx := c.Request().Context()
	b, err := h.Orch.Worldview(ctx, severe, orchestrator.Options{})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.persist(ctx, b)
	return h.respond(c, key, b)
}

func (h *BriefHandler) search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	hits, err := h.Archive.Search(q, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if hits == nil {
		hits = []archive.Hit{}
	}
	return c.JSON(http.StatusOK, hits)
}

func (h *BriefHandler) listBriefs(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	recs, err := h.Store.ListBriefs(c.Request().Context(), c.QueryParam("place"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if recs == nil {
		recs = []store.BriefRecord{}
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *BriefHandler) getBrief(c echo.Context) error {
	rec, ok, err := h.Store.GetBrief(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "brief not found")
	}
	return c.JSON(http.StatusOK, rec)
}

// persist archives a served brief in Postgres and the search index. Failures
// are logged but never fail the request that produced the brief.
func (h *BriefHandler) persist(ctx context.Context, b *orchestrator.Brief) {
	if h.Store == nil || b.Response == nil {
		return
	}
	raw, err := json.Marshal(b.Response)
	if err != nil {
		return
	}
	rec, err := h.Store.SaveBrief(ctx, store.BriefRecord{
		Place:     b.Place(),
		Kind:      b.Kind(),
		Question:  b.Pack.Query.Question,
		Provider:  b.Response.Provider,
		Model:     b.Response.Model,
		Synthetic: b.Synthetic,
		Degraded:  b.Pack.Degraded,
		Response:  raw,
	})
	if err != nil {
		log.Printf("save brief: %v", err)
		return
	}
	if h.Archive != nil {
		if err := h.Archive.Add(rec); err != nil {
			log.Printf("index brief: %v", err)
		}
	}
}

// respond serializes the brief once, feeding both the response and the cache.
func (h *BriefHandler) respond(c echo.Context, key string, b *orchestrator.Brief) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.Rdb != nil {
		if err := h.Rdb.Set(c.Request().Context(), key, raw, briefTTL).Err(); err != nil {
			log.Printf("response cache set: %v", err)
		}
	}
	return c.JSONBlob(http.StatusOK, raw)
}

func (h *BriefHandler) cached(ctx context.Context, key string) ([]byte, bool) {
	if h.Rdb == nil {
		return nil, false
	}
	raw, err := h.Rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return raw, true
}

func cacheKey(parts ...string) string {
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return "resp:" + strings.Join(parts, ":")
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
