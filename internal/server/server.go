// Package server exposes the briefing pipeline over HTTP: briefs, alerts and
// the worldview as JSON endpoints, admin-authenticated rule CRUD, full-text
// search over past briefs, and a background scheduler that re-checks rules.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/wxbrief/config"
	"github.com/mohammad-safakhou/wxbrief/internal/archive"
	"github.com/mohammad-safakhou/wxbrief/internal/httpx"
	"github.com/mohammad-safakhou/wxbrief/internal/orchestrator"
	"github.com/mohammad-safakhou/wxbrief/internal/store"
	"github.com/mohammad-safakhou/wxbrief/internal/telemetry"
)

// Version is reported by /api/health and the CLI.
const Version = "0.3.0"

// Run wires up storage, the orchestrator and the rule scheduler, then serves
// until the process exits. Postgres is required; redis is optional and only
// costs response caching and scheduler locks when absent.
func Run(cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.New()
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	ctx := context.Background()
	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	orch, err := orchestrator.New(cfg, metrics, orchLogger)
	if err != nil {
		return err
	}

	idx, err := archive.New()
	if err != nil {
		return err
	}
	if err := idx.Rebuild(ctx, st, 500); err != nil {
		log.Printf("archive rebuild failed, starting empty: %v", err)
	} else {
		log.Printf("archive holds %d briefs", idx.Len())
	}

	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}

	var rdb *redis.Client
	if raddr := cfg.Storage.Redis.Addr(); raddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: raddr, Password: cfg.Storage.Redis.Password, DB: cfg.Storage.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable at %s, running without response cache or scheduler locks: %v", raddr, err)
			_ = rdb.Close()
			rdb = nil
		}
	}

	api := e.Group("/api")

	auth := &AuthHandler{User: cfg.Server.AdminUser, PassHash: cfg.Server.AdminPassHash, Secret: []byte(secret)}
	auth.Register(api)

	bh := &BriefHandler{Orch: orch, Store: st, Archive: idx, Rdb: rdb}
	bh.Register(api)

	rh := &RulesHandler{Store: st}
	rh.Register(api.Group("/rules"), []byte(secret))

	sched := &Scheduler{
		Store: st,
		Orch:  orch,
		Rdb:   rdb,
		Stop:  make(chan struct{}),
		Units: cfg.General.Units,
		Hooks: httpx.NewClient(10*time.Second, 1, 500*time.Millisecond),
	}
	sched.Start()

	if addr == "" {
		addr = cfg.Server.Addr
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":8080"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
