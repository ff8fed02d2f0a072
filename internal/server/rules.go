package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/wxbrief/internal/rules"
	"github.com/mohammad-safakhou/wxbrief/internal/store"
)

// RulesHandler is the admin CRUD surface for alert rules. The whole group sits
// behind the JWT middleware.
type RulesHandler struct {
	Store *store.Store
}

func (h *RulesHandler) Register(g *echo.Group, secret []byte) {
	g.Use(authRequired(secret))
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.remove)
	g.GET("/:id/events", h.events)
}

type ruleRequest struct {
	Name       string `json:"name"`
	Place      string `json:"place"`
	Condition  string `json:"condition"`
	Schedule   string `json:"schedule"`
	Severity   string `json:"severity"`
	Method     string `json:"method"`
	WebhookURL string `json:"webhook_url"`
	Enabled    *bool  `json:"enabled"`
}

func (r ruleRequest) rule() rules.Rule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	schedule := r.Schedule
	if schedule == "" {
		schedule = "@daily"
	}
	return rules.Rule{
		Name:       r.Name,
		Place:      r.Place,
		Condition:  r.Condition,
		Schedule:   schedule,
		Severity:   r.Severity,
		Method:     r.Method,
		WebhookURL: r.WebhookURL,
		Enabled:    enabled,
	}
}

func (h *RulesHandler) list(c echo.Context) error {
	enabledOnly, _ := strconv.ParseBool(c.QueryParam("enabled"))
	out, err := h.Store.ListRules(c.Request().Context(), enabledOnly)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if out == nil {
		out = []rules.Rule{}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RulesHandler) create(c echo.Context) error {
	var req ruleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r := req.rule()
	if err := r.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.Store.CreateRule(c.Request().Context(), r)
	if err != nil {
		if errors.Is(err, store.ErrRuleExists) {
			return echo.NewHTTPError(http.StatusConflict, "rule name already in use")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *RulesHandler) get(c echo.Context) error {
	r, ok, err := h.Store.GetRule(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "rule not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *RulesHandler) update(c echo.Context) error {
	var req ruleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r := req.rule()
	r.ID = c.Param("id")
	if err := r.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.Store.UpdateRule(c.Request().Context(), r)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return echo.NewHTTPError(http.StatusNotFound, "rule not found")
		case errors.Is(err, store.ErrRuleExists):
			return echo.NewHTTPError(http.StatusConflict, "rule name already in use")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *RulesHandler) remove(c echo.Context) error {
	if err := h.Store.DeleteRule(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "rule not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *RulesHandler) events(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	out, err := h.Store.ListRuleEvents(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if out == nil {
		out = []store.RuleEvent{}
	}
	return c.JSON(http.StatusOK, out)
}
