// Package store persists rules, rule check events and served briefs in
// Postgres. It is only wired up in server mode; the CLI runs without it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/mohammad-safakhou/wxbrief/config"
	"github.com/mohammad-safakhou/wxbrief/internal/rules"
)

type Store struct {
	DB *sql.DB
}

// ErrRuleExists indicates a rule with the same name is already stored.
var ErrRuleExists = errors.New("rule name already in use")

// New connects to Postgres using the storage config and pings it.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Rule operations

// CreateRule inserts a rule and returns it with the generated id and
// timestamps filled in.
func (s *Store) CreateRule(ctx context.Context, r rules.Rule) (rules.Rule, error) {
	if err := r.Validate(); err != nil {
		return rules.Rule{}, err
	}
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO rules (name, place, condition, schedule, severity, method, webhook_url, enabled)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id, created_at, updated_at
`, r.Name, r.Place, r.Condition, r.Schedule, r.Severity, r.Method, nullableString(r.WebhookURL), r.Enabled)
	if err := row.Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return rules.Rule{}, ErrRuleExists
		}
		return rules.Rule{}, err
	}
	return r, nil
}

// GetRule fetches a rule by id. Bool indicates whether it exists.
func (s *Store) GetRule(ctx context.Context, id string) (rules.Rule, bool, error) {
	if strings.TrimSpace(id) == "" {
		return rules.Rule{}, false, fmt.Errorf("rule id required")
	}
	row := s.DB.QueryRowContext(ctx, `
SELECT id, name, place, condition, schedule, severity, method, COALESCE(webhook_url,''), enabled, last_triggered, created_at, updated_at
FROM rules
WHERE id=$1
`, id)
	var r rules.Rule
	if err := row.Scan(&r.ID, &r.Name, &r.Place, &r.Condition, &r.Schedule, &r.Severity, &r.Method, &r.WebhookURL, &r.Enabled, &r.LastTriggered, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rules.Rule{}, false, nil
		}
		return rules.Rule{}, false, err
	}
	return r, true, nil
}

// ListRules returns stored rules, optionally only the enabled ones.
func (s *Store) ListRules(ctx context.Context, enabledOnly bool) ([]rules.Rule, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if enabledOnly {
		rows, err = s.DB.QueryContext(ctx, `
SELECT id, name, place, condition, schedule, severity, method, COALESCE(webhook_url,''), enabled, last_triggered, created_at, updated_at
FROM rules
WHERE enabled
ORDER BY created_at DESC
`)
	} else {
		rows, err = s.DB.QueryContext(ctx, `
SELECT id, name, place, condition, schedule, severity, method, COALESCE(webhook_url,''), enabled, last_triggered, created_at, updated_at
FROM rules
ORDER BY created_at DESC
`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		var r rules.Rule
		if err := rows.Scan(&r.ID, &r.Name, &r.Place, &r.Condition, &r.Schedule, &r.Severity, &r.Method, &r.WebhookURL, &r.Enabled, &r.LastTriggered, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRule rewrites a stored rule. sql.ErrNoRows when the id is unknown.
func (s *Store) UpdateRule(ctx context.Context, r rules.Rule) (rules.Rule, error) {
	if strings.TrimSpace(r.ID) == "" {
		return rules.Rule{}, fmt.Errorf("rule id required")
	}
	if err := r.Validate(); err != nil {
		return rules.Rule{}, err
	}
	row := s.DB.QueryRowContext(ctx, `
UPDATE rules
SET name=$2, place=$3, condition=$4, schedule=$5, severity=$6, method=$7, webhook_url=$8, enabled=$9, updated_at=NOW()
WHERE id=$1
RETURNING created_at, updated_at
`, r.ID, r.Name, r.Place, r.Condition, r.Schedule, r.Severity, r.Method, nullableString(r.WebhookURL), r.Enabled)
	if err := row.Scan(&r.CreatedAt, &r.UpdatedAt); err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return rules.Rule{}, ErrRuleExists
		}
		return rules.Rule{}, err
	}
	return r, nil
}

// DeleteRule removes a rule and its events. sql.ErrNoRows when missing.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("rule id required")
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	} else if err != nil {
		return err
	}
	return nil
}

// TouchRuleTriggered stamps when a rule last fired. sql.ErrNoRows when the id
// is unknown.
func (s *Store) TouchRuleTriggered(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("rule id required")
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE rules SET last_triggered=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	} else if err != nil {
		return err
	}
	return nil
}

// RuleEvent records one scheduler check of a rule.
type RuleEvent struct {
	ID        int64     `json:"id"`
	RuleID    string    `json:"rule_id"`
	Fired     bool      `json:"fired"`
	Detail    string    `json:"detail"`
	CheckedAt time.Time `json:"checked_at"`
}

// RecordRuleEvent appends a check event for a rule.
func (s *Store) RecordRuleEvent(ctx context.Context, ev RuleEvent) (RuleEvent, error) {
	if strings.TrimSpace(ev.RuleID) == "" {
		return RuleEvent{}, fmt.Errorf("rule_id required")
	}
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO rule_events (rule_id, fired, detail)
VALUES ($1,$2,$3)
RETURNING id, checked_at
`, ev.RuleID, ev.Fired, nullableString(strings.TrimSpace(ev.Detail)))
	if err := row.Scan(&ev.ID, &ev.CheckedAt); err != nil {
		return RuleEvent{}, err
	}
	return ev, nil
}

// ListRuleEvents returns the newest events for a rule.
func (s *Store) ListRuleEvents(ctx context.Context, ruleID string, limit int) ([]RuleEvent, error) {
	if strings.TrimSpace(ruleID) == "" {
		return nil, fmt.Errorf("rule_id required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, rule_id, fired, COALESCE(detail,''), checked_at
FROM rule_events
WHERE rule_id=$1
ORDER BY checked_at DESC
LIMIT $2
`, ruleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RuleEvent
	for rows.Next() {
		var ev RuleEvent
		if err := rows.Scan(&ev.ID, &ev.RuleID, &ev.Fired, &ev.Detail, &ev.CheckedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LatestCheckTime returns when a rule was last checked, nil if never.
func (s *Store) LatestCheckTime(ctx context.Context, ruleID string) (*time.Time, error) {
	var ts *time.Time
	err := s.DB.QueryRowContext(ctx, `SELECT MAX(checked_at) FROM rule_events WHERE rule_id=$1`, ruleID).Scan(&ts)
	return ts, err
}

// Brief operations

// BriefRecord is one served brief archived for later search.
type BriefRecord struct {
	ID        string          `json:"id"`
	Place     string          `json:"place"`
	Kind      string          `json:"kind"`
	Question  string          `json:"question"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	Synthetic bool            `json:"synthetic"`
	Degraded  bool            `json:"degraded"`
	Response  json.RawMessage `json:"response"`
	CreatedAt time.Time       `json:"created_at"`
}

// SaveBrief archives a served brief.
func (s *Store) SaveBrief(ctx context.Context, rec BriefRecord) (BriefRecord, error) {
	if strings.TrimSpace(rec.Place) == "" {
		return BriefRecord{}, fmt.Errorf("brief place required")
	}
	if len(rec.Response) == 0 {
		return BriefRecord{}, fmt.Errorf("brief response required")
	}
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO briefs (place, kind, question, provider, model, synthetic, degraded, response)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id, created_at
`, rec.Place, rec.Kind, nullableString(strings.TrimSpace(rec.Question)), nullableString(rec.Provider), nullableString(rec.Model), rec.Synthetic, rec.Degraded, []byte(rec.Response))
	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return BriefRecord{}, err
	}
	return rec, nil
}

// GetBrief fetches an archived brief by id. Bool indicates whether it exists.
func (s *Store) GetBrief(ctx context.Context, id string) (BriefRecord, bool, error) {
	if strings.TrimSpace(id) == "" {
		return BriefRecord{}, false, fmt.Errorf("brief id required")
	}
	row := s.DB.QueryRowContext(ctx, `
SELECT id, place, kind, COALESCE(question,''), COALESCE(provider,''), COALESCE(model,''), synthetic, degraded, response, created_at
FROM briefs
WHERE id=$1
`, id)
	var rec BriefRecord
	var respBytes []byte
	if err := row.Scan(&rec.ID, &rec.Place, &rec.Kind, &rec.Question, &rec.Provider, &rec.Model, &rec.Synthetic, &rec.Degraded, &respBytes, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BriefRecord{}, false, nil
		}
		return BriefRecord{}, false, err
	}
	rec.Response = append(json.RawMessage{}, respBytes...)
	return rec, true, nil
}

// ListBriefs returns archived briefs newest first, optionally filtered by place.
func (s *Store) ListBriefs(ctx context.Context, place string, limit int) ([]BriefRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(place) == "" {
		rows, err = s.DB.QueryContext(ctx, `
SELECT id, place, kind, COALESCE(question,''), COALESCE(provider,''), COALESCE(model,''), synthetic, degraded, response, created_at
FROM briefs
ORDER BY created_at DESC
LIMIT $1
`, limit)
	} else {
		rows, err = s.DB.QueryContext(ctx, `
SELECT id, place, kind, COALESCE(question,''), COALESCE(provider,''), COALESCE(model,''), synthetic, degraded, response, created_at
FROM briefs
WHERE place=$1
ORDER BY created_at DESC
LIMIT $2
`, place, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BriefRecord
	for rows.Next() {
		var rec BriefRecord
		var respBytes []byte
		if err := rows.Scan(&rec.ID, &rec.Place, &rec.Kind, &rec.Question, &rec.Provider, &rec.Model, &rec.Synthetic, &rec.Degraded, &respBytes, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Response = append(json.RawMessage{}, respBytes...)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
