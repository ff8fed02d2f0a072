// Package rules holds user-defined alert rules: a place, a threshold
// condition over fresh observations, and a schedule for how often the server
// re-checks it.
package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/mohammad-safakhou/wxbrief/internal/sources"
)

// Notification methods.
const (
	MethodLog     = "log"
	MethodWebhook = "webhook"
)

// Rule is one stored alert rule.
type Rule struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Place         string     `json:"place"`
	Condition     string     `json:"condition"`
	Schedule      string     `json:"schedule"`
	Severity      string     `json:"severity"`
	Method        string     `json:"method"`
	WebhookURL    string     `json:"webhook_url,omitempty"`
	Enabled       bool       `json:"enabled"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Validate checks the rule before it is stored. The severity is derived from
// the condition when unset, and the method defaults to "log".
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if strings.TrimSpace(r.Place) == "" {
		return fmt.Errorf("rule place is required")
	}
	cond, err := ParseCondition(r.Condition)
	if err != nil {
		return err
	}
	if strings.TrimSpace(r.Schedule) == "" {
		return fmt.Errorf("rule schedule is required")
	}
	if r.Severity == "" {
		r.Severity = cond.Severity()
	}
	switch r.Method {
	case "":
		r.Method = MethodLog
	case MethodLog:
	case MethodWebhook:
		if !strings.HasPrefix(r.WebhookURL, "http://") && !strings.HasPrefix(r.WebhookURL, "https://") {
			return fmt.Errorf("webhook rules need an http(s) webhook_url")
		}
	default:
		return fmt.Errorf("unknown method %q", r.Method)
	}
	return nil
}

// Condition is one "variable op value" threshold.
type Condition struct {
	Variable string
	Op       string
	Value    float64
}

var variables = map[string]func(sources.Observations) float64{
	"temp":     func(o sources.Observations) float64 { return o.Temp },
	"wind":     func(o sources.Observations) float64 { return o.Wind },
	"gusts":    func(o sources.Observations) float64 { return o.Gust },
	"precip":   func(o sources.Observations) float64 { return o.Precip },
	"humidity": func(o sources.Observations) float64 { return o.Humidity },
}

var operators = map[string]func(a, b float64) bool{
	"<":  func(a, b float64) bool { return a < b },
	"<=": func(a, b float64) bool { return a <= b },
	">":  func(a, b float64) bool { return a > b },
	">=": func(a, b float64) bool { return a >= b },
	"==": func(a, b float64) bool { return a == b },
	"!=": func(a, b float64) bool { return a != b },
}

// ParseCondition parses "variable op value", e.g. "temp > 100".
func ParseCondition(s string) (Condition, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return Condition{}, fmt.Errorf("condition %q must be \"variable op value\"", s)
	}
	variable := strings.ToLower(parts[0])
	if _, ok := variables[variable]; !ok {
		return Condition{}, fmt.Errorf("unknown variable %q", parts[0])
	}
	if _, ok := operators[parts[1]]; !ok {
		return Condition{}, fmt.Errorf("unknown operator %q", parts[1])
	}
	value, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Condition{}, fmt.Errorf("bad threshold %q", parts[2])
	}
	return Condition{Variable: variable, Op: parts[1], Value: value}, nil
}

// Eval applies the condition to fresh observations.
func (c Condition) Eval(obs sources.Observations) bool {
	read, ok := variables[c.Variable]
	if !ok {
		return false
	}
	cmp, ok := operators[c.Op]
	if !ok {
		return false
	}
	return cmp(read(obs), c.Value)
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %g", c.Variable, c.Op, c.Value)
}

// Severity buckets the condition by how disruptive a firing would be.
func (c Condition) Severity() string {
	switch c.Variable {
	case "temp":
		if c.Value >= 100 {
			return "high"
		}
		if c.Value >= 90 {
			return "moderate"
		}
	case "wind", "gusts":
		if c.Value >= 40 {
			return "high"
		}
		if c.Value >= 25 {
			return "moderate"
		}
	case "precip":
		if c.Value >= 1 {
			return "moderate"
		}
	}
	return "info"
}

// Evaluate runs the rule's condition against observations, returning whether
// it fired and a human-readable detail line.
func Evaluate(r Rule, obs sources.Observations) (bool, string, error) {
	cond, err := ParseCondition(r.Condition)
	if err != nil {
		return false, "", err
	}
	if !cond.Eval(obs) {
		return false, "", nil
	}
	read := variables[cond.Variable]
	detail := fmt.Sprintf("%s: %s (observed %g, threshold %s %g)",
		r.Place, cond.String(), read(obs), cond.Op, cond.Value)
	return true, detail, nil
}

// IsDue determines if a rule with the given schedule should run now based on
// its last check time. Supports "@daily", "@hourly", and standard 5-field
// cron expressions; an invalid expression falls back to daily.
func IsDue(schedule string, last *time.Time) bool {
	return dueAt(schedule, last, time.Now())
}

func dueAt(schedule string, last *time.Time, now time.Time) bool {
	switch schedule {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(schedule)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
