package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/wxbrief/internal/httpx"
	"github.com/mohammad-safakhou/wxbrief/internal/orchestrator"
	"github.com/mohammad-safakhou/wxbrief/internal/rules"
	"github.com/mohammad-safakhou/wxbrief/internal/sources"
	"github.com/mohammad-safakhou/wxbrief/internal/store"
)

// Scheduler re-checks enabled rules against fresh observations. Each tick it
// lists the rules, skips the ones not yet due, and evaluates the rest; a
// firing gets recorded, stamped on the rule and notified per its method.
type Scheduler struct {
	Store    *store.Store
	Orch     *orchestrator.Orchestrator
	Rdb      *redis.Client
	Stop     chan struct{}
	Units    string
	Interval time.Duration
	Hooks    *httpx.Client
	Log      *log.Logger
}

func (s *Scheduler) Start() {
	if s.Interval == 0 {
		s.Interval = time.Minute
	}
	if s.Log == nil {
		s.Log = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	ticker := time.NewTicker(s.Interval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	list, err := s.Store.ListRules(ctx, true)
	if err != nil {
		s.Log.Printf("list rules: %v", err)
		return
	}
	for _, r := range list {
		last, err := s.Store.LatestCheckTime(ctx, r.ID)
		if err != nil {
			s.Log.Printf("rule %q: last check: %v", r.Name, err)
			continue
		}
		if !rules.IsDue(r.Schedule, last) {
			continue
		}

		// distributed lock to avoid duplicate checks
		if s.Rdb != nil {
			ok, _ := s.Rdb.SetNX(ctx, "sched:lock:"+r.ID, "1", 2*time.Minute).Result()
			if !ok {
				continue
			}
		}
		s.check(ctx, r)
	}
}

// check fetches observations for the rule's place and evaluates the
// condition. A fetch failure is logged without recording an event, so the
// rule stays due and is retried next tick.
func (s *Scheduler) check(ctx context.Context, r rules.Rule) {
	obs, err := s.observe(ctx, r.Place)
	if err != nil {
		s.Log.Printf("rule %q (%s): observations unavailable: %v", r.Name, r.Place, err)
		return
	}
	fired, detail, err := rules.Evaluate(r, obs)
	if err != nil {
		s.Log.Printf("rule %q: %v", r.Name, err)
		return
	}
	if _, err := s.Store.RecordRuleEvent(ctx, store.RuleEvent{RuleID: r.ID, Fired: fired, Detail: detail}); err != nil {
		s.Log.Printf("rule %q: record event: %v", r.Name, err)
	}
	if !fired {
		return
	}
	if err := s.Store.TouchRuleTriggered(ctx, r.ID); err != nil {
		s.Log.Printf("rule %q: touch: %v", r.Name, err)
	}
	s.notify(ctx, r, detail)
}

// observe geocodes the place and fetches current conditions, the minimal
// source set a threshold check needs.
func (s *Scheduler) observe(ctx context.Context, place string) (sources.Observations, error) {
	reg := s.Orch.Registry()
	pc, err := reg.Resolve(ctx, place, s.Units)
	if err != nil {
		return sources.Observations{}, err
	}
	adapter, ok := reg.Adapter(sources.SourceObs)
	if !ok {
		return sources.Observations{}, fmt.Errorf("obs adapter unavailable")
	}
	fctx, cancel := context.WithTimeout(ctx, adapter.Timeout())
	defer cancel()
	payload, err := adapter.Fetch(fctx, sources.Request{
		Source:   sources.SourceObs,
		Place:    place,
		Lat:      pc.Lat,
		Lon:      pc.Lon,
		HasPoint: true,
		Units:    s.Units,
	})
	if err != nil {
		return sources.Observations{}, err
	}
	obs, ok := payload.(sources.Observations)
	if !ok {
		return sources.Observations{}, fmt.Errorf("unexpected payload %T from obs", payload)
	}
	return obs, nil
}

func (s *Scheduler) notify(ctx context.Context, r rules.Rule, detail string) {
	s.Log.Printf("rule %q fired: %s", r.Name, detail)
	if r.Method != rules.MethodWebhook || r.WebhookURL == "" || s.Hooks == nil {
		return
	}
	body := map[string]interface{}{
		"rule_id":   r.ID,
		"name":      r.Name,
		"place":     r.Place,
		"condition": r.Condition,
		"severity":  r.Severity,
		"detail":    detail,
		"fired_at":  time.Now().UTC(),
	}
	if err := s.Hooks.DoJSON(ctx, http.MethodPost, r.WebhookURL, nil, body, nil); err != nil {
		s.Log.Printf("rule %q webhook: %v", r.Name, err)
	}
}
