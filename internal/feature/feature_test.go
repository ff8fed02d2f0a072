package feature

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mohammad-safakhou/wxbrief/internal/sources"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubAdapter struct {
	id      string
	kind    sources.Kind
	timeout time.Duration
	fetch   func(ctx context.Context, req sources.Request) (sources.Payload, error)
}

func (s *stubAdapter) ID() string             { return s.id }
func (s *stubAdapter) Kind() sources.Kind     { return s.kind }
func (s *stubAdapter) Timeout() time.Duration { return s.timeout }
func (s *stubAdapter) Fetch(ctx context.Context, req sources.Request) (sources.Payload, error) {
	return s.fetch(ctx, req)
}

func okAdapter(id string, delay time.Duration) *stubAdapter {
	return &stubAdapter{
		id:      id,
		kind:    sources.KindObservations,
		timeout: time.Second,
		fetch: func(ctx context.Context, req sources.Request) (sources.Payload, error) {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return sources.Observations{Temp: 72, Units: req.Units}, nil
		},
	}
}

func TestAssemblePreservesPriorityOrder(t *testing.T) {
	adapters := []sources.Adapter{
		okAdapter("slow", 30*time.Millisecond),
		okAdapter("fast", 0),
		okAdapter("mid", 10*time.Millisecond),
	}
	q := Query{Place: "Austin", Units: "imperial", AskedAt: time.Now()}
	pack := Assemble(context.Background(), q, adapters)

	if pack.Degraded {
		t.Fatal("pack unexpectedly degraded")
	}
	if got := pack.OkCount(); got != 3 {
		t.Fatalf("ok count = %d, want 3", got)
	}
	want := []string{"slow", "fast", "mid"}
	for i, r := range pack.Results {
		if r.Source != want[i] {
			t.Fatalf("results[%d] = %s, want %s", i, r.Source, want[i])
		}
		if r.Elapsed < 0 {
			t.Fatalf("results[%d] elapsed not recorded", i)
		}
	}
}

func TestAssembleBoundsHangingSource(t *testing.T) {
	hung := &stubAdapter{
		id:      "hung",
		kind:    sources.KindAlerts,
		timeout: 60 * time.Millisecond,
		fetch: func(ctx context.Context, req sources.Request) (sources.Payload, error) {
			select {
			case <-time.After(5 * time.Second):
				return sources.AlertList{}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	adapters := []sources.Adapter{okAdapter("a", 0), hung, okAdapter("c", 0)}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	pack := Assemble(ctx, Query{Place: "Austin"}, adapters)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("assembly took %v, not bounded by the source window", elapsed)
	}

	if !pack.Degraded {
		t.Fatal("pack should be degraded")
	}
	r, ok := pack.Result("hung")
	if !ok {
		t.Fatal("missing result for hung source")
	}
	if r.Status != sources.StatusTimedOut {
		t.Fatalf("hung status = %v, want timed_out", r.Status)
	}
	for _, id := range []string{"a", "c"} {
		if r, _ := pack.Result(id); !r.Ok() {
			t.Fatalf("source %s should have completed: %+v", id, r)
		}
	}
}

func TestAssembleSeparatesFailureFromTimeout(t *testing.T) {
	broken := &stubAdapter{
		id:      "broken",
		kind:    sources.KindOutlook,
		timeout: time.Second,
		fetch: func(ctx context.Context, req sources.Request) (sources.Payload, error) {
			return nil, errors.New("upstream said 404")
		},
	}
	pack := Assemble(context.Background(), Query{Place: "Austin"}, []sources.Adapter{broken, okAdapter("ok", 0)})

	r, _ := pack.Result("broken")
	if r.Status != sources.StatusFailed {
		t.Fatalf("status = %v, want failed", r.Status)
	}
	if r.Reason != "upstream said 404" {
		t.Fatalf("reason = %q", r.Reason)
	}
	if !pack.Degraded {
		t.Fatal("pack should be degraded")
	}
}

func TestAssembleHonorsOverallDeadline(t *testing.T) {
	slow := okAdapter("slow", 5*time.Second)
	slow.timeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	pack := Assemble(ctx, Query{Place: "Austin"}, []sources.Adapter{slow})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("assembly took %v past a 50ms deadline", elapsed)
	}
	r, _ := pack.Result("slow")
	if r.Status != sources.StatusTimedOut {
		t.Fatalf("status = %v, want timed_out", r.Status)
	}
}

func TestAssembleBoundsRudeSource(t *testing.T) {
	// Ignores its context entirely.
	rude := &stubAdapter{
		id:      "rude",
		kind:    sources.KindProfile,
		timeout: 40 * time.Millisecond,
		fetch: func(ctx context.Context, req sources.Request) (sources.Payload, error) {
			time.Sleep(200 * time.Millisecond)
			return sources.ConvectiveProfile{}, nil
		},
	}
	start := time.Now()
	pack := Assemble(context.Background(), Query{Place: "Austin"}, []sources.Adapter{rude})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("assembly took %v", elapsed)
	}
	r, _ := pack.Result("rude")
	if r.Status != sources.StatusTimedOut {
		t.Fatalf("status = %v, want timed_out", r.Status)
	}
	// Let the stray fetch drain before the leak check.
	time.Sleep(250 * time.Millisecond)
}

func TestAssembleRecoversPanickingSource(t *testing.T) {
	angry := &stubAdapter{
		id:      "angry",
		kind:    sources.KindDiscussion,
		timeout: time.Second,
		fetch: func(ctx context.Context, req sources.Request) (sources.Payload, error) {
			panic("adapter bug")
		},
	}
	pack := Assemble(context.Background(), Query{Place: "Austin"}, []sources.Adapter{angry})
	r, _ := pack.Result("angry")
	if r.Status != sources.StatusFailed {
		t.Fatalf("status = %v, want failed", r.Status)
	}
	if r.Reason != "panic: adapter bug" {
		t.Fatalf("reason = %q", r.Reason)
	}
}

func TestAssembleZeroAdapters(t *testing.T) {
	pack := Assemble(context.Background(), Query{Place: "Austin"}, nil)
	if pack.Degraded {
		t.Fatal("empty pack should not be degraded")
	}
	if len(pack.Results) != 0 {
		t.Fatalf("results = %d", len(pack.Results))
	}
}
