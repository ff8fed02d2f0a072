// Package feature assembles the per-request feature pack: the bounded,
// concurrent collection of source results that downstream prompting and
// synthesis read from.
package feature

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/wxbrief/internal/sources"
)

// Query is the normalized user request an assembly runs against.
type Query struct {
	ID       uuid.UUID     `json:"id"`
	Kind     string        `json:"kind"`
	Place    string        `json:"place"`
	Question string        `json:"question,omitempty"`
	When     string        `json:"when,omitempty"`
	Lat      float64       `json:"lat,omitempty"`
	Lon      float64       `json:"lon,omitempty"`
	HasPoint bool          `json:"has_point,omitempty"`
	Horizon  time.Duration `json:"horizon,omitempty"`
	Focus    string        `json:"focus,omitempty"`
	Hazards  []string      `json:"hazards,omitempty"`
	Units    string        `json:"units,omitempty"`
	Persona  string        `json:"persona,omitempty"`
	Style    string        `json:"style,omitempty"`
	AskedAt  time.Time     `json:"asked_at"`
}

func (q Query) request(source string) sources.Request {
	return sources.Request{
		Source:   source,
		Place:    q.Place,
		Lat:      q.Lat,
		Lon:      q.Lon,
		HasPoint: q.HasPoint,
		Horizon:  q.Horizon,
		Hazards:  q.Hazards,
		Units:    q.Units,
	}
}

// Pack holds every source result for one query, in the caller's priority
// order. Degraded is set whenever any source fell short.
type Pack struct {
	Query       Query            `json:"query"`
	Results     []sources.Result `json:"results"`
	AssembledAt time.Time        `json:"assembled_at"`
	Degraded    bool             `json:"degraded"`
}

// Result returns the result recorded for a source id.
func (p *Pack) Result(id string) (sources.Result, bool) {
	for _, r := range p.Results {
		if r.Source == id {
			return r, true
		}
	}
	return sources.Result{}, false
}

// Payload returns the payload for a source id when that source succeeded.
func (p *Pack) Payload(id string) (sources.Payload, bool) {
	r, ok := p.Result(id)
	if !ok || !r.Ok() {
		return nil, false
	}
	return r.Payload, true
}

// Point pulls the resolved point context out of the pack.
func (p *Pack) Point() (sources.PointContext, bool) {
	payload, ok := p.Payload(sources.SourceGeocode)
	if !ok {
		return sources.PointContext{}, false
	}
	pc, ok := payload.(sources.PointContext)
	return pc, ok
}

// OkCount reports how many sources completed successfully.
func (p *Pack) OkCount() int {
	n := 0
	for _, r := range p.Results {
		if r.Ok() {
			n++
		}
	}
	return n
}

type fetchOut struct {
	payload sources.Payload
	err     error
}

// Assemble fans the query out to every adapter concurrently and joins the
// results. Each adapter runs under the smaller of its own timeout and the
// time left on ctx, so the join is bounded even when a source hangs. Assemble
// never fails: a source that errors or misses its window is recorded as a
// degraded result, not an error.
func Assemble(ctx context.Context, q Query, adapters []sources.Adapter) Pack {
	pack := Pack{Query: q, AssembledAt: time.Now().UTC()}
	if len(adapters) == 0 {
		pack.Results = []sources.Result{}
		return pack
	}

	results := make([]sources.Result, len(adapters))
	done := make(chan int, len(adapters))
	for i, a := range adapters {
		go func(i int, a sources.Adapter) {
			results[i] = fetchOne(ctx, a, q.request(a.ID()))
			done <- i
		}(i, a)
	}
	for range adapters {
		<-done
	}

	for _, r := range results {
		if !r.Ok() {
			pack.Degraded = true
			break
		}
	}
	pack.Results = results
	return pack
}

// fetchOne runs a single adapter under its window and classifies the outcome.
// Fetch runs on its own goroutine so an adapter that ignores its context
// still yields a timed-out result at the window edge.
func fetchOne(ctx context.Context, a sources.Adapter, req sources.Request) sources.Result {
	res := sources.Result{Source: a.ID()}
	start := time.Now()

	window := a.Timeout()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < window {
			window = rem
		}
	}
	if window <= 0 {
		res.Status = sources.StatusTimedOut
		res.Reason = "assembly window exhausted"
		return res
	}

	fetchCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	out := make(chan fetchOut, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- fetchOut{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		payload, err := a.Fetch(fetchCtx, req)
		out <- fetchOut{payload, err}
	}()

	select {
	case o := <-out:
		res.Elapsed = time.Since(start)
		if o.err != nil {
			res.Status = classify(o.err)
			res.Reason = o.err.Error()
			return res
		}
		if o.payload == nil {
			res.Status = sources.StatusFailed
			res.Reason = "adapter returned no payload"
			return res
		}
		res.Status = sources.StatusOk
		res.Payload = o.payload
		return res
	case <-fetchCtx.Done():
		res.Elapsed = time.Since(start)
		res.Status = sources.StatusTimedOut
		res.Reason = fetchCtx.Err().Error()
		return res
	}
}

func classify(err error) sources.Status {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sources.StatusTimedOut
	}
	return sources.StatusFailed
}
