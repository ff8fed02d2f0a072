// Package router walks the provider chain for one generation: retry
// transient failures with exponential backoff, advance past fatal ones, and
// fall back to the deterministic synthesizer when the chain is exhausted.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"time"

	"github.com/mohammad-safakhou/wxbrief/internal/feature"
	"github.com/mohammad-safakhou/wxbrief/internal/providers"
	"github.com/mohammad-safakhou/wxbrief/internal/response"
)

// Outcome labels one attempt in the routing record.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetryable Outcome = "retryable_error"
	OutcomeFatal     Outcome = "fatal_error"
	OutcomeAbandoned Outcome = "abandoned"
)

// Attempt is one provider call, recorded with a sanitized error message.
type Attempt struct {
	Provider string
	Model    string
	Number   int
	Outcome  Outcome
	Latency  time.Duration
	Err      string
}

type attemptJSON struct {
	Provider  string  `json:"provider"`
	Model     string  `json:"model"`
	Number    int     `json:"number"`
	Outcome   Outcome `json:"outcome"`
	LatencyMS int64   `json:"latency_ms"`
	Err       string  `json:"error,omitempty"`
}

func (a Attempt) MarshalJSON() ([]byte, error) {
	return json.Marshal(attemptJSON{
		Provider:  a.Provider,
		Model:     a.Model,
		Number:    a.Number,
		Outcome:   a.Outcome,
		LatencyMS: a.Latency.Milliseconds(),
		Err:       a.Err,
	})
}

func (a *Attempt) UnmarshalJSON(data []byte) error {
	var aux attemptJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.Provider = aux.Provider
	a.Model = aux.Model
	a.Number = aux.Number
	a.Outcome = aux.Outcome
	a.Latency = time.Duration(aux.LatencyMS) * time.Millisecond
	a.Err = aux.Err
	return nil
}

// Policy bounds the walk. MaxRetries is the attempt count per provider, not
// the extra tries after the first.
type Policy struct {
	MaxRetries     int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
	WallBudget     time.Duration
	Temperature    float64
	MaxTokens      int
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 1 {
		p.MaxRetries = 1
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = 750 * time.Millisecond
	}
	if p.MaxBackoff < p.BaseBackoff {
		p.MaxBackoff = p.BaseBackoff
	}
	return p
}

// Synthesizer is the deterministic answer of last resort.
type Synthesizer interface {
	Respond(pack *feature.Pack) *response.Structured
}

// Result is the routed answer plus the full attempt record.
type Result struct {
	Response  *response.Structured `json:"response"`
	Attempts  []Attempt            `json:"attempts"`
	Synthetic bool                 `json:"synthetic,omitempty"`
	Elapsed   time.Duration        `json:"-"`
}

// Router owns a provider chain and a policy.
type Router struct {
	chain  []providers.Provider
	policy Policy
	synth  Synthesizer
	log    *log.Logger
}

func New(chain []providers.Provider, policy Policy, synth Synthesizer, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Router{chain: chain, policy: policy.withDefaults(), synth: synth, log: logger}
}

// Generate walks the chain until a provider returns output that parses, the
// chain is exhausted, or the wall budget dies. It always produces an answer;
// the synthesizer covers every path where no provider delivered.
func (r *Router) Generate(ctx context.Context, pack *feature.Pack, prompt providers.Prompt) Result {
	start := time.Now()
	if prompt.Temperature == 0 {
		prompt.Temperature = r.policy.Temperature
	}
	if prompt.MaxTokens == 0 {
		prompt.MaxTokens = r.policy.MaxTokens
	}

	wallCtx := ctx
	if r.policy.WallBudget > 0 {
		var cancel context.CancelFunc
		wallCtx, cancel = context.WithTimeout(ctx, r.policy.WallBudget)
		defer cancel()
	}

	var attempts []Attempt
chain:
	for _, p := range r.chain {
		for n := 1; n <= r.policy.MaxRetries; n++ {
			if wallCtx.Err() != nil {
				break chain
			}
			attempt, parsed := r.tryOnce(wallCtx, p, n, prompt)
			attempts = append(attempts, attempt)
			switch attempt.Outcome {
			case OutcomeSuccess:
				parsed.Provider = p.ID()
				parsed.Model = p.Model()
				return Result{Response: parsed, Attempts: attempts, Elapsed: time.Since(start)}
			case OutcomeAbandoned:
				break chain
			case OutcomeFatal:
				r.log.Printf("provider %s/%s attempt %d fatal: %s", p.ID(), p.Model(), n, attempt.Err)
				continue chain
			}
			r.log.Printf("provider %s/%s attempt %d retryable: %s", p.ID(), p.Model(), n, attempt.Err)
			if n == r.policy.MaxRetries {
				continue chain
			}
			select {
			case <-time.After(r.backoff(n)):
			case <-wallCtx.Done():
				break chain
			}
		}
	}

	r.log.Printf("chain exhausted after %d attempts, synthesizing", len(attempts))
	resp := r.synth.Respond(pack)
	return Result{Response: resp, Attempts: attempts, Synthetic: true, Elapsed: time.Since(start)}
}

// tryOnce runs a single attempt under the per-attempt window.
func (r *Router) tryOnce(wallCtx context.Context, p providers.Provider, n int, prompt providers.Prompt) (Attempt, *response.Structured) {
	a := Attempt{Provider: p.ID(), Model: p.Model(), Number: n}
	attemptCtx := wallCtx
	if r.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(wallCtx, r.policy.AttemptTimeout)
		defer cancel()
	}

	begin := time.Now()
	raw, err := p.Generate(attemptCtx, prompt)
	a.Latency = time.Since(begin)

	if err == nil {
		parsed, perr := response.ParseText(raw)
		if perr == nil {
			a.Outcome = OutcomeSuccess
			return a, parsed
		}
		// Malformed output from this model is not worth a retry.
		a.Outcome = OutcomeFatal
		a.Err = providers.Sanitize(perr.Error())
		return a, nil
	}

	a.Err = providers.Sanitize(err.Error())
	if wallCtx.Err() != nil {
		a.Outcome = OutcomeAbandoned
		return a, nil
	}
	var ce *providers.CallError
	if errors.As(err, &ce) && ce.Retryable() {
		a.Outcome = OutcomeRetryable
		return a, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		a.Outcome = OutcomeRetryable
		return a, nil
	}
	a.Outcome = OutcomeFatal
	return a, nil
}

// backoff doubles from the base per failed attempt, capped at MaxBackoff.
func (r *Router) backoff(n int) time.Duration {
	d := r.policy.BaseBackoff * time.Duration(1<<(n-1))
	if d > r.policy.MaxBackoff {
		d = r.policy.MaxBackoff
	}
	return d
}
