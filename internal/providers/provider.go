// Package providers holds the model backends the router walks through, plus
// the error classification that drives retry-vs-advance decisions.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/wxbrief/internal/httpx"
)

// Prompt is one generation request. User carries the serialized feature pack,
// System the output contract.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Provider produces raw model output for a prompt. Implementations must
// honor ctx and return a *CallError for anything the router should classify.
type Provider interface {
	ID() string
	Model() string
	Generate(ctx context.Context, p Prompt) (string, error)
}

// CallError is a classified provider failure. Message is already sanitized
// and safe to persist in attempt records.
type CallError struct {
	Provider  string
	Model     string
	Status    int
	Message   string
	Transient bool
	cause     error
}

func (e *CallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s/%s: status %d: %s", e.Provider, e.Model, e.Status, e.Message)
	}
	return fmt.Sprintf("%s/%s: %s", e.Provider, e.Model, e.Message)
}

// Retryable reports whether the same provider is worth another attempt.
func (e *CallError) Retryable() bool { return e.Transient }

func (e *CallError) Unwrap() error { return e.cause }

const maxErrMessage = 240

// Sanitize scrubs credentials out of msg and bounds its length.
func Sanitize(msg string, secrets ...string) string {
	for _, s := range secrets {
		if s == "" {
			continue
		}
		msg = strings.ReplaceAll(msg, s, "[redacted]")
	}
	if len(msg) > maxErrMessage {
		msg = msg[:maxErrMessage]
	}
	return msg
}

// wrapErr classifies a raw call failure. Context errors keep their identity
// so the router can tell a dead wall clock from a slow attempt; HTTP status
// errors inherit the transport's transient set; anything else is assumed to
// be a flaky network and stays retryable.
func wrapErr(provider, model string, err error, secrets ...string) *CallError {
	ce := &CallError{Provider: provider, Model: model, Message: Sanitize(err.Error(), secrets...)}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		ce.Transient = true
		ce.cause = err
		return ce
	}
	var se *httpx.StatusError
	if errors.As(err, &se) {
		ce.Status = se.Status
		ce.Transient = se.Transient()
		return ce
	}
	ce.Transient = true
	return ce
}

// fatalErr marks a failure that retrying the same provider cannot fix.
func fatalErr(provider, model, msg string) *CallError {
	return &CallError{Provider: provider, Model: model, Message: msg}
}
