// Package sources defines the closed set of weather data sources a query can
// draw on: the uniform adapter contract, the typed payload variants, and the
// tagged result that records how each fetch went.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies a payload variant. The set is closed; adapters are resolved
// from configuration, not discovered.
type Kind string

const (
	KindPointContext Kind = "point_context"
	KindObservations Kind = "observations"
	KindOutlook      Kind = "outlook"
	KindAlerts       Kind = "alerts"
	KindProfile      Kind = "profile"
	KindDiscussion   Kind = "discussion"
	KindRegion       Kind = "region"
)

// Request describes one source fetch. Built once per query, passed by value.
type Request struct {
	Source   string        `json:"source"`
	Place    string        `json:"place"`
	Lat      float64       `json:"lat"`
	Lon      float64       `json:"lon"`
	HasPoint bool          `json:"has_point"`
	Horizon  time.Duration `json:"horizon"`
	Hazards  []string      `json:"hazards,omitempty"`
	Units    string        `json:"units"`
}

// Adapter retrieves one category of external data under a timeout. Fetch must
// respect ctx, never panic, and be safe to call concurrently with peers.
type Adapter interface {
	ID() string
	Kind() Kind
	Timeout() time.Duration
	Fetch(ctx context.Context, req Request) (Payload, error)
}

// Payload is one of the typed variants below.
type Payload interface {
	Kind() Kind
}

// Status tags how a fetch ended.
type Status int

const (
	StatusOk Status = iota
	StatusTimedOut
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "failed"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw {
	case "ok":
		*s = StatusOk
	case "timed_out":
		*s = StatusTimedOut
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown source status %q", raw)
	}
	return nil
}

// Result is the outcome of one source fetch: exactly one of an Ok payload, a
// timeout, or a failure reason. Never partially populated.
type Result struct {
	Source  string
	Status  Status
	Payload Payload
	Reason  string
	Elapsed time.Duration
}

func (r Result) Ok() bool { return r.Status == StatusOk }

type resultJSON struct {
	Source    string          `json:"source"`
	Status    Status          `json:"status"`
	Kind      Kind            `json:"kind,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	ElapsedMS int64           `json:"elapsed_ms"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Source:    r.Source,
		Status:    r.Status,
		Reason:    r.Reason,
		ElapsedMS: r.Elapsed.Milliseconds(),
	}
	if r.Payload != nil {
		b, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, err
		}
		out.Kind = r.Payload.Kind()
		out.Payload = b
	}
	return json.Marshal(out)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Source = raw.Source
	r.Status = raw.Status
	r.Reason = raw.Reason
	r.Elapsed = time.Duration(raw.ElapsedMS) * time.Millisecond
	r.Payload = nil
	if len(raw.Payload) == 0 {
		return nil
	}
	payload, err := decodePayload(raw.Kind, raw.Payload)
	if err != nil {
		return err
	}
	r.Payload = payload
	return nil
}

// DecodePayload rebuilds a typed payload from its kind tag and raw JSON.
func DecodePayload(kind Kind, raw []byte) (Payload, error) {
	return decodePayload(kind, raw)
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindPointContext:
		var p PointContext
		return p, json.Unmarshal(raw, &p)
	case KindObservations:
		var p Observations
		return p, json.Unmarshal(raw, &p)
	case KindOutlook:
		var p Outlook
		return p, json.Unmarshal(raw, &p)
	case KindAlerts:
		var p AlertList
		return p, json.Unmarshal(raw, &p)
	case KindProfile:
		var p ConvectiveProfile
		return p, json.Unmarshal(raw, &p)
	case KindDiscussion:
		var p Discussion
		return p, json.Unmarshal(raw, &p)
	case KindRegion:
		var p RegionSamples
		return p, json.Unmarshal(raw, &p)
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
}
