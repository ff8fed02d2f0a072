package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/wxbrief/internal/feature"
	"github.com/mohammad-safakhou/wxbrief/internal/providers"
	"github.com/mohammad-safakhou/wxbrief/internal/state"
)

// The output contract every provider answers against. Keys mirror the
// response wire format exactly; anything else fails parsing and burns the
// attempt.
const contract = `Answer with a single JSON object and nothing else, shaped exactly like:
{"sections":{"summary":[],"timeline":[],"risk":[],"confidence":[],"actions":[],"assumptions":[]},"confidence":{"value":0.0,"rationale":""},"used_feature_fields":[],"bottom_line":""}
Every sections value is an array of short prose blocks; include all six keys and use an empty array for a section with nothing to say. confidence.value is 0.0-1.0. List in used_feature_fields the pack fields your answer relies on, like "obs.temp" or "alerts[0].event". bottom_line is one sentence. No markdown, no text outside the JSON.`

// buildPrompt renders the system contract for the pack's query and attaches
// the serialized pack as the user message.
func buildPrompt(pack *feature.Pack, capWords int) (providers.Prompt, error) {
	data, err := json.Marshal(pack)
	if err != nil {
		return providers.Prompt{}, fmt.Errorf("encode pack: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are wxbrief, a weather briefing assistant. The user message is a JSON feature pack: a query plus the source payloads fetched for it, each tagged ok, timed_out or failed. Answer only from the ok payloads and say so when the evidence is thin.\n")
	b.WriteString(kindGuidance(pack.Query))
	writeQueryHints(&b, pack.Query)
	fmt.Fprintf(&b, "Keep the whole answer under about %d words.\n", capWords)
	b.WriteString(contract)

	return providers.Prompt{System: b.String(), User: string(data)}, nil
}

// explainPrompt asks the chain to walk back through an already-served brief:
// the user message carries the original pack and the answer it produced.
func explainPrompt(entry *state.Entry, capWords int) (providers.Prompt, error) {
	payload := struct {
		Pack     feature.Pack `json:"pack"`
		Answer   interface{}  `json:"answer"`
		Degraded bool         `json:"degraded"`
	}{Pack: entry.Pack, Answer: entry.Response, Degraded: entry.Pack.Degraded}
	data, err := json.Marshal(payload)
	if err != nil {
		return providers.Prompt{}, fmt.Errorf("encode saved brief: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are wxbrief, explaining a brief you already served. The user message holds the feature pack and the answer built from it.\n")
	b.WriteString("Walk the reasoning: summary explains which payloads drove which statements, risk ranks the evidence by how much it moved the answer, confidence restates why the score landed where it did, assumptions lists what was guessed or missing. Quote field names from the pack.\n")
	fmt.Fprintf(&b, "Keep the whole answer under about %d words.\n", capWords)
	b.WriteString(contract)

	return providers.Prompt{System: b.String(), User: string(data)}, nil
}

func kindGuidance(q feature.Query) string {
	switch q.Kind {
	case KindAsk:
		return "Answer the user's question directly in the summary, then fill the remaining sections with only what supports the answer.\n"
	case KindForecast:
		return "Brief the coming hours: lead with conditions now, put the hour-by-hour evolution in timeline, and flag anything that changes plans.\n"
	case KindRisk:
		return "Assess hazard risk. Each risk block is one card: hazard, likelihood, window, and the payload fields behind it. Stay conservative when sources disagree.\n"
	case KindAlerts:
		return "Triage the active alerts: what is in effect, who is affected, how urgent, and what to do. If none are active, say so plainly.\n"
	case KindStory:
		return "Tell the weather as a short story with an arc: the setup, the moment now, how the next hours unfold, and why the atmosphere is doing this. Timeline carries the phases in order. Keep it vivid but factual.\n"
	default:
		return ""
	}
}

func writeQueryHints(b *strings.Builder, q feature.Query) {
	unit := "imperial (F, mph)"
	if q.Units == "metric" {
		unit = "metric (C, km/h)"
	}
	fmt.Fprintf(b, "Use %s units.\n", unit)
	if q.When != "" {
		fmt.Fprintf(b, "The user cares about: %s.\n", q.When)
	}
	if q.Focus != "" {
		fmt.Fprintf(b, "Weigh the briefing toward %s.\n", q.Focus)
	}
	if len(q.Hazards) > 0 {
		fmt.Fprintf(b, "Only these hazards matter: %s.\n", strings.Join(q.Hazards, ", "))
	}
	if q.Persona != "" && q.Persona != "default" {
		fmt.Fprintf(b, "Speak as a %s.\n", q.Persona)
	}
	if q.Style != "" && q.Style != "standard" {
		fmt.Fprintf(b, "Write in a %s register.\n", q.Style)
	}
}
