// Package response defines the structured answer contract shared by model
// providers, the synthesizer, the budgeter and the renderers.
package response

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Canonical section names, in render order.
const (
	SectionSummary     = "summary"
	SectionTimeline    = "timeline"
	SectionRisk        = "risk"
	SectionConfidence  = "confidence"
	SectionActions     = "actions"
	SectionAssumptions = "assumptions"
)

var sectionOrder = []string{
	SectionSummary,
	SectionTimeline,
	SectionRisk,
	SectionConfidence,
	SectionActions,
	SectionAssumptions,
}

// SectionOrder returns the canonical section order.
func SectionOrder() []string {
	out := make([]string, len(sectionOrder))
	copy(out, sectionOrder)
	return out
}

// Section is one named run of prose blocks. A block is an indivisible unit
// for budgeting: a sentence or bullet the model emitted as one string.
type Section struct {
	Name   string   `json:"name"`
	Blocks []string `json:"blocks"`
}

// Words counts whitespace-separated words across the section's blocks.
func (s Section) Words() int {
	n := 0
	for _, b := range s.Blocks {
		n += len(strings.Fields(b))
	}
	return n
}

// Confidence scores the answer with a short rationale.
type Confidence struct {
	Value     float64 `json:"value"`
	Rationale string  `json:"rationale"`
}

// Structured is the validated answer. Sections are always in canonical order.
type Structured struct {
	Sections   []Section  `json:"sections"`
	Confidence Confidence `json:"confidence"`
	UsedFields []string   `json:"used_feature_fields,omitempty"`
	BottomLine string     `json:"bottom_line,omitempty"`
	Provider   string     `json:"provider,omitempty"`
	Model      string     `json:"model,omitempty"`
	Truncated  bool       `json:"truncated,omitempty"`
}

// Section returns the named section, if present.
func (r *Structured) Section(name string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// Words counts words across all sections.
func (r *Structured) Words() int {
	n := 0
	for _, s := range r.Sections {
		n += s.Words()
	}
	return n
}

// Clone deep-copies the response.
func (r *Structured) Clone() *Structured {
	out := *r
	out.Sections = make([]Section, len(r.Sections))
	for i, s := range r.Sections {
		blocks := make([]string, len(s.Blocks))
		copy(blocks, s.Blocks)
		out.Sections[i] = Section{Name: s.Name, Blocks: blocks}
	}
	if r.UsedFields != nil {
		out.UsedFields = make([]string, len(r.UsedFields))
		copy(out.UsedFields, r.UsedFields)
	}
	return &out
}

// Validate checks the contract: every canonical section present, a non-empty
// summary, and a confidence value inside [0,1].
func (r *Structured) Validate() error {
	if len(r.Sections) != len(sectionOrder) {
		return fmt.Errorf("expected %d sections, got %d", len(sectionOrder), len(r.Sections))
	}
	for i, name := range sectionOrder {
		if r.Sections[i].Name != name {
			return fmt.Errorf("section %d is %q, want %q", i, r.Sections[i].Name, name)
		}
	}
	summary, _ := r.Section(SectionSummary)
	if summary.Words() == 0 {
		return fmt.Errorf("summary is empty")
	}
	if v := r.Confidence.Value; v < 0 || v > 1 {
		return fmt.Errorf("confidence %.3f outside [0,1]", v)
	}
	return nil
}

// wire is the shape providers are prompted to emit. Sections are keyed so
// models cannot scramble the order.
type wire struct {
	Sections   map[string][]string `json:"sections"`
	Confidence Confidence          `json:"confidence"`
	UsedFields []string            `json:"used_feature_fields"`
	BottomLine string              `json:"bottom_line"`
}

// ParseText turns raw model output into a validated Structured response. It
// tolerates markdown code fences and prose around the JSON object but rejects
// anything that misses the contract.
func ParseText(raw string) (*Structured, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	var w wire
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	out := &Structured{
		Confidence: w.Confidence,
		UsedFields: w.UsedFields,
		BottomLine: w.BottomLine,
	}
	for _, name := range sectionOrder {
		blocks, ok := w.Sections[name]
		if !ok {
			return nil, fmt.Errorf("missing section %q", name)
		}
		clean := make([]string, 0, len(blocks))
		for _, b := range blocks {
			if b = strings.TrimSpace(b); b != "" {
				clean = append(clean, b)
			}
		}
		out.Sections = append(out.Sections, Section{Name: name, Blocks: clean})
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// extractJSON strips code fences and surrounding prose, returning the
// outermost JSON object.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
