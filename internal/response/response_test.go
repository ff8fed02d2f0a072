package response

import (
	"strings"
	"testing"
)

const validBody = `{
	"sections": {
		"summary": ["Hot and dry through Friday.", "A weak front arrives Saturday."],
		"timeline": ["This afternoon: 102F, light south wind."],
		"risk": ["Heat risk high for outdoor work."],
		"confidence": ["Models agree on the ridge holding."],
		"actions": ["Hydrate and shift outdoor work to morning."],
		"assumptions": ["No convective initiation along the dryline."]
	},
	"confidence": {"value": 0.82, "rationale": "strong model agreement"},
	"used_feature_fields": ["obs.temp", "outlook.periods"],
	"bottom_line": "Stay out of the afternoon heat."
}`

func TestParseTextPlainJSON(t *testing.T) {
	resp, err := ParseText(validBody)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(resp.Sections) != 6 {
		t.Fatalf("sections = %d", len(resp.Sections))
	}
	for i, name := range SectionOrder() {
		if resp.Sections[i].Name != name {
			t.Fatalf("sections[%d] = %q, want %q", i, resp.Sections[i].Name, name)
		}
	}
	if resp.Confidence.Value != 0.82 {
		t.Fatalf("confidence = %v", resp.Confidence.Value)
	}
	if resp.BottomLine != "Stay out of the afternoon heat." {
		t.Fatalf("bottom line = %q", resp.BottomLine)
	}
	if len(resp.UsedFields) != 2 {
		t.Fatalf("used fields = %v", resp.UsedFields)
	}
}

func TestParseTextStripsFences(t *testing.T) {
	fenced := "```json\n" + validBody + "\n```"
	resp, err := ParseText(fenced)
	if err != nil {
		t.Fatalf("parse fenced: %v", err)
	}
	if s, _ := resp.Section(SectionSummary); len(s.Blocks) != 2 {
		t.Fatalf("summary blocks = %d", len(s.Blocks))
	}
}

func TestParseTextIgnoresSurroundingProse(t *testing.T) {
	chatty := "Sure! Here is the brief you asked for:\n\n" + validBody + "\n\nLet me know if you need anything else."
	if _, err := ParseText(chatty); err != nil {
		t.Fatalf("parse chatty: %v", err)
	}
}

func TestParseTextRejectsMissingSection(t *testing.T) {
	body := strings.Replace(validBody, `"timeline"`, `"schedule"`, 1)
	if _, err := ParseText(body); err == nil {
		t.Fatal("expected error for missing section")
	}
}

func TestParseTextRejectsEmptySummary(t *testing.T) {
	body := strings.Replace(validBody,
		`"summary": ["Hot and dry through Friday.", "A weak front arrives Saturday."]`,
		`"summary": ["", "  "]`, 1)
	if _, err := ParseText(body); err == nil {
		t.Fatal("expected error for empty summary")
	}
}

func TestParseTextRejectsConfidenceOutOfRange(t *testing.T) {
	body := strings.Replace(validBody, `"value": 0.82`, `"value": 1.4`, 1)
	if _, err := ParseText(body); err == nil {
		t.Fatal("expected error for confidence out of range")
	}
}

func TestParseTextRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "no json here", "{not valid", "[1,2,3]"} {
		if _, err := ParseText(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	resp, err := ParseText(validBody)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	clone := resp.Clone()
	clone.Sections[0].Blocks[0] = "mutated"
	clone.UsedFields[0] = "mutated"
	if resp.Sections[0].Blocks[0] == "mutated" || resp.UsedFields[0] == "mutated" {
		t.Fatal("clone shares backing arrays with the original")
	}
}

func TestWordsCountsAcrossSections(t *testing.T) {
	resp := &Structured{Sections: []Section{
		{Name: SectionSummary, Blocks: []string{"one two three", "four"}},
		{Name: SectionTimeline, Blocks: []string{"five six"}},
	}}
	if got := resp.Words(); got != 6 {
		t.Fatalf("words = %d, want 6", got)
	}
}
