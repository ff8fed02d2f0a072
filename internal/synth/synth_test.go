package synth

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/wxbrief/internal/feature"
	"github.com/mohammad-safakhou/wxbrief/internal/response"
	"github.com/mohammad-safakhou/wxbrief/internal/sources"
)

func fullPack() *feature.Pack {
	return &feature.Pack{
		Query: feature.Query{Kind: "ask", Place: "Austin", Units: "imperial"},
		Results: []sources.Result{
			{Source: sources.SourceGeocode, Status: sources.StatusOk, Payload: sources.PointContext{Name: "Austin", Admin: "Texas", Lat: 30.27, Lon: -97.74}},
			{Source: sources.SourceObs, Status: sources.StatusOk, Payload: sources.Observations{Temp: 98, Wind: 12, Gust: 18, Humidity: 40, Units: "imperial"}},
			{Source: sources.SourceOutlook, Status: sources.StatusOk, Payload: sources.Outlook{Periods: []sources.OutlookPeriod{
				{Temp: 97, PrecipProb: 10}, {Temp: 99, PrecipProb: 20}, {Temp: 95, PrecipProb: 5},
			}, Units: "imperial"}},
			{Source: sources.SourceAlerts, Status: sources.StatusOk, Payload: sources.AlertList{Alerts: []sources.Alert{
				{Event: "Heat Advisory", Severity: "Moderate", Area: "Travis County", Expires: time.Date(2026, 8, 25, 23, 0, 0, 0, time.UTC)},
			}}},
		},
	}
}

func TestRespondIsDeterministic(t *testing.T) {
	s := New()
	first := s.Respond(fullPack())
	second := s.Respond(fullPack())
	if !reflect.DeepEqual(first, second) {
		t.Fatal("same pack produced different answers")
	}
}

func TestRespondMeetsContract(t *testing.T) {
	resp := New().Respond(fullPack())
	if err := resp.Validate(); err != nil {
		t.Fatalf("synthesized answer fails contract: %v", err)
	}
	if resp.Provider != "synthesizer" {
		t.Fatalf("provider = %q", resp.Provider)
	}
}

func TestRespondReadsObservations(t *testing.T) {
	resp := New().Respond(fullPack())
	summary, _ := resp.Section(response.SectionSummary)
	joined := strings.Join(summary.Blocks, " ")
	if !strings.Contains(joined, "98°F") {
		t.Fatalf("summary missing temperature: %q", joined)
	}
	if !strings.Contains(joined, "Austin") {
		t.Fatalf("summary missing place: %q", joined)
	}
	found := false
	for _, f := range resp.UsedFields {
		if f == "obs.temp" {
			found = true
		}
	}
	if !found {
		t.Fatalf("used fields = %v", resp.UsedFields)
	}
}

func TestRespondSurfacesAlerts(t *testing.T) {
	resp := New().Respond(fullPack())
	risk, _ := resp.Section(response.SectionRisk)
	if len(risk.Blocks) == 0 || !strings.Contains(risk.Blocks[0], "Heat Advisory") {
		t.Fatalf("risk section = %v", risk.Blocks)
	}
	if !strings.Contains(resp.BottomLine, "Heat Advisory") {
		t.Fatalf("bottom line = %q", resp.BottomLine)
	}
}

func TestRespondDegradedPack(t *testing.T) {
	pack := &feature.Pack{
		Query: feature.Query{Kind: "ask", Place: "Austin", Units: "imperial"},
		Results: []sources.Result{
			{Source: sources.SourceObs, Status: sources.StatusOk, Payload: sources.Observations{Temp: 72, Wind: 5, Units: "imperial"}},
			{Source: sources.SourceAlerts, Status: sources.StatusTimedOut, Reason: "context deadline exceeded"},
			{Source: sources.SourceOutlook, Status: sources.StatusFailed, Reason: "upstream said 500"},
		},
		Degraded: true,
	}
	resp := New().Respond(pack)

	assumptions, _ := resp.Section(response.SectionAssumptions)
	joined := strings.Join(assumptions.Blocks, " ")
	if !strings.Contains(joined, "alerts (timed out)") {
		t.Fatalf("assumptions missing timeout note: %q", joined)
	}
	if !strings.Contains(joined, "outlook (failed)") {
		t.Fatalf("assumptions missing failure note: %q", joined)
	}
	if resp.Confidence.Value >= 0.5 {
		t.Fatalf("confidence %.2f too high for a degraded pack", resp.Confidence.Value)
	}
	if !strings.Contains(resp.Confidence.Rationale, "1 of 3") {
		t.Fatalf("rationale = %q", resp.Confidence.Rationale)
	}
}

func TestRespondEmptyPack(t *testing.T) {
	pack := &feature.Pack{Query: feature.Query{Kind: "ask", Place: "Nowhere"}}
	resp := New().Respond(pack)
	if err := resp.Validate(); err != nil {
		t.Fatalf("empty pack answer fails contract: %v", err)
	}
	summary, _ := resp.Section(response.SectionSummary)
	if !strings.Contains(summary.Blocks[0], "No live weather data") {
		t.Fatalf("summary = %v", summary.Blocks)
	}
}

func TestRespondWorldviewPack(t *testing.T) {
	pack := &feature.Pack{
		Query: feature.Query{Kind: "worldview", Units: "imperial"},
		Results: []sources.Result{
			{Source: sources.SourceUSObs, Status: sources.StatusOk, Payload: sources.RegionSamples{Region: "us", Samples: []sources.RegionSample{
				{City: "Dallas", Temp: 101, Wind: 10}, {City: "Seattle", Temp: 68, Wind: 8},
			}}},
			{Source: sources.SourceUSAlerts, Status: sources.StatusOk, Payload: sources.RegionSamples{Region: "us", Alerts: []sources.RegionAlert{
				{Event: "Heat Advisory", Count: 18, Areas: []string{"Texas", "Arizona"}},
			}}},
		},
	}
	resp := New().Respond(pack)
	summary, _ := resp.Section(response.SectionSummary)
	joined := strings.Join(summary.Blocks, " ")
	if !strings.Contains(joined, "US") || !strings.Contains(joined, "2 cities") {
		t.Fatalf("summary = %q", joined)
	}
	if !strings.Contains(joined, "Heat Advisory") {
		t.Fatalf("summary missing leading alert: %q", joined)
	}
	if !strings.Contains(resp.BottomLine, "Heat Advisory") {
		t.Fatalf("bottom line = %q", resp.BottomLine)
	}
}
