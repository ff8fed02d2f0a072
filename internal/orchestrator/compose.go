package orchestrator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/wxbrief/internal/feature"
	"github.com/mohammad-safakhou/wxbrief/internal/response"
	"github.com/mohammad-safakhou/wxbrief/internal/sources"
)

// Local compositions build the section contract straight from payloads, no
// provider in the loop. They carry Provider "local" so renderers and the
// archive can tell them from routed and synthesized answers.

const localProvider = "local"

// composeAlerts renders the alert feed as a brief.
func composeAlerts(pack *feature.Pack) *response.Structured {
	place := displayPlace(pack)
	var alerts []sources.Alert
	feedOk := false
	if res, ok := pack.Result(sources.SourceAlerts); ok && res.Ok() {
		feedOk = true
		if list, ok := res.Payload.(sources.AlertList); ok {
			alerts = list.Alerts
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return severityRank(alerts[i].Severity) > severityRank(alerts[j].Severity)
	})

	var summary, timeline, risk, actions, used []string
	switch {
	case !feedOk:
		summary = append(summary, fmt.Sprintf("The alert feed for %s could not be reached; active alerts are unknown.", place))
	case len(alerts) == 0:
		summary = append(summary, fmt.Sprintf("No active alerts for %s.", place))
	default:
		summary = append(summary, fmt.Sprintf("%d active alert(s) for %s, strongest: %s (%s).",
			len(alerts), place, alerts[0].Event, alerts[0].Severity))
	}

	for i, a := range alerts {
		card := fmt.Sprintf("%s / %s", a.Event, a.Severity)
		if a.Headline != "" {
			card += ": " + a.Headline
		}
		if a.Area != "" {
			card += " (" + a.Area + ")"
		}
		risk = append(risk, card)
		if !a.Expires.IsZero() {
			timeline = append(timeline, fmt.Sprintf("%s expires %s.", a.Event, a.Expires.UTC().Format("Jan 2 15:04 MST")))
		}
		used = append(used, fmt.Sprintf("alerts[%d].event", i))
	}
	if len(timeline) == 0 {
		timeline = append(timeline, "No expirations to track.")
	}

	worst := ""
	if len(alerts) > 0 {
		worst = alerts[0].Severity
	}
	switch {
	case severityRank(worst) >= severityRank("Severe"):
		actions = append(actions, "Act on the alert instructions now; conditions are dangerous or imminent.")
	case len(alerts) > 0:
		actions = append(actions, "Review the alert areas and recheck before heading out.")
	case feedOk:
		actions = append(actions, "Nothing to act on; recheck before travel or outdoor plans.")
	default:
		actions = append(actions, "Check an official alert source directly until the feed recovers.")
	}

	conf := response.Confidence{Value: 0.9, Rationale: "read directly from the alert feed"}
	if !feedOk {
		conf = response.Confidence{Value: 0.2, Rationale: "alert feed unavailable"}
	}

	assumptions := []string{fmt.Sprintf("Alert feed read at %s; alerts can update faster than this brief.",
		pack.AssembledAt.UTC().Format("15:04 MST"))}
	if pack.Degraded {
		assumptions = append(assumptions, "Some sources were unavailable for this assembly.")
	}

	bottom := fmt.Sprintf("No active alerts for %s.", place)
	if !feedOk {
		bottom = fmt.Sprintf("Alert status for %s is unknown right now.", place)
	} else if len(alerts) > 0 {
		bottom = fmt.Sprintf("%s in effect for %s.", alerts[0].Event, place)
	}

	return &response.Structured{
		Sections: []response.Section{
			{Name: response.SectionSummary, Blocks: summary},
			{Name: response.SectionTimeline, Blocks: timeline},
			{Name: response.SectionRisk, Blocks: risk},
			{Name: response.SectionConfidence, Blocks: []string{fmt.Sprintf("Confidence %.2f: %s.", conf.Value, conf.Rationale)}},
			{Name: response.SectionActions, Blocks: actions},
			{Name: response.SectionAssumptions, Blocks: assumptions},
		},
		Confidence: conf,
		UsedFields: used,
		BottomLine: bottom,
		Provider:   localProvider,
	}
}

// composeWorldview rolls the region samples and alert counts into an
// overview. The samples are a snapshot, so the timeline only says so.
func composeWorldview(pack *feature.Pack, severeOnly bool) *response.Structured {
	unit := "F"
	if pack.Query.Units == "metric" {
		unit = "C"
	}

	var summary, risk, assumptions, used []string
	var regions []sources.RegionSamples
	for _, res := range pack.Results {
		if !res.Ok() {
			assumptions = append(assumptions, fmt.Sprintf("Source %s was unavailable.", res.Source))
			continue
		}
		if rs, ok := res.Payload.(sources.RegionSamples); ok {
			regions = append(regions, rs)
			if len(rs.Samples) > 0 {
				used = append(used, res.Source+".samples")
			}
			if len(rs.Alerts) > 0 {
				used = append(used, res.Source+".alerts")
			}
		}
	}

	cities := 0
	for _, rs := range regions {
		if len(rs.Samples) == 0 {
			continue
		}
		cities += len(rs.Samples)
		lo, hi := math.Inf(1), math.Inf(-1)
		wettest := rs.Samples[0]
		for _, s := range rs.Samples {
			lo = math.Min(lo, s.Temp)
			hi = math.Max(hi, s.Temp)
			if s.PrecipProb > wettest.PrecipProb {
				wettest = s
			}
		}
		summary = append(summary, fmt.Sprintf("%s: %d cities sampled, %.0f-%.0f%s, wettest %s (%.0f%% precip chance).",
			strings.ToUpper(rs.Region), len(rs.Samples), lo, hi, unit, wettest.City, wettest.PrecipProb))
	}
	if len(summary) == 0 {
		summary = append(summary, "No region samples came back; the overview is empty.")
	}

	var widest *sources.RegionAlert
	widestRegion := ""
	for _, rs := range regions {
		for i, a := range rs.Alerts {
			risk = append(risk, fmt.Sprintf("%s: %s x%d (%s).",
				strings.ToUpper(rs.Region), a.Event, a.Count, strings.Join(a.Areas, ", ")))
			if widest == nil || a.Count > widest.Count {
				widest = &rs.Alerts[i]
				widestRegion = rs.Region
			}
		}
	}
	if len(risk) == 0 {
		if severeOnly {
			risk = append(risk, "No severe products active in the sampled regions.")
		} else {
			risk = append(risk, "No aggregated alerts in the sampled regions.")
		}
	}

	total := len(pack.Results)
	ok := pack.OkCount()
	conf := response.Confidence{Value: 0.2, Rationale: "no region sources responded"}
	if total > 0 && ok > 0 {
		v := math.Round(90*float64(ok)/float64(total)) / 100
		conf = response.Confidence{Value: v, Rationale: fmt.Sprintf("%d of %d region sources reporting", ok, total)}
	}

	actions := []string{"Drill into any city with the forecast command for an hour-by-hour brief."}
	if widest != nil && severityWorthAction(widest.Event) {
		actions = append([]string{fmt.Sprintf("Watch the %s region: %s coverage is widest.", strings.ToUpper(widestRegion), widest.Event)}, actions...)
	}

	assumptions = append(assumptions, fmt.Sprintf("Coverage is limited to %d sampled cities; conditions between them are not represented.", cities))
	if severeOnly {
		assumptions = append(assumptions, "Alert roll-up restricted to severe products.")
	}

	bottom := "No widespread hazards in the sampled regions."
	if widest != nil {
		bottom = fmt.Sprintf("Most widespread: %s (%d) in the %s region.", widest.Event, widest.Count, strings.ToUpper(widestRegion))
	}

	return &response.Structured{
		Sections: []response.Section{
			{Name: response.SectionSummary, Blocks: summary},
			{Name: response.SectionTimeline, Blocks: []string{"Snapshot overview; samples are current conditions, not a forecast."}},
			{Name: response.SectionRisk, Blocks: risk},
			{Name: response.SectionConfidence, Blocks: []string{fmt.Sprintf("Confidence %.2f: %s.", conf.Value, conf.Rationale)}},
			{Name: response.SectionActions, Blocks: actions},
			{Name: response.SectionAssumptions, Blocks: assumptions},
		},
		Confidence: conf,
		UsedFields: used,
		BottomLine: bottom,
		Provider:   localProvider,
	}
}

func displayPlace(pack *feature.Pack) string {
	if pc, ok := pack.Point(); ok && pc.Name != "" {
		return pc.Name
	}
	if p := pack.Query.Place; p != "" {
		return p
	}
	return "the requested place"
}

func severityRank(severity string) int {
	switch strings.ToLower(severity) {
	case "extreme":
		return 4
	case "severe":
		return 3
	case "moderate":
		return 2
	case "minor":
		return 1
	}
	return 0
}

func severityWorthAction(event string) bool {
	e := strings.ToLower(event)
	return strings.Contains(e, "warning") || strings.Contains(e, "severe") || strings.Contains(e, "tornado")
}
