// Package synth builds a deterministic structured answer straight from the
// feature pack. It is the answer of last resort when no model provider
// delivers, and the whole answer in offline mode.
package synth

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/wxbrief/internal/feature"
	"github.com/mohammad-safakhou/wxbrief/internal/response"
	"github.com/mohammad-safakhou/wxbrief/internal/sources"
)

// Synthesizer renders packs without model assistance. Same pack in, same
// answer out.
type Synthesizer struct{}

func New() *Synthesizer { return &Synthesizer{} }

// Respond builds the full section contract from whatever the pack holds.
func (s *Synthesizer) Respond(pack *feature.Pack) *response.Structured {
	b := &builder{pack: pack, units: pack.Query.Units}

	out := &response.Structured{
		Sections: []response.Section{
			{Name: response.SectionSummary, Blocks: b.summary()},
			{Name: response.SectionTimeline, Blocks: b.timeline()},
			{Name: response.SectionRisk, Blocks: b.risks()},
			{Name: response.SectionConfidence, Blocks: b.confidenceNotes()},
			{Name: response.SectionActions, Blocks: b.actions()},
			{Name: response.SectionAssumptions, Blocks: b.assumptions()},
		},
		Confidence: b.confidence(),
		UsedFields: b.usedFields(),
		BottomLine: b.bottomLine(),
		Provider:   "synthesizer",
	}
	return out
}

type builder struct {
	pack  *feature.Pack
	units string
	used  []string
}

func (b *builder) place() string {
	if pc, ok := b.pack.Point(); ok && pc.Name != "" {
		return pc.Name
	}
	if b.pack.Query.Place != "" {
		return b.pack.Query.Place
	}
	return "the requested area"
}

func (b *builder) tempUnit() string {
	if b.units == "metric" {
		return "°C"
	}
	return "°F"
}

func (b *builder) windUnit() string {
	if b.units == "metric" {
		return "km/h"
	}
	return "mph"
}

func (b *builder) use(field string) {
	for _, f := range b.used {
		if f == field {
			return
		}
	}
	b.used = append(b.used, field)
}

func (b *builder) obs() (sources.Observations, bool) {
	p, ok := b.pack.Payload(sources.SourceObs)
	if !ok {
		return sources.Observations{}, false
	}
	o, ok := p.(sources.Observations)
	return o, ok
}

func (b *builder) outlook() (sources.Outlook, bool) {
	p, ok := b.pack.Payload(sources.SourceOutlook)
	if !ok {
		return sources.Outlook{}, false
	}
	o, ok := p.(sources.Outlook)
	return o, ok && len(o.Periods) > 0
}

func (b *builder) alerts() []sources.Alert {
	p, ok := b.pack.Payload(sources.SourceAlerts)
	if !ok {
		return nil
	}
	list, ok := p.(sources.AlertList)
	if !ok {
		return nil
	}
	return list.Alerts
}

func (b *builder) regions() []sources.RegionSamples {
	var out []sources.RegionSamples
	for _, r := range b.pack.Results {
		if !r.Ok() {
			continue
		}
		if rs, ok := r.Payload.(sources.RegionSamples); ok {
			out = append(out, rs)
		}
	}
	return out
}

func (b *builder) summary() []string {
	if regions := b.regions(); len(regions) > 0 {
		return b.regionSummary(regions)
	}
	var blocks []string
	if o, ok := b.obs(); ok {
		b.use("obs.temp")
		b.use("obs.wind")
		blocks = append(blocks, fmt.Sprintf("Currently near %.0f%s with wind around %.0f %s in %s.",
			o.Temp, b.tempUnit(), o.Wind, b.windUnit(), b.place()))
	}
	if o, ok := b.outlook(); ok {
		lo, hi := tempRange(o.Periods)
		b.use("outlook.periods")
		blocks = append(blocks, fmt.Sprintf("Temperatures run %.0f to %.0f%s over the next %d hours.",
			lo, hi, b.tempUnit(), len(o.Periods)))
	}
	if n := len(b.alerts()); n > 0 {
		b.use("alerts.events")
		blocks = append(blocks, fmt.Sprintf("%d active alert(s) cover the area.", n))
	}
	if len(blocks) == 0 {
		blocks = append(blocks, fmt.Sprintf("No live weather data was available for %s.", b.place()))
	}
	return blocks
}

func (b *builder) regionSummary(regions []sources.RegionSamples) []string {
	var blocks []string
	for _, r := range regions {
		if len(r.Samples) > 0 {
			lo, hi := sampleRange(r.Samples)
			b.use("region.samples")
			blocks = append(blocks, fmt.Sprintf("%s: %d cities sampled, temps %.0f to %.0f%s.",
				strings.ToUpper(r.Region), len(r.Samples), lo, hi, b.tempUnit()))
		}
		if len(r.Alerts) > 0 {
			top := r.Alerts[0]
			b.use("region.alerts")
			blocks = append(blocks, fmt.Sprintf("%s: leading alert %s (%d) across %s.",
				strings.ToUpper(r.Region), top.Event, top.Count, strings.Join(top.Areas, ", ")))
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, "No regional samples were available.")
	}
	return blocks
}

func (b *builder) timeline() []string {
	o, ok := b.outlook()
	if !ok {
		return nil
	}
	b.use("outlook.periods")
	var blocks []string
	for _, window := range []int{6, 12, 24} {
		if len(o.Periods) == 0 {
			break
		}
		n := window
		if n > len(o.Periods) {
			n = len(o.Periods)
		}
		slice := o.Periods[:n]
		lo, hi := tempRange(slice)
		pop := maxPrecipProb(slice)
		blocks = append(blocks, fmt.Sprintf("Next %d hours: %.0f to %.0f%s, precip chance up to %.0f%%.",
			window, lo, hi, b.tempUnit(), pop))
		if n == len(o.Periods) {
			break
		}
	}
	return blocks
}

func (b *builder) risks() []string {
	var blocks []string
	for _, a := range b.alerts() {
		b.use("alerts.events")
		block := fmt.Sprintf("%s (%s)", a.Event, a.Severity)
		if a.Area != "" {
			block += " for " + a.Area
		}
		if !a.Expires.IsZero() {
			block += " until " + a.Expires.UTC().Format("Mon 15:04 MST")
		}
		blocks = append(blocks, block+".")
	}
	if p, ok := b.pack.Payload(sources.SourceProfile); ok {
		if prof, ok := p.(sources.ConvectiveProfile); ok && prof.CAPE >= 1000 {
			b.use("profile.cape")
			blocks = append(blocks, fmt.Sprintf("Instability is notable with CAPE near %.0f J/kg; storms are possible if a trigger arrives.", prof.CAPE))
		}
	}
	for _, r := range b.regions() {
		for _, ra := range r.Alerts {
			if ra.Event == r.Alerts[0].Event {
				continue
			}
			blocks = append(blocks, fmt.Sprintf("%s: %s (%d).", strings.ToUpper(r.Region), ra.Event, ra.Count))
		}
	}
	return blocks
}

func (b *builder) confidence() response.Confidence {
	total := len(b.pack.Results)
	if total == 0 {
		return response.Confidence{Value: 0.2, Rationale: "no sources were consulted"}
	}
	ok := b.pack.OkCount()
	value := 0.2 + 0.4*float64(ok)/float64(total)
	value = math.Round(value*100) / 100
	rationale := fmt.Sprintf("synthesized locally from %d of %d sources", ok, total)
	return response.Confidence{Value: value, Rationale: rationale}
}

func (b *builder) confidenceNotes() []string {
	c := b.confidence()
	return []string{fmt.Sprintf("Confidence %.2f: %s.", c.Value, c.Rationale)}
}

func (b *builder) actions() []string {
	blocks := []string{}
	if o, ok := b.obs(); ok {
		hot := o.Temp >= 95 && b.units != "metric" || o.Temp >= 35 && b.units == "metric"
		windy := o.Wind >= 25 && b.units != "metric" || o.Wind >= 40 && b.units == "metric"
		if hot {
			blocks = append(blocks, "Shift strenuous outdoor plans to the morning and keep water close.")
		}
		if windy {
			blocks = append(blocks, "Secure loose outdoor items before winds peak.")
		}
	}
	if len(b.alerts()) > 0 {
		blocks = append(blocks, "Review the active alerts before committing to outdoor plans.")
	}
	if len(blocks) == 0 {
		blocks = append(blocks, "No special precautions needed; recheck before long outdoor exposure.")
	}
	return blocks
}

func (b *builder) assumptions() []string {
	var blocks []string
	for _, r := range b.pack.Results {
		if r.Ok() {
			continue
		}
		switch r.Status {
		case sources.StatusTimedOut:
			blocks = append(blocks, fmt.Sprintf("No data from %s (timed out).", r.Source))
		default:
			blocks = append(blocks, fmt.Sprintf("No data from %s (failed).", r.Source))
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, "All requested sources reported in.")
	}
	return blocks
}

func (b *builder) bottomLine() string {
	if alerts := b.alerts(); len(alerts) > 0 {
		return fmt.Sprintf("Heads up: %s in effect for %s.", alerts[0].Event, b.place())
	}
	if regions := b.regions(); len(regions) > 0 {
		for _, r := range regions {
			if len(r.Alerts) > 0 {
				return fmt.Sprintf("Most widespread: %s (%d) in the %s region.",
					r.Alerts[0].Event, r.Alerts[0].Count, strings.ToUpper(r.Region))
			}
		}
		return "No widespread hazards in the sampled regions."
	}
	if o, ok := b.obs(); ok {
		return fmt.Sprintf("Near %.0f%s in %s with no alerts on file.", o.Temp, b.tempUnit(), b.place())
	}
	return fmt.Sprintf("Limited data for %s; treat this brief as provisional.", b.place())
}

func (b *builder) usedFields() []string {
	out := make([]string, len(b.used))
	copy(out, b.used)
	sort.Strings(out)
	return out
}

func tempRange(periods []sources.OutlookPeriod) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range periods {
		if p.Temp < lo {
			lo = p.Temp
		}
		if p.Temp > hi {
			hi = p.Temp
		}
	}
	return lo, hi
}

func sampleRange(samples []sources.RegionSample) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range samples {
		if s.Temp < lo {
			lo = s.Temp
		}
		if s.Temp > hi {
			hi = s.Temp
		}
	}
	return lo, hi
}

func maxPrecipProb(periods []sources.OutlookPeriod) float64 {
	m := 0.0
	for _, p := range periods {
		if p.PrecipProb > m {
			m = p.PrecipProb
		}
	}
	return m
}
