// Package render prints a brief to a terminal: styled section blocks, a
// confidence bar, and caveat lines for degraded or offline answers. JSON mode
// bypasses all styling and emits the brief as-is.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mohammad-safakhou/wxbrief/internal/favorites"
	"github.com/mohammad-safakhou/wxbrief/internal/orchestrator"
	"github.com/mohammad-safakhou/wxbrief/internal/response"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))
	caveatStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dangerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("221"))
	bottomStyle  = lipgloss.NewStyle().Bold(true)
	barFillStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
)

// Options selects the output mode.
type Options struct {
	JSON  bool
	Debug bool
}

// Brief writes one brief. With JSON set it encodes the whole brief and
// returns; otherwise it renders the budgeted sections in canonical order.
func Brief(w io.Writer, b *orchestrator.Brief, opts Options) error {
	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	}

	q := b.Pack.Query
	title := q.Place
	if q.Kind != "" {
		title += " · " + q.Kind
	}
	if q.Horizon > 0 {
		title += " · next " + durShort(q.Horizon)
	}
	fmt.Fprintln(w, titleStyle.Render(title))
	if q.Question != "" {
		fmt.Fprintln(w, subtleStyle.Render("» "+q.Question))
	}
	if b.Pack.Degraded {
		fmt.Fprintln(w, caveatStyle.Render("! some sources were unavailable; this brief may be incomplete"))
	}
	if b.Synthetic {
		fmt.Fprintln(w, caveatStyle.Render("! no AI provider reachable; this is a local fallback answer"))
	}

	for _, name := range response.SectionOrder() {
		sec, ok := b.Response.Section(name)
		if !ok {
			continue
		}
		if len(sec.Blocks) == 0 && name != response.SectionConfidence {
			continue
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render(strings.ToUpper(name)))
		switch name {
		case response.SectionTimeline:
			writeTimeline(w, sec.Blocks)
		case response.SectionRisk:
			writeRisk(w, sec.Blocks)
		case response.SectionConfidence:
			writeConfidence(w, b.Response.Confidence, sec.Blocks)
		default:
			writeBullets(w, sec.Blocks)
		}
	}

	if b.Response.BottomLine != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, bottomStyle.Render("Bottom line: "+b.Response.BottomLine))
	}

	if opts.Debug {
		writeFooter(w, b)
	}
	return nil
}

func writeBullets(w io.Writer, blocks []string) {
	for _, block := range blocks {
		fmt.Fprintf(w, "  • %s\n", block)
	}
}

// writeTimeline draws the phases as a branch so the sequence reads top to
// bottom.
func writeTimeline(w io.Writer, blocks []string) {
	for i, block := range blocks {
		guide := "├─"
		if i == len(blocks)-1 {
			guide = "└─"
		}
		fmt.Fprintf(w, "  %s %s\n", guide, block)
	}
}

func writeRisk(w io.Writer, blocks []string) {
	for _, block := range blocks {
		line := "  • " + block
		switch riskTone(block) {
		case "danger":
			fmt.Fprintln(w, dangerStyle.Render(line))
		case "warn":
			fmt.Fprintln(w, warnStyle.Render(line))
		default:
			fmt.Fprintln(w, line)
		}
	}
}

func riskTone(block string) string {
	b := strings.ToLower(block)
	switch {
	case strings.Contains(b, "extreme") || strings.Contains(b, "severe") || strings.Contains(b, "tornado") || strings.Contains(b, "warning"):
		return "danger"
	case strings.Contains(b, "moderate") || strings.Contains(b, "advisory") || strings.Contains(b, "watch"):
		return "warn"
	}
	return ""
}

// writeConfidence draws a ten-cell bar for the score, then any notes.
func writeConfidence(w io.Writer, c response.Confidence, blocks []string) {
	bar := confidenceBar(c.Value)
	line := fmt.Sprintf("  %s %.2f", barFillStyle.Render(bar), c.Value)
	if c.Rationale != "" {
		line += " — " + c.Rationale
	}
	fmt.Fprintln(w, line)
	writeBullets(w, blocks)
}

func confidenceBar(value float64) string {
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	filled := int(value*10 + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

func writeFooter(w io.Writer, b *orchestrator.Brief) {
	fmt.Fprintln(w)
	src := "provider " + b.Response.Provider
	if b.Response.Model != "" {
		src += "/" + b.Response.Model
	}
	words := b.Response.Words()
	fmt.Fprintln(w, subtleStyle.Render(fmt.Sprintf("— %s · %d words · %s", src, words, b.Elapsed.Round(10*time.Millisecond))))

	for _, res := range b.Pack.Results {
		line := fmt.Sprintf("  source %-10s %-9s %s", res.Source, res.Status, res.Elapsed.Round(time.Millisecond))
		if res.Reason != "" {
			line += " (" + res.Reason + ")"
		}
		fmt.Fprintln(w, subtleStyle.Render(line))
	}
	for _, at := range b.Attempts {
		line := fmt.Sprintf("  attempt %s/%s #%d %s %s", at.Provider, at.Model, at.Number, at.Outcome, at.Latency.Round(time.Millisecond))
		if at.Err != "" {
			line += ": " + at.Err
		}
		fmt.Fprintln(w, subtleStyle.Render(line))
	}
}

// Favorites lists saved places one per line.
func Favorites(w io.Writer, list []favorites.Favorite) {
	if len(list) == 0 {
		fmt.Fprintln(w, subtleStyle.Render("no favorites saved"))
		return
	}
	for _, f := range list {
		line := fmt.Sprintf("  %-12s %s", f.Name, f.Place)
		if f.Lat != 0 || f.Lon != 0 {
			line += subtleStyle.Render(fmt.Sprintf("  (%.2f, %.2f)", f.Lat, f.Lon))
		}
		fmt.Fprintln(w, line)
	}
}

func durShort(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		if days := int(d / (24 * time.Hour)); days > 1 {
			return fmt.Sprintf("%dd", days)
		}
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return d.String()
}
