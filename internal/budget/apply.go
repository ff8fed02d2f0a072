package budget

import (
	"strings"

	"github.com/mohammad-safakhou/wxbrief/internal/response"
)

const truncationMark = "…"

// Apply trims resp so its total word count never exceeds capWords, splitting
// the cap across sections by weight. Each weighted section gets the floor of
// its share and the last weighted section absorbs the rounding remainder, so
// the allocations always sum to the cap. Words a section leaves unused are
// not redistributed. Sections without a weight are emptied.
//
// Cuts land on block boundaries; the block straddling the limit is cut
// mid-block with a truncation mark folded onto its final word, which keeps
// the trimmed word count exact and makes Apply idempotent. The input is
// never mutated. A non-positive cap or an empty weight map leaves the
// response untouched.
func Apply(resp *response.Structured, capWords int, weights map[string]float64) *response.Structured {
	out := resp.Clone()
	if capWords <= 0 || len(weights) == 0 {
		return out
	}
	limits := allocate(capWords, weights)
	for i, s := range out.Sections {
		trimmed, cut := trimSection(s, limits[s.Name])
		out.Sections[i] = trimmed
		if cut {
			out.Truncated = true
		}
	}
	return out
}

// allocate turns weights into per-section word limits in canonical order.
func allocate(capWords int, weights map[string]float64) map[string]int {
	limits := make(map[string]int)
	var weighted []string
	for _, name := range response.SectionOrder() {
		w, ok := weights[name]
		if !ok || w <= 0 {
			continue
		}
		weighted = append(weighted, name)
		limits[name] = int(float64(capWords) * w)
	}
	if len(weighted) == 0 {
		return limits
	}
	total := 0
	for _, name := range weighted {
		total += limits[name]
	}
	limits[weighted[len(weighted)-1]] += capWords - total
	return limits
}

func trimSection(s response.Section, limit int) (response.Section, bool) {
	words := s.Words()
	if words <= limit {
		return s, false
	}
	if limit <= 0 {
		return response.Section{Name: s.Name, Blocks: []string{}}, words > 0
	}
	kept := make([]string, 0, len(s.Blocks))
	used := 0
	for _, b := range s.Blocks {
		n := len(strings.Fields(b))
		if used+n <= limit {
			kept = append(kept, b)
			used += n
			continue
		}
		if rem := limit - used; rem > 0 {
			kept = append(kept, cutBlock(b, rem))
		}
		break
	}
	return response.Section{Name: s.Name, Blocks: kept}, true
}

// cutBlock keeps the first n words and folds the truncation mark onto the
// last one so the cut block still counts exactly n words.
func cutBlock(b string, n int) string {
	fields := strings.Fields(b)
	if n > len(fields) {
		n = len(fields)
	}
	fields = fields[:n]
	fields[n-1] += truncationMark
	return strings.Join(fields, " ")
}
