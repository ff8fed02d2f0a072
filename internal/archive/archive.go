// Package archive keeps an in-memory full-text index over briefs served by
// the server, so past answers can be searched by place, question or wording.
// The index is rebuilt from Postgres on startup and lost on shutdown.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/wxbrief/internal/response"
	"github.com/mohammad-safakhou/wxbrief/internal/store"
)

// briefDoc is the flattened view of a brief that gets indexed.
type briefDoc struct {
	Place      string `json:"place"`
	Kind       string `json:"kind"`
	Question   string `json:"question"`
	BottomLine string `json:"bottom_line"`
	Summary    string `json:"summary"`
	Risk       string `json:"risk"`
	CreatedAt  string `json:"created_at"`
}

// Hit is one search result.
type Hit struct {
	ID         string    `json:"id"`
	Place      string    `json:"place"`
	Kind       string    `json:"kind"`
	Question   string    `json:"question,omitempty"`
	BottomLine string    `json:"bottom_line,omitempty"`
	Score      float64   `json:"score"`
	Rank       int       `json:"rank"`
	CreatedAt  time.Time `json:"created_at"`
}

type Archive struct {
	mu    sync.RWMutex
	index bleve.Index
	meta  map[string]store.BriefRecord
}

// New creates an empty in-memory archive.
func New() (*Archive, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Archive{index: index, meta: make(map[string]store.BriefRecord)}, nil
}

// Rebuild replaces the index contents with the newest briefs from the store.
func (a *Archive) Rebuild(ctx context.Context, st *store.Store, limit int) error {
	if limit <= 0 {
		limit = 500
	}
	recs, err := st.ListBriefs(ctx, "", limit)
	if err != nil {
		return fmt.Errorf("list briefs: %w", err)
	}
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return err
	}
	meta := make(map[string]store.BriefRecord, len(recs))
	for _, rec := range recs {
		if err := index.Index(rec.ID, docFromRecord(rec)); err != nil {
			return err
		}
		meta[rec.ID] = rec
	}

	a.mu.Lock()
	old := a.index
	a.index = index
	a.meta = meta
	a.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Add indexes one newly served brief.
func (a *Archive) Add(rec store.BriefRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("brief id required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.index.Index(rec.ID, docFromRecord(rec)); err != nil {
		return err
	}
	a.meta[rec.ID] = rec
	return nil
}

// Len reports how many briefs are indexed.
func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.meta)
}

// Search runs a query-string search and returns the top k hits.
func (a *Archive) Search(q string, k int) ([]Hit, error) {
	if strings.TrimSpace(q) == "" {
		return nil, fmt.Errorf("empty query")
	}
	if k <= 0 {
		k = 10
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	query := bleve.NewQueryStringQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, k*3, 0, false)
	res, err := a.index.Search(searchReq)
	if err != nil {
		return nil, err
	}
	var out []Hit
	for i, hit := range res.Hits {
		rec, ok := a.meta[hit.ID]
		if !ok {
			continue
		}
		doc := docFromRecord(rec)
		out = append(out, Hit{
			ID:         rec.ID,
			Place:      rec.Place,
			Kind:       rec.Kind,
			Question:   rec.Question,
			BottomLine: doc.BottomLine,
			Score:      hit.Score,
			Rank:       i + 1,
			CreatedAt:  rec.CreatedAt,
		})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

// Close releases the index.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.index == nil {
		return nil
	}
	err := a.index.Close()
	a.index = nil
	return err
}

func docFromRecord(rec store.BriefRecord) briefDoc {
	doc := briefDoc{
		Place:     rec.Place,
		Kind:      rec.Kind,
		Question:  rec.Question,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	var resp response.Structured
	if err := json.Unmarshal(rec.Response, &resp); err != nil {
		return doc
	}
	doc.BottomLine = resp.BottomLine
	if s, ok := resp.Section(response.SectionSummary); ok {
		doc.Summary = strings.Join(s.Blocks, " ")
	}
	if s, ok := resp.Section(response.SectionRisk); ok {
		doc.Risk = strings.Join(s.Blocks, " ")
	}
	return doc
}
