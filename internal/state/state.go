// Package state persists the most recent brief so follow-up commands can
// explain or re-render it without refetching. Privacy mode turns the whole
// cache into a no-op.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mohammad-safakhou/wxbrief/internal/feature"
	"github.com/mohammad-safakhou/wxbrief/internal/fsx"
	"github.com/mohammad-safakhou/wxbrief/internal/response"
	"github.com/mohammad-safakhou/wxbrief/internal/router"
)

const briefFile = "last_brief.json"

// ErrNoState reports that no brief is stored, either because none was saved
// yet or because privacy mode is on.
var ErrNoState = errors.New("no saved brief")

// Entry is one persisted brief: the pack it was built from, the routed
// answer, and the attempt record behind it.
type Entry struct {
	Pack      feature.Pack         `json:"pack"`
	Response  *response.Structured `json:"response"`
	Attempts  []router.Attempt     `json:"attempts,omitempty"`
	Synthetic bool                 `json:"synthetic,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// Cache is the file-backed single-slot store.
type Cache struct {
	dir     string
	privacy bool
	log     *log.Logger
}

func NewCache(dir string, privacy bool, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Cache{dir: dir, privacy: privacy, log: logger}
}

func (c *Cache) path() string { return filepath.Join(c.dir, briefFile) }

// Put stores the entry, replacing any previous one. Under privacy mode
// nothing is written and nil is returned.
func (c *Cache) Put(e Entry) error {
	if c.privacy {
		c.log.Printf("privacy mode on, skipping state write")
		return nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("encode brief: %w", err)
	}
	if err := fsx.WriteFileAtomic(c.path(), data, 0o600); err != nil {
		return fmt.Errorf("write brief: %w", err)
	}
	return nil
}

// Get loads the stored entry. ErrNoState covers both an empty cache and
// privacy mode; anything else means the file exists but cannot be read.
func (c *Cache) Get() (*Entry, error) {
	if c.privacy {
		return nil, ErrNoState
	}
	data, err := os.ReadFile(c.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("read brief: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode brief: %w", err)
	}
	return &e, nil
}

// Clear removes the stored brief. Removing an already-empty cache is fine,
// and privacy mode does not block deletion.
func (c *Cache) Clear() error {
	err := os.Remove(c.path())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear brief: %w", err)
	}
	return nil
}
