// Package favorites stores named places so briefs can be requested by a
// short label instead of a full geocode query.
package favorites

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mohammad-safakhou/wxbrief/internal/fsx"
)

const favoritesFile = "favorites.json"

// Favorite pins a resolved place under a user-chosen name.
type Favorite struct {
	Name    string    `json:"name"`
	Place   string    `json:"place"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
	AddedAt time.Time `json:"added_at"`
}

// Store is the file-backed favorites list. Names are matched
// case-insensitively.
type Store struct {
	path string
}

func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, favoritesFile)}
}

// List returns all favorites sorted by name. A missing file is an empty list.
func (s *Store) List() ([]Favorite, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read favorites: %w", err)
	}
	var out []Favorite
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode favorites: %w", err)
	}
	return out, nil
}

// Add saves a favorite, replacing any existing one with the same name.
func (s *Store) Add(f Favorite) error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("favorite name is required")
	}
	if f.AddedAt.IsZero() {
		f.AddedAt = time.Now().UTC()
	}
	list, err := s.List()
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, existing := range list {
		if !strings.EqualFold(existing.Name, f.Name) {
			kept = append(kept, existing)
		}
	}
	kept = append(kept, f)
	return s.save(kept)
}

// Remove deletes a favorite by name, reporting whether it existed.
func (s *Store) Remove(name string) (bool, error) {
	list, err := s.List()
	if err != nil {
		return false, err
	}
	kept := list[:0]
	removed := false
	for _, f := range list {
		if strings.EqualFold(f.Name, name) {
			removed = true
			continue
		}
		kept = append(kept, f)
	}
	if !removed {
		return false, nil
	}
	return true, s.save(kept)
}

// Default picks the place used when a command gets no place at all: the
// favorite named "default" or "home" when one exists, otherwise the earliest
// saved one.
func (s *Store) Default() (Favorite, bool, error) {
	list, err := s.List()
	if err != nil || len(list) == 0 {
		return Favorite{}, false, err
	}
	for _, want := range []string{"default", "home"} {
		for _, f := range list {
			if strings.EqualFold(f.Name, want) {
				return f, true, nil
			}
		}
	}
	oldest := list[0]
	for _, f := range list[1:] {
		if f.AddedAt.Before(oldest.AddedAt) {
			oldest = f
		}
	}
	return oldest, true, nil
}

// Resolve looks a favorite up by name.
func (s *Store) Resolve(name string) (Favorite, bool, error) {
	list, err := s.List()
	if err != nil {
		return Favorite{}, false, err
	}
	for _, f := range list {
		if strings.EqualFold(f.Name, name) {
			return f, true, nil
		}
	}
	return Favorite{}, false, nil
}

func (s *Store) save(list []Favorite) error {
	sort.Slice(list, func(i, j int) bool {
		return strings.ToLower(list[i].Name) < strings.ToLower(list[j].Name)
	})
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}
	if err := fsx.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write favorites: %w", err)
	}
	return nil
}
