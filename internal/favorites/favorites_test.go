package favorites

import (
	"testing"
	"time"
)

func TestAddListRemove(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.Add(Favorite{Name: "home", Place: "Austin", Lat: 30.27, Lon: -97.74}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(Favorite{Name: "cabin", Place: "Leadville", Lat: 39.25, Lon: -106.29}); err != nil {
		t.Fatalf("add: %v", err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("favorites = %d, want 2", len(list))
	}
	if list[0].Name != "cabin" || list[1].Name != "home" {
		t.Fatalf("order = %s, %s", list[0].Name, list[1].Name)
	}
	if list[1].AddedAt.IsZero() {
		t.Fatal("added_at not stamped")
	}

	removed, err := s.Remove("HOME")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Fatal("case-insensitive remove missed")
	}
	list, _ = s.List()
	if len(list) != 1 || list[0].Name != "cabin" {
		t.Fatalf("after remove: %+v", list)
	}
}

func TestAddReplacesSameName(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Add(Favorite{Name: "home", Place: "Austin", Lat: 30.27, Lon: -97.74}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(Favorite{Name: "Home", Place: "Oslo", Lat: 59.91, Lon: 10.75}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	list, _ := s.List()
	if len(list) != 1 {
		t.Fatalf("favorites = %d, want 1", len(list))
	}
	if list[0].Place != "Oslo" {
		t.Fatalf("place = %q, want Oslo", list[0].Place)
	}
}

func TestResolve(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Add(Favorite{Name: "Coast", Place: "Port Aransas", Lat: 27.83, Lon: -97.06}); err != nil {
		t.Fatalf("add: %v", err)
	}
	f, ok, err := s.Resolve("coast")
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if f.Lat != 27.83 {
		t.Fatalf("lat = %v", f.Lat)
	}
	if _, ok, _ := s.Resolve("nowhere"); ok {
		t.Fatal("resolved a favorite that does not exist")
	}
}

func TestDefaultPrefersNamedThenOldest(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, ok, err := s.Default(); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := s.Add(Favorite{Name: "cabin", Place: "Leadville", AddedAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(Favorite{Name: "work", Place: "Dallas", AddedAt: base}); err != nil {
		t.Fatalf("add: %v", err)
	}

	f, ok, err := s.Default()
	if err != nil || !ok {
		t.Fatalf("default: ok=%v err=%v", ok, err)
	}
	if f.Name != "work" {
		t.Fatalf("oldest should win, got %q", f.Name)
	}

	if err := s.Add(Favorite{Name: "Home", Place: "Austin", AddedAt: base.Add(2 * time.Hour)}); err != nil {
		t.Fatalf("add: %v", err)
	}
	f, _, _ = s.Default()
	if f.Name != "Home" {
		t.Fatalf("home should win over oldest, got %q", f.Name)
	}
}

func TestRemoveMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	removed, err := s.Remove("ghost")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed {
		t.Fatal("removed nothing and said true")
	}
}

func TestAddRejectsEmptyName(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Add(Favorite{Name: "  "}); err == nil {
		t.Fatal("expected error for empty name")
	}
}
