package trash

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
)

func testSnapshot(service models.Service, version string) *Snapshot {
	return &Snapshot{
		Service:   service,
		Version:   version,
		FetchedAt: time.Now(),
		CustomFormats: []CustomFormat{{
			TrashID:     "cf-x265",
			Name:        "x265 (HD)",
			TrashScores: map[string]int{"default": -10000},
			Specifications: []Specification{{
				Name:           "x265",
				Implementation: "ReleaseTitleSpecification",
				Fields:         map[string]any{"value": "[xh]265"},
			}},
		}},
	}
}

func TestCacheRoundTrip(t *testing.T) {
	// Nested path: NewCache must create missing parent directories.
	path := filepath.Join(t.TempDir(), "cache", "trash.db")
	cache, err := NewCache(path)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	defer cache.Close()

	snap, err := cache.Get(models.ServiceRadarr)
	if err != nil {
		t.Fatalf("Get() before any Set error = %v", err)
	}
	if snap != nil {
		t.Fatalf("Get() before any Set = %+v, want nil", snap)
	}

	stored := testSnapshot(models.ServiceRadarr, "abc123")
	if err := cache.Set(stored); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	snap, err = cache.Get(models.ServiceRadarr)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if snap == nil {
		t.Fatal("Get() = nil after Set")
	}
	if snap.Version != "abc123" || snap.Service != models.ServiceRadarr {
		t.Errorf("Get() = %s@%s, want radarr@abc123", snap.Service, snap.Version)
	}
	if !snap.FetchedAt.Equal(stored.FetchedAt) {
		t.Errorf("FetchedAt = %v, want %v", snap.FetchedAt, stored.FetchedAt)
	}
	if len(snap.CustomFormats) != 1 {
		t.Fatalf("CustomFormats = %d, want 1", len(snap.CustomFormats))
	}
	cf := snap.CustomFormats[0]
	if cf.TrashID != "cf-x265" || cf.Specifications[0].Fields["value"] != "[xh]265" {
		t.Errorf("CustomFormats[0] = %+v", cf)
	}
}

func TestCacheReplacesAndIsolatesServices(t *testing.T) {
	cache, err := NewCache(filepath.Join(t.TempDir(), "trash.db"))
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	defer cache.Close()

	if err := cache.Set(testSnapshot(models.ServiceRadarr, "v1")); err != nil {
		t.Fatalf("Set(radarr) error = %v", err)
	}
	if err := cache.Set(testSnapshot(models.ServiceSonarr, "v1")); err != nil {
		t.Fatalf("Set(sonarr) error = %v", err)
	}
	if err := cache.Set(testSnapshot(models.ServiceRadarr, "v2")); err != nil {
		t.Fatalf("Set(radarr again) error = %v", err)
	}

	radarr, err := cache.Get(models.ServiceRadarr)
	if err != nil {
		t.Fatalf("Get(radarr) error = %v", err)
	}
	if radarr.Version != "v2" {
		t.Errorf("radarr snapshot version = %q, want the replacement v2", radarr.Version)
	}

	sonarr, err := cache.Get(models.ServiceSonarr)
	if err != nil {
		t.Fatalf("Get(sonarr) error = %v", err)
	}
	if sonarr.Version != "v1" {
		t.Errorf("sonarr snapshot version = %q, want v1 untouched", sonarr.Version)
	}
}

func TestCacheSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trash.db")

	cache, err := NewCache(path)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	if err := cache.Set(testSnapshot(models.ServiceRadarr, "abc123")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewCache(path)
	if err != nil {
		t.Fatalf("NewCache() reopen error = %v", err)
	}
	defer reopened.Close()

	snap, err := reopened.Get(models.ServiceRadarr)
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if snap == nil || snap.Version != "abc123" {
		t.Errorf("Get() after reopen = %+v, want the persisted snapshot", snap)
	}
}
