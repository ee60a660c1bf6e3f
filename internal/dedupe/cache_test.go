package dedupe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/timmy/jobtide/internal/domain"
)

// memStore is an in-memory Store with the same converge-on-insert
// semantics as the durable backend.
type memStore struct {
	mu      sync.Mutex
	entries map[string]*domain.DedupeEntry
	failing bool
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]*domain.DedupeEntry)}
}

func (s *memStore) Get(_ context.Context, fp string) (*domain.DedupeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errors.New("store down")
	}
	e, ok := s.entries[fp]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) Insert(_ context.Context, entry *domain.DedupeEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return false, errors.New("store down")
	}
	if _, exists := s.entries[entry.Fingerprint]; exists {
		return false, nil
	}
	cp := *entry
	s.entries[entry.Fingerprint] = &cp
	return true, nil
}

func (s *memStore) ListSince(_ context.Context, since time.Time) ([]domain.DedupeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errors.New("store down")
	}
	var out []domain.DedupeEntry
	for _, e := range s.entries {
		if !e.FirstSeenAt.Before(since) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *memStore) SetApplied(_ context.Context, fp string, applied bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("store down")
	}
	e, ok := s.entries[fp]
	if !ok {
		return domain.ErrFingerprintUnknown
	}
	e.Applied = applied
	return nil
}

func record(sourceID, title, org, url string, seen time.Time) domain.ListingRecord {
	return domain.ListingRecord{
		SourceID:     sourceID,
		ExternalID:   url,
		Title:        title,
		Organization: org,
		URL:          url,
		DiscoveredAt: seen,
	}
}

func TestFilterNewExactDuplicates(t *testing.T) {
	cache := NewCache(newMemStore(), nil, nil, nil)
	now := time.Now()

	batch := []domain.ListingRecord{
		record("fast", "Go Engineer", "Acme", "https://a.example.com/jobs/1", now),
		record("fast", "Data Engineer", "Acme", "https://a.example.com/jobs/2", now),
		// Same posting reached through a tracking link.
		record("slow", "Go Engineer", "Acme", "https://a.example.com/jobs/1?utm_source=feed", now),
	}

	fresh, err := cache.FilterNew(context.Background(), batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("expected 2 new records, got %d", len(fresh))
	}

	// The result set itself must hold no two records sharing a fingerprint.
	seen := make(map[string]bool)
	for _, r := range fresh {
		fp := Fingerprint(r.URL)
		if seen[fp] {
			t.Errorf("duplicate fingerprint in result set: %s", r.URL)
		}
		seen[fp] = true
	}
}

func TestFilterNewFuzzyWindow(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		delta time.Duration
		want  int
	}{
		{"inside window collapses", 24 * time.Hour, 1},
		{"outside window both survive", 31 * 24 * time.Hour, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewCache(newMemStore(), nil, nil, nil)

			first := []domain.ListingRecord{
				record("fast", "Senior Go Engineer", "Acme Corp", "https://a.example.com/jobs/1", now.Add(-tt.delta)),
			}
			if _, err := cache.FilterNew(context.Background(), first); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			// Repost of the same role on another source: different URL,
			// near-identical title and organization.
			second := []domain.ListingRecord{
				record("slow", "Senior Go Engineer", "Acme Corp.", "https://b.example.com/p/999", now),
			}
			fresh, err := cache.FilterNew(context.Background(), second)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			total := 1 + len(fresh)
			if total != tt.want {
				t.Errorf("surviving records = %d, want %d", total, tt.want)
			}
		})
	}
}

func TestFilterNewFuzzyBelowThreshold(t *testing.T) {
	cache := NewCache(newMemStore(), nil, nil, nil)
	now := time.Now()

	batch := []domain.ListingRecord{
		record("fast", "Senior Go Engineer", "Acme Corp", "https://a.example.com/jobs/1", now),
		record("slow", "Staff Accountant", "Beta Inc", "https://b.example.com/p/2", now),
	}
	fresh, err := cache.FilterNew(context.Background(), batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fresh) != 2 {
		t.Errorf("dissimilar listings must both survive, got %d", len(fresh))
	}
}

func TestFilterNewIdempotence(t *testing.T) {
	now := time.Now()
	batch := []domain.ListingRecord{
		record("fast", "Go Engineer", "Acme", "https://a.example.com/jobs/1", now),
		record("fast", "Data Engineer", "Acme", "https://a.example.com/jobs/2", now),
	}

	// Two runs against separate empty caches admit equal sets.
	for i := 0; i < 2; i++ {
		cache := NewCache(newMemStore(), nil, nil, nil)
		fresh, err := cache.FilterNew(context.Background(), batch)
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
		if len(fresh) != 2 {
			t.Errorf("run %d: expected 2 records, got %d", i, len(fresh))
		}
	}

	// Two runs against the same populated cache never re-admit a fingerprint.
	cache := NewCache(newMemStore(), nil, nil, nil)
	if _, err := cache.FilterNew(context.Background(), batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fresh, err := cache.FilterNew(context.Background(), batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fresh) != 0 {
		t.Errorf("second run re-admitted %d previously seen records", len(fresh))
	}
}

func TestFilterNewStoreDownIsFatal(t *testing.T) {
	store := newMemStore()
	store.failing = true
	cache := NewCache(store, nil, nil, nil)

	_, err := cache.FilterNew(context.Background(), []domain.ListingRecord{
		record("fast", "Go Engineer", "Acme", "https://a.example.com/jobs/1", time.Now()),
	})
	if !errors.Is(err, domain.ErrCacheUnavailable) {
		t.Errorf("expected ErrCacheUnavailable, got %v", err)
	}
}

func TestAppliedFlag(t *testing.T) {
	cache := NewCache(newMemStore(), nil, nil, nil)
	ctx := context.Background()
	now := time.Now()

	if _, err := cache.FilterNew(ctx, []domain.ListingRecord{
		record("fast", "Go Engineer", "Acme", "https://a.example.com/jobs/1", now),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fp := Fingerprint("https://a.example.com/jobs/1")

	applied, err := cache.IsApplied(ctx, fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Error("fresh entry must not be applied")
	}

	if err := cache.MarkApplied(ctx, fp); err != nil {
		t.Fatalf("MarkApplied: %v", err)
	}
	applied, err = cache.IsApplied(ctx, fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Error("expected applied flag to be set")
	}

	// Unknown fingerprint reads as not applied.
	applied, err = cache.IsApplied(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Error("unknown fingerprint must not read as applied")
	}
}

func TestMarkAppliedUnknownFingerprint(t *testing.T) {
	cache := NewCache(newMemStore(), nil, nil, nil)

	err := cache.MarkApplied(context.Background(), "deadbeef")
	if !errors.Is(err, domain.ErrFingerprintUnknown) {
		t.Fatalf("expected ErrFingerprintUnknown, got %v", err)
	}
	// A missing row is an answer from the store, not a store outage.
	if errors.Is(err, domain.ErrCacheUnavailable) {
		t.Error("unknown fingerprint must not report the store unavailable")
	}
}

func TestMarkAppliedStoreDown(t *testing.T) {
	store := newMemStore()
	store.failing = true
	cache := NewCache(store, nil, nil, nil)

	err := cache.MarkApplied(context.Background(), "deadbeef")
	if !errors.Is(err, domain.ErrCacheUnavailable) {
		t.Errorf("expected ErrCacheUnavailable, got %v", err)
	}
}
