package staging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/timmy/jobtide/internal/domain"
)

func TestFetchDeterministic(t *testing.T) {
	a := NewAdapter(Config{ID: "dev", Count: 5})
	query := domain.Query{Keywords: []string{"golang"}}

	first, err := a.Fetch(context.Background(), query)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	second, err := a.Fetch(context.Background(), query)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(first) != 5 || len(second) != 5 {
		t.Fatalf("expected 5 records per fetch, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].URL != second[i].URL || first[i].Title != second[i].Title {
			t.Errorf("record %d differs across fetches", i)
		}
	}
}

func TestFetchHonorsPerSourceLimit(t *testing.T) {
	a := NewAdapter(Config{ID: "dev", Count: 10})
	records, err := a.Fetch(context.Background(), domain.Query{Keywords: []string{"go"}, PerSourceLimit: 3})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("got %d records, want 3", len(records))
	}
}

func TestFetchFailureModes(t *testing.T) {
	tests := []struct {
		mode string
		want domain.ErrorClass
	}{
		{FailTransient, domain.ErrorClassTransient},
		{FailAuth, domain.ErrorClassAuth},
		{FailStructural, domain.ErrorClassStructural},
		{FailRateLimited, domain.ErrorClassRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			a := NewAdapter(Config{ID: "dev", FailMode: tt.mode})
			_, err := a.Fetch(context.Background(), domain.Query{Keywords: []string{"go"}})
			if err == nil {
				t.Fatal("expected configured failure")
			}
			if got := domain.Classify(err); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetchRespectsLatencyAndCancellation(t *testing.T) {
	a := NewAdapter(Config{ID: "slow", Count: 1, Latency: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := a.Fetch(ctx, domain.Query{Keywords: []string{"go"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	healthy := NewAdapter(Config{ID: "dev"})
	if err := healthy.HealthCheck(context.Background()); err != nil {
		t.Errorf("healthy adapter: %v", err)
	}

	// Structural failures affect fetches, not liveness.
	parseBroken := NewAdapter(Config{ID: "dev", FailMode: FailStructural})
	if err := parseBroken.HealthCheck(context.Background()); err != nil {
		t.Errorf("structural mode should pass health check: %v", err)
	}

	authBroken := NewAdapter(Config{ID: "dev", FailMode: FailAuth})
	if err := authBroken.HealthCheck(context.Background()); err == nil {
		t.Error("auth mode should fail health check")
	}
}
