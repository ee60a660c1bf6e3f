package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{
			name: "nil error",
			err:  nil,
			want: ErrorClassNone,
		},
		{
			name: "auth error",
			err:  &AuthError{SourceID: "adzuna", Err: errors.New("401")},
			want: ErrorClassAuth,
		},
		{
			name: "wrapped auth error",
			err:  fmt.Errorf("fetch: %w", &AuthError{SourceID: "adzuna", Err: errors.New("401")}),
			want: ErrorClassAuth,
		},
		{
			name: "rate limit error",
			err:  &RateLimitError{SourceID: "adzuna", RetryAfter: time.Minute, Err: errors.New("429")},
			want: ErrorClassRateLimited,
		},
		{
			name: "structural error",
			err:  &StructuralError{SourceID: "adzuna", Detail: "missing results field"},
			want: ErrorClassStructural,
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: ErrorClassTransient,
		},
		{
			name: "plain network error",
			err:  errors.New("connection refused"),
			want: ErrorClassTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		query   Query
		wantErr bool
	}{
		{
			name:    "valid query",
			query:   Query{Keywords: []string{"golang"}, PerSourceLimit: 50},
			wantErr: false,
		},
		{
			name:    "empty keyword set",
			query:   Query{},
			wantErr: true,
		},
		{
			name:    "whitespace-only keywords",
			query:   Query{Keywords: []string{"  ", ""}},
			wantErr: true,
		},
		{
			name:    "negative per-source limit",
			query:   Query{Keywords: []string{"golang"}, PerSourceLimit: -1},
			wantErr: true,
		},
		{
			name:    "deadline in the past",
			query:   Query{Keywords: []string{"golang"}, Deadline: time.Now().Add(-time.Minute)},
			wantErr: true,
		},
		{
			name:    "future deadline",
			query:   Query{Keywords: []string{"golang"}, Deadline: time.Now().Add(time.Hour)},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Errorf("expected *ValidationError, got %T", err)
				}
			}
		})
	}
}
