package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/jobtide/internal/domain"
	"github.com/timmy/jobtide/internal/source"
)

// Config drives one browser-automation backed source. The heavy lifting
// happens in a sidecar service owning a pool of headless browser
// instances; this adapter speaks its HTTP API and translates the
// extracted listings into canonical records. From the orchestrator's
// point of view it is just another adapter; the shared browser pool is
// what the governor's global concurrency ceiling protects.
type Config struct {
	ID         string
	SidecarURL string // base URL of the browser-pool sidecar
	Site       string // site profile the sidecar should drive
	APIKey     string // sidecar auth token, optional
	RateClass  string
	Timeout    time.Duration // per-call sidecar timeout
}

// Adapter fetches listings through a browser-pool sidecar.
type Adapter struct {
	cfg    Config
	client *resty.Client
}

// NewAdapter creates a browser-pool adapter.
// Parameters:
//   - cfg: source-specific configuration.
// Returns:
//   - *Adapter: initialized adapter.
func NewAdapter(cfg Config) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(cfg.SidecarURL)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &Adapter{cfg: cfg, client: client}
}

// ID returns the stable identifier for this source.
func (a *Adapter) ID() string {
	return a.cfg.ID
}

// Capabilities returns the adapter's static capability set.
func (a *Adapter) Capabilities() source.Capabilities {
	return source.Capabilities{
		Location:     true,
		LatencyClass: source.LatencySlow,
		RateClass:    a.cfg.RateClass,
	}
}

// scrapeRequest is what the sidecar expects for one extraction run.
type scrapeRequest struct {
	Site     string   `json:"site"`
	Keywords []string `json:"keywords"`
	Location string   `json:"location,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// scrapeResponse is the sidecar's extraction result.
type scrapeResponse struct {
	Listings []scrapedListing `json:"listings"`
	Error    string           `json:"error,omitempty"`
}

type scrapedListing struct {
	ExternalID   string  `json:"external_id"`
	Title        string  `json:"title"`
	Company      string  `json:"company"`
	Location     string  `json:"location"`
	Description  string  `json:"description"`
	URL          string  `json:"url"`
	SalaryMin    float64 `json:"salary_min"`
	SalaryMax    float64 `json:"salary_max"`
	SalaryPeriod string  `json:"salary_period"`
}

// Fetch drives the sidecar through one extraction run for the query.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - query: capability-compatible collection query.
// Returns:
//   - []domain.ListingRecord: canonical listings.
//   - error: taxonomy-classified fetch error.
func (a *Adapter) Fetch(ctx context.Context, query domain.Query) ([]domain.ListingRecord, error) {
	req := scrapeRequest{
		Site:     a.cfg.Site,
		Keywords: query.Keywords,
		Location: query.Location,
		Limit:    query.PerSourceLimit,
	}

	var body scrapeResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&body).
		Post("/v1/scrape")
	if err != nil {
		return nil, fmt.Errorf("scrape via sidecar for %s: %w", a.cfg.ID, err)
	}
	if err := a.classify(resp, &body); err != nil {
		return nil, err
	}

	now := time.Now()
	records := make([]domain.ListingRecord, 0, len(body.Listings))
	for _, l := range body.Listings {
		if l.URL == "" || l.Title == "" {
			continue
		}
		rec := domain.ListingRecord{
			SourceID:     a.cfg.ID,
			ExternalID:   l.ExternalID,
			Title:        l.Title,
			Organization: l.Company,
			Location:     l.Location,
			Body:         l.Description,
			URL:          l.URL,
			DiscoveredAt: now,
		}
		if l.SalaryMin > 0 || l.SalaryMax > 0 {
			rec.Compensation = &domain.CompensationRange{
				Min:    l.SalaryMin,
				Max:    l.SalaryMax,
				Period: l.SalaryPeriod,
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (a *Adapter) classify(resp *resty.Response, body *scrapeResponse) error {
	code := resp.StatusCode()
	switch {
	case code == http.StatusOK:
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &domain.AuthError{SourceID: a.cfg.ID, Err: fmt.Errorf("sidecar status %d", code)}
	case code == http.StatusTooManyRequests:
		return &domain.RateLimitError{SourceID: a.cfg.ID, Err: fmt.Errorf("sidecar status %d", code)}
	default:
		return fmt.Errorf("sidecar for %s returned status %d", a.cfg.ID, code)
	}

	// The sidecar reports extraction failures in-band: the page loaded
	// but its structure did not match the site profile.
	if body.Error != "" {
		detail := body.Error
		if strings.Contains(strings.ToLower(detail), "login") ||
			strings.Contains(strings.ToLower(detail), "credential") {
			return &domain.AuthError{SourceID: a.cfg.ID, Err: fmt.Errorf("%s", detail)}
		}
		return &domain.StructuralError{SourceID: a.cfg.ID, Detail: detail}
	}
	return nil
}

// HealthCheck asks the sidecar whether the site profile is operable
// without running a full extraction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - error: nil when the sidecar reports the profile healthy.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("site", a.cfg.Site).
		Get("/v1/health")
	if err != nil {
		return fmt.Errorf("sidecar health check for %s: %w", a.cfg.ID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("sidecar for %s unhealthy: status %d", a.cfg.ID, resp.StatusCode())
	}
	return nil
}
