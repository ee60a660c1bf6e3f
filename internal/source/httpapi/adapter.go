package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/jobtide/internal/domain"
	"github.com/timmy/jobtide/internal/source"
)

const defaultPageSize = 50

// Config drives one versioned-REST source. The adapter itself stays
// generic; everything source-specific (endpoint, parameter names, auth)
// arrives through configuration.
type Config struct {
	ID          string
	BaseURL     string
	SearchPath  string            // e.g. "/v1/search"
	APIKey      string            // bearer token; empty disables the header
	Params      map[string]string // static query parameters (app ids etc.)
	KeywordKey  string            // query parameter for keywords, default "what"
	LocationKey string            // query parameter for location, default "where"
	PageSize    int
	RateClass   string
	Experience  bool // whether the API honors an experience filter
}

// Adapter fetches listings from a versioned HTTP API and translates
// its response shape into canonical listing records.
type Adapter struct {
	cfg    Config
	client *resty.Client
}

// NewAdapter creates an HTTP API adapter.
// Parameters:
//   - cfg: source-specific configuration.
// Returns:
//   - *Adapter: initialized adapter.
func NewAdapter(cfg Config) *Adapter {
	if cfg.KeywordKey == "" {
		cfg.KeywordKey = "what"
	}
	if cfg.LocationKey == "" {
		cfg.LocationKey = "where"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Accept", "application/json")
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
		Experience:   a.cfg.Experience,
		LatencyClass: source.LatencyFast,
		RateClass:    a.cfg.RateClass,
	}
}

// searchResponse mirrors the common board API shape: a results array
// plus a total count.
type searchResponse struct {
	Results []searchResult `json:"results"`
	Count   int            `json:"count"`
}

type searchResult struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Company     displayName  `json:"company"`
	Location    displayName  `json:"location"`
	SalaryMin   float64      `json:"salary_min"`
	SalaryMax   float64      `json:"salary_max"`
	RedirectURL string       `json:"redirect_url"`
	Created     string       `json:"created"`
}

type displayName struct {
	DisplayName string `json:"display_name"`
}

// Fetch retrieves listings matching the query, paging until the
// per-source cap is reached or results run out.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - query: capability-compatible collection query.
// Returns:
//   - []domain.ListingRecord: canonical listings.
//   - error: taxonomy-classified fetch error.
func (a *Adapter) Fetch(ctx context.Context, query domain.Query) ([]domain.ListingRecord, error) {
	limit := query.PerSourceLimit
	if limit <= 0 {
		limit = defaultPageSize
	}

	var records []domain.ListingRecord
	for page := 1; len(records) < limit; page++ {
		batch, err := a.fetchPage(ctx, query, page, limit-len(records))
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		records = append(records, batch...)
		if len(batch) < a.cfg.PageSize {
			break
		}
	}

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (a *Adapter) fetchPage(ctx context.Context, query domain.Query, page, remaining int) ([]domain.ListingRecord, error) {
	pageSize := a.cfg.PageSize
	if pageSize > remaining {
		pageSize = remaining
	}

	req := a.client.R().SetContext(ctx)
	for k, v := range a.cfg.Params {
		req.SetQueryParam(k, v)
	}
	req.SetQueryParam(a.cfg.KeywordKey, strings.Join(query.Keywords, " "))
	if query.Location != "" {
		req.SetQueryParam(a.cfg.LocationKey, query.Location)
	}
	if a.cfg.Experience && query.Experience != "" {
		req.SetQueryParam("experience", query.Experience)
	}
	req.SetQueryParam("results_per_page", strconv.Itoa(pageSize))
	req.SetQueryParam("page", strconv.Itoa(page))

	var body searchResponse
	resp, err := req.SetResult(&body).Get(a.cfg.SearchPath)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d from %s: %w", page, a.cfg.ID, err)
	}

	if err := a.classifyStatus(resp); err != nil {
		return nil, err
	}

	// A 200 with no parsed results and a non-JSON body means the API
	// answered with something this adapter cannot interpret.
	if body.Results == nil && len(resp.Body()) > 0 &&
		!strings.Contains(resp.Header().Get("Content-Type"), "json") {
		return nil, &domain.StructuralError{
			SourceID: a.cfg.ID,
			Detail:   fmt.Sprintf("non-JSON response (content-type %q)", resp.Header().Get("Content-Type")),
		}
	}

	now := time.Now()
	records := make([]domain.ListingRecord, 0, len(body.Results))
	for _, res := range body.Results {
		if res.RedirectURL == "" || res.Title == "" {
			continue
		}
		rec := domain.ListingRecord{
			SourceID:     a.cfg.ID,
			ExternalID:   res.ID,
			Title:        res.Title,
			Organization: res.Company.DisplayName,
			Location:     res.Location.DisplayName,
			Body:         res.Description,
			URL:          res.RedirectURL,
			DiscoveredAt: now,
		}
		if res.SalaryMin > 0 || res.SalaryMax > 0 {
			rec.Compensation = &domain.CompensationRange{
				Min:    res.SalaryMin,
				Max:    res.SalaryMax,
				Period: "year",
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy.
func (a *Adapter) classifyStatus(resp *resty.Response) error {
	code := resp.StatusCode()
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &domain.AuthError{
			SourceID: a.cfg.ID,
			Err:      fmt.Errorf("status %d", code),
		}
	case code == http.StatusTooManyRequests:
		return &domain.RateLimitError{
			SourceID:   a.cfg.ID,
			RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After")),
			Err:        fmt.Errorf("status %d", code),
		}
	case code >= 500:
		return fmt.Errorf("source %s returned status %d", a.cfg.ID, code)
	default:
		return &domain.StructuralError{
			SourceID: a.cfg.ID,
			Detail:   fmt.Sprintf("unexpected status %d", code),
		}
	}
}

// HealthCheck issues a minimal search to verify the source answers.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - error: nil when the source answers, classified error otherwise.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	req := a.client.R().SetContext(ctx)
	for k, v := range a.cfg.Params {
		req.SetQueryParam(k, v)
	}
	req.SetQueryParam("results_per_page", "1")
	req.SetQueryParam("page", "1")

	resp, err := req.Get(a.cfg.SearchPath)
	if err != nil {
		return fmt.Errorf("health check %s: %w", a.cfg.ID, err)
	}
	return a.classifyStatus(resp)
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
