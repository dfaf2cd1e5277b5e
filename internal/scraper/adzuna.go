package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"jobmate/match-service/internal/model"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
	adzunaMaxPages = 3 // max 150 results per (what × where) pair
	httpTimeout    = 15 * time.Second
)

// AdzunaSource fetches job offers from the Adzuna public API for every
// configured (what × where) pair. If AppID or AppKey is empty, Fetch returns
// (nil, nil) and the cycle simply skips this source.
type AdzunaSource struct {
	AppID   string
	AppKey  string
	Country string // "fr", "gb", "us", …
	What    []string
	Where   []string
	BaseURL string

	client *http.Client
	log    *zap.Logger
}

// NewAdzunaSource constructs a source with a shared HTTP client.
func NewAdzunaSource(appID, appKey, country string, what, where []string, log *zap.Logger) *AdzunaSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdzunaSource{
		AppID:   appID,
		AppKey:  appKey,
		Country: country,
		What:    what,
		Where:   where,
		BaseURL: adzunaBaseURL,
		client:  &http.Client{Timeout: httpTimeout},
		log:     log,
	}
}

// Name implements Source.
func (a *AdzunaSource) Name() string { return "adzuna" }

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

// adzunaResult mirrors a single Adzuna job listing.
type adzunaResult struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Company     adzunaCompany  `json:"company"`
	Location    adzunaLocation `json:"location"`
	RedirectURL string         `json:"redirect_url"`
	Created     string         `json:"created"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

// Fetch runs every (what × where) query. A failing pair is logged and
// skipped; the error of the last failing pair is returned alongside whatever
// the others produced.
func (a *AdzunaSource) Fetch(ctx context.Context) ([]model.Job, error) {
	if a.AppID == "" || a.AppKey == "" {
		a.log.Warn("ADZUNA_APP_ID / ADZUNA_APP_KEY not set, skipping source")
		return nil, nil
	}

	where := a.Where
	if len(where) == 0 {
		where = []string{""}
	}

	var (
		jobs    []model.Job
		lastErr error
	)
	for _, what := range a.What {
		for _, loc := range where {
			batch, err := a.fetchPair(ctx, what, loc)
			jobs = append(jobs, batch...)
			if err != nil {
				if ctx.Err() != nil {
					return jobs, ctx.Err()
				}
				a.log.Warn("adzuna query failed, continuing",
					zap.String("what", what), zap.String("where", loc), zap.Error(err))
				lastErr = err
			}
		}
	}
	return jobs, lastErr
}

// fetchPair pages through one query until a short page or adzunaMaxPages.
func (a *AdzunaSource) fetchPair(ctx context.Context, what, where string) ([]model.Job, error) {
	var jobs []model.Job
	for page := 1; page <= adzunaMaxPages; page++ {
		batch, err := a.fetchPage(ctx, what, where, page)
		if err != nil {
			return jobs, fmt.Errorf("page %d: %w", page, err)
		}
		jobs = append(jobs, batch...)
		if len(batch) < adzunaPageSize {
			break
		}
	}
	return jobs, nil
}

func (a *AdzunaSource) fetchPage(ctx context.Context, what, where string, page int) ([]model.Job, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", a.BaseURL, a.Country, page)

	params := url.Values{}
	params.Set("app_id", a.AppID)
	params.Set("app_key", a.AppKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", what)
	if where != "" {
		params.Set("where", where)
	}
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := doWithRetry(ctx, a.client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adzuna returned %d: %s", resp.StatusCode, string(body))
	}

	var apiResp adzunaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	jobs := make([]model.Job, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		j := model.Job{
			Title:       r.Title,
			Company:     r.Company.DisplayName,
			Location:    r.Location.DisplayName,
			Description: r.Description,
			URL:         r.RedirectURL,
			Source:      a.Name(),
		}
		if t, err := time.Parse(time.RFC3339, r.Created); err == nil {
			j.PostedDate = &t
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
