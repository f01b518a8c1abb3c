package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/homefeed/listing-ingestion-service/internal/config"
	"github.com/homefeed/listing-ingestion-service/internal/models"
)

// ErrUnauthorized is returned when a page request is rejected even after a
// forced token refresh. It halts the whole fetch for the cycle.
var ErrUnauthorized = errors.New("feed authorization failed after token refresh")

const fetchAttempts = 3

// TokenSource provides bearer tokens for feed requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Fetcher walks the upstream feed's paginated listings endpoint. The first
// batch is seeded with $skip-based page URLs so up to Concurrency requests
// are in flight at once, each dispatch gated by a requests-per-second
// budget. Continuation links returned by a page are deduplicated against
// already-requested URLs and enqueued for the next batch. A single failed
// page is logged and dropped; the fetch as a whole only aborts when no
// valid token can be obtained.
type Fetcher struct {
	cfg        config.FeedConfig
	tokens     TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewFetcher creates a Fetcher for the configured listings endpoint.
func NewFetcher(cfg config.FeedConfig, tokens TokenSource) *Fetcher {
	return &Fetcher{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

// pageResponse mirrors one OData page of the listings endpoint.
type pageResponse struct {
	Value    []models.RawListing `json:"value"`
	NextLink string              `json:"@odata.nextLink"`
}

// FetchUpdatedListings returns all listings modified after since, in page
// arrival order, fetching at most MaxPages pages. The result is finite and
// not restartable within a cycle.
func (f *Fetcher) FetchUpdatedListings(ctx context.Context, since time.Time) ([]models.RawListing, error) {
	seeds := f.cfg.Concurrency
	if seeds < 1 {
		seeds = 1
	}
	if seeds > f.cfg.MaxPages {
		seeds = f.cfg.MaxPages
	}

	queue := make([]string, 0, seeds)
	seen := make(map[string]bool, f.cfg.MaxPages)
	for page := 0; page < seeds; page++ {
		pageURL := f.pageURL(since, page)
		queue = append(queue, pageURL)
		seen[pageURL] = true
	}

	var (
		mu       sync.Mutex
		listings []models.RawListing
		pages    int
	)

	for len(queue) > 0 && pages < f.cfg.MaxPages {
		batch := queue
		if remaining := f.cfg.MaxPages - pages; len(batch) > remaining {
			batch = batch[:remaining]
		}
		queue = nil
		pages += len(batch)

		var next []string
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(seeds)

		for _, pageURL := range batch {
			pageURL := pageURL
			g.Go(func() error {
				// Rate limit is charged per dispatched request, not per
				// completed one.
				if err := f.limiter.Wait(gctx); err != nil {
					return err
				}

				page, err := f.fetchPage(gctx, pageURL)
				if err != nil {
					if errors.Is(err, ErrUnauthorized) {
						return err
					}
					log.Printf("[fetcher] Dropping page %s: %v", pageURL, err)
					return nil
				}

				mu.Lock()
				listings = append(listings, page.Value...)
				// Continuation links for pages already seeded by $skip
				// would re-fetch the same rows.
				if page.NextLink != "" && !seen[page.NextLink] {
					seen[page.NextLink] = true
					next = append(next, page.NextLink)
				}
				mu.Unlock()
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
		queue = next
	}

	log.Printf("[fetcher] Fetched %d listings across %d page(s)", len(listings), pages)
	return listings, nil
}

// fetchPage retrieves one page with bounded retries for transient failures.
// A 401 triggers exactly one forced token refresh; a second 401 aborts with
// ErrUnauthorized.
func (f *Fetcher) fetchPage(ctx context.Context, pageURL string) (*pageResponse, error) {
	var lastErr error

	for attempt := 0; attempt < fetchAttempts; attempt++ {
		page, retryable, err := f.fetchPageOnce(ctx, pageURL, true)
		if err == nil {
			return page, nil
		}
		if !retryable {
			return nil, err
		}

		lastErr = err
		if attempt < fetchAttempts-1 {
			waitTime := time.Duration(attempt+1) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", fetchAttempts, lastErr)
}

// fetchPageOnce performs a single page request. retryable reports whether
// the failure is transient (network error or 5xx).
func (f *Fetcher) fetchPageOnce(ctx context.Context, pageURL string, refreshOn401 bool) (*pageResponse, bool, error) {
	token, err := f.tokens.Token(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create page request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("page request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if !refreshOn401 {
			return nil, false, ErrUnauthorized
		}
		log.Println("[fetcher] Token rejected upstream, forcing one refresh")
		f.tokens.Invalidate()
		return f.fetchPageOnce(ctx, pageURL, false)
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("listings endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read page response: %w", err)
	}

	var page pageResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal page response: %w", err)
	}

	return &page, false, nil
}

// pageURL builds the URL for one skip-offset page of the filtered window.
func (f *Fetcher) pageURL(since time.Time, page int) string {
	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("ModificationTimestamp gt %s", since.UTC().Format(time.RFC3339)))
	params.Set("$expand", "Media")
	params.Set("$top", fmt.Sprintf("%d", f.cfg.PageSize))
	if page > 0 {
		params.Set("$skip", fmt.Sprintf("%d", page*f.cfg.PageSize))
	}
	return f.cfg.APIURL + "?" + params.Encode()
}
