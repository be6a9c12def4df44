package rss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"skimmer/internal/database"
	"skimmer/internal/model"
)

// MinPollingIntervalMinutes is the minimum allowed interval.
const MinPollingIntervalMinutes = 15

// FetchTimeout bounds a single feed's fetch so one unresponsive host cannot
// stall a whole refresh cycle.
const FetchTimeout = 30 * time.Second

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Report summarizes one feed's ingestion: how many items were newly stored
// and how many were skipped as duplicates or invalid.
type Report struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Ingester runs the fetch -> parse -> normalize -> dedup -> persist pipeline.
type Ingester struct {
	db            database.Store
	parser        *Parser
	client        *http.Client
	concurrency   int
	domainLimiter *domainLimiter
}

// NewIngester creates an ingester with concurrency based on database type.
func NewIngester(db database.Store) *Ingester {
	concurrency := MaxConcurrencySQLite
	if db.SupportsHighConcurrency() {
		concurrency = MaxConcurrencyPostgres
	}
	return &Ingester{
		db:     db,
		parser: NewParser(),
		client: &http.Client{
			Timeout: FetchTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
		concurrency:   concurrency,
		domainLimiter: newDomainLimiter(),
	}
}

// fetch retrieves raw feed XML. Network and status failures come back as a
// *FetchError.
func (ing *Ingester) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := ing.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: feedURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}
	return body, nil
}

// Ingest fetches, parses and stores one feed. The feed's lastRefreshed is
// bumped only if fetch and parse succeed, whether or not anything was new.
// Existing articles are never touched, so a reader's read flags survive
// every refresh.
func (ing *Ingester) Ingest(ctx context.Context, feed model.Feed) (Report, error) {
	// Apply per-domain rate limiting
	domain := extractDomain(feed.URL)
	if err := ing.domainLimiter.acquire(ctx, domain); err != nil {
		return Report{}, fmt.Errorf("rate limit cancelled for %s: %w", feed.URL, err)
	}
	defer ing.domainLimiter.release(domain)

	body, err := ing.fetch(ctx, feed.URL)
	if err != nil {
		ing.recordError(feed.ID, err)
		return Report{}, err
	}

	parsed, err := ing.parser.Parse(body)
	if err != nil {
		// The parser is URL-agnostic; attach the source here.
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.URL = feed.URL
		}
		ing.recordError(feed.ID, err)
		if errors.Is(err, ErrUnknownFormat) {
			return Report{}, fmt.Errorf("feed %s: %w", feed.URL, err)
		}
		return Report{}, err
	}

	// Default the display name from the parsed feed title when the name
	// was never set to anything but the URL.
	if parsed.Title != "" && feed.Name == feed.URL {
		if err := ing.db.UpdateFeedName(feed.ID, parsed.Title); err != nil {
			log.Printf("Error updating name for feed %d: %v", feed.ID, err)
		}
	}

	now := time.Now()
	var report Report
	for _, item := range parsed.Items {
		article, err := Normalize(item, feed.ID, now)
		if err != nil {
			// Item without a link; skip it, keep going.
			report.Skipped++
			continue
		}
		_, isNew, err := ing.db.AddArticle(article)
		if err != nil {
			log.Printf("Error adding article %s: %v", article.Link, err)
			report.Skipped++
			continue
		}
		if isNew {
			report.Added++
		} else {
			report.Skipped++
		}
	}

	// Update last refreshed time (and clear any previous error).
	if err := ing.db.UpdateFeedLastRefreshed(feed.ID, now); err != nil {
		log.Printf("Error updating last_refreshed for feed %d: %v", feed.ID, err)
	}

	return report, nil
}

// recordError stores a truncated error message on the feed row for UI display.
func (ing *Ingester) recordError(feedID int64, err error) {
	msg := err.Error()
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if dbErr := ing.db.UpdateFeedError(feedID, msg); dbErr != nil {
		log.Printf("Error recording feed error for %d: %v", feedID, dbErr)
	}
}

// ingestResult holds the result of ingesting a single feed.
type ingestResult struct {
	FeedID int64
	Report Report
	Error  error
}

// IngestAll refreshes every subscribed feed. One feed's failure never aborts
// its siblings; failed feeds are simply absent from the result map.
func (ing *Ingester) IngestAll(ctx context.Context) (map[int64]Report, error) {
	feeds, err := ing.db.GetAllFeeds()
	if err != nil {
		return nil, err
	}

	if len(feeds) == 0 {
		return make(map[int64]Report), nil
	}

	log.Printf("Refreshing %d feeds with concurrency=%d", len(feeds), ing.concurrency)

	if ing.concurrency <= 1 {
		return ing.ingestSequential(ctx, feeds)
	}
	return ing.ingestParallel(ctx, feeds)
}

// ingestSequential refreshes feeds one at a time (for SQLite).
func (ing *Ingester) ingestSequential(ctx context.Context, feeds []model.Feed) (map[int64]Report, error) {
	results := make(map[int64]Report)

	for i, feed := range feeds {
		select {
		case <-ctx.Done():
			log.Printf("Refresh cancelled after %d/%d feeds", i, len(feeds))
			return results, ctx.Err()
		default:
		}

		report, err := ing.Ingest(ctx, feed)
		if err != nil {
			log.Printf("Failed to refresh %s: %v", feed.URL, err)
			continue
		}
		results[feed.ID] = report
	}

	return results, nil
}

// ingestParallel refreshes feeds using a worker pool (for PostgreSQL).
func (ing *Ingester) ingestParallel(ctx context.Context, feeds []model.Feed) (map[int64]Report, error) {
	var wg sync.WaitGroup

	results := make(map[int64]Report)
	feedChan := make(chan model.Feed, len(feeds))
	resultChan := make(chan ingestResult, len(feeds))

	for i := 0; i < ing.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for feed := range feedChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				report, err := ing.Ingest(ctx, feed)
				resultChan <- ingestResult{FeedID: feed.ID, Report: report, Error: err}
			}
		}()
	}

	go func() {
		for _, feed := range feeds {
			select {
			case <-ctx.Done():
			case feedChan <- feed:
			}
		}
		close(feedChan)
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for result := range resultChan {
		if result.Error != nil {
			log.Printf("Failed to refresh feed %d: %v", result.FeedID, result.Error)
			continue
		}
		results[result.FeedID] = result.Report
	}

	return results, nil
}
