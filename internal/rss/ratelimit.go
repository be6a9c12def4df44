package rss

import (
	"context"
	"net/url"
	"sync"
	"time"
)

const (
	// MaxConcurrencyPostgres is how many feeds refresh in parallel on PostgreSQL.
	MaxConcurrencyPostgres = 10
	// MaxConcurrencySQLite keeps refreshes sequential; SQLite allows one writer.
	MaxConcurrencySQLite = 1
	// MaxConcurrencyPerDomain caps in-flight requests against one host.
	MaxConcurrencyPerDomain = 2
	// DelayBetweenDomainRequests spaces successive requests to the same host.
	DelayBetweenDomainRequests = 500 * time.Millisecond
)

// domainLimiter throttles feed fetches per host so a refresh cycle never
// hammers a single origin.
type domainLimiter struct {
	mu          sync.Mutex
	semaphores  map[string]chan struct{}
	lastRequest map[string]time.Time
}

func newDomainLimiter() *domainLimiter {
	return &domainLimiter{
		semaphores:  make(map[string]chan struct{}),
		lastRequest: make(map[string]time.Time),
	}
}

// acquire blocks until the host has a free slot and its minimum
// inter-request spacing has elapsed.
func (dl *domainLimiter) acquire(ctx context.Context, domain string) error {
	dl.mu.Lock()
	sem, ok := dl.semaphores[domain]
	if !ok {
		sem = make(chan struct{}, MaxConcurrencyPerDomain)
		dl.semaphores[domain] = sem
	}
	dl.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	dl.mu.Lock()
	lastReq := dl.lastRequest[domain]
	dl.mu.Unlock()

	if !lastReq.IsZero() {
		elapsed := time.Since(lastReq)
		if elapsed < DelayBetweenDomainRequests {
			delay := DelayBetweenDomainRequests - elapsed
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				<-sem // give the slot back on cancel
				return ctx.Err()
			}
		}
	}

	return nil
}

// release frees the host's slot and stamps the request time so the next
// acquire knows how long to wait.
func (dl *domainLimiter) release(domain string) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	dl.lastRequest[domain] = time.Now()
	if sem, ok := dl.semaphores[domain]; ok {
		<-sem
	}
}

func extractDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		// Unparsable URLs still get a limiter bucket of their own.
		return feedURL
	}
	return u.Host
}
