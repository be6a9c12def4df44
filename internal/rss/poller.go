package rss

import (
	"context"
	"log"
	"sync"
	"time"

	"skimmer/internal/database"
)

// Notifier receives best-effort change hints after a refresh cycle.
// The SSE hub satisfies this.
type Notifier interface {
	Publish(event string, payload interface{})
}

// Poller runs continuous background refreshes.
type Poller struct {
	ingester *Ingester
	db       database.Store
	notifier Notifier
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPoller creates a background poller. notifier may be nil.
func NewPoller(db database.Store, ingester *Ingester, notifier Notifier) *Poller {
	return &Poller{
		ingester: ingester,
		db:       db,
		notifier: notifier,
		stopChan: make(chan struct{}),
	}
}

// Start begins the polling loop.
func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			interval, _ := p.db.GetPollingInterval()
			if interval < MinPollingIntervalMinutes {
				interval = MinPollingIntervalMinutes
			}
			log.Printf("Poller: refreshing all feeds (interval: %dm)", interval)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			results, err := p.ingester.IngestAll(ctx)
			cancel()

			if err != nil {
				log.Printf("Poller error: %v", err)
			} else {
				var total Report
				for _, r := range results {
					total.Added += r.Added
					total.Skipped += r.Skipped
				}
				log.Printf("Poller: %d new articles from %d feeds", total.Added, len(results))
				if p.notifier != nil && total.Added > 0 {
					p.notifier.Publish("refresh", total)
				}
			}

			select {
			case <-p.stopChan:
				return
			case <-time.After(time.Duration(interval) * time.Minute):
			}
		}
	}()
}

// Stop stops the poller gracefully.
func (p *Poller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}
