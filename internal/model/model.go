// Package model defines shared data structures.
package model

import "time"

// Feed represents an RSS/Atom feed subscription.
type Feed struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	LastRefreshed *time.Time `json:"lastRefreshed"`
	LastError     string     `json:"lastError,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// FeedWithArticles is a feed plus its most recent articles, for list views.
type FeedWithArticles struct {
	Feed
	Articles []Article `json:"articles"`
}

// Article represents one persisted entry ingested from a feed.
type Article struct {
	ID          int64     `json:"id"`
	FeedID      int64     `json:"feedId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Link        string    `json:"link"`
	PubDate     time.Time `json:"pubDate"`
	Author      string    `json:"author,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// FeedItem is the transient parsed representation of one entry, prior to
// normalization. PubDate is kept as the raw string from the document;
// parsing it into a time.Time happens downstream.
type FeedItem struct {
	Title       string
	Description string
	Link        string
	PubDate     string
	Author      string
	Categories  []string
	ImageURL    string
}

// Settings key constants.
const (
	SettingPollingInterval = "polling_interval_minutes"
	SettingTheme           = "theme"
	SettingShowImages      = "show_images"
	SettingPageSize        = "articles_per_page"
)

// Preferences holds the persisted display preferences exposed by the
// settings API.
type Preferences struct {
	Theme           string `json:"theme"`
	ShowImages      bool   `json:"showImages"`
	PageSize        int    `json:"articlesPerPage"`
	PollingInterval int    `json:"pollingIntervalMinutes"`
}
