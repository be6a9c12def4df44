// Package database provides storage backends for the feed reader.
package database

import (
	"errors"
	"time"

	"skimmer/internal/model"
)

// ErrNotFound is returned when a feed or article id does not exist.
var ErrNotFound = errors.New("not found")

// ArticleFilter narrows article listings.
type ArticleFilter struct {
	FeedID     *int64
	OnlyUnread bool
	Limit      int
	Offset     int
}

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// SupportsHighConcurrency returns true if the database can handle
	// many concurrent write operations (e.g., PostgreSQL).
	// SQLite returns false due to write locking limitations.
	SupportsHighConcurrency() bool

	// Feed operations
	CreateFeed(name, url string) (*model.Feed, error)
	GetFeedByID(feedID int64) (*model.Feed, error)
	GetFeedByURL(url string) (*model.Feed, error)
	GetAllFeeds() ([]model.Feed, error)
	UpdateFeed(feedID int64, name, url *string) (*model.Feed, error)
	UpdateFeedName(feedID int64, name string) error
	UpdateFeedLastRefreshed(feedID int64, t time.Time) error
	UpdateFeedError(feedID int64, errMsg string) error
	DeleteFeed(feedID int64) error

	// Article operations
	AddArticle(a *model.Article) (int64, bool, error)
	GetArticleByID(articleID int64) (*model.Article, error)
	GetArticles(filter ArticleFilter) ([]model.Article, error)
	CountArticles(feedID int64) (int, error)
	SetArticleRead(articleID int64, isRead bool) (*model.Article, error)
	CleanupReadArticles() (int64, error)

	// Settings operations
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	GetPollingInterval() (int, error)
}
