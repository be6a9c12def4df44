package rss

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"skimmer/internal/model"
)

// Normalize maps a parsed feed item into the article shape persisted for the
// owning feed. Items without a link cannot be deduplicated and are rejected
// with ErrMissingLink; the caller skips them and continues.
//
// An unparsable publish date falls back to the ingest time passed in as now.
// The fallback deliberately sorts such items with the freshest ones rather
// than burying them at the epoch.
func Normalize(item model.FeedItem, feedID int64, now time.Time) (*model.Article, error) {
	if strings.TrimSpace(item.Link) == "" {
		return nil, ErrMissingLink
	}

	pubDate := now
	if t, err := dateparse.ParseAny(item.PubDate); err == nil {
		pubDate = t
	}

	return &model.Article{
		FeedID:      feedID,
		Title:       item.Title,
		Description: item.Description,
		Link:        item.Link,
		PubDate:     pubDate,
		Author:      item.Author,
		ImageURL:    item.ImageURL,
		IsRead:      false,
	}, nil
}
