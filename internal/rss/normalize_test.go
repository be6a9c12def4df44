package rss

import (
	"errors"
	"testing"
	"time"

	"skimmer/internal/model"
)

func TestNormalize(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	item := model.FeedItem{
		Title:       "A title",
		Description: "<p>body</p>",
		Link:        "https://example.com/a",
		PubDate:     "Mon, 01 Jan 2024 10:00:00 GMT",
		Author:      "Alice",
		ImageURL:    "https://example.com/a.png",
	}

	article, err := Normalize(item, 7, now)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if article.FeedID != 7 {
		t.Errorf("feedID = %d, want 7", article.FeedID)
	}
	if article.Title != item.Title || article.Description != item.Description {
		t.Error("title/description should pass through unchanged")
	}
	if article.Author != "Alice" || article.ImageURL != "https://example.com/a.png" {
		t.Error("author/imageUrl should pass through unchanged")
	}
	if article.IsRead {
		t.Error("new articles must start unread")
	}
	want := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if !article.PubDate.Equal(want) {
		t.Errorf("pubDate = %v, want %v", article.PubDate, want)
	}
}

func TestNormalizeMissingLink(t *testing.T) {
	_, err := Normalize(model.FeedItem{Title: "no link", Link: "  "}, 1, time.Now())
	if !errors.Is(err, ErrMissingLink) {
		t.Fatalf("err = %v, want ErrMissingLink", err)
	}
}

func TestNormalizeUnparsableDateFallsBackToNow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	article, err := Normalize(model.FeedItem{Link: "https://example.com/a", PubDate: "not a date"}, 1, now)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if !article.PubDate.Equal(now) {
		t.Errorf("pubDate = %v, want ingest time %v", article.PubDate, now)
	}
}
