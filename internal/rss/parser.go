// Package rss implements the feed ingestion pipeline: parsing RSS/Atom
// documents, normalizing items into articles, and reconciling them with
// the store.
package rss

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"skimmer/internal/model"
)

// ParsedFeed is the output of Parse: the feed-level title plus its items
// sorted by publish date, most recent first.
type ParsedFeed struct {
	Title string
	Items []model.FeedItem
}

// Parser turns raw RSS 2.0 / Atom XML into a ParsedFeed. It is a pure
// transform; fetching the document is the caller's concern.
type Parser struct {
	fp    *gofeed.Parser
	strip *bluemonday.Policy
}

// NewParser creates a feed parser.
func NewParser() *Parser {
	return &Parser{
		fp:    gofeed.NewParser(),
		strip: bluemonday.StrictPolicy(),
	}
}

// Parse decodes a feed document. Unrecognized root elements yield
// ErrUnknownFormat; malformed XML yields a ParseError.
func (p *Parser) Parse(data []byte) (*ParsedFeed, error) {
	feed, err := p.fp.Parse(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
			return nil, ErrUnknownFormat
		}
		return nil, &ParseError{Err: err}
	}

	atom := feed.FeedType == "atom"
	items := make([]model.FeedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if atom {
			items = append(items, p.atomItem(item))
		} else {
			items = append(items, p.rssItem(item))
		}
	}
	sortByDateDesc(items)

	return &ParsedFeed{Title: feed.Title, Items: items}, nil
}

// rssItem extracts one RSS 2.0 <item>.
func (p *Parser) rssItem(item *gofeed.Item) model.FeedItem {
	// dc:creator wins over <author>.
	author := ""
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		author = item.DublinCoreExt.Creator[0]
	} else if item.Author != nil {
		author = item.Author.Name
	}

	// Image fallback chain: enclosure, media:thumbnail / media:content,
	// first <img> inside the description HTML.
	imageURL := enclosureImage(item.Enclosures)
	if imageURL == "" {
		imageURL = mediaImage(item.Extensions)
	}
	if imageURL == "" {
		imageURL = firstImgSrc(item.Description)
	}

	return model.FeedItem{
		Title:       item.Title,
		Description: item.Description,
		Link:        item.Link,
		PubDate:     item.Published,
		Author:      author,
		Categories:  item.Categories,
		ImageURL:    imageURL,
	}
}

// atomItem extracts one Atom <entry>.
func (p *Parser) atomItem(item *gofeed.Item) model.FeedItem {
	author := ""
	if item.Author != nil {
		author = item.Author.Name
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}

	// Inline <img> in the content wins, then media:thumbnail / media:content.
	imageURL := firstImgSrc(content)
	if imageURL == "" {
		imageURL = mediaImage(item.Extensions)
	}

	// <published> wins over <updated>.
	pubDate := item.Published
	if pubDate == "" {
		pubDate = item.Updated
	}

	return model.FeedItem{
		Title:       item.Title,
		Description: p.atomDescription(content),
		Link:        item.Link,
		PubDate:     pubDate,
		Author:      author,
		Categories:  item.Categories,
		ImageURL:    imageURL,
	}
}

// atomDescription derives a plain-text description from entry content:
// drop a leading figure block, then strip the remaining markup.
func (p *Parser) atomDescription(content string) string {
	if content == "" {
		return ""
	}
	if _, rest, found := strings.Cut(content, "</figure>"); found {
		content = rest
	}
	return strings.TrimSpace(p.strip.Sanitize(content))
}

// enclosureImage returns the URL of the first enclosure with an image type.
func enclosureImage(encs []*gofeed.Enclosure) string {
	for _, enc := range encs {
		if enc != nil && strings.HasPrefix(enc.Type, "image") && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}

// mediaImage resolves media:thumbnail, then media:content with medium="image".
func mediaImage(exts ext.Extensions) string {
	media, ok := exts["media"]
	if !ok {
		return ""
	}
	for _, thumb := range media["thumbnail"] {
		if url := thumb.Attrs["url"]; url != "" {
			return url
		}
	}
	for _, content := range media["content"] {
		if content.Attrs["medium"] == "image" && content.Attrs["url"] != "" {
			return content.Attrs["url"]
		}
	}
	return ""
}

// firstImgSrc returns the src of the first <img> in an HTML fragment.
func firstImgSrc(html string) string {
	if !strings.Contains(html, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return src
}

// sortByDateDesc orders items newest first. Items whose date string cannot
// be parsed get the zero time and sort as oldest.
func sortByDateDesc(items []model.FeedItem) {
	type keyed struct {
		item model.FeedItem
		at   time.Time
	}
	ks := make([]keyed, len(items))
	for i, item := range items {
		ks[i].item = item
		if t, err := dateparse.ParseAny(item.PubDate); err == nil {
			ks[i].at = t
		}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].at.After(ks[j].at) })
	for i := range ks {
		items[i] = ks[i].item
	}
}
