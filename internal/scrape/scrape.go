// Package scrape extracts readable article content from web pages, used by
// the paywall-bypass endpoint. Extraction is a best-effort heuristic.
package scrape

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// Extractor fetches a page and pulls out its main content block.
type Extractor struct {
	client    *http.Client
	sanitizer *bluemonday.Policy
}

// NewExtractor creates an extractor with a sane fetch timeout.
func NewExtractor() *Extractor {
	return &Extractor{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// FetchContent downloads a page and returns its sanitized readable content.
// It tries readability extraction first and falls back to the page's
// <article> element.
func (e *Extractor) FetchContent(url string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	// Pretend to be a browser arriving from a search result; many paywalled
	// sites serve full content to that combination.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Referer", "https://www.google.com/")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("DNT", "1")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}

	content := e.extract(string(body))
	if content == "" {
		return "", fmt.Errorf("no readable content found at %s", url)
	}
	return e.sanitizer.Sanitize(content), nil
}

// extract runs readability, then the <article> block heuristic.
func (e *Extractor) extract(html string) string {
	article, err := readability.FromReader(strings.NewReader(html), nil)
	if err == nil && strings.TrimSpace(article.Content) != "" {
		return article.Content
	}
	return articleBlock(html)
}

// articleBlock returns the inner HTML of the first <article> element.
func articleBlock(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	inner, err := doc.Find("article").First().Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(inner)
}
