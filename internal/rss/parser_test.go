package rss

import (
	"errors"
	"strings"
	"testing"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:media="http://search.yahoo.com/mrss/">
<channel>
<title>Example Blog</title>
<item>
	<title>Oldest</title>
	<link>https://example.com/oldest</link>
	<description>&lt;p&gt;plain text&lt;/p&gt;</description>
	<pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
	<category>tech</category>
	<category>go</category>
</item>
<item>
	<title>Newest</title>
	<link>https://example.com/newest</link>
	<description>&lt;p&gt;with &lt;img src="https://example.com/inline.png"&gt; image&lt;/p&gt;</description>
	<pubDate>Wed, 03 Jan 2024 10:00:00 GMT</pubDate>
	<enclosure url="https://example.com/enclosure.jpg" type="image/jpeg" length="1000"/>
	<author>bob@example.com (Bob)</author>
	<dc:creator>Alice</dc:creator>
</item>
<item>
	<title>Middle</title>
	<link>https://example.com/middle</link>
	<description>no image here</description>
	<pubDate>Tue, 02 Jan 2024 10:00:00 GMT</pubDate>
	<media:thumbnail url="https://example.com/thumb.jpg"/>
</item>
</channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:media="http://search.yahoo.com/mrss/">
<title>Example Atom</title>
<entry>
	<title>First entry</title>
	<link href="https://example.com/entry-1"/>
	<published>2024-01-05T12:00:00Z</published>
	<updated>2024-01-06T12:00:00Z</updated>
	<author><name>Carol</name></author>
	<category term="news"/>
	<content type="html">&lt;figure&gt;&lt;img src="https://example.com/figure.png"&gt;&lt;/figure&gt;&lt;p&gt;Entry &lt;b&gt;body&lt;/b&gt; text.&lt;/p&gt;</content>
</entry>
<entry>
	<title>Second entry</title>
	<link href="https://example.com/entry-2"/>
	<updated>2024-01-04T12:00:00Z</updated>
	<media:thumbnail url="https://example.com/atom-thumb.jpg"/>
	<content type="html">&lt;p&gt;No figure here.&lt;/p&gt;</content>
</entry>
</feed>`

func TestParseRSSOrdering(t *testing.T) {
	parsed, err := NewParser().Parse([]byte(rssFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Title != "Example Blog" {
		t.Errorf("feed title = %q, want %q", parsed.Title, "Example Blog")
	}
	if len(parsed.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(parsed.Items))
	}
	want := []string{"Newest", "Middle", "Oldest"}
	for i, title := range want {
		if parsed.Items[i].Title != title {
			t.Errorf("item %d title = %q, want %q", i, parsed.Items[i].Title, title)
		}
	}
}

func TestParseRSSFields(t *testing.T) {
	parsed, err := NewParser().Parse([]byte(rssFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	newest := parsed.Items[0]
	// dc:creator wins over <author>.
	if newest.Author != "Alice" {
		t.Errorf("author = %q, want %q", newest.Author, "Alice")
	}
	// Enclosure beats the inline <img> in the description.
	if newest.ImageURL != "https://example.com/enclosure.jpg" {
		t.Errorf("imageUrl = %q, want enclosure url", newest.ImageURL)
	}
	if newest.PubDate != "Wed, 03 Jan 2024 10:00:00 GMT" {
		t.Errorf("pubDate = %q, want raw string preserved", newest.PubDate)
	}

	middle := parsed.Items[1]
	if middle.ImageURL != "https://example.com/thumb.jpg" {
		t.Errorf("imageUrl = %q, want media:thumbnail url", middle.ImageURL)
	}

	oldest := parsed.Items[2]
	if oldest.ImageURL != "" {
		t.Errorf("imageUrl = %q, want empty", oldest.ImageURL)
	}
	if len(oldest.Categories) != 2 {
		t.Errorf("categories = %v, want 2 entries", oldest.Categories)
	}
}

func TestParseRSSInlineImageFallback(t *testing.T) {
	xml := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>T</title>
<item>
	<title>A</title>
	<link>https://example.com/a</link>
	<description>&lt;p&gt;look: &lt;img alt="x" src="https://example.com/desc.png"&gt;&lt;/p&gt;</description>
	<pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
</item>
</channel></rss>`
	parsed, err := NewParser().Parse([]byte(xml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := parsed.Items[0].ImageURL; got != "https://example.com/desc.png" {
		t.Errorf("imageUrl = %q, want img src from description", got)
	}
}

func TestParseAtom(t *testing.T) {
	parsed, err := NewParser().Parse([]byte(atomFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Title != "Example Atom" {
		t.Errorf("feed title = %q", parsed.Title)
	}
	if len(parsed.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(parsed.Items))
	}

	first := parsed.Items[0]
	if first.Title != "First entry" {
		t.Fatalf("ordering wrong, first item is %q", first.Title)
	}
	if first.Link != "https://example.com/entry-1" {
		t.Errorf("link = %q, want href value", first.Link)
	}
	// <published> wins over <updated>.
	if !strings.Contains(first.PubDate, "2024-01-05") {
		t.Errorf("pubDate = %q, want published timestamp", first.PubDate)
	}
	if first.Author != "Carol" {
		t.Errorf("author = %q, want %q", first.Author, "Carol")
	}
	// Figure block dropped, markup stripped.
	if strings.Contains(first.Description, "<") || strings.Contains(first.Description, "figure") {
		t.Errorf("description = %q, want plain text without figure", first.Description)
	}
	if !strings.Contains(first.Description, "Entry") || !strings.Contains(first.Description, "body") {
		t.Errorf("description = %q, want text content preserved", first.Description)
	}
	// Inline image in content wins.
	if first.ImageURL != "https://example.com/figure.png" {
		t.Errorf("imageUrl = %q, want inline img src", first.ImageURL)
	}
	if len(first.Categories) != 1 || first.Categories[0] != "news" {
		t.Errorf("categories = %v, want [news]", first.Categories)
	}

	second := parsed.Items[1]
	// No <published>; falls back to <updated>.
	if !strings.Contains(second.PubDate, "2024-01-04") {
		t.Errorf("pubDate = %q, want updated timestamp", second.PubDate)
	}
	// No inline image; media:thumbnail fallback.
	if second.ImageURL != "https://example.com/atom-thumb.jpg" {
		t.Errorf("imageUrl = %q, want media thumbnail", second.ImageURL)
	}
	if second.Description != "No figure here." {
		t.Errorf("description = %q, want stripped text", second.Description)
	}
}

func TestParseUnparsableDateSortsOldest(t *testing.T) {
	xml := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>T</title>
<item><title>Dated</title><link>https://example.com/a</link><pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate></item>
<item><title>Undatable</title><link>https://example.com/b</link><pubDate>whenever</pubDate></item>
</channel></rss>`
	parsed, err := NewParser().Parse([]byte(xml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Items[len(parsed.Items)-1].Title != "Undatable" {
		t.Errorf("item with unparsable date should sort last, got order %q, %q",
			parsed.Items[0].Title, parsed.Items[1].Title)
	}
}

func TestParseUnknownFormat(t *testing.T) {
	_, err := NewParser().Parse([]byte(`<?xml version="1.0"?><html><body>nope</body></html>`))
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
}

func TestParseMalformedXML(t *testing.T) {
	_, err := NewParser().Parse([]byte(`<rss version="2.0"><channel><item><title>truncated`))
	if err == nil {
		t.Fatal("expected error for malformed XML")
	}
	var perr *ParseError
	if !errors.As(err, &perr) && !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ParseError or ErrUnknownFormat", err)
	}
}
