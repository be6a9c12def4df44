package rss

import (
	"errors"
	"fmt"
)

// ErrUnknownFormat is returned when the document root is neither an RSS
// <rss> element nor an Atom <feed> element.
var ErrUnknownFormat = errors.New("unknown feed format")

// ErrMissingLink is returned by Normalize for items without a link; such
// items cannot be deduplicated and are skipped.
var ErrMissingLink = errors.New("feed item has no link")

// FetchError reports a network-level failure retrieving feed XML.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports malformed feed XML.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse feed %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
