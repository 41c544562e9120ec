package datastore

import (
	"net/url"
	"strings"
)

// DefaultIndex marks the descriptor of the single default backend.
const DefaultIndex = -1

const (
	unparseableURL = "<unparseable>"
	maskedDSN      = "<redacted dsn>"
)

// Descriptor identifies one configured backend. It is never mutated.
type Descriptor struct {
	Index int
	URL   string
}

// NewDescriptors builds descriptors in list order, skipping blank entries.
func NewDescriptors(urls []string) []Descriptor {
	descriptors := make([]Descriptor, 0, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		descriptors = append(descriptors, Descriptor{Index: len(descriptors), URL: raw})
	}
	return descriptors
}

// Redacted returns the connection URL with any password masked. Keyword
// DSNs carrying a password and URLs that do not parse are masked entirely.
func (d Descriptor) Redacted() string {
	parsed, err := url.Parse(d.URL)
	if err != nil {
		return unparseableURL
	}

	redacted := d.URL
	if parsed.User != nil {
		redacted = parsed.Redacted()
	}
	if strings.Contains(strings.ToLower(redacted), "password=") {
		return maskedDSN
	}
	return redacted
}
