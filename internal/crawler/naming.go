package crawler

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

const (
	rawSuffix       = ".pdf"
	convertedSuffix = "0001-1.png"
)

// RawToConverted maps "X.pdf" to "X0001-1.png". Names without the raw
// suffix are returned unchanged.
func RawToConverted(name string) string {
	if !strings.HasSuffix(name, rawSuffix) {
		return name
	}
	return strings.TrimSuffix(name, rawSuffix) + convertedSuffix
}

// ConvertedToRaw maps "X0001-1.png" back to "X.pdf". Names without the
// converted suffix are returned unchanged.
func ConvertedToRaw(name string) string {
	if !strings.HasSuffix(name, convertedSuffix) {
		return name
	}
	return strings.TrimSuffix(name, convertedSuffix) + rawSuffix
}

// BasenameFromURL returns the final path segment of a document URL,
// unescaped. It falls back to the raw string when parsing fails.
func BasenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return path.Base(raw)
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// BasenameSet is a set of file basenames.
type BasenameSet map[string]struct{}

// NewBasenameSet builds a set from names, ignoring empty strings.
func NewBasenameSet(names ...string) BasenameSet {
	s := make(BasenameSet, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add inserts name into the set.
func (s BasenameSet) Add(name string) {
	if name == "" {
		return
	}
	s[name] = struct{}{}
}

// Has reports membership.
func (s BasenameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order.
func (s BasenameSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
