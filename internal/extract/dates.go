package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// monthNames are capitalised; monthPattern also accepts them upper-cased so
// lower-case prose such as "you may 2020" is never read as a date.
var monthNames = []string{
	`Jan(?:uary)?`, `Feb(?:ruary)?`, `Mar(?:ch)?`, `Apr(?:il)?`, `May`, `June?`,
	`July?`, `Aug(?:ust)?`, `Sep(?:t(?:ember)?)?`, `Oct(?:ober)?`, `Nov(?:ember)?`, `Dec(?:ember)?`,
}

var monthPattern = func() string {
	alts := make([]string, 0, 2*len(monthNames))
	for _, m := range monthNames {
		alts = append(alts, m, strings.ToUpper(m))
	}
	return `(?:` + strings.Join(alts, "|") + `)`
}()

const ordinal = `(?i:st|nd|rd|th)`

// dateCandidate matches absolute dates carrying at least a month and a year.
// Alternatives are ordered so the longest form wins at a given offset.
var dateCandidate = regexp.MustCompile(strings.Join([]string{
	`\b\d{4}-\d{1,2}-\d{1,2}\b`,
	`\b\d{1,2}[/-]\d{1,2}[/-]\d{4}\b`,
	`\b` + monthPattern + `\.?\s+\d{1,2}` + ordinal + `?,?\s+\d{4}\b`,
	`\b\d{1,2}` + ordinal + `?\s+` + monthPattern + `\.?,?\s+\d{4}\b`,
	`\b` + monthPattern + `\.?,?\s+\d{4}\b`,
}, "|"))

var (
	// usDashed is the month-first numeric form with dashes, which dateparse
	// rejects; it is rewritten with slashes before parsing.
	usDashed      = regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{4}$`)
	ordinalSuffix = regexp.MustCompile(`(?i)(\d)(st|nd|rd|th)\b`)
	whitespace    = regexp.MustCompile(`\s+`)
	septAbbrev    = regexp.MustCompile(`(?i)\bsept\b`)
)

var namedMonthLayouts = []string{
	"January 2 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2006",
	"Jan 2006",
}

// DateMatch is a date found in OCR text.
type DateMatch struct {
	Text   string
	Offset int
	Time   time.Time
}

// SearchDates returns every absolute date in text, in text order.
// Relative expressions and bare numbers are never matched.
func SearchDates(text string) []DateMatch {
	var out []DateMatch
	for _, loc := range dateCandidate.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		t, ok := parseDate(raw)
		if !ok {
			continue
		}
		out = append(out, DateMatch{Text: raw, Offset: loc[0], Time: t})
	}
	return out
}

func parseDate(raw string) (time.Time, bool) {
	s := ordinalSuffix.ReplaceAllString(raw, "$1")
	s = septAbbrev.ReplaceAllString(s, "Sep")
	s = strings.ReplaceAll(s, ".", "")
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
	if usDashed.MatchString(s) {
		s = strings.ReplaceAll(s, "-", "/")
	}

	t, ok := parseNamedMonth(s)
	if !ok {
		var err error
		if t, err = dateparse.ParseIn(s, time.UTC); err != nil {
			return time.Time{}, false
		}
	}
	if t.Year() < 1900 || t.Year() > 2100 {
		return time.Time{}, false
	}
	return t, true
}

func parseNamedMonth(s string) (time.Time, bool) {
	plain := strings.ReplaceAll(s, ",", "")
	for _, layout := range namedMonthLayouts {
		if t, err := time.ParseInLocation(layout, plain, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
