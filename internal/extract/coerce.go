package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// suppressionSentinels are the values HHS publishes in place of a number
// when a cell is suppressed (small counts) or simply unknown.
var suppressionSentinels = map[string]struct{}{
	"":              {},
	"-999999":       {},
	"-999999.0":     {},
	"NA":            {},
	"N/A":           {},
	"Not Available": {},
}

const suppressedValue = -999999

// NullFloat parses a numeric cell. Suppression sentinels and unparseable
// values become nil.
func NullFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if _, ok := suppressionSentinels[s]; ok {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if v == suppressedValue {
		return nil
	}
	return &v
}

// NullMetric parses a bed-count cell. On top of the NullFloat rules, any
// negative average is unusable and becomes nil.
func NullMetric(s string) *float64 {
	v := NullFloat(s)
	if v != nil && *v < 0 {
		return nil
	}
	return v
}

// NullString trims a text cell, mapping empty and suppressed values to nil.
// Invalid UTF-8 byte sequences are stripped so the stores never reject the
// row.
func NullString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "not available") {
		return nil
	}
	s = strings.ToValidUTF8(s, "")
	return &s
}

// NullRating parses a CMS overall rating cell. Only whole numbers 1
// through 5 survive; "Not Available" and everything else become nil.
func NullRating(s string) *int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 1 || v > 5 {
		return nil
	}
	return &v
}

// NullBool parses a Yes/No cell, nil when it is neither.
func NullBool(s string) *bool {
	s = strings.TrimSpace(s)
	switch {
	case strings.EqualFold(s, "yes") || strings.EqualFold(s, "y") || strings.EqualFold(s, "true"):
		b := true
		return &b
	case strings.EqualFold(s, "no") || strings.EqualFold(s, "n") || strings.EqualFold(s, "false"):
		b := false
		return &b
	}
	return nil
}

// dateLayouts covers the formats seen across HHS and CMS publications.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseDate parses a date cell, dropping any time-of-day component.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, eris.Errorf("extract: unparseable date %q", s)
}

// ParsePoint extracts longitude and latitude from a WKT geocoded address
// cell such as "POINT (-77.0369 38.9072)". The X coordinate is longitude,
// Y is latitude. Malformed or missing geometry yields nil coordinates.
func ParsePoint(s string) (lon, lat *float64) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, nil
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return nil, nil
	}
	x, y := p.X(), p.Y()
	return &x, &y
}
