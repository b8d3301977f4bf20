package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Segment parsing is inherently fragile pattern matching over free text, so
// it lives here as an explicit grammar: an ordered list of rules tried in
// sequence. New phrasing variants become new rules instead of new branches
// in the scraper's control flow.

// parsedSegment is the outcome of matching one text segment.
type parsedSegment struct {
	OrderNum   string
	SignedDate string
	Title      string
	// Continuation marks a segment naming only a number and date; its title
	// is inherited from the most recently accepted order.
	Continuation bool
}

type segmentRule struct {
	name    string
	pattern *regexp.Regexp
	build   func(groups []string) parsedSegment
}

var segmentRules = []segmentRule{
	{
		// "Executive Order No. 1, issued January 1, 2011 (Some Title)"
		// The trailing parenthesized title is optional; a missing title is
		// marked with the sentinel downstream, never treated as a failure.
		name:    "main",
		pattern: regexp.MustCompile(`(?i)^Executive Order No\.?\s*([\d.]+),\s*issued\s*([A-Za-z]+\s*\d{1,2},\s*\d{4})\s*(?:\((.*?)\))?`),
		build: func(groups []string) parsedSegment {
			return parsedSegment{
				OrderNum:   groups[1],
				SignedDate: groups[2],
				Title:      groups[3],
			}
		},
	},
	{
		// "147.28, issued October 4, 2019", a same-title sibling of the
		// preceding order.
		name:    "continuation",
		pattern: regexp.MustCompile(`(?i)^([\d.]+),\s*issued\s*([A-Za-z]+\s*\d{1,2},\s*\d{4})`),
		build: func(groups []string) parsedSegment {
			return parsedSegment{
				OrderNum:     groups[1],
				SignedDate:   groups[2],
				Continuation: true,
			}
		},
	},
}

// parseSegment tries each rule in order and reports whether any matched.
func parseSegment(seg string) (parsedSegment, bool) {
	for _, rule := range segmentRules {
		if groups := rule.pattern.FindStringSubmatch(seg); groups != nil {
			return rule.build(groups), true
		}
	}
	return parsedSegment{}, false
}

var conjunctionPattern = regexp.MustCompile(`(?i)\s+and\s+(Executive Order No\.)`)

// splitSegments breaks a paragraph's text into per-order segments: first on
// semicolons, then on the conjunctive "X and Executive Order No. Y" phrasing
// that packs two orders into one semicolon-delimited segment.
func splitSegments(paragraph string) []string {
	var segments []string
	for _, seg := range strings.Split(paragraph, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		split := conjunctionPattern.Split(seg, -1)
		if len(split) == 1 {
			segments = append(segments, seg)
			continue
		}
		markers := conjunctionPattern.FindAllStringSubmatch(seg, -1)
		segments = append(segments, strings.TrimSpace(split[0]))
		for i, rest := range split[1:] {
			segments = append(segments, markers[i][1]+rest)
		}
	}
	return segments
}

const signedDateLayout = "January 2, 2006"

// parseDate normalizes a date like "January 1, 2011" to "2011-01-01". The
// original string is returned unchanged when it does not parse; a degraded
// value, not an error.
func parseDate(dateStr string) (string, bool) {
	t, err := time.Parse(signedDateLayout, strings.Join(strings.Fields(dateStr), " "))
	if err != nil {
		return dateStr, false
	}
	return t.Format("2006-01-02"), true
}

// normalizeOrderNum parses "147" or "147.28" into its numeric value. Any
// unparseable input yields exactly 0 with defaulted set, so callers can tell
// "zero" apart from "unparseable".
func normalizeOrderNum(orderNum string) (value float64, defaulted bool) {
	if strings.Contains(orderNum, ".") {
		v, err := strconv.ParseFloat(orderNum, 64)
		if err != nil {
			return 0, true
		}
		return v, false
	}
	v, err := strconv.ParseInt(orderNum, 10, 64)
	if err != nil {
		return 0, true
	}
	return float64(v), false
}
