// Package swot extracts SWOT categories from a markdown narrative.
package swot

import (
	"regexp"
	"strings"
)

// Sections holds the bullet items of each SWOT category in document order.
type Sections struct {
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

// Empty reports whether no category has any item.
func (s Sections) Empty() bool {
	return len(s.Strengths)+len(s.Weaknesses)+len(s.Opportunities)+len(s.Threats) == 0
}

type section int

const (
	none section = iota
	strengths
	weaknesses
	opportunities
	threats
)

// Checked in order; the first keyword found in a line wins.
var headers = []struct {
	keyword string
	section section
}{
	{"strength", strengths},
	{"weakness", weaknesses},
	{"opportunit", opportunities},
	{"threat", threats},
}

var bulletPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`^[-*•]\s`),
	regexp.MustCompile(`^\d+\.\s`),
	regexp.MustCompile(`^[a-z]\.\s`),
}

// Parse splits narrative into SWOT sections. Any line mentioning a category
// keyword switches the current section and is dropped. Inside a section only
// bullet lines ("- ", "* ", "• ", "1. ", "a. ") are kept; everything else is
// ignored. Parse never fails; text without headers yields empty sections.
func Parse(narrative string) Sections {
	out := Sections{
		Strengths:     []string{},
		Weaknesses:    []string{},
		Opportunities: []string{},
		Threats:       []string{},
	}

	current := none
	for _, raw := range strings.Split(narrative, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if s, ok := header(line); ok {
			current = s
			continue
		}
		if current == none {
			continue
		}

		item, ok := bullet(line)
		if !ok || item == "" {
			continue
		}
		switch current {
		case strengths:
			out.Strengths = append(out.Strengths, item)
		case weaknesses:
			out.Weaknesses = append(out.Weaknesses, item)
		case opportunities:
			out.Opportunities = append(out.Opportunities, item)
		case threats:
			out.Threats = append(out.Threats, item)
		}
	}
	return out
}

func header(line string) (section, bool) {
	lower := strings.ToLower(line)
	for _, h := range headers {
		if strings.Contains(lower, h.keyword) {
			return h.section, true
		}
	}
	return none, false
}

// bullet reports whether line is a list item and strips its markers. The
// prefixes are removed in order, so "- 1. item" yields "item".
func bullet(line string) (string, bool) {
	matched := false
	for _, re := range bulletPrefixes {
		if loc := re.FindStringIndex(line); loc != nil {
			line = line[loc[1]:]
			matched = true
		}
	}
	if !matched {
		return "", false
	}
	return strings.TrimSpace(line), true
}

// Markdown renders sections back into the bulleted form Parse accepts.
func (s Sections) Markdown() string {
	var b strings.Builder
	write := func(title string, items []string) {
		b.WriteString("## " + title + "\n")
		for _, it := range items {
			b.WriteString("- " + it + "\n")
		}
		b.WriteString("\n")
	}
	write("Strengths", s.Strengths)
	write("Weaknesses", s.Weaknesses)
	write("Opportunities", s.Opportunities)
	write("Threats", s.Threats)
	return strings.TrimRight(b.String(), "\n") + "\n"
}
