// Package conflicts detects contradictions between evidence sources. The
// model reply is parsed with a small line grammar:
//
//	CONFLICTS: YES
//	- <description> | Sources: <a> vs <b> | Confidence: HIGH|MEDIUM|LOW
//
// Lines that do not match are ignored, so an unparseable reply yields zero
// conflicts.
package conflicts

import (
	"regexp"
	"strings"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
)

var (
	verdictPattern   = regexp.MustCompile(`(?i)conflicts\s*:\s*\**\s*(yes|no)\b`)
	sourcesPrefix    = regexp.MustCompile(`(?i)^sources?\s*:\s*`)
	confidencePrefix = regexp.MustCompile(`(?i)^confidence\s*:\s*`)
	sourceSeparator  = regexp.MustCompile(`(?i)\s+(?:vs\.?|versus)\s+|\s*,\s*`)
)

// Parse extracts conflicts from a model reply. An explicit "CONFLICTS: NO"
// verdict always yields an empty list.
func Parse(text string) []domain.Conflict {
	conflicts := []domain.Conflict{}

	if m := verdictPattern.FindStringSubmatch(text); m != nil && strings.EqualFold(m[1], "no") {
		return conflicts
	}

	for _, line := range strings.Split(text, "\n") {
		if c, ok := parseLine(line); ok {
			conflicts = append(conflicts, c)
		}
	}
	return conflicts
}

func parseLine(line string) (domain.Conflict, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "*") {
		return domain.Conflict{}, false
	}
	line = strings.TrimSpace(strings.TrimLeft(line, "-* "))

	parts := strings.Split(line, "|")
	if len(parts) < 2 {
		return domain.Conflict{}, false
	}

	description := strings.TrimSpace(parts[0])
	if description == "" {
		return domain.Conflict{}, false
	}

	c := domain.Conflict{
		Description: description,
		Confidence:  domain.ConfidenceMedium,
	}

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		switch {
		case sourcesPrefix.MatchString(part):
			c.Sources = splitSources(sourcesPrefix.ReplaceAllString(part, ""))
		case confidencePrefix.MatchString(part):
			if level, ok := domain.ParseConfidence(strings.Trim(confidencePrefix.ReplaceAllString(part, ""), "*[] ")); ok {
				c.Confidence = level
			}
		}
	}

	// Accept an unlabelled second field as the source list
	if second := strings.TrimSpace(parts[1]); len(c.Sources) == 0 && !confidencePrefix.MatchString(second) {
		c.Sources = splitSources(second)
	}
	if len(c.Sources) == 0 {
		return domain.Conflict{}, false
	}
	return c, true
}

func splitSources(s string) []string {
	var out []string
	for _, src := range sourceSeparator.Split(s, -1) {
		src = strings.Trim(strings.TrimSpace(src), "[]*")
		if src != "" {
			out = append(out, src)
		}
	}
	return out
}
