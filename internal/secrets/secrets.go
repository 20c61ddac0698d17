// Package secrets scans text for credential material before it leaves
// the host and after it comes back from a tool.
//
// Tool handlers run a pre-scan over the outbound argument vector and a
// post-scan over combined stdout/stderr. Hits never carry the full
// matched secret: matches longer than 20 characters are truncated to
// their first 12 and last 4 characters.
package secrets

import (
	"regexp"
	"strings"
)

// Hit is one pattern match. Match is truncated, Line is 1-based.
type Hit struct {
	Pattern string `json:"pattern"`
	Match   string `json:"match"`
	Line    int    `json:"line"`
}

type pattern struct {
	name string
	re   *regexp.Regexp
}

// patterns are checked per line in this order. A single line can yield
// several hits when more than one pattern matches it.
var patterns = []pattern{
	{"aws-access-key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"api-key-assignment", regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret|token)["']?\s*[:=]\s*["']?[A-Za-z0-9_\-]{20,}`)},
	{"private-key", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
	{"github-token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{20,}`)},
	{"anthropic-api-key", regexp.MustCompile(`sk-ant-[A-Za-z0-9\-]{20,}`)},
	{"openai-api-key", regexp.MustCompile(`sk-[A-Za-z0-9]{32,}`)},
	{"slack-token", regexp.MustCompile(`xox[baprs]-[A-Za-z0-9\-]{10,}`)},
	{"password-assignment", regexp.MustCompile(`(?i)(password|passwd|pwd)["']?\s*[:=]\s*["']?\S{8,}`)},
}

// Scan matches every line of text against every pattern and returns all
// hits in (line, pattern) order. Empty input yields no hits.
func Scan(text string) []Hit {
	if text == "" {
		return nil
	}
	var hits []Hit
	for i, line := range strings.Split(text, "\n") {
		for _, p := range patterns {
			if m := p.re.FindString(line); m != "" {
				hits = append(hits, Hit{
					Pattern: p.name,
					Match:   truncate(m),
					Line:    i + 1,
				})
			}
		}
	}
	return hits
}

// truncate keeps enough of the match to recognize it without leaking
// the whole credential.
func truncate(m string) string {
	if len(m) <= 20 {
		return m
	}
	return m[:12] + "..." + m[len(m)-4:]
}

// PatternNames returns the distinct pattern names across hits, in first
// occurrence order. Used to build blocked-response reasons.
func PatternNames(hits []Hit) []string {
	seen := make(map[string]bool, len(hits))
	var names []string
	for _, h := range hits {
		if seen[h.Pattern] {
			continue
		}
		seen[h.Pattern] = true
		names = append(names, h.Pattern)
	}
	return names
}
