// Package writer persists generated files. Writes are gated by a semantic
// comparator so that re-running the generator with unchanged schema
// produces zero file modifications, and batched through an external
// formatter so the formatter runs once per flush instead of once per file.
package writer

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultIgnoredPatterns match the generated-header lines that carry
// timestamps. These lines change on every run, so they are stripped
// before content comparison; otherwise each regeneration would rewrite
// every file and retrigger downstream watchers. New header formats get a
// new entry here, and deployments can extend the list via
// file_operations.ignored_header_patterns without losing the originals.
var DefaultIgnoredPatterns = []string{
	`^\s*//\s*Generated at \d{4}-\d{2}-\d{2}.*$`,
	`^\s*//\s*Generated on .+ at \d{1,2}:\d{2}.*$`,
	`^\s*//\s*Generated by \S+ (at|on) .+$`,
}

// Comparator normalizes generated content so that two renderings differing
// only in timestamp headers compare as identical.
type Comparator struct {
	patterns []*regexp.Regexp
}

// NewComparator builds a comparator from the default ignored patterns plus
// any configured extras. An invalid extra pattern is a configuration
// error, reported with the offending expression.
func NewComparator(extraPatterns []string) (*Comparator, error) {
	all := make([]string, 0, len(DefaultIgnoredPatterns)+len(extraPatterns))
	all = append(all, DefaultIgnoredPatterns...)
	all = append(all, extraPatterns...)

	compiled := make([]*regexp.Regexp, 0, len(all))
	for _, p := range all {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ignored header pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &Comparator{patterns: compiled}, nil
}

// Normalize strips ignored lines, collapses whitespace runs within each
// remaining line, and trims the result. Two contents are semantically
// identical iff their normalizations are byte-equal.
func (c *Comparator) Normalize(content string) string {
	lines := strings.Split(content, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		if c.ignored(line) {
			continue
		}
		kept = append(kept, strings.Join(strings.Fields(line), " "))
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// Identical reports whether two contents normalize to the same bytes.
func (c *Comparator) Identical(a, b string) bool {
	return c.Normalize(a) == c.Normalize(b)
}

func (c *Comparator) ignored(line string) bool {
	for _, re := range c.patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
