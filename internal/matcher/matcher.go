// Package matcher implements record-name pattern matching for sync scope.
// Supports both glob patterns (default) and regex (opt-in).
package matcher

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DomainMatcherConfig configures a DomainMatcher.
type DomainMatcherConfig struct {
	// Includes is required; a name must match at least one include.
	Includes []string

	// Excludes are evaluated before includes.
	Excludes []string

	// UseRegex treats patterns as regular expressions instead of globs.
	UseRegex bool
}

// DomainMatcher decides whether a DNS name is in scope.
// Names are compared case-insensitively without the trailing dot.
type DomainMatcher struct {
	includes    []*regexp.Regexp
	excludes    []*regexp.Regexp
	rawIncludes []string
	rawExcludes []string
	useRegex    bool
}

// NewDomainMatcher compiles the configured patterns.
func NewDomainMatcher(cfg DomainMatcherConfig) (*DomainMatcher, error) {
	if len(cfg.Includes) == 0 {
		return nil, errors.New("at least one include pattern is required")
	}

	m := &DomainMatcher{
		rawIncludes: cfg.Includes,
		rawExcludes: cfg.Excludes,
		useRegex:    cfg.UseRegex,
	}

	var err error
	if m.includes, err = compileAll(cfg.Includes, cfg.UseRegex); err != nil {
		return nil, fmt.Errorf("include pattern: %w", err)
	}
	if m.excludes, err = compileAll(cfg.Excludes, cfg.UseRegex); err != nil {
		return nil, fmt.Errorf("exclude pattern: %w", err)
	}
	return m, nil
}

// MatchAll returns a matcher that accepts every name.
func MatchAll() *DomainMatcher {
	m, _ := NewDomainMatcher(DomainMatcherConfig{Includes: []string{"*"}})
	return m
}

// Matches reports whether name is included and not excluded.
func (m *DomainMatcher) Matches(name string) bool {
	name = normalize(name)
	for _, re := range m.excludes {
		if re.MatchString(name) {
			return false
		}
	}
	for _, re := range m.includes {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func (m *DomainMatcher) String() string {
	kind := "glob"
	if m.useRegex {
		kind = "regex"
	}
	s := fmt.Sprintf("%s includes=[%s]", kind, strings.Join(m.rawIncludes, ", "))
	if len(m.rawExcludes) > 0 {
		s += fmt.Sprintf(" excludes=[%s]", strings.Join(m.rawExcludes, ", "))
	}
	return s
}

func compileAll(patterns []string, useRegex bool) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		expr := p
		if !useRegex {
			expr = globToRegex(normalize(p))
		} else {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// globToRegex converts a glob into an anchored regular expression.
// '*' matches any run of characters (dots included), '?' a single
// non-dot character, and [...] a character class.
func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	inClass := false
	for _, r := range glob {
		switch {
		case inClass:
			if r == ']' {
				inClass = false
			}
			b.WriteRune(r)
		case r == '*':
			b.WriteString(".*")
		case r == '?':
			b.WriteString("[^.]")
		case r == '[':
			inClass = true
			b.WriteRune(r)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}

func normalize(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}
