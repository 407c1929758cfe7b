package matcher

import (
	"strings"
	"testing"
)

func TestNewDomainMatcher_RequiresIncludes(t *testing.T) {
	_, err := NewDomainMatcher(DomainMatcherConfig{})
	if err == nil {
		t.Error("expected error for empty includes, got nil")
	}
}

func TestNewDomainMatcher_InvalidRegexPattern(t *testing.T) {
	_, err := NewDomainMatcher(DomainMatcherConfig{
		Includes: []string{"[invalid"},
		UseRegex: true,
	})
	if err == nil {
		t.Error("expected error for invalid regex, got nil")
	}
}

func TestDomainMatcher_Glob(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		record  string
		want    bool
	}{
		{"wildcard matches subdomain", "*.example.com", "www.example.com.", true},
		{"wildcard matches nested subdomain", "*.example.com", "a.b.example.com", true},
		{"wildcard does not match apex", "*.example.com", "example.com.", false},
		{"exact match ignores trailing dot", "example.com.", "example.com", true},
		{"exact match is case insensitive", "WWW.Example.com", "www.example.com.", true},
		{"question mark matches one label char", "?.example.com", "a.example.com.", true},
		{"question mark does not match dot", "?.example.com", "a.b.example.com.", false},
		{"char class", "[ab].example.com", "b.example.com.", true},
		{"char class miss", "[ab].example.com", "c.example.com.", false},
		{"service labels", "_*._tcp.example.com", "_sip._tcp.example.com.", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewDomainMatcher(DomainMatcherConfig{Includes: []string{tt.pattern}})
			if err != nil {
				t.Fatalf("failed to create matcher: %v", err)
			}
			if got := m.Matches(tt.record); got != tt.want {
				t.Errorf("Matches(%q) with pattern %q = %v, want %v", tt.record, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestDomainMatcher_Excludes(t *testing.T) {
	m, err := NewDomainMatcher(DomainMatcherConfig{
		Includes: []string{"*.example.com", "example.com"},
		Excludes: []string{"_acme-challenge.*", "*.internal.example.com"},
	})
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}

	tests := map[string]bool{
		"example.com.":                     true,
		"www.example.com.":                 true,
		"_acme-challenge.www.example.com.": false,
		"db.internal.example.com.":         false,
		"www.example.org.":                 false,
	}
	for name, want := range tests {
		if got := m.Matches(name); got != want {
			t.Errorf("Matches(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestDomainMatcher_Regex(t *testing.T) {
	m, err := NewDomainMatcher(DomainMatcherConfig{
		Includes: []string{`^[a-z0-9-]+\.example\.com$`},
		Excludes: []string{`^(test|dev)\.`},
		UseRegex: true,
	})
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}
	if !m.Matches("API.example.com.") {
		t.Error("expected API.example.com. to match")
	}
	if m.Matches("test.example.com.") {
		t.Error("expected test.example.com. to be excluded")
	}
	if m.Matches("a.b.example.com.") {
		t.Error("nested name should not match single-label regex")
	}
}

func TestMatchAll(t *testing.T) {
	m := MatchAll()
	for _, name := range []string{"example.com.", "a.b.c.example.org", "."} {
		if !m.Matches(name) {
			t.Errorf("MatchAll().Matches(%q) = false", name)
		}
	}
}

func TestDomainMatcher_String(t *testing.T) {
	m, err := NewDomainMatcher(DomainMatcherConfig{
		Includes: []string{"*.example.com"},
		Excludes: []string{"*.internal.example.com"},
	})
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}
	s := m.String()
	for _, want := range []string{"glob", "*.example.com", "excludes"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
