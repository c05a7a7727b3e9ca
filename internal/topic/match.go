package topic

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Global is the pattern that matches every topic.
const Global = "*"

// Policy gates which patterns a subscriber may register.
type Policy struct {
	// AllowGlobalWildcard permits the bare "*" pattern.
	AllowGlobalWildcard bool
	// MaxWildcards caps wildcard segments per pattern. Zero means one.
	MaxWildcards int
}

// PatternError reports a pattern rejected at validation time.
type PatternError struct {
	Pattern string
	Detail  string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", e.Pattern, e.Detail)
}

// ValidatePattern checks a subscription pattern against the policy.
// Publish-topic validation lives in the envelope package; this covers only
// the subscription side, where wildcards are legal.
func ValidatePattern(pattern string, policy Policy) error {
	if pattern == "" {
		return &PatternError{Pattern: pattern, Detail: "empty pattern"}
	}
	if pattern == Global {
		if !policy.AllowGlobalWildcard {
			return &PatternError{Pattern: pattern, Detail: "global wildcard disallowed by policy"}
		}
		return nil
	}

	maxWildcards := policy.MaxWildcards
	if maxWildcards <= 0 {
		maxWildcards = 1
	}

	segments := strings.Split(pattern, ".")
	wildcards := 0
	for i, seg := range segments {
		switch {
		case seg == "":
			return &PatternError{Pattern: pattern, Detail: "empty segment"}
		case seg == "*":
			wildcards++
			if i != len(segments)-1 {
				return &PatternError{Pattern: pattern, Detail: "wildcard only allowed as final segment"}
			}
		case strings.Contains(seg, "*"):
			return &PatternError{Pattern: pattern, Detail: "wildcard must stand alone in its segment"}
		}
	}
	if wildcards > maxWildcards {
		return &PatternError{Pattern: pattern, Detail: fmt.Sprintf("too many wildcards (%d > %d)", wildcards, maxWildcards)}
	}
	return nil
}

// compiled caches pattern regexps. Patterns are few and long-lived relative
// to publishes, so the cache is unbounded.
var compiled sync.Map // pattern string -> *regexp.Regexp

// Match reports whether topic matches pattern.
//
// Rules in priority order: bare "*" matches everything; an exact pattern
// matches only itself; a trailing ".*" matches the prefix plus one or more
// further segments. Malformed patterns match nothing.
func Match(topic, pattern string) bool {
	if pattern == Global {
		return topic != ""
	}
	if pattern == topic {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	re, err := compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(topic)
}

// compile translates a pattern to an anchored regexp. Literal segments are
// quoted; the trailing wildcard becomes one-or-more non-dot characters
// followed by any number of further dot-separated segments.
func compile(pattern string) (*regexp.Regexp, error) {
	if cached, ok := compiled.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	segments := strings.Split(pattern, ".")
	parts := make([]string, 0, len(segments))
	for i, seg := range segments {
		if seg == "*" {
			if i != len(segments)-1 {
				return nil, &PatternError{Pattern: pattern, Detail: "wildcard only allowed as final segment"}
			}
			parts = append(parts, `[^.]+(?:\.[^.]+)*`)
			continue
		}
		if seg == "" || strings.Contains(seg, "*") {
			return nil, &PatternError{Pattern: pattern, Detail: "malformed segment"}
		}
		parts = append(parts, regexp.QuoteMeta(seg))
	}

	re, err := regexp.Compile("^" + strings.Join(parts, `\.`) + "$")
	if err != nil {
		return nil, err
	}
	compiled.Store(pattern, re)
	return re, nil
}
