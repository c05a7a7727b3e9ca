// Package topic implements subscription pattern validation and matching.
//
// Topics are dot-segmented strings ("users.list.state"). Patterns are topics
// with an optional wildcard:
//
//	*         matches every topic (subject to bus policy)
//	users.*   matches users.list, users.list.state, users.item.123
//	a.b       matches exactly a.b
//
// The wildcard is only legal as the entire pattern or as the final segment.
// Embedded wildcards and multi-level forms ("users.*.state", "users.**") are
// rejected at validation time rather than silently ignored.
//
// Matching compiles patterns to anchored regular expressions where a
// wildcard segment becomes one-or-more non-dot characters, so there is no
// backtracking blowup on adversarial topics. Compiled patterns are cached.
package topic
