package routing

import (
	"regexp"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/strato-bus/strato/internal/envelope"
	"github.com/strato-bus/strato/internal/route"
)

// regexCache holds compiled route regexes keyed by pattern. Route validation
// already proved each pattern compiles, so cache misses never fail at
// evaluation time.
var regexCache sync.Map

func compiledRegex(pattern string) *regexp.Regexp {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp)
	}
	re := regexp.MustCompile(pattern)
	regexCache.Store(pattern, re)
	return re
}

// evalPredicate evaluates one predicate tree against a rendered message
// document. The switch is exhaustive over the sealed predicate variants.
func evalPredicate(doc []byte, p route.Predicate) bool {
	switch p := p.(type) {
	case route.Compare:
		res, ok := envelope.LookupIn(doc, p.Path)
		if !ok {
			// Absence fails every comparison except "not equal".
			return p.Op == route.OpNeq
		}
		return compare(p.Op, res, p.Value)
	case route.In:
		res, ok := envelope.LookupIn(doc, p.Path)
		if !ok {
			return false
		}
		for _, v := range p.Values {
			if literalEqual(res, v) {
				return true
			}
		}
		return false
	case route.Regex:
		res, ok := envelope.LookupIn(doc, p.Path)
		if !ok || res.Type != gjson.String {
			return false
		}
		return compiledRegex(p.Pattern).MatchString(res.Str)
	case route.Exists:
		_, ok := envelope.LookupIn(doc, p.Path)
		return ok == p.Expect
	case route.And:
		for _, child := range p.Predicates {
			if !evalPredicate(doc, child) {
				return false
			}
		}
		return true
	case route.Or:
		for _, child := range p.Predicates {
			if evalPredicate(doc, child) {
				return true
			}
		}
		return false
	case route.Not:
		return !evalPredicate(doc, p.Predicate)
	default:
		return false
	}
}

func compare(op route.CompareOp, res gjson.Result, lit any) bool {
	switch op {
	case route.OpEq:
		return literalEqual(res, lit)
	case route.OpNeq:
		return !literalEqual(res, lit)
	}

	// Ordering operators compare numbers with numbers and strings with
	// strings; any other pairing is false.
	if n, ok := asNumber(lit); ok && res.Type == gjson.Number {
		return ordered(op, res.Num, n)
	}
	if s, ok := lit.(string); ok && res.Type == gjson.String {
		switch op {
		case route.OpGt:
			return res.Str > s
		case route.OpGte:
			return res.Str >= s
		case route.OpLt:
			return res.Str < s
		case route.OpLte:
			return res.Str <= s
		}
	}
	return false
}

func ordered(op route.CompareOp, a, b float64) bool {
	switch op {
	case route.OpGt:
		return a > b
	case route.OpGte:
		return a >= b
	case route.OpLt:
		return a < b
	case route.OpLte:
		return a <= b
	default:
		return false
	}
}

// literalEqual compares a document value with a predicate literal. Numeric
// literals compare by value regardless of Go type, matching how they look
// after a JSON round trip.
func literalEqual(res gjson.Result, lit any) bool {
	switch v := lit.(type) {
	case nil:
		return res.Type == gjson.Null
	case bool:
		return res.IsBool() && res.Bool() == v
	case string:
		return res.Type == gjson.String && res.Str == v
	default:
		if n, ok := asNumber(lit); ok {
			return res.Type == gjson.Number && res.Num == n
		}
		return false
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
