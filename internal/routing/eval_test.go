package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strato-bus/strato/internal/envelope"
	"github.com/strato-bus/strato/internal/route"
)

func docFor(t *testing.T, m *envelope.Message) []byte {
	t.Helper()
	doc, err := m.Document()
	require.NoError(t, err)
	return doc
}

func TestEvalPredicate_Comparisons(t *testing.T) {
	msg := &envelope.Message{
		Topic:  "orders.item.save",
		Source: "web",
		Data: map[string]any{
			"value":  float64(35),
			"status": "open",
			"user":   map[string]any{"name": "ada"},
		},
		Headers: map[string]string{"region": "eu"},
	}
	doc := docFor(t, msg)

	tests := []struct {
		name string
		pred route.Predicate
		want bool
	}{
		{"gt true", route.Compare{Op: route.OpGt, Path: "payload.value", Value: 30}, true},
		{"gt false", route.Compare{Op: route.OpGt, Path: "payload.value", Value: 40}, false},
		{"gt missing path", route.Compare{Op: route.OpGt, Path: "payload.missing", Value: 30}, false},
		{"gte boundary", route.Compare{Op: route.OpGte, Path: "payload.value", Value: 35}, true},
		{"lt", route.Compare{Op: route.OpLt, Path: "payload.value", Value: 36}, true},
		{"lte boundary", route.Compare{Op: route.OpLte, Path: "payload.value", Value: 35}, true},
		{"eq string", route.Compare{Op: route.OpEq, Path: "payload.status", Value: "open"}, true},
		{"eq int literal against float doc", route.Compare{Op: route.OpEq, Path: "payload.value", Value: 35}, true},
		{"eq missing path", route.Compare{Op: route.OpEq, Path: "payload.missing", Value: "x"}, false},
		{"neq", route.Compare{Op: route.OpNeq, Path: "payload.status", Value: "closed"}, true},
		{"neq missing path treats absence as not-equal", route.Compare{Op: route.OpNeq, Path: "payload.missing", Value: "x"}, true},
		{"eq envelope field", route.Compare{Op: route.OpEq, Path: "source", Value: "web"}, true},
		{"eq header", route.Compare{Op: route.OpEq, Path: "headers.region", Value: "eu"}, true},
		{"ordering across types is false", route.Compare{Op: route.OpGt, Path: "payload.status", Value: 10}, false},
		{"string ordering", route.Compare{Op: route.OpGt, Path: "payload.status", Value: "a"}, true},

		{"in hit", route.In{Path: "payload.status", Values: []any{"open", "pending"}}, true},
		{"in miss", route.In{Path: "payload.status", Values: []any{"closed"}}, false},
		{"in missing path", route.In{Path: "payload.missing", Values: []any{"open"}}, false},

		{"regex hit", route.Regex{Path: "topic", Pattern: `^orders\.`}, true},
		{"regex miss", route.Regex{Path: "topic", Pattern: `^users\.`}, false},
		{"regex non-string", route.Regex{Path: "payload.value", Pattern: `35`}, false},

		{"exists present", route.Exists{Path: "payload.user.name", Expect: true}, true},
		{"exists absent", route.Exists{Path: "payload.user.email", Expect: true}, false},
		{"exists false on missing matches", route.Exists{Path: "payload.user.email", Expect: false}, true},

		{"and all", route.And{Predicates: []route.Predicate{
			route.Compare{Op: route.OpGt, Path: "payload.value", Value: 30},
			route.Compare{Op: route.OpEq, Path: "payload.status", Value: "open"},
		}}, true},
		{"and one fails", route.And{Predicates: []route.Predicate{
			route.Compare{Op: route.OpGt, Path: "payload.value", Value: 30},
			route.Compare{Op: route.OpEq, Path: "payload.status", Value: "closed"},
		}}, false},
		{"or any", route.Or{Predicates: []route.Predicate{
			route.Compare{Op: route.OpEq, Path: "payload.status", Value: "closed"},
			route.Compare{Op: route.OpGt, Path: "payload.value", Value: 30},
		}}, true},
		{"not", route.Not{Predicate: route.Compare{Op: route.OpEq, Path: "payload.status", Value: "closed"}}, true},
		{"nested", route.And{Predicates: []route.Predicate{
			route.Exists{Path: "payload.user", Expect: true},
			route.Not{Predicate: route.In{Path: "payload.status", Values: []any{"closed", "archived"}}},
		}}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, evalPredicate(doc, tc.pred))
		})
	}
}

func TestEvalPredicate_NullValue(t *testing.T) {
	msg := &envelope.Message{Topic: "a.b", Data: map[string]any{"v": nil}}
	doc := docFor(t, msg)

	// A present-but-null value is distinguishable from a missing path.
	assert.True(t, evalPredicate(doc, route.Exists{Path: "payload.v", Expect: true}))
	assert.True(t, evalPredicate(doc, route.Compare{Op: route.OpEq, Path: "payload.v", Value: nil}))
	assert.False(t, evalPredicate(doc, route.Compare{Op: route.OpGt, Path: "payload.v", Value: 1}))
}

func TestRenderTemplate(t *testing.T) {
	msg := &envelope.Message{
		Topic:  "orders.item.save",
		Source: "web",
		Data:   map[string]any{"value": float64(35), "status": "open"},
	}
	doc := docFor(t, msg)

	assert.Equal(t, "order open at 35 from web",
		renderTemplate("order {{payload.status}} at {{payload.value}} from {{ source }}", doc))
	assert.Equal(t, "missing: ", renderTemplate("missing: {{payload.nope}}", doc))
	assert.Equal(t, "no placeholders", renderTemplate("no placeholders", doc))
}
