package route

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRoute() *Route {
	return &Route{
		Name:    "high-sensor-alert",
		Enabled: true,
		Order:   10,
		Match: MatchSpec{
			Topic:  "sensors.*",
			Source: "ingest",
			Where: And{Predicates: []Predicate{
				Compare{Op: OpGt, Path: "payload.value", Value: float64(30)},
				Exists{Path: "payload.unit", Expect: true},
			}},
		},
		Transform: &Transform{Kind: TransformPick, Paths: []string{"payload.value", "payload.unit"}},
		Actions: []Action{
			{Type: ActionForward, Topic: "alerts.sensors"},
			{Type: ActionLog, Template: "sensor {{payload.value}}", Level: "warn"},
		},
	}
}

func TestRoute_Validate(t *testing.T) {
	require.NoError(t, sampleRoute().Validate())
}

func TestRoute_ValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Route)
	}{
		{"missing name", func(r *Route) { r.Name = "" }},
		{"bad pattern", func(r *Route) { r.Match.Topic = "sensors.*.state" }},
		{"no actions", func(r *Route) { r.Actions = nil }},
		{"bad action", func(r *Route) { r.Actions = []Action{{Type: ActionForward}} }},
		{"bad transform", func(r *Route) { r.Transform = &Transform{Kind: TransformMap} }},
		{"empty and", func(r *Route) { r.Match.Where = And{} }},
		{"bad regex", func(r *Route) { r.Match.Where = Regex{Path: "topic", Pattern: "("} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := sampleRoute()
			tc.mutate(r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestPredicate_ValidateInvariants(t *testing.T) {
	// and/or need at least one child; not needs exactly one.
	assert.Error(t, And{}.Validate())
	assert.Error(t, Or{}.Validate())
	assert.Error(t, Not{}.Validate())

	ok := Compare{Op: OpEq, Path: "topic", Value: "a.b"}
	assert.NoError(t, And{Predicates: []Predicate{ok}}.Validate())
	assert.NoError(t, Or{Predicates: []Predicate{ok}}.Validate())
	assert.NoError(t, Not{Predicate: ok}.Validate())

	assert.Error(t, Compare{Op: "between", Path: "x"}.Validate())
	assert.Error(t, In{Path: "x"}.Validate())
}

func TestPredicate_JSONRoundTrip(t *testing.T) {
	p := Or{Predicates: []Predicate{
		And{Predicates: []Predicate{
			Compare{Op: OpGte, Path: "payload.count", Value: float64(2)},
			Not{Predicate: Exists{Path: "payload.ignored", Expect: true}},
		}},
		In{Path: "source", Values: []any{"web", "mobile"}},
		Regex{Path: "topic", Pattern: `^users\.`},
	}}

	b, err := MarshalPredicate(p)
	require.NoError(t, err)

	back, err := UnmarshalPredicate(b)
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestPredicate_DecodeRejectsUnknownOp(t *testing.T) {
	_, err := UnmarshalPredicate([]byte(`{"op":"fuzzy","path":"x"}`))
	assert.Error(t, err)

	_, err = UnmarshalPredicate([]byte(`{"path":"x"}`))
	assert.Error(t, err)
}

func TestPredicate_DecodeExistsDefaultsTrue(t *testing.T) {
	p, err := UnmarshalPredicate([]byte(`{"op":"exists","path":"payload.user"}`))
	require.NoError(t, err)
	assert.Equal(t, Exists{Path: "payload.user", Expect: true}, p)

	p, err = UnmarshalPredicate([]byte(`{"op":"exists","path":"payload.user","value":false}`))
	require.NoError(t, err)
	assert.Equal(t, Exists{Path: "payload.user", Expect: false}, p)
}

func TestRoute_JSONRoundTrip(t *testing.T) {
	r := sampleRoute()
	r.ID = "r-1"

	b, err := json.Marshal(r)
	require.NoError(t, err)

	var back Route
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, *r, back)
}

func TestRoute_CloneIsIndependent(t *testing.T) {
	r := sampleRoute()
	c, err := r.Clone()
	require.NoError(t, err)

	c.Name = "changed"
	c.Actions[0].Topic = "elsewhere"

	assert.Equal(t, "high-sensor-alert", r.Name)
	assert.Equal(t, "alerts.sensors", r.Actions[0].Topic)
}

func TestRoute_HashStableAndIDIndependent(t *testing.T) {
	a := sampleRoute()
	b := sampleRoute()
	b.ID = "different-id"

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb, "hash must ignore the assigned id")

	b.Order = 99
	hc, err := b.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc, "body changes must change the hash")
}

func TestControlRequest_Validate(t *testing.T) {
	r := sampleRoute()

	assert.NoError(t, ControlRequest{Op: ControlAdd, Route: r}.Validate())
	assert.NoError(t, ControlRequest{Op: ControlUpdate, RouteID: "r-1", Route: r}.Validate())
	assert.NoError(t, ControlRequest{Op: ControlRemove, RouteID: "r-1"}.Validate())
	assert.NoError(t, ControlRequest{Op: ControlClear}.Validate())

	assert.Error(t, ControlRequest{Op: ControlAdd}.Validate())
	assert.Error(t, ControlRequest{Op: ControlUpdate, Route: r}.Validate())
	assert.Error(t, ControlRequest{Op: ControlEnable}.Validate())
	assert.Error(t, ControlRequest{Op: "promote", RouteID: "r-1"}.Validate())
	assert.Error(t, ControlRequest{}.Validate())
}

func TestAction_Validate(t *testing.T) {
	assert.NoError(t, Action{Type: ActionEmit, Topic: "a.b", Inherit: []string{"payload", "headers"}}.Validate())
	assert.Error(t, Action{Type: ActionEmit, Topic: "a.b", Inherit: []string{"secret"}}.Validate())
	assert.Error(t, Action{Type: ActionLog, Template: "x", Level: "fatal"}.Validate())
	assert.Error(t, Action{Type: ActionCall}.Validate())
	assert.Error(t, Action{}.Validate())
}
