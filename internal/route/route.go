package route

import (
	"encoding/json"
	"fmt"

	"github.com/strato-bus/strato/internal/topic"
)

// MatchSpec decides whether a route applies to a message. Equality fields
// are checked first (cheap), then the optional where-predicate tree.
type MatchSpec struct {
	// Topic is a subscription-style pattern; empty matches every topic.
	Topic string `json:"topic,omitempty"`

	// Source requires exact producer equality; empty matches any source.
	Source string `json:"source,omitempty"`

	// Headers requires each listed header to be present with the exact
	// value; empty matches any headers.
	Headers map[string]string `json:"headers,omitempty"`

	// Where is an optional predicate tree over the message document.
	Where Predicate `json:"-"`
}

// Route is one named, ordered routing rule. Routes carry no implicit state
// beyond Enabled; everything else is pure configuration.
type Route struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Enabled bool      `json:"enabled"`
	Order   int       `json:"order"`
	Match   MatchSpec `json:"match"`

	// Transform optionally reshapes a working copy before actions run.
	Transform *Transform `json:"transform,omitempty"`

	// Actions run in array order when the route matches.
	Actions []Action `json:"actions"`
}

// Validate checks the route's structural invariants. The ID may be empty on
// input; the engine assigns one at add time.
func (r *Route) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("route missing name")
	}
	if r.Match.Topic != "" {
		// Route patterns follow subscription rules, including the bare
		// wildcard: routes already see all traffic, so the pattern only
		// narrows it.
		err := topic.ValidatePattern(r.Match.Topic, topic.Policy{AllowGlobalWildcard: true})
		if err != nil {
			return fmt.Errorf("route %q: %w", r.Name, err)
		}
	}
	if r.Match.Where != nil {
		if err := r.Match.Where.Validate(); err != nil {
			return fmt.Errorf("route %q where: %w", r.Name, err)
		}
	}
	if r.Transform != nil {
		if err := r.Transform.Validate(); err != nil {
			return fmt.Errorf("route %q transform: %w", r.Name, err)
		}
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("route %q: no actions", r.Name)
	}
	for i, a := range r.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("route %q action[%d]: %w", r.Name, i, err)
		}
	}
	return nil
}

// matchSpecJSON carries the predicate in wire form.
type matchSpecJSON struct {
	Topic   string            `json:"topic,omitempty"`
	Source  string            `json:"source,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Where   json.RawMessage   `json:"where,omitempty"`
}

// MarshalJSON encodes the match spec including the predicate tree.
func (m MatchSpec) MarshalJSON() ([]byte, error) {
	out := matchSpecJSON{Topic: m.Topic, Source: m.Source, Headers: m.Headers}
	if m.Where != nil {
		where, err := MarshalPredicate(m.Where)
		if err != nil {
			return nil, err
		}
		out.Where = where
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the match spec including the predicate tree.
func (m *MatchSpec) UnmarshalJSON(data []byte) error {
	var in matchSpecJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m.Topic = in.Topic
	m.Source = in.Source
	m.Headers = in.Headers
	m.Where = nil
	if len(in.Where) > 0 {
		where, err := UnmarshalPredicate(in.Where)
		if err != nil {
			return err
		}
		m.Where = where
	}
	return nil
}

// Clone returns a deep copy via the JSON codec. The engine hands out clones
// so callers cannot mutate live configuration behind its back.
func (r *Route) Clone() (*Route, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out Route
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
