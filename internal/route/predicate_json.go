package route

import (
	"encoding/json"
	"fmt"
)

// predicateJSON is the wire form of one predicate node:
//
//	{"op":"gt","path":"payload.value","value":30}
//	{"op":"in","path":"source","values":["web","mobile"]}
//	{"op":"exists","path":"payload.user","value":true}
//	{"op":"and","predicates":[...]}
//	{"op":"not","predicate":{...}}
type predicateJSON struct {
	Op         string            `json:"op"`
	Path       string            `json:"path,omitempty"`
	// Value has no omitempty: false and 0 are legitimate comparison
	// literals and must survive the round trip.
	Value      any               `json:"value"`
	Values     []any             `json:"values,omitempty"`
	Pattern    string            `json:"pattern,omitempty"`
	Predicates []json.RawMessage `json:"predicates,omitempty"`
	Predicate  json.RawMessage   `json:"predicate,omitempty"`
}

// MarshalPredicate encodes a predicate tree to its wire form.
func MarshalPredicate(p Predicate) ([]byte, error) {
	node, err := encodePredicate(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(node)
}

// UnmarshalPredicate decodes the wire form into a predicate tree.
// Unknown or malformed nodes error rather than decoding to a degenerate
// always-false predicate.
func UnmarshalPredicate(data []byte) (Predicate, error) {
	var node predicateJSON
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("decode predicate: %w", err)
	}
	return decodePredicate(node)
}

func encodePredicate(p Predicate) (*predicateJSON, error) {
	switch v := p.(type) {
	case Compare:
		return &predicateJSON{Op: string(v.Op), Path: v.Path, Value: v.Value}, nil
	case In:
		return &predicateJSON{Op: "in", Path: v.Path, Values: v.Values}, nil
	case Regex:
		return &predicateJSON{Op: "regex", Path: v.Path, Pattern: v.Pattern}, nil
	case Exists:
		return &predicateJSON{Op: "exists", Path: v.Path, Value: v.Expect}, nil
	case And:
		children, err := encodeChildren(v.Predicates)
		if err != nil {
			return nil, err
		}
		return &predicateJSON{Op: "and", Predicates: children}, nil
	case Or:
		children, err := encodeChildren(v.Predicates)
		if err != nil {
			return nil, err
		}
		return &predicateJSON{Op: "or", Predicates: children}, nil
	case Not:
		child, err := MarshalPredicate(v.Predicate)
		if err != nil {
			return nil, err
		}
		return &predicateJSON{Op: "not", Predicate: child}, nil
	case nil:
		return nil, fmt.Errorf("nil predicate")
	default:
		return nil, fmt.Errorf("unknown predicate type %T", p)
	}
}

func encodeChildren(children []Predicate) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(children))
	for _, child := range children {
		b, err := MarshalPredicate(child)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func decodePredicate(node predicateJSON) (Predicate, error) {
	op := CompareOp(node.Op)
	if validCompareOps[op] {
		return Compare{Op: op, Path: node.Path, Value: node.Value}, nil
	}

	switch node.Op {
	case "in":
		return In{Path: node.Path, Values: node.Values}, nil
	case "regex":
		return Regex{Path: node.Path, Pattern: node.Pattern}, nil
	case "exists":
		expect := true
		if b, ok := node.Value.(bool); ok {
			expect = b
		}
		return Exists{Path: node.Path, Expect: expect}, nil
	case "and", "or":
		children := make([]Predicate, 0, len(node.Predicates))
		for i, raw := range node.Predicates {
			child, err := UnmarshalPredicate(raw)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", node.Op, i, err)
			}
			children = append(children, child)
		}
		if node.Op == "and" {
			return And{Predicates: children}, nil
		}
		return Or{Predicates: children}, nil
	case "not":
		if len(node.Predicate) == 0 {
			return nil, fmt.Errorf("not: missing child")
		}
		child, err := UnmarshalPredicate(node.Predicate)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return Not{Predicate: child}, nil
	case "":
		return nil, fmt.Errorf("predicate missing op")
	default:
		return nil, fmt.Errorf("unknown predicate op %q", node.Op)
	}
}
