package routing

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/strato-bus/strato/internal/envelope"
	"github.com/strato-bus/strato/internal/route"
)

// TransformFn is a registered transform function. For "map" transforms it
// receives the value at the configured path and returns its replacement.
// For "custom" transforms it receives the whole message document decoded to
// Go-native JSON types and returns the replacement document.
type TransformFn func(v any) (any, error)

// applyTransform returns a reshaped working copy of the message. The
// original is never touched; every branch works on a fresh clone or a
// re-rendered document.
func applyTransform(m *envelope.Message, t *route.Transform, fns map[string]TransformFn) (*envelope.Message, error) {
	doc, err := m.Document()
	if err != nil {
		return nil, err
	}

	switch t.Kind {
	case route.TransformPick:
		return pick(doc, t.Paths)
	case route.TransformMap:
		fn, ok := fns[t.Fn]
		if !ok {
			return nil, fmt.Errorf("map: transform fn %q not registered", t.Fn)
		}
		res, found := envelope.LookupIn(doc, t.Path)
		if !found {
			// Nothing at the path; the copy passes through unchanged.
			return envelope.FromDocument(doc)
		}
		replaced, err := fn(res.Value())
		if err != nil {
			return nil, fmt.Errorf("map %q at %q: %w", t.Fn, t.Path, err)
		}
		out, err := sjson.SetBytes(doc, t.Path, replaced)
		if err != nil {
			return nil, fmt.Errorf("map %q at %q: %w", t.Fn, t.Path, err)
		}
		return envelope.FromDocument(out)
	case route.TransformCustom:
		fn, ok := fns[t.Fn]
		if !ok {
			return nil, fmt.Errorf("custom: transform fn %q not registered", t.Fn)
		}
		var decoded any
		if err := json.Unmarshal(doc, &decoded); err != nil {
			return nil, err
		}
		replaced, err := fn(decoded)
		if err != nil {
			return nil, fmt.Errorf("custom %q: %w", t.Fn, err)
		}
		out, err := json.Marshal(replaced)
		if err != nil {
			return nil, fmt.Errorf("custom %q: result not serializable: %w", t.Fn, err)
		}
		msg, err := envelope.FromDocument(out)
		if err != nil {
			return nil, fmt.Errorf("custom %q: result is not a message document: %w", t.Fn, err)
		}
		if msg.Topic == "" {
			return nil, fmt.Errorf("custom %q: result dropped the topic", t.Fn)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unknown transform kind %q", t.Kind)
	}
}

// pick keeps only the listed document paths. Envelope identity fields
// (topic, id, ts, source and the reply metadata) always survive; pick
// selects among the payload and header contents.
func pick(doc []byte, paths []string) (*envelope.Message, error) {
	out := doc
	var err error
	for _, field := range []string{"payload", "headers"} {
		out, err = sjson.DeleteBytes(out, field)
		if err != nil {
			return nil, err
		}
	}
	for _, p := range paths {
		res, found := envelope.LookupIn(doc, p)
		if !found {
			continue
		}
		out, err = sjson.SetRawBytes(out, p, []byte(res.Raw))
		if err != nil {
			return nil, fmt.Errorf("pick %q: %w", p, err)
		}
	}
	return envelope.FromDocument(out)
}
