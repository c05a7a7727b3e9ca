package route

import "fmt"

// TransformKind enumerates the transform variants.
type TransformKind string

const (
	// TransformPick keeps only the listed document paths.
	TransformPick TransformKind = "pick"

	// TransformMap applies a registered function to the value at one path.
	TransformMap TransformKind = "map"

	// TransformCustom applies a registered function to the whole message.
	TransformCustom TransformKind = "custom"
)

// Transform describes how a matched message is reshaped before actions run.
// Transforms always operate on a working copy; the original message is
// never mutated.
type Transform struct {
	Kind TransformKind `json:"kind"`

	// Paths lists the document paths a pick keeps.
	Paths []string `json:"paths,omitempty"`

	// Path is the map target path.
	Path string `json:"path,omitempty"`

	// Fn names the registered transform function (map and custom).
	Fn string `json:"fn,omitempty"`
}

// Validate checks the per-kind shape. Whether Fn is actually registered is
// an evaluation-time concern, not a configuration one: routes may be stored
// before their functions are registered.
func (t Transform) Validate() error {
	switch t.Kind {
	case TransformPick:
		if len(t.Paths) == 0 {
			return fmt.Errorf("pick: no paths listed")
		}
		return nil
	case TransformMap:
		if t.Path == "" {
			return fmt.Errorf("map: missing path")
		}
		if t.Fn == "" {
			return fmt.Errorf("map: missing fn")
		}
		return nil
	case TransformCustom:
		if t.Fn == "" {
			return fmt.Errorf("custom: missing fn")
		}
		return nil
	case "":
		return fmt.Errorf("transform missing kind")
	default:
		return fmt.Errorf("unknown transform kind %q", t.Kind)
	}
}
