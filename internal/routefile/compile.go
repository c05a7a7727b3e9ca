// Package routefile compiles CUE route-definition files into route
// configuration.
//
// A definition file declares routes under the top-level "route" struct,
// keyed by name:
//
//	route: "high-value-orders": {
//		order: 1
//		match: {
//			topic: "orders.*"
//			where: {op: "gt", path: "payload.value", value: 30}
//		}
//		actions: [{type: "EMIT", topic: "alerts.raised"}]
//	}
//
// Compilation uses the CUE SDK's Go API directly (not a CLI subprocess).
package routefile

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"encoding/json"

	"github.com/strato-bus/strato/internal/route"
)

// CompileError is a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileRoute parses one CUE route struct into a Route.
//
// The value should be the route body; its struct label supplies the route
// name when the body has none. Routes without an explicit "enabled" field
// default to enabled.
func CompileRoute(v cue.Value) (*route.Route, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	data, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var r route.Route
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &CompileError{
			Field:   "route",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}

	if r.Name == "" {
		labels := v.Path().Selectors()
		if len(labels) > 0 {
			r.Name = strings.Trim(labels[len(labels)-1].String(), `"`)
		}
	}
	if !v.LookupPath(cue.ParsePath("enabled")).Exists() {
		r.Enabled = true
	}

	if err := r.Validate(); err != nil {
		return nil, &CompileError{
			Field:   "route",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return &r, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	firstErr := errs[0]
	if positions := cueerrors.Positions(firstErr); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
