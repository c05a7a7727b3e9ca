package route

import "fmt"

// ControlOp enumerates the administrative operations accepted on the
// routing control channel.
type ControlOp string

const (
	ControlAdd     ControlOp = "add"
	ControlUpdate  ControlOp = "update"
	ControlRemove  ControlOp = "remove"
	ControlEnable  ControlOp = "enable"
	ControlDisable ControlOp = "disable"
	ControlClear   ControlOp = "clear"
)

// ControlRequest is the payload of a control message. Every control message
// must pass the engine's guard predicate before the operation applies.
type ControlRequest struct {
	Op      ControlOp `json:"op"`
	RouteID string    `json:"routeId,omitempty"`
	Route   *Route    `json:"route,omitempty"`
}

// Validate checks the per-op shape.
func (r ControlRequest) Validate() error {
	switch r.Op {
	case ControlAdd:
		if r.Route == nil {
			return fmt.Errorf("add: missing route body")
		}
		return r.Route.Validate()
	case ControlUpdate:
		if r.RouteID == "" {
			return fmt.Errorf("update: missing route id")
		}
		if r.Route == nil {
			return fmt.Errorf("update: missing route body")
		}
		return r.Route.Validate()
	case ControlRemove, ControlEnable, ControlDisable:
		if r.RouteID == "" {
			return fmt.Errorf("%s: missing route id", r.Op)
		}
		return nil
	case ControlClear:
		return nil
	case "":
		return fmt.Errorf("control request missing op")
	default:
		return fmt.Errorf("unknown control op %q", r.Op)
	}
}

// ControlResult is published back to the administrative caller. Rejections
// are always explicit; a control message is never silently ignored.
type ControlResult struct {
	Op      ControlOp `json:"op"`
	RouteID string    `json:"routeId,omitempty"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
}
