package route

import (
	"fmt"
	"log/slog"
)

// ActionType enumerates route side effects.
type ActionType string

const (
	// ActionEmit publishes a new message built from the action body,
	// optionally inheriting fields from the original.
	ActionEmit ActionType = "EMIT"

	// ActionForward republishes the (possibly transformed) message to a
	// different topic.
	ActionForward ActionType = "FORWARD"

	// ActionLog renders a template with {{path}} placeholders resolved
	// against the message and logs it at the given severity.
	ActionLog ActionType = "LOG"

	// ActionCall invokes a registered handler function by id.
	ActionCall ActionType = "CALL"
)

// InheritableFields lists message fields an EMIT action may copy from the
// original message.
var InheritableFields = map[string]bool{
	"payload":       true,
	"headers":       true,
	"source":        true,
	"correlationId": true,
	"replyTo":       true,
}

// Action is one route side effect. Which fields are meaningful depends on
// Type; Validate enforces the per-type shape.
type Action struct {
	Type ActionType `json:"type"`

	// Topic is the EMIT/FORWARD target.
	Topic string `json:"topic,omitempty"`

	// Message is the EMIT payload body.
	Message any `json:"message,omitempty"`

	// Inherit lists original-message fields merged into an EMIT.
	Inherit []string `json:"inherit,omitempty"`

	// Template is the LOG message with {{path}} placeholders.
	Template string `json:"template,omitempty"`

	// Level is the LOG severity: debug, info, warn, or error.
	Level string `json:"level,omitempty"`

	// Handler is the CALL handler id.
	Handler string `json:"handler,omitempty"`
}

// LogLevel maps the action severity onto a slog level, defaulting to info.
func (a Action) LogLevel() slog.Level {
	switch a.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks the per-type shape.
func (a Action) Validate() error {
	switch a.Type {
	case ActionEmit:
		if a.Topic == "" {
			return fmt.Errorf("EMIT: missing topic")
		}
		for _, f := range a.Inherit {
			if !InheritableFields[f] {
				return fmt.Errorf("EMIT: field %q is not inheritable", f)
			}
		}
		return nil
	case ActionForward:
		if a.Topic == "" {
			return fmt.Errorf("FORWARD: missing topic")
		}
		return nil
	case ActionLog:
		if a.Template == "" {
			return fmt.Errorf("LOG: missing template")
		}
		switch a.Level {
		case "", "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("LOG: unknown level %q", a.Level)
		}
		return nil
	case ActionCall:
		if a.Handler == "" {
			return fmt.Errorf("CALL: missing handler id")
		}
		return nil
	case "":
		return fmt.Errorf("action missing type")
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}
