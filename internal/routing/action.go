package routing

import (
	"context"
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/strato-bus/strato/internal/envelope"
	"github.com/strato-bus/strato/internal/route"
)

// Handler is a registered call target for CALL actions. It receives the
// (possibly transformed) working copy of the matched message.
type Handler func(m *envelope.Message) error

// templatePattern matches {{path}} placeholders in LOG templates.
var templatePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// renderTemplate resolves {{path}} placeholders against the message
// document. A missing path renders empty; string values render unquoted,
// everything else renders as raw JSON.
func renderTemplate(tpl string, doc []byte) string {
	return templatePattern.ReplaceAllStringFunc(tpl, func(match string) string {
		path := templatePattern.FindStringSubmatch(match)[1]
		res, ok := envelope.LookupIn(doc, path)
		if !ok {
			return ""
		}
		if res.Type == gjson.String {
			return res.Str
		}
		return res.Raw
	})
}

// execAction runs one action. original is the untouched matched message;
// working is the transform output (or original when no transform applies)
// with workingDoc its rendered document.
func (e *Engine) execAction(a route.Action, original, working *envelope.Message, workingDoc []byte, handlers map[string]Handler) error {
	switch a.Type {
	case route.ActionEmit:
		return e.bus.Publish(buildEmit(a, original))
	case route.ActionForward:
		fwd, err := working.Clone()
		if err != nil {
			return fmt.Errorf("FORWARD to %q: %w", a.Topic, err)
		}
		fwd.Topic = a.Topic
		// The forwarded copy gets a fresh identity on publish.
		fwd.ID = ""
		fwd.TS = 0
		return e.bus.Publish(fwd)
	case route.ActionLog:
		e.log.Log(context.Background(), a.LogLevel(),
			renderTemplate(a.Template, workingDoc),
			"topic", working.Topic)
		return nil
	case route.ActionCall:
		h, ok := handlers[a.Handler]
		if !ok {
			return fmt.Errorf("CALL: handler %q not registered", a.Handler)
		}
		return h(working)
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

// buildEmit assembles the EMIT message from the action body plus any
// inherited fields of the original message.
func buildEmit(a route.Action, original *envelope.Message) *envelope.Message {
	out := &envelope.Message{Topic: a.Topic, Data: a.Message}
	for _, field := range a.Inherit {
		switch field {
		case "payload":
			out.Data = mergePayload(original.Data, a.Message)
		case "headers":
			if len(original.Headers) > 0 {
				out.Headers = make(map[string]string, len(original.Headers))
				for k, v := range original.Headers {
					out.Headers[k] = v
				}
			}
		case "source":
			out.Source = original.Source
		case "correlationId":
			out.CorrelationID = original.CorrelationID
		case "replyTo":
			out.ReplyTo = original.ReplyTo
		}
	}
	return out
}

// mergePayload overlays the action body onto the inherited payload when
// both are objects; otherwise the action body wins when present.
func mergePayload(inherited, body any) any {
	if body == nil {
		return inherited
	}
	base, ok1 := inherited.(map[string]any)
	over, ok2 := body.(map[string]any)
	if !ok1 || !ok2 {
		return body
	}
	merged := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range over {
		merged[k] = v
	}
	return merged
}
