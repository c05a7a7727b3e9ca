package envelope

import (
	"encoding/json"
	"time"
)

// Message is the bus envelope. Topic and Data are the caller-facing fields;
// the rest is delivery metadata filled in during normalization or set by the
// request/reply machinery.
//
// Data must be JSON-serializable. The bus treats it as opaque: no schema is
// enforced beyond serializability and size limits.
type Message struct {
	// Topic is the dot-segmented subject. Required, wildcard-free.
	Topic string `json:"topic"`

	// Data is the opaque payload. Optional.
	Data any `json:"data,omitempty"`

	// ID uniquely identifies the message. Generated if absent.
	ID string `json:"id,omitempty"`

	// TS is the publish timestamp in milliseconds. Generated if absent.
	TS int64 `json:"ts,omitempty"`

	// Source identifies the producer. Used for rate limiting and route
	// matching. Optional; an empty source shares the default rate window.
	Source string `json:"source,omitempty"`

	// Retain marks the message as the topic's retained state.
	Retain bool `json:"retain,omitempty"`

	// ReplyTo names the topic a responder should answer on.
	ReplyTo string `json:"replyTo,omitempty"`

	// CorrelationID links a request to its reply.
	CorrelationID string `json:"correlationId,omitempty"`

	// Headers carries free-form string metadata.
	Headers map[string]string `json:"headers,omitempty"`
}

// IDGenerator produces message and correlation identifiers.
// Implemented by UUIDv7Generator (production) and testutil.FixedIDGenerator.
type IDGenerator interface {
	NewID() string
}

// Normalize fills ID and TS if absent. It mutates the message in place and
// must run before validation so that size limits cover the final envelope.
func (m *Message) Normalize(ids IDGenerator, now func() time.Time) {
	if m.ID == "" {
		m.ID = ids.NewID()
	}
	if m.TS == 0 {
		m.TS = now().UnixMilli()
	}
}

// Clone returns a deep copy of the message by round-tripping through the
// document rendering. Used by transforms, which must never mutate the
// original envelope.
func (m *Message) Clone() (*Message, error) {
	doc, err := m.Document()
	if err != nil {
		return nil, err
	}
	return FromDocument(doc)
}

// document is the JSON shape used for path lookups, cloning, and transforms.
// The payload is re-keyed from "data" to "payload" so predicate paths read
// naturally ("payload.value").
type document struct {
	Topic         string            `json:"topic"`
	Payload       json.RawMessage   `json:"payload,omitempty"`
	ID            string            `json:"id,omitempty"`
	TS            int64             `json:"ts,omitempty"`
	Source        string            `json:"source,omitempty"`
	Retain        bool              `json:"retain,omitempty"`
	ReplyTo       string            `json:"replyTo,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
}

// Document renders the message as a JSON document with the payload under
// the "payload" key. Returns an error if the payload is not serializable.
func (m *Message) Document() ([]byte, error) {
	var payload json.RawMessage
	if m.Data != nil {
		b, err := json.Marshal(m.Data)
		if err != nil {
			return nil, err
		}
		payload = b
	}
	return json.Marshal(document{
		Topic:         m.Topic,
		Payload:       payload,
		ID:            m.ID,
		TS:            m.TS,
		Source:        m.Source,
		Retain:        m.Retain,
		ReplyTo:       m.ReplyTo,
		CorrelationID: m.CorrelationID,
		Headers:       m.Headers,
	})
}

// FromDocument decodes a document rendering back into a Message.
// The payload decodes into Go-native JSON types (map[string]any, []any,
// float64, string, bool, nil).
func FromDocument(doc []byte) (*Message, error) {
	var d document
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, err
	}
	m := &Message{
		Topic:         d.Topic,
		ID:            d.ID,
		TS:            d.TS,
		Source:        d.Source,
		Retain:        d.Retain,
		ReplyTo:       d.ReplyTo,
		CorrelationID: d.CorrelationID,
		Headers:       d.Headers,
	}
	if len(d.Payload) > 0 {
		var data any
		if err := json.Unmarshal(d.Payload, &data); err != nil {
			return nil, err
		}
		m.Data = data
	}
	return m, nil
}
