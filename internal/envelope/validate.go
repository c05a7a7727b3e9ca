package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Limits bounds envelope and payload size.
type Limits struct {
	// MaxMessageSize bounds the serialized envelope in bytes.
	MaxMessageSize int
	// MaxPayloadSize bounds the serialized payload in bytes.
	MaxPayloadSize int
}

// InvalidReason categorizes validation failures.
type InvalidReason string

const (
	ReasonEmptyTopic       InvalidReason = "empty_topic"
	ReasonMalformedTopic   InvalidReason = "malformed_topic"
	ReasonWildcardTopic    InvalidReason = "wildcard_topic"
	ReasonNotSerializable  InvalidReason = "not_serializable"
	ReasonPayloadTooLarge  InvalidReason = "payload_too_large"
	ReasonEnvelopeTooLarge InvalidReason = "envelope_too_large"
)

// InvalidError reports why a message failed validation.
type InvalidError struct {
	Reason InvalidReason
	Topic  string
	Detail string
}

func (e *InvalidError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("invalid message on %q: %s (%s)", e.Topic, e.Reason, e.Detail)
	}
	return fmt.Sprintf("invalid message on %q: %s", e.Topic, e.Reason)
}

// Validate checks topic shape, payload serializability, and the two size
// limits. A message that fails validation must never be delivered.
func (m *Message) Validate(limits Limits) error {
	if err := ValidateTopic(m.Topic); err != nil {
		return err
	}

	var payloadLen int
	if m.Data != nil {
		b, err := json.Marshal(m.Data)
		if err != nil {
			return &InvalidError{Reason: ReasonNotSerializable, Topic: m.Topic, Detail: err.Error()}
		}
		payloadLen = len(b)
	}
	if limits.MaxPayloadSize > 0 && payloadLen > limits.MaxPayloadSize {
		return &InvalidError{
			Reason: ReasonPayloadTooLarge,
			Topic:  m.Topic,
			Detail: fmt.Sprintf("%d > %d bytes", payloadLen, limits.MaxPayloadSize),
		}
	}

	env, err := json.Marshal(m)
	if err != nil {
		return &InvalidError{Reason: ReasonNotSerializable, Topic: m.Topic, Detail: err.Error()}
	}
	if limits.MaxMessageSize > 0 && len(env) > limits.MaxMessageSize {
		return &InvalidError{
			Reason: ReasonEnvelopeTooLarge,
			Topic:  m.Topic,
			Detail: fmt.Sprintf("%d > %d bytes", len(env), limits.MaxMessageSize),
		}
	}
	return nil
}

// ValidateTopic checks that a publish topic is non-empty, dot-segmented with
// no empty segments, and wildcard-free. Wildcards belong in subscription
// patterns, never in publish topics.
func ValidateTopic(topic string) error {
	if topic == "" {
		return &InvalidError{Reason: ReasonEmptyTopic, Topic: topic}
	}
	if strings.Contains(topic, "*") {
		return &InvalidError{Reason: ReasonWildcardTopic, Topic: topic}
	}
	for _, seg := range strings.Split(topic, ".") {
		if seg == "" {
			return &InvalidError{Reason: ReasonMalformedTopic, Topic: topic, Detail: "empty segment"}
		}
	}
	return nil
}
