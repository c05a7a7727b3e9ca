package envelope

import "github.com/google/uuid"

// UUIDv7Generator is the production IDGenerator.
//
// UUIDv7 embeds a timestamp in the most significant bits, making ids
// sortable by creation time. That keeps trace listings readable without a
// secondary sort key.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// NewID returns a new hyphenated UUIDv7 string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
