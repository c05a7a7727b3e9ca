// Package envelope defines the message envelope carried by the bus.
//
// A Message pairs a hierarchical dot-separated topic with an opaque,
// serializable payload plus delivery metadata (id, timestamp, retain flag,
// request/reply correlation fields, headers).
//
// The envelope is validated explicitly before delivery:
//   - the topic must be well formed and wildcard-free
//   - the payload must survive JSON serialization
//   - payload and total envelope size are each bounded
//
// Path access (for route predicates, transforms and log templates) goes
// through a JSON rendering of the envelope called the document. The payload
// appears under the "payload" key, so a predicate path like "payload.value"
// reads into the message data. Document lookups use tidwall/gjson, which
// avoids re-decoding the payload for every predicate leaf.
package envelope
