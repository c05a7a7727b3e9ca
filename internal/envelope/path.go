package envelope

import (
	"github.com/tidwall/gjson"
)

// Lookup resolves a dotted path against the message document.
// Returns the gjson result and whether the path exists. A missing path is
// distinguishable from a present-but-null value via the ok flag.
//
// Paths address the document rendering, so the payload lives under
// "payload" ("payload.value", "payload.items.0.sku") and envelope metadata
// is addressable directly ("topic", "source", "headers.region").
func (m *Message) Lookup(path string) (gjson.Result, bool) {
	doc, err := m.Document()
	if err != nil {
		return gjson.Result{}, false
	}
	res := gjson.GetBytes(doc, path)
	return res, res.Exists()
}

// LookupIn resolves a dotted path against a pre-rendered document.
// Callers that evaluate many paths against one message should render the
// document once and use this to avoid repeated marshaling.
func LookupIn(doc []byte, path string) (gjson.Result, bool) {
	res := gjson.GetBytes(doc, path)
	return res, res.Exists()
}
