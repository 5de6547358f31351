// Package canonical produces the deterministic JSON encoding used wherever
// bytes are hashed or signed: request fingerprints, the audit hash chain and
// checkpoint signatures.
//
// Object keys are sorted recursively, arrays keep their order, numbers are
// written exactly as they were marshalled and no HTML escaping is applied.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marshal returns the canonical encoding of v.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	return Normalize(raw)
}

// Normalize re-encodes an arbitrary JSON document canonically.
func Normalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}

	// encoding/json sorts map keys, and json.Number keeps numeric literals intact.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("canonical: encode: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
