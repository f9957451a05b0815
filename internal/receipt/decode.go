package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when a request carries no JSON document,
	// a null document or an empty object.
	ErrEmptyInput = errors.New("no JSON data provided")
	// ErrInvalidJSON is returned when the document is not a JSON object.
	ErrInvalidJSON = errors.New("invalid JSON")
)

// Decode reads one receipt document. It accepts either a typed record
// ({"vendor": ..., "total_amount": ...}) or an item list ({"items": [...]});
// the presence of an "items" key selects the item mapping. Every transport
// goes through Decode so the mapping cannot drift between them.
func Decode(data []byte) (Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Record{}, ErrEmptyInput
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Record{}, fmt.Errorf("%w: %s", ErrInvalidJSON, err)
	}
	if len(fields) == 0 {
		return Record{}, ErrEmptyInput
	}

	if raw, ok := fields["items"]; ok {
		var items []Item
		if err := json.Unmarshal(raw, &items); err != nil {
			return Record{}, fmt.Errorf("%w: items: %s", ErrInvalidJSON, err)
		}
		return FromItems(items), nil
	}
	return fromFields(fields), nil
}

// DecodeBatch reads a JSON array whose elements are each accepted by Decode.
func DecodeBatch(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyInput
	}
	var docs []json.RawMessage
	if err := json.Unmarshal(trimmed, &docs); err != nil {
		return nil, fmt.Errorf("%w: expected an array of receipts: %s", ErrInvalidJSON, err)
	}
	if len(docs) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([]Record, len(docs))
	for i, doc := range docs {
		rec, err := Decode(doc)
		if err != nil {
			return nil, fmt.Errorf("receipt %d: %w", i, err)
		}
		out[i] = rec
	}
	return out, nil
}
