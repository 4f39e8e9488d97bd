package dataset

import (
	"bytes"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// ErrNotArray is returned when the file does not hold a
// top-level JSON array.
var ErrNotArray = errors.New("dataset is not a JSON array")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode parses content as a JSON array and returns its
// elements in order.
func Decode(content []byte) ([]json.RawMessage, error) {
	const errCtx = "decoding dataset"

	trimmed := bytes.TrimSpace(
		bytes.TrimPrefix(content, utf8BOM),
	)

	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%s: %w", errCtx, ErrNotArray)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return items, nil
}

// Encode writes items as a JSON array indented with two
// spaces. A trailing newline is added when requested.
func Encode(
	items []json.RawMessage,
	trailingNewline bool,
) ([]byte, error) {
	const errCtx = "encoding dataset"

	var compact bytes.Buffer

	compact.WriteByte('[')

	for i, item := range items {
		if i > 0 {
			compact.WriteByte(',')
		}

		// go-json Compact rewrites whatever dst already
		// holds, so each element gets an empty buffer.
		var elem bytes.Buffer

		if err := json.Compact(&elem, item); err != nil {
			return nil, fmt.Errorf(
				"%s: element %d: %w", errCtx, i, err,
			)
		}

		compact.Write(elem.Bytes())
	}

	compact.WriteByte(']')

	var out bytes.Buffer

	if err := json.Indent(
		&out, compact.Bytes(), "", "  ",
	); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if trailingNewline {
		out.WriteByte('\n')
	}

	return out.Bytes(), nil
}

// Append adds entry as the last element of the array in
// content and returns the rewritten file with the new
// element count. A trailing newline in content is kept.
func Append(content []byte, entry any) ([]byte, int, error) {
	const errCtx = "appending to dataset"

	items, err := Decode(content)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", errCtx, err)
	}

	raw, err := json.MarshalNoEscape(entry)
	if err != nil {
		return nil, 0, fmt.Errorf(
			"%s: marshal entry: %w", errCtx, err,
		)
	}

	items = append(items, raw)

	out, err := Encode(
		items, bytes.HasSuffix(content, []byte("\n")),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", errCtx, err)
	}

	return out, len(items), nil
}
