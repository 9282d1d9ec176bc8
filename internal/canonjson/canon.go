// Package canonjson produces the canonical JSON encoding used for plan
// hashing and signed-object bytes: object keys sorted lexicographically,
// ASCII-safe escaping, no insignificant whitespace, no NaN/Infinity.
//
// No repo in the example pack carries a canonical-JSON library (the closest
// candidates, tidwall/gjson and tidwall/sjson, are read/patch tools, not
// canonicalizers), so this is one of the few deliberately stdlib-only
// pieces: encoding/json already sorts map keys and rejects NaN/Inf by
// default, and Canonicalize escapes every non-ASCII rune on top of that.
package canonjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf16"
	"unicode/utf8"
)

// Canonicalize re-marshals v (or arbitrary JSON bytes) into the canonical
// form: keys sorted, the HTML-sensitive characters <, > and & and every
// non-ASCII rune written as \uXXXX escapes, no trailing newline.
func Canonicalize(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, fmt.Errorf("canonjson: normalize: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(normalized); err != nil {
		return nil, fmt.Errorf("canonjson: encode: %w", err)
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	// Non-ASCII runes only occur inside JSON strings here; runes above
	// U+FFFF become a UTF-16 surrogate pair.
	var ascii bytes.Buffer
	for _, r := range string(out) {
		switch {
		case r < utf8.RuneSelf:
			ascii.WriteByte(byte(r))
		case r > 0xFFFF:
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&ascii, `\u%04x\u%04x`, r1, r2)
		default:
			fmt.Fprintf(&ascii, `\u%04x`, r)
		}
	}
	return ascii.Bytes(), nil
}

// CanonicalizeBytes parses raw JSON bytes and re-emits them canonically.
func CanonicalizeBytes(raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("canonjson: unmarshal: %w", err)
	}
	return Canonicalize(v)
}

// normalize round-trips v through JSON so maps come back as map[string]any
// (Go's encoding/json already sorts map[string]any keys on Marshal), and
// rejects values that would produce NaN/Infinity.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if err := rejectNonFinite(out); err != nil {
		return nil, err
	}
	return out, nil
}

func rejectNonFinite(v any) error {
	switch t := v.(type) {
	case float64:
		return nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := rejectNonFinite(t[k]); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range t {
			if err := rejectNonFinite(e); err != nil {
				return err
			}
		}
	}
	return nil
}
