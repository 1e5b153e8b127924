// Package canonical produces the deterministic byte serialization used as the
// sole hash and signature input across the evidence pipeline. Object keys are
// sorted lexicographically at every nesting level, array order is preserved,
// and the same logical value always yields the same bytes regardless of how
// it was constructed.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalizationError reports input that has no canonical form: cycles,
// non-finite numbers, or values outside the JSON data model.
type CanonicalizationError struct {
	Cause error
}

func (e *CanonicalizationError) Error() string {
	return fmt.Sprintf("canonicalize: %v", e.Cause)
}

func (e *CanonicalizationError) Unwrap() error {
	return e.Cause
}

// Encode returns the canonical byte serialization of v. Any value accepted by
// encoding/json is accepted here; structs are encoded according to their JSON
// tags and then re-keyed into sorted form.
func Encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &CanonicalizationError{Cause: err}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, &CanonicalizationError{Cause: err}
	}

	var buf bytes.Buffer
	if err := write(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash canonicalizes v and returns the sha256 digest of the canonical bytes,
// formatted as "sha256:<hex>".
func Hash(v any) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the pipeline's digest format for raw bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func write(buf *bytes.Buffer, v any) error {
	switch value := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if value {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(value.String())
	case string:
		return writeString(buf, value)
	case []any:
		buf.WriteByte('[')
		for i, item := range value {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := write(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := write(buf, value[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return &CanonicalizationError{Cause: fmt.Errorf("unsupported type %T", v)}
	}
	return nil
}

// writeString emits a JSON string without HTML escaping so the canonical
// form depends only on the string's value, not encoder configuration.
func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return &CanonicalizationError{Cause: err}
	}
	// Encode appends a trailing newline; strip it.
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
