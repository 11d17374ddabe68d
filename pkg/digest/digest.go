// Package digest provides RFC 8785-style JSON canonicalization and
// content-addressed BLAKE3 hashing for deterministic replay.
package digest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"lukechampine.com/blake3"
)

// ErrNonFinite is returned when a value contains a NaN or Infinity number.
var ErrNonFinite = fmt.Errorf("digest: non-finite number is not canonicalizable")

// Canonical returns the canonical JSON representation of v:
// map keys sorted lexicographically at every nesting level, no
// insignificant whitespace, no HTML escaping, finite numbers only.
func Canonical(v interface{}) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("digest: pre-marshal failed: %w", err)
	}

	var generic interface{}
	decoder := json.NewDecoder(bytes.NewReader(intermediate))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("digest: intermediate decode failed: %w", err)
	}

	return marshalRecursive(generic)
}

// CanonicalString returns the canonical form as a string.
func CanonicalString(v interface{}) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Hash returns the 64-char lowercase hex BLAKE3 digest of data.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}

// HashShort returns the first 16 hex chars of Hash(data).
func HashShort(data []byte) string {
	h := Hash(data)
	return h[:16]
}

// CanonicalHash returns Hash(Canonical(v)).
func CanonicalHash(v interface{}) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return Hash(b), nil
}

func marshalRecursive(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if t {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case json.Number:
		if err := checkFiniteNumber(t); err != nil {
			return nil, err
		}
		return []byte(t.String()), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, ErrNonFinite
		}
		if err := enc.Encode(t); err != nil {
			return nil, err
		}
		return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
	case string:
		if err := enc.Encode(t); err != nil {
			return nil, err
		}
		return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := marshalRecursive(elem)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalRecursive(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')

			vb, err := marshalRecursive(t[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
	}
}

func checkFiniteNumber(n json.Number) error {
	f, err := n.Float64()
	if err != nil {
		// Float64() errors for a magnitude beyond float64 (e.g. 1e400);
		// such a number is not treated as non-finite and is accepted
		// with its literal text kept.
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrNonFinite
	}
	return nil
}
