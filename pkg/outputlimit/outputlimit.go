// Package outputlimit accounts the exact byte size of a tool or skill
// result and truncates it, rather than silently letting a runaway
// handler return gigabytes back through the gate.
package outputlimit

import (
	"fmt"
	"sort"

	"github.com/requiem-run/requiem-core/pkg/digest"
)

const (
	// DefaultMaxBytes is the output cap absent REQUIEM_TOOL_OUTPUT_MAX_BYTES.
	DefaultMaxBytes = 1 << 20 // 1 MiB

	truncationNotice = "[... truncated ...]"
)

// Limiter enforces MaxBytes on a value's canonical size.
type Limiter struct {
	MaxBytes int
}

func New(maxBytes int) *Limiter {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Limiter{MaxBytes: maxBytes}
}

// Check reports the exact byte size of v and whether it exceeds MaxBytes.
func (l *Limiter) Check(v interface{}) (sizeBytes int, overLimit bool) {
	sizeBytes = SizeOf(v)
	return sizeBytes, sizeBytes > l.MaxBytes
}

// SizeOf computes the byte size of v per the accounting rules: UTF-8
// length for strings, raw length for byte buffers, recursive sum for
// arrays, canonical JSON length for maps, zero for nil, stringified
// length for numbers and booleans.
func SizeOf(v interface{}) int {
	switch t := v.(type) {
	case nil:
		return 0
	case string:
		return len(t)
	case []byte:
		return len(t)
	case []interface{}:
		total := 0
		for _, item := range t {
			total += SizeOf(item)
		}
		return total
	case map[string]interface{}:
		canon, err := digest.Canonical(t)
		if err != nil {
			return len(fmt.Sprintf("%v", t))
		}
		return len(canon)
	case bool, int, int32, int64, float32, float64:
		return len(fmt.Sprintf("%v", t))
	default:
		return len(fmt.Sprintf("%v", t))
	}
}

// Truncate reduces v to fit MaxBytes, returning the truncated value and
// whether truncation actually happened. Strings, byte buffers, arrays,
// and objects can always be shrunk; everything else (numbers, bools,
// and any type this package doesn't special-case) is returned
// unchanged with ok=false, so the caller can fail with
// TOOL_OUTPUT_TOO_LARGE instead of silently returning an oversized
// result.
func (l *Limiter) Truncate(v interface{}) (out interface{}, ok bool) {
	if _, over := l.Check(v); !over {
		return v, false
	}
	budget := l.MaxBytes

	switch t := v.(type) {
	case string:
		return truncateString(t, budget), true
	case []byte:
		if budget < 0 {
			budget = 0
		}
		if budget > len(t) {
			budget = len(t)
		}
		return t[:budget], true
	case []interface{}:
		return truncateArray(t, budget), true
	case map[string]interface{}:
		return truncateObject(t, budget), true
	default:
		return v, false
	}
}

// truncateString keeps the largest prefix whose length plus the notice
// fits within budget, via binary search over byte-index cut points.
func truncateString(s string, budget int) string {
	noticeLen := len(truncationNotice)
	if budget <= noticeLen {
		if budget <= 0 {
			return ""
		}
		return truncationNotice[:budget]
	}
	maxPrefix := budget - noticeLen

	lo, hi := 0, len(s)
	best := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if mid <= maxPrefix {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return s[:best] + truncationNotice
}

// truncateArray keeps elements until the next one would overflow budget,
// then appends a single notice element in place of the remainder.
func truncateArray(arr []interface{}, budget int) []interface{} {
	noticeLen := len(truncationNotice)
	out := make([]interface{}, 0, len(arr)+1)
	used := 0
	truncated := false
	for _, item := range arr {
		itemSize := SizeOf(item)
		if used+itemSize+noticeLen > budget {
			truncated = true
			break
		}
		out = append(out, item)
		used += itemSize
	}
	if truncated {
		out = append(out, truncationNotice)
	}
	return out
}

// truncateObject adds keys in sorted order until the next key would
// overflow budget, then drops the remainder under a single marker key.
func truncateObject(m map[string]interface{}, budget int) map[string]interface{} {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]interface{}, len(m))
	used := 0
	truncated := false
	for _, k := range keys {
		v := m[k]
		entrySize := len(k) + SizeOf(v)
		if used+entrySize > budget {
			truncated = true
			break
		}
		out[k] = v
		used += entrySize
	}
	if truncated {
		out["_truncated"] = truncationNotice
	}
	return out
}
