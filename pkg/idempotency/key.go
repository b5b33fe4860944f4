package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Normalize recursively strips nil-valued object fields (nil array elements
// are kept). Object key ordering is applied later by canonicalJSON, and
// lowercasing of enumerated string values is the caller's responsibility
// for domain-specific enums.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	default:
		return t
	}
}

// canonicalJSON renders v to a stable JSON encoding: object keys sorted
// lexicographically, arrays preserve order, numbers rendered via Go's
// shortest-exact-decimal float formatting.
func canonicalJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := canonicalJSON(t[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil

	case []any:
		buf := []byte{'['}
		for i, item := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			b, err := canonicalJSON(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, b...)
		}
		buf = append(buf, ']')
		return buf, nil

	case float64:
		return []byte(strconv.FormatFloat(t, 'g', -1, 64)), nil

	default:
		return json.Marshal(t)
	}
}

// Key derives a stable idempotency key: SHA256(partner ‖ canonicalJSON(normalize(payload)) ‖ salt),
// hex-encoded. payload should already have PII redaction applied, since
// redaction must happen before the hash is computed (spec.md §4.E.5) so the
// key is stable across redacted and raw forms of the same logical payload.
func Key(partner string, payload any, salt string) (string, error) {
	canon, err := canonicalJSON(Normalize(payload))
	if err != nil {
		return "", fmt.Errorf("canonicalizing payload: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(partner))
	h.Write([]byte{0})
	h.Write(canon)
	if salt != "" {
		h.Write([]byte{0})
		h.Write([]byte(salt))
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
