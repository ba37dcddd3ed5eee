// Package codec implements the deterministic object serialization every
// other poi-trace hash depends on: sorted map keys, shortest round-tripping
// number formatting, minimal JSON string escaping, and no insignificant
// whitespace. It is the Go-native replacement for the teacher's
// pkg/commitment.CanonicalizeJSON, generalized to reject the inputs that
// package silently let through (NaN, ±Inf, raw byte slices).
package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/poi-trace/core/pkg/poierrors"
)

// Canonical serializes v into the canonical byte form: object keys sorted
// by Unicode code point, numbers in shortest round-tripping decimal form,
// no whitespace, UTF-8 strings with minimal escaping. v must already be
// JSON-compatible (maps, slices, strings, float64/int, bool, nil) or a
// value that encoding/json can turn into one of those.
func Canonical(v interface{}) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	var buf strings.Builder
	if err := encodeValue(&buf, normalized); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// normalize round-trips v through encoding/json to get a canonical Go
// representation (map[string]interface{}, []interface{}, float64, string,
// bool, nil), then rejects the shapes canonicalization cannot represent.
func normalize(v interface{}) (interface{}, error) {
	if b, ok := v.([]byte); ok {
		_ = b
		return nil, poierrors.Encoding("raw byte arrays are rejected; hex-encode upstream")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, poierrors.Encoding(fmt.Sprintf("value is not JSON-compatible: %v", err))
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, poierrors.Encoding(fmt.Sprintf("re-decode failed: %v", err))
	}
	return out, nil
}

func encodeValue(buf *strings.Builder, v interface{}) error {
	switch vv := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if vv {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		return encodeNumber(buf, vv)
	case string:
		encodeString(buf, vv)
		return nil
	case map[string]interface{}:
		return encodeObject(buf, vv)
	case []interface{}:
		return encodeArray(buf, vv)
	default:
		return poierrors.Encoding(fmt.Sprintf("unsupported value type %T", v))
	}
}

func encodeObject(buf *strings.Builder, m map[string]interface{}) error {
	keys := make([]string, 0, len(m))
	seen := make(map[string]struct{}, len(m))
	for k := range m {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		if err := encodeValue(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeArray(buf *strings.Builder, arr []interface{}) error {
	buf.WriteByte('[')
	for i, e := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(buf, e); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// encodeNumber re-parses the decimal text as float64 to reject NaN/±Inf
// (which cannot appear in valid JSON text, but guards callers that built
// the json.Number from a Go float directly) and re-emits the shortest
// round-tripping representation. Integral values are emitted without a
// decimal point or exponent when they fit in an int64, matching how most
// canonical-JSON implementations in this ecosystem treat integers.
func encodeNumber(buf *strings.Builder, n json.Number) error {
	if i, err := n.Int64(); err == nil {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return poierrors.Encoding(fmt.Sprintf("invalid number %q", string(n)))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return poierrors.Encoding("NaN and Infinity are not representable in canonical JSON")
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// encodeString escapes only what JSON requires: quote, backslash, and
// control characters below 0x20, leaving the rest of UTF-8 untouched.
func encodeString(buf *strings.Builder, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// Decode parses canonical (or any valid) JSON bytes back into a generic
// Go value, used by the canonical round-trip law:
// Canonical(Decode(Canonical(x))) == Canonical(x).
func Decode(data []byte) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, poierrors.Encoding(fmt.Sprintf("invalid JSON: %v", err))
	}
	return out, nil
}

// SHA256 returns the raw 32-byte SHA-256 digest of b.
func SHA256(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// SHA256Hex returns the lowercase hex SHA-256 digest of s.
func SHA256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// SHA256HexBytes returns the lowercase hex SHA-256 digest of b.
func SHA256HexBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// CanonicalHashHex canonicalizes v and returns its SHA-256 hex digest,
// mirroring the teacher's commitment.HashCanonical.
func CanonicalHashHex(v interface{}) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return SHA256HexBytes(b), nil
}
