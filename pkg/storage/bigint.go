package storage

import (
	"bytes"
	"encoding/json"
	"strings"
)

// bigintPrefix marks integers too large for a float64 mantissa that were
// stringified so they survive a round trip through lossy JSON readers.
const bigintPrefix = "BIGINT::"

// maxSafeInteger is the largest integer a float64 represents exactly (2^53-1).
const maxSafeInteger = int64(1)<<53 - 1

// EncodeBigInts rewrites every integer in the JSON document whose magnitude
// exceeds 2^53-1 into a "BIGINT::<digits>" string.
func EncodeBigInts(raw []byte) ([]byte, error) {
	v, err := decodeTree(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(encodeTree(v))
}

// DecodeBigInts reverses [EncodeBigInts], turning sentinel strings back into
// JSON integers.
func DecodeBigInts(raw []byte) ([]byte, error) {
	v, err := decodeTree(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(decodeSentinels(v))
}

func decodeTree(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func encodeTree(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = encodeTree(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = encodeTree(e)
		}
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil && (n > maxSafeInteger || n < -maxSafeInteger) {
			return bigintPrefix + t.String()
		}
		return t
	default:
		return v
	}
}

func decodeSentinels(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = decodeSentinels(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = decodeSentinels(e)
		}
		return t
	case string:
		if digits, ok := strings.CutPrefix(t, bigintPrefix); ok {
			return json.Number(digits)
		}
		return t
	default:
		return v
	}
}
