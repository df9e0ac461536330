package kvstore

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Type tags order nil < bool < number < string, matching the cross-type
// ordering of encoded keys.
const (
	tagNil    = 0x00
	tagBool   = 0x01
	tagNumber = 0x02
	tagString = 0x03
)

// canonicalScalar normalizes a key or filter value: every numeric kind
// becomes float64, []byte becomes string. Returns an error for values that
// cannot serve as keys.
func canonicalScalar(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case bool, string, float64:
		return v, nil
	case []byte:
		return string(v), nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return nil, fmt.Errorf("kvstore: %T cannot be used as a key", v)
	}
}

// encodeKey produces an order-preserving byte encoding of a scalar.
func encodeKey(v any) ([]byte, error) {
	c, err := canonicalScalar(v)
	if err != nil {
		return nil, err
	}
	switch c := c.(type) {
	case nil:
		return []byte{tagNil}, nil
	case bool:
		if c {
			return []byte{tagBool, 1}, nil
		}
		return []byte{tagBool, 0}, nil
	case float64:
		bits := math.Float64bits(c)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		buf := make([]byte, 9)
		buf[0] = tagNumber
		binary.BigEndian.PutUint64(buf[1:], bits)
		return buf, nil
	case string:
		buf := make([]byte, 0, 1+len(c))
		buf = append(buf, tagString)
		return append(buf, c...), nil
	default:
		panic("unreachable")
	}
}

// indexValuePrefix frames an encoded value for use in an index bucket key.
// The length prefix keeps entries of one value contiguous and unambiguous,
// whatever bytes the value encoding contains.
func indexValuePrefix(encVal []byte) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen32+len(encVal))
	buf = binary.AppendUvarint(buf, uint64(len(encVal)))
	return append(buf, encVal...)
}

// indexEntryKey is indexValuePrefix(value) followed by the encoded primary
// key, making the entry unique per (value, id) pair.
func indexEntryKey(encVal, encID []byte) []byte {
	prefix := indexValuePrefix(encVal)
	return append(prefix, encID...)
}

// scalarEqual compares two values after canonicalization, so an int8
// decoded from msgpack matches the int the caller filtered by.
func scalarEqual(a, b any) bool {
	ca, err := canonicalScalar(a)
	if err != nil {
		return false
	}
	cb, err := canonicalScalar(b)
	if err != nil {
		return false
	}
	return ca == cb
}

// canonicalizeValue rewrites decoded msgpack values to the forms callers
// see: numbers as float64, map keys as string maps, recursively.
func canonicalizeValue(v any) any {
	switch v := v.(type) {
	case int8, int16, int32, int64, int, uint8, uint16, uint32, uint64, uint, float32:
		c, _ := canonicalScalar(v)
		return c
	case map[string]any:
		for k, el := range v {
			v[k] = canonicalizeValue(el)
		}
		return v
	case []any:
		for i, el := range v {
			v[i] = canonicalizeValue(el)
		}
		return v
	default:
		return v
	}
}
