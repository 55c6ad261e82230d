// Package symbol implements the symbol identifier grammar and the
// content-hash function shared by every other package in forge.
package symbol

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

const hashPrefix = "hash_"
const hashHexLen = 20

// CanonicalJSON serializes v with object keys sorted by codepoint and no
// insignificant whitespace, so that two structurally equal values with
// different key orderings hash identically.
func CanonicalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var obj interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}

	return canonicalMarshal(obj)
}

func canonicalMarshal(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		return marshalSortedMap(val)
	case []interface{}:
		return marshalArray(val)
	default:
		return json.Marshal(v)
	}
}

func marshalSortedMap(m map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := canonicalMarshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalArray(arr []interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		valBytes, err := canonicalMarshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// HashHex returns the raw 20 hex character digest used to build content
// hashes and content-addressed ids: sha256 over the canonical JSON form
// of v, truncated to hashHexLen hex characters.
func HashHex(v interface{}) (string, error) {
	canon, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])[:hashHexLen], nil
}

// ContentHash computes the declared post-effect hash of a symbol's
// content: "hash_" followed by HashHex(v). It is applied to both raw
// strings (document/python bodies) and arbitrary JSON values (JSON
// values), per spec.
func ContentHash(v interface{}) (string, error) {
	h, err := HashHex(v)
	if err != nil {
		return "", err
	}
	return hashPrefix + h, nil
}

// ContentHashString is a convenience wrapper for hashing a raw string
// without an error return.
func ContentHashString(s string) string {
	h, err := ContentHash(s)
	if err != nil {
		// CanonicalJSON of a string never errors; this path is unreachable
		// in practice, but ContentHash's signature must stay error-returning
		// for the JSON-value case.
		return hashPrefix + "0000000000000000000000000000"[:hashHexLen]
	}
	return h
}

// ID builds a content-addressed identifier of the form "<prefix><hex>"
// by hashing v's canonical JSON form. Used for op ids, change-set ids,
// and deterministic promotion ids.
func ID(prefix string, v interface{}) (string, error) {
	h, err := HashHex(v)
	if err != nil {
		return "", err
	}
	return prefix + h, nil
}
