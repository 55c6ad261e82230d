package adapter

import (
	"bytes"
	"encoding/json"
	"sort"

	"forge/internal/ops"
	"forge/internal/symbol"
)

// JSON treats each top-level key of a JSON object as its own symbol.
type JSON struct{}

func (JSON) Kind() Kind { return KindJSON }

// SymbolHashes attempts to parse text as a JSON object; on failure it
// returns an empty map rather than an error, matching the adapter's
// total, best-effort contract.
func (JSON) SymbolHashes(path, text string) (map[string]string, error) {
	obj, ok := parseJSONObject([]byte(text))
	if !ok {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		hash, err := symbol.ContentHash(json.RawMessage(v))
		if err != nil {
			return nil, err
		}
		out[symbol.JSONKeyID(path, k)] = hash
	}
	return out, nil
}

// Diff returns per-top-level-key edits, skipping keys whose canonical
// JSON values are equal, or ok=false if either side is not a JSON object.
func (JSON) Diff(path string, before, after []byte) ([]Edit, bool) {
	beforeObj, ok1 := parseJSONObject(before)
	afterObj, ok2 := parseJSONObject(after)
	if !ok1 || !ok2 {
		return nil, false
	}

	keys := make(map[string]struct{})
	for k := range beforeObj {
		keys[k] = struct{}{}
	}
	for k := range afterObj {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var edits []Edit
	for _, k := range sorted {
		bv, bOK := beforeObj[k]
		av, aOK := afterObj[k]
		if bOK && aOK && canonicalEqual(bv, av) {
			continue
		}
		edits = append(edits, Edit{
			Key:          k,
			BeforeExists: bOK,
			AfterExists:  aOK,
			BeforeValue:  bv,
			AfterValue:   av,
		})
	}
	return edits, true
}

// Apply re-serializes the parsed object with sorted keys, two-space
// indent, and a trailing newline. Malformed effects leave text unchanged.
func (JSON) Apply(effect ops.Effect, current string) string {
	obj, ok := parseJSONObject([]byte(current))
	if !ok {
		if effect.Kind == ops.EffectJSONSetKey {
			obj = map[string]json.RawMessage{}
		} else {
			return current
		}
	}

	switch effect.Kind {
	case ops.EffectJSONSetKey:
		if effect.Key == "" || len(effect.Value) == 0 {
			return current
		}
		obj[effect.Key] = effect.Value
	case ops.EffectJSONDeleteKey:
		if effect.Key == "" {
			return current
		}
		delete(obj, effect.Key)
	default:
		return current
	}

	out, err := marshalSortedIndent(obj)
	if err != nil {
		return current
	}
	return string(out) + "\n"
}

func parseJSONObject(b []byte) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	if obj == nil {
		return nil, false
	}
	return obj, true
}

func canonicalEqual(a, b json.RawMessage) bool {
	ca, err1 := symbol.CanonicalJSON(rawAny(a))
	cb, err2 := symbol.CanonicalJSON(rawAny(b))
	if err1 != nil || err2 != nil {
		return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
	}
	return bytes.Equal(ca, cb)
}

func rawAny(m json.RawMessage) interface{} {
	var v interface{}
	_ = json.Unmarshal(m, &v)
	return v
}

func marshalSortedIndent(obj map[string]json.RawMessage) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
		buf.WriteString("  ")
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteString(": ")
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, obj[k], "  ", "  "); err != nil {
			return nil, err
		}
		buf.Write(pretty.Bytes())
	}
	if len(keys) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
