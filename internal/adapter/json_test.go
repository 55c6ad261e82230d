package adapter

import (
	"encoding/json"
	"testing"

	"forge/internal/ops"
)

func TestJSON_SymbolHashes_TopLevelKeys(t *testing.T) {
	j := JSON{}
	hashes, err := j.SymbolHashes("cfg.json", `{"a": 1, "b": {"c": 2}}`)
	if err != nil {
		t.Fatalf("SymbolHashes failed: %v", err)
	}
	if len(hashes) != 2 {
		t.Fatalf("expected 2 top-level symbols, got %d: %v", len(hashes), hashes)
	}
	for _, key := range []string{"sym://json/cfg.json#key:a", "sym://json/cfg.json#key:b"} {
		if _, ok := hashes[key]; !ok {
			t.Errorf("missing expected key %s in %v", key, hashes)
		}
	}
}

func TestJSON_SymbolHashes_NonObjectYieldsEmpty(t *testing.T) {
	j := JSON{}
	hashes, err := j.SymbolHashes("cfg.json", `[1,2,3]`)
	if err != nil {
		t.Fatalf("SymbolHashes failed: %v", err)
	}
	if len(hashes) != 0 {
		t.Errorf("expected empty map for non-object JSON, got %v", hashes)
	}
}

func TestJSON_Diff_SkipsEqualValues(t *testing.T) {
	j := JSON{}
	before := []byte(`{"a": 1, "b": 2}`)
	after := []byte(`{"a": 1, "b": 3}`)
	edits, ok := j.Diff("cfg.json", before, after)
	if !ok {
		t.Fatal("expected structured diff for two JSON objects")
	}
	if len(edits) != 1 || edits[0].Key != "b" {
		t.Fatalf("expected single edit on key b, got %v", edits)
	}
}

func TestJSON_Diff_KeyOrderInsensitive(t *testing.T) {
	j := JSON{}
	before := []byte(`{"a": {"x": 1, "y": 2}}`)
	after := []byte(`{"a": {"y": 2, "x": 1}}`)
	edits, ok := j.Diff("cfg.json", before, after)
	if !ok {
		t.Fatal("expected structured diff")
	}
	if len(edits) != 0 {
		t.Errorf("expected no edits for key-order-only change, got %v", edits)
	}
}

func TestJSON_Diff_AddedAndRemovedKeys(t *testing.T) {
	j := JSON{}
	before := []byte(`{"a": 1}`)
	after := []byte(`{"b": 2}`)
	edits, ok := j.Diff("cfg.json", before, after)
	if !ok {
		t.Fatal("expected structured diff")
	}
	if len(edits) != 2 {
		t.Fatalf("expected 2 edits (add+remove), got %v", edits)
	}
}

func TestJSON_Diff_NonObjectReturnsNotOK(t *testing.T) {
	j := JSON{}
	_, ok := j.Diff("cfg.json", []byte(`[1]`), []byte(`{"a":1}`))
	if ok {
		t.Error("expected ok=false when either side is not a JSON object")
	}
}

func TestJSON_Apply_SetKey(t *testing.T) {
	j := JSON{}
	out := j.Apply(ops.Effect{
		Kind:  ops.EffectJSONSetKey,
		Key:   "a",
		Value: json.RawMessage(`42`),
	}, `{"a": 1, "b": 2}`)

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("apply produced invalid JSON: %v\n%s", err, out)
	}
	if parsed["a"] != float64(42) {
		t.Errorf("expected a=42, got %v", parsed["a"])
	}
	if out[len(out)-1] != '\n' {
		t.Error("expected trailing newline")
	}
}

func TestJSON_Apply_DeleteKey(t *testing.T) {
	j := JSON{}
	out := j.Apply(ops.Effect{Kind: ops.EffectJSONDeleteKey, Key: "b"}, `{"a": 1, "b": 2}`)
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("apply produced invalid JSON: %v", err)
	}
	if _, ok := parsed["b"]; ok {
		t.Errorf("expected key b removed, got %v", parsed)
	}
}

func TestJSON_Apply_MalformedEffectIsNoop(t *testing.T) {
	j := JSON{}
	current := `{"a": 1}`
	out := j.Apply(ops.Effect{Kind: ops.EffectUpsertFile}, current)
	if out != current {
		t.Errorf("expected unchanged input for unsupported effect kind, got %q", out)
	}
}
