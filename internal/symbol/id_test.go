package symbol

import "testing"

func TestDocumentID(t *testing.T) {
	id := DocumentID(AdapterText, "a.txt")
	if id != "sym://text/a.txt#document" {
		t.Errorf("unexpected id: %s", id)
	}
}

func TestJSONKeyID_EncodesKey(t *testing.T) {
	id := JSONKeyID("config.json", "database url")
	parsed, err := Parse(id)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	kind, name, err := parsed.FragmentKind()
	if err != nil {
		t.Fatalf("FragmentKind failed: %v", err)
	}
	if kind != "key" || name != "database url" {
		t.Errorf("expected key/\"database url\", got %s/%s", kind, name)
	}
}

func TestPythonSymbolID_RoundTrip(t *testing.T) {
	id := PythonSymbolID("pkg/mod.py", FragmentDef, "calc")
	parsed, err := Parse(id)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Adapter != AdapterPython || parsed.Path != "pkg/mod.py" {
		t.Errorf("unexpected parse result: %+v", parsed)
	}
	kind, name, err := parsed.FragmentKind()
	if err != nil {
		t.Fatalf("FragmentKind failed: %v", err)
	}
	if kind != FragmentDef || name != "calc" {
		t.Errorf("expected def/calc, got %s/%s", kind, name)
	}
}

func TestParse_MalformedInputs(t *testing.T) {
	cases := []string{
		"",
		"not-a-symbol",
		"sym://python",
		"sym://python/mod.py",
		"sym:///mod.py#document",
	}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("expected error parsing %q", c)
		}
	}
}

func TestNormalizePath_BackslashesToForward(t *testing.T) {
	id := DocumentID(AdapterText, `pkg\sub\a.txt`)
	if id != "sym://text/pkg/sub/a.txt#document" {
		t.Errorf("unexpected normalized id: %s", id)
	}
}

func TestFragmentKind_Document(t *testing.T) {
	parsed, err := Parse("sym://text/a.txt#document")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	kind, name, err := parsed.FragmentKind()
	if err != nil {
		t.Fatalf("FragmentKind failed: %v", err)
	}
	if kind != FragmentDocument || name != "" {
		t.Errorf("expected document/\"\", got %s/%s", kind, name)
	}
}
