package ops

import "testing"

func validOp() Operation {
	return Operation{
		State:  "main",
		Target: Target{SymbolID: "sym://text/a.txt#document", PathHint: "a.txt"},
		Writes: []string{"sym://text/a.txt#document"},
		Effect: Effect{Kind: EffectUpsertFile, Path: "a.txt", Content: "hi\n"},
	}
}

func TestDeriveID_Deterministic(t *testing.T) {
	op := validOp()
	id1, err := op.DeriveID()
	if err != nil {
		t.Fatalf("DeriveID failed: %v", err)
	}
	id2, err := op.DeriveID()
	if err != nil {
		t.Fatalf("DeriveID failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("DeriveID not deterministic: %s != %s", id1, id2)
	}
	if id1[:3] != "op_" {
		t.Errorf("expected op_ prefix, got %s", id1)
	}
}

func TestDeriveID_IgnoresIDAndAcceptanceFields(t *testing.T) {
	op := validOp()
	op.ID = "op_should_be_ignored"
	op.AcceptedAt = 12345
	op.CanonicalOrder = 7

	base := validOp()

	id1, _ := op.DeriveID()
	id2, _ := base.DeriveID()
	if id1 != id2 {
		t.Errorf("id/accepted_at/canonical_order affected DeriveID: %s != %s", id1, id2)
	}
}

func TestDeriveID_ParentOrderingInsensitive(t *testing.T) {
	a := validOp()
	a.Parents = []string{"op_a", "op_b"}
	b := validOp()
	b.Parents = []string{"op_b", "op_a"}

	idA, _ := a.DeriveID()
	idB, _ := b.DeriveID()
	if idA != idB {
		t.Errorf("parent ordering affected id: %s != %s", idA, idB)
	}
}

func TestValidate_RequiresWrites(t *testing.T) {
	op := validOp()
	op.Writes = nil
	if err := op.Validate(); err == nil {
		t.Error("expected error for empty writes")
	}
}

func TestValidate_RequiresState(t *testing.T) {
	op := validOp()
	op.State = ""
	if err := op.Validate(); err == nil {
		t.Error("expected error for missing state")
	}
}

func TestValidate_RejectsMalformedSymbolID(t *testing.T) {
	op := validOp()
	op.Target.SymbolID = "not-a-symbol-id"
	if err := op.Validate(); err == nil {
		t.Error("expected error for malformed target symbol id")
	}
}

func TestValidate_RejectsUnknownPrecondition(t *testing.T) {
	op := validOp()
	op.Preconditions = []Precondition{{Kind: "bogus"}}
	if err := op.Validate(); err == nil {
		t.Error("expected error for unknown precondition kind")
	}
}

func TestValidate_AcceptsWellFormedOp(t *testing.T) {
	op := validOp()
	if err := op.Validate(); err != nil {
		t.Errorf("expected valid op, got error: %v", err)
	}
}

func TestEffect_DeclaredHash_Absent(t *testing.T) {
	e := Effect{Kind: EffectUpsertFile}
	hash, deleted, present := e.DeclaredHash("sym://text/a.txt#document")
	if present || deleted || hash != "" {
		t.Errorf("expected absent, got hash=%q deleted=%v present=%v", hash, deleted, present)
	}
}

func TestEffect_DeclaredHash_NullMeansDeleted(t *testing.T) {
	e := Effect{Kind: EffectDeleteFile, SymbolHashes: map[string]*string{"sym://text/a.txt#document": nil}}
	hash, deleted, present := e.DeclaredHash("sym://text/a.txt#document")
	if !present || !deleted || hash != "" {
		t.Errorf("expected present+deleted, got hash=%q deleted=%v present=%v", hash, deleted, present)
	}
}

func TestEffect_DeclaredHash_StringValue(t *testing.T) {
	v := "hash_abcdef0123456789abcd"
	e := Effect{Kind: EffectUpsertFile, SymbolHashes: map[string]*string{"sym://text/a.txt#document": &v}}
	hash, deleted, present := e.DeclaredHash("sym://text/a.txt#document")
	if !present || deleted || hash != v {
		t.Errorf("expected present, non-deleted, hash=%s; got hash=%q deleted=%v present=%v", v, hash, deleted, present)
	}
}
