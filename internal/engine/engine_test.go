package engine

import (
	"testing"

	"forge/internal/adapter"
	"forge/internal/ops"
	"forge/internal/symbol"
)

func newTestEngine() *Engine {
	tick := int64(1000)
	clock := func() int64 { tick++; return tick }
	return New(adapter.NewPython(nil), WithClock(clock))
}

func upsertOp(state, path, content string) ops.Operation {
	return ops.Operation{
		State:  state,
		Target: ops.Target{SymbolID: symbol.DocumentID(symbol.AdapterText, path), PathHint: path},
		Writes: []string{symbol.DocumentID(symbol.AdapterText, path)},
		Effect: ops.Effect{Kind: ops.EffectUpsertFile, Path: path, Content: content},
	}
}

// S1 - Upsert and read back.
func TestS1_UpsertAndReadBack(t *testing.T) {
	e := newTestEngine()
	record, err := e.Submit(ops.ChangeSet{State: "main", Ops: []ops.Operation{upsertOp("main", "a.txt", "hi\n")}})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if record.Status != ops.StatusAccepted {
		t.Fatalf("expected accepted, got %s (%+v)", record.Status, record)
	}

	tree, err := e.Materialize("main")
	if err != nil {
		t.Fatalf("materialize failed: %v", err)
	}
	if tree["a.txt"] != "hi\n" {
		t.Errorf("expected a.txt = hi\\n, got %q", tree["a.txt"])
	}

	_, treeSnap, _, err := e.GetState("main")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if treeSnap["a.txt"] != "hi\n" {
		t.Errorf("expected snapshot tree to match, got %q", treeSnap["a.txt"])
	}
}

// Invariant 1: idempotent op submission.
func TestInvariant_DuplicateOpSubmissionIsIdempotent(t *testing.T) {
	e := newTestEngine()
	op := upsertOp("main", "a.txt", "hi\n")
	r1, err := e.Submit(ops.ChangeSet{State: "main", Ops: []ops.Operation{op}})
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	// Resubmit the identical op in a fresh change set (new change_set id
	// since ops differ from cs metadata) to exercise op-level duplication.
	r2, err := e.Submit(ops.ChangeSet{State: "main", Ops: []ops.Operation{op}, Metadata: map[string]interface{}{"retry": true}})
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}
	if r1.Results[0].OpID != r2.Results[0].OpID {
		t.Fatalf("expected identical op id across submissions, got %s vs %s", r1.Results[0].OpID, r2.Results[0].OpID)
	}
	if !r2.Results[0].Duplicate {
		t.Error("expected second submission to be flagged duplicate")
	}
	tree, _ := e.Materialize("main")
	if tree["a.txt"] != "hi\n" {
		t.Errorf("expected no double-application, got %q", tree["a.txt"])
	}
}

// Invariant 2 / S5: atomic change set — first failure halts commit.
func TestInvariant_AtomicChangeSet(t *testing.T) {
	e := newTestEngine()
	good := upsertOp("main", "a.txt", "hi\n")
	bad := ops.Operation{
		State:         "main",
		Target:        ops.Target{SymbolID: symbol.DocumentID(symbol.AdapterText, "b.txt")},
		Writes:        []string{symbol.DocumentID(symbol.AdapterText, "b.txt")},
		Preconditions: []ops.Precondition{{Kind: ops.PreconditionSymbolExists}},
		Effect:        ops.Effect{Kind: ops.EffectUpsertFile, Path: "b.txt", Content: "nope\n"},
	}

	record, err := e.Submit(ops.ChangeSet{State: "main", Ops: []ops.Operation{good, bad}})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if record.Status != ops.StatusConflicted {
		t.Fatalf("expected conflicted, got %s", record.Status)
	}
	if len(record.Accepted) != 0 {
		t.Errorf("expected no accepted ops on conflicted change set, got %v", record.Accepted)
	}
	if record.Results[0].Status != ops.OpAccepted {
		t.Errorf("expected op[0] result accepted, got %s", record.Results[0].Status)
	}
	if record.Results[1].Status != ops.OpConflicted {
		t.Errorf("expected op[1] result conflicted, got %s", record.Results[1].Status)
	}

	tree, _ := e.Materialize("main")
	if _, exists := tree["a.txt"]; exists {
		t.Error("expected no log mutation from a rejected change set, but a.txt was written")
	}
}

// Invariant 3 / S7: deterministic materialization across a snapshot rebuild.
func TestInvariant_DeterministicMaterializationAcrossRebuild(t *testing.T) {
	e := newTestEngine()
	if _, err := e.CreateState("s1", "main"); err != nil {
		t.Fatalf("create state failed: %v", err)
	}
	for i, content := range []string{"one\n", "two\n", "three\n"} {
		path := "f" + string(rune('a'+i)) + ".txt"
		if _, err := e.Submit(ops.ChangeSet{State: "s1", Ops: []ops.Operation{upsertOp("s1", path, content)}}); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}

	before, err := e.Materialize("s1")
	if err != nil {
		t.Fatalf("materialize failed: %v", err)
	}

	rebuilt := LoadSnapshot(e.Snapshot(), adapter.NewPython(nil))
	after, err := rebuilt.Materialize("s1")
	if err != nil {
		t.Fatalf("materialize after rebuild failed: %v", err)
	}

	if len(before) != len(after) {
		t.Fatalf("tree size differs: %d vs %d", len(before), len(after))
	}
	for path, text := range before {
		if after[path] != text {
			t.Errorf("path %s: before=%q after=%q", path, text, after[path])
		}
	}
}

// S2 - concurrent non-commutative writes produce exactly one conflict.
func TestS2_ConcurrentPromotionsConflict(t *testing.T) {
	e := newTestEngine()
	pySrc := "def calc():\n    return 1\n"
	if _, err := e.Submit(ops.ChangeSet{State: "main", Ops: []ops.Operation{upsertOp("main", "demo.py", pySrc)}}); err != nil {
		t.Fatalf("seed submit failed: %v", err)
	}

	if _, err := e.CreateState("ws/alice", "main"); err != nil {
		t.Fatalf("create alice failed: %v", err)
	}
	if _, err := e.CreateState("ws/bob", "main"); err != nil {
		t.Fatalf("create bob failed: %v", err)
	}

	calcSym := symbol.PythonSymbolID("demo.py", "def", "calc")
	replaceOp := func(state, body string) ops.Operation {
		return ops.Operation{
			State:  state,
			Target: ops.Target{SymbolID: calcSym, PathHint: "demo.py"},
			Writes: []string{calcSym},
			Effect: ops.Effect{Kind: ops.EffectPythonReplaceSymbol, Path: "demo.py", SymbolKind: "def", SymbolName: "calc", AfterContent: body},
		}
	}

	if r, err := e.Submit(ops.ChangeSet{State: "ws/alice", Ops: []ops.Operation{replaceOp("ws/alice", "def calc():\n    return 2\n")}}); err != nil || r.Status != ops.StatusAccepted {
		t.Fatalf("alice submit: err=%v status=%v", err, r.Status)
	}
	if r, err := e.Submit(ops.ChangeSet{State: "ws/bob", Ops: []ops.Operation{replaceOp("ws/bob", "def calc():\n    return 3\n")}}); err != nil || r.Status != ops.StatusAccepted {
		t.Fatalf("bob submit: err=%v status=%v", err, r.Status)
	}

	aliceResult, err := e.Promote("ws/alice", "main", "alice")
	if err != nil {
		t.Fatalf("promote alice failed: %v", err)
	}
	if len(aliceResult.Accepted) != 1 {
		t.Fatalf("expected alice's promotion accepted, got %+v", aliceResult)
	}

	bobResult, err := e.Promote("ws/bob", "main", "bob")
	if err != nil {
		t.Fatalf("promote bob failed: %v", err)
	}
	if len(bobResult.Conflicts) != 1 {
		t.Fatalf("expected exactly one conflict promoting bob, got %+v", bobResult)
	}

	conflict, ok := e.GetConflict(bobResult.Conflicts[0])
	if !ok {
		t.Fatalf("conflict %s not recorded", bobResult.Conflicts[0])
	}
	if conflict.Type != ops.ConflictSemanticWrite {
		t.Errorf("expected semantic_write_conflict, got %s", conflict.Type)
	}
	if conflict.Target != calcSym {
		t.Errorf("expected conflict target %s, got %s", calcSym, conflict.Target)
	}
}

// S3 - precondition mismatch leaves the state unchanged.
func TestS3_PreconditionMismatch(t *testing.T) {
	e := newTestEngine()
	pySrc := "def calc():\n    return 1\n"
	e.Submit(ops.ChangeSet{State: "main", Ops: []ops.Operation{upsertOp("main", "demo.py", pySrc)}})

	calcSym := symbol.PythonSymbolID("demo.py", "def", "calc")
	badOp := ops.Operation{
		State:         "main",
		Target:        ops.Target{SymbolID: calcSym, PathHint: "demo.py"},
		Writes:        []string{calcSym},
		Preconditions: []ops.Precondition{{Kind: ops.PreconditionSignatureHash, Value: "hash_totallywrong00000000"}},
		Effect:        ops.Effect{Kind: ops.EffectPythonReplaceSymbol, Path: "demo.py", SymbolKind: "def", SymbolName: "calc", AfterContent: "def calc():\n    return 2\n"},
	}

	record, err := e.Submit(ops.ChangeSet{State: "main", Ops: []ops.Operation{badOp}})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if record.Status != ops.StatusConflicted {
		t.Fatalf("expected conflicted, got %s", record.Status)
	}
	conflict, ok := e.GetConflict(record.Conflicts[0])
	if !ok || conflict.Type != ops.ConflictPrecondition {
		t.Fatalf("expected precondition_failure conflict, got %+v ok=%v", conflict, ok)
	}

	tree, _ := e.Materialize("main")
	if tree["demo.py"] != pySrc {
		t.Errorf("expected demo.py unchanged, got %q", tree["demo.py"])
	}
}

// S4 - python verification catches a resulting duplicate symbol.
func TestS4_VerificationConflictOnDuplicate(t *testing.T) {
	e := newTestEngine()
	pySrc := "def calc():\n    return 1\n"
	e.Submit(ops.ChangeSet{State: "main", Ops: []ops.Operation{upsertOp("main", "demo.py", pySrc)}})

	insertOp := ops.Operation{
		State:  "main",
		Target: ops.Target{SymbolID: symbol.PythonSymbolID("demo.py", "def", "calc"), PathHint: "demo.py"},
		Writes: []string{symbol.PythonSymbolID("demo.py", "def", "calc2")},
		Effect: ops.Effect{
			Kind: ops.EffectPythonInsertSymbol, Path: "demo.py",
			SymbolKind: "def", SymbolName: "calc2",
			AfterContent: "def calc():\n    return 2\n",
		},
	}

	record, err := e.Submit(ops.ChangeSet{State: "main", Ops: []ops.Operation{insertOp}})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if record.Status != ops.StatusConflicted {
		t.Fatalf("expected conflicted, got %s (%+v)", record.Status, record)
	}
	conflict, ok := e.GetConflict(record.Conflicts[0])
	if !ok || conflict.Type != ops.ConflictVerification {
		t.Fatalf("expected verification_conflict, got %+v ok=%v", conflict, ok)
	}

	tree, _ := e.Materialize("main")
	if tree["demo.py"] != pySrc {
		t.Errorf("expected demo.py unchanged after rejected insert, got %q", tree["demo.py"])
	}
}

// S6 - resolving a conflict closes it and is a normal accepted op.
func TestS6_ResolveClosesConflict(t *testing.T) {
	e := newTestEngine()
	pySrc := "def calc():\n    return 1\n"
	e.Submit(ops.ChangeSet{State: "main", Ops: []ops.Operation{upsertOp("main", "demo.py", pySrc)}})
	e.CreateState("ws/alice", "main")
	e.CreateState("ws/bob", "main")

	calcSym := symbol.PythonSymbolID("demo.py", "def", "calc")
	replaceOp := func(state, body string) ops.Operation {
		return ops.Operation{
			State:  state,
			Target: ops.Target{SymbolID: calcSym, PathHint: "demo.py"},
			Writes: []string{calcSym},
			Effect: ops.Effect{Kind: ops.EffectPythonReplaceSymbol, Path: "demo.py", SymbolKind: "def", SymbolName: "calc", AfterContent: body},
		}
	}
	e.Submit(ops.ChangeSet{State: "ws/alice", Ops: []ops.Operation{replaceOp("ws/alice", "def calc():\n    return 2\n")}})
	e.Submit(ops.ChangeSet{State: "ws/bob", Ops: []ops.Operation{replaceOp("ws/bob", "def calc():\n    return 3\n")}})

	aliceResult, _ := e.Promote("ws/alice", "main", "alice")
	if len(aliceResult.Accepted) != 1 {
		t.Fatalf("expected alice's promotion accepted, got %+v", aliceResult)
	}
	aliceMainOpID := aliceResult.Accepted[0]

	bobResult, _ := e.Promote("ws/bob", "main", "bob")
	if len(bobResult.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %+v", bobResult)
	}
	conflictID := bobResult.Conflicts[0]

	_, treeNow, _, _ := e.GetState("main")
	currentHead := treeNow["demo.py"]
	resolvedHash, err := symbol.ContentHash(currentHead)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	resolverOp := ops.Operation{
		State:         "main",
		Parents:       []string{aliceMainOpID},
		Target:        ops.Target{SymbolID: calcSym, PathHint: "demo.py"},
		Writes:        []string{calcSym},
		Preconditions: []ops.Precondition{{Kind: ops.PreconditionSignatureHash, Value: resolvedHash}},
		Effect:        ops.Effect{Kind: ops.EffectPythonReplaceSymbol, Path: "demo.py", SymbolKind: "def", SymbolName: "calc", AfterContent: "def calc():\n    return 4\n"},
	}

	record, err := e.Resolve(conflictID, resolverOp)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if record.Status != ops.StatusAccepted {
		t.Fatalf("expected resolver accepted, got %s (%+v)", record.Status, record)
	}

	conflict, ok := e.GetConflict(conflictID)
	if !ok || conflict.Status != ops.ConflictResolved {
		t.Fatalf("expected conflict resolved, got %+v ok=%v", conflict, ok)
	}
	if conflict.ResolvedBy != record.Accepted[0] {
		t.Errorf("expected resolved_by=%s, got %s", record.Accepted[0], conflict.ResolvedBy)
	}
	if conflict.ResolvedAt == 0 {
		t.Error("expected resolved_at to be set")
	}

	tree, _ := e.Materialize("main")
	if tree["demo.py"] != "def calc():\n    return 4\n" {
		t.Errorf("expected resolver's content, got %q", tree["demo.py"])
	}
}

// Invariant 7 - promote is idempotent.
func TestInvariant_PromoteIdempotent(t *testing.T) {
	e := newTestEngine()
	e.CreateState("s1", "main")
	e.Submit(ops.ChangeSet{State: "s1", Ops: []ops.Operation{upsertOp("s1", "a.txt", "hi\n")}})

	first, err := e.Promote("s1", "main", "author")
	if err != nil {
		t.Fatalf("first promote failed: %v", err)
	}
	if len(first.Accepted) != 1 {
		t.Fatalf("expected one accepted op, got %+v", first)
	}

	second, err := e.Promote("s1", "main", "author")
	if err != nil {
		t.Fatalf("second promote failed: %v", err)
	}
	if len(second.Accepted) != 0 {
		t.Errorf("expected no newly accepted ops on repeat promotion, got %+v", second)
	}
	for _, r := range second.Results {
		if r.Status != "skipped" {
			t.Errorf("expected all-skipped on repeat promotion, got %+v", r)
		}
	}
}

// Invariant 5 - canonical_order is strictly monotonic.
func TestInvariant_CanonicalOrderMonotonic(t *testing.T) {
	e := newTestEngine()
	var last int64
	for i, content := range []string{"a\n", "b\n", "c\n"} {
		path := "f" + string(rune('0'+i)) + ".txt"
		e.Submit(ops.ChangeSet{State: "main", Ops: []ops.Operation{upsertOp("main", path, content)}})
	}
	for _, id := range e.stateOps["main"] {
		op := e.opLog[id]
		if op.CanonicalOrder <= last {
			t.Errorf("canonical_order not increasing: %d after %d", op.CanonicalOrder, last)
		}
		last = op.CanonicalOrder
	}
}

func TestCreateState_DuplicateNameRejected(t *testing.T) {
	e := newTestEngine()
	if _, err := e.CreateState("main", ""); err == nil {
		t.Error("expected error creating a state that already exists")
	}
}

func TestCreateState_UnknownParentRejected(t *testing.T) {
	e := newTestEngine()
	if _, err := e.CreateState("orphan-child", "does-not-exist"); err == nil {
		t.Error("expected error for unknown parent state")
	}
}

func TestSubmit_UnknownStateRejected(t *testing.T) {
	e := newTestEngine()
	if _, err := e.Submit(ops.ChangeSet{State: "ghost", Ops: []ops.Operation{upsertOp("ghost", "a.txt", "x")}}); err == nil {
		t.Error("expected error submitting to a nonexistent state")
	}
}
