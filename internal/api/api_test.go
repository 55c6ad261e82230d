package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"forge/internal/adapter"
	"forge/internal/engine"
	"forge/internal/ops"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	e := engine.New(adapter.NewPython(nil))
	return NewRouter(e)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp["ok"] {
		t.Errorf("expected ok=true, got %v", resp)
	}
}

func TestListStates_IncludesBootstrapMain(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(t, h, http.MethodGet, "/v1/states", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp StatesListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.States) != 1 || resp.States[0].Name != "main" {
		t.Fatalf("expected only 'main' state, got %+v", resp.States)
	}
}

func TestCreateState_ThenGet(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(t, h, http.MethodPost, "/v1/states", CreateStateRequest{Name: "ws/alice", FromState: "main"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodGet, "/v1/states/ws/alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateState_DuplicateNameReturns400(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(t, h, http.MethodPost, "/v1/states", CreateStateRequest{Name: "main"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetState_UnknownReturns404(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(t, h, http.MethodGet, "/v1/states/does-not-exist", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSubmitOps_RawOpUpsertsFile(t *testing.T) {
	h := newTestServer(t)
	op := ops.Operation{
		State:  "main",
		Target: ops.Target{SymbolID: "sym://text/hello.txt#document", PathHint: "hello.txt"},
		Writes: []string{"sym://text/hello.txt#document"},
		Effect: ops.Effect{Kind: ops.EffectUpsertFile, Path: "hello.txt", Content: "hi\n"},
	}

	w := doJSON(t, h, http.MethodPost, "/v1/ops", op)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ChangeSetSubmitResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != ops.StatusAccepted || len(resp.Accepted) != 1 {
		t.Fatalf("expected one accepted op, got %+v", resp)
	}

	w = doJSON(t, h, http.MethodGet, "/v1/states/main", nil)
	var detail StateDetailResponse
	if err := json.NewDecoder(w.Body).Decode(&detail); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if detail.Tree["hello.txt"] != "hi\n" {
		t.Fatalf("expected materialized tree to contain hello.txt, got %+v", detail.Tree)
	}
}

func TestSubmitChangeSet_UnknownStateReturns400(t *testing.T) {
	h := newTestServer(t)
	cs := ops.ChangeSet{
		State: "ghost",
		Ops: []ops.Operation{{
			State:  "ghost",
			Target: ops.Target{SymbolID: "sym://text/a.txt#document", PathHint: "a.txt"},
			Writes: []string{"sym://text/a.txt#document"},
			Effect: ops.Effect{Kind: ops.EffectUpsertFile, Path: "a.txt", Content: "x"},
		}},
	}
	w := doJSON(t, h, http.MethodPost, "/v1/change-sets", cs)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetOp_UnknownReturns404(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(t, h, http.MethodGet, "/v1/ops/op_does_not_exist", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetConflict_UnknownReturns404(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(t, h, http.MethodGet, "/v1/conflicts/conf_does_not_exist", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestPromote_UnknownTargetReturns400(t *testing.T) {
	h := newTestServer(t)
	doJSON(t, h, http.MethodPost, "/v1/states", CreateStateRequest{Name: "ws/alice", FromState: "main"})

	w := doJSON(t, h, http.MethodPost, "/v1/states/ws/alice/promote", PromoteRequest{TargetState: "does-not-exist", Author: "alice"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

// TestStreamState_EmitsInitialSnapshot exercises the SSE handler behind
// the real logging middleware and a real network connection, so a
// regression where the wrapped ResponseWriter loses http.Flusher shows
// up as this request failing (500 "streaming unsupported") rather than
// receiving the snapshot event.
func TestStreamState_EmitsInitialSnapshot(t *testing.T) {
	h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/stream/states/main", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading initial event: %v", err)
	}
	if line != "event: state_update\n" {
		t.Fatalf("expected state_update event line, got %q", line)
	}
}

