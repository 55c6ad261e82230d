// Package engine implements the change-set core: the operation log and
// per-state indexes, the conflict classifier, the atomic submission
// pipeline, materialization, promotion, and conflict resolution. All
// mutating entry points serialize on a single lock; the observable
// contract is sequential consistency.
package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"forge/internal/adapter"
	"forge/internal/ops"
)

const defaultPersistDebounce = 100 * time.Millisecond

// Engine is the single owned aggregate. Every exported mutating method
// takes mu; pure reads (GetState, Materialize, ListConflicts) also take
// it, briefly, to see a consistent snapshot.
type Engine struct {
	mu sync.Mutex

	sequence     int64
	conflictSeq  int64
	changeSetSeq int64

	opLog      map[string]ops.Operation
	changeSets map[string]ops.ChangeSetRecord
	conflicts  map[string]ops.Conflict
	states     map[string]*ops.State

	stateOps   map[string][]string
	symbolHead map[string]map[string]string
	symbolHash map[string]map[string]string

	adapters *AdapterSet
	events   *Broadcaster

	now func() int64

	// defaultPolicy is given to newly created states other than "prod",
	// which always gets ops.StrictPolicy() regardless.
	defaultPolicy ops.Policy

	persistMu       sync.Mutex
	persist         func(SnapshotDoc)
	persistDebounce time.Duration
	persistTimer    *time.Timer
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithClock overrides the wall-clock source; tests use it for
// deterministic timestamps.
func WithClock(now func() int64) Option {
	return func(e *Engine) { e.now = now }
}

// WithDefaultPolicy overrides the policy given to newly created states
// other than "prod" (typically loaded from forge.yaml); p replaces the
// built-in ops.PermissivePolicy() default as given, zero value included.
func WithDefaultPolicy(p ops.Policy) Option {
	return func(e *Engine) { e.defaultPolicy = p }
}

// WithPersist wires a debounced snapshot sink: after any accept,
// conflict, or change-set event, a call to fn is scheduled debounce
// after the last one, coalescing bursts of writes into a single
// snapshot. fn runs on its own goroutine, outside the writer lock.
func WithPersist(fn func(SnapshotDoc), debounce time.Duration) Option {
	return func(e *Engine) {
		e.persist = fn
		e.persistDebounce = debounce
	}
}

// New builds an empty engine with a bootstrap "main" state, wired to
// python for python-top-level parsing.
func New(python *adapter.Python, opts ...Option) *Engine {
	e := &Engine{
		opLog:      make(map[string]ops.Operation),
		changeSets: make(map[string]ops.ChangeSetRecord),
		conflicts:  make(map[string]ops.Conflict),
		states:     make(map[string]*ops.State),
		stateOps:   make(map[string][]string),
		symbolHead: make(map[string]map[string]string),
		symbolHash: make(map[string]map[string]string),
		adapters:        NewAdapterSet(python),
		events:          NewBroadcaster(),
		now:             func() int64 { return time.Now().UnixMilli() },
		persistDebounce: defaultPersistDebounce,
		defaultPolicy:   ops.PermissivePolicy(),
	}
	for _, o := range opts {
		o(e)
	}
	e.states["main"] = &ops.State{
		Name:      "main",
		Heads:     []string{},
		Policy:    ops.PermissivePolicy(),
		CreatedAt: e.now(),
		UpdatedAt: e.now(),
	}
	e.stateOps["main"] = nil
	e.symbolHead["main"] = make(map[string]string)
	e.symbolHash["main"] = make(map[string]string)
	return e
}

// Events exposes the engine's broadcaster for HTTP SSE subscribers.
func (e *Engine) Events() *Broadcaster { return e.events }

// schedulePersist debounces snapshot persistence: repeated calls within
// the debounce window collapse into a single write of whatever the
// engine's state is when the timer finally fires, taken under the lock
// only long enough to copy (Snapshot takes and releases e.mu itself,
// so this must never run while the caller still holds e.mu).
func (e *Engine) schedulePersist() {
	if e.persist == nil {
		return
	}
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	if e.persistTimer != nil {
		e.persistTimer.Stop()
	}
	e.persistTimer = time.AfterFunc(e.persistDebounce, func() {
		e.persist(e.Snapshot())
	})
}

// CreateState creates a new named state. When from is non-empty it
// deep-copies symbol_head and symbol_hash from from; state_ops is not
// copied and starts empty, the parent's history being reached through
// base_state. An empty from produces an orphan state with empty indexes.
func (e *Engine) CreateState(name, from string) (ops.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.states[name]; exists {
		return ops.State{}, fmt.Errorf("state %q already exists", name)
	}

	st := &ops.State{
		Name:      name,
		Heads:     []string{},
		Policy:    e.defaultPolicyFor(name),
		CreatedAt: e.now(),
		UpdatedAt: e.now(),
	}

	if from != "" {
		parent, ok := e.states[from]
		if !ok {
			return ops.State{}, fmt.Errorf("parent state %q does not exist", from)
		}
		st.BaseState = from
		st.BaseHeads = append([]string{}, parent.Heads...)
		st.Heads = append([]string{}, parent.Heads...)

		// state_ops stays empty: materialize recurses into base_state
		// for inherited history (§4.6), so pre-seeding it here with the
		// parent's own list would double-apply every inherited op.
		// symbol_head/symbol_hash are safe to deep-copy since they are
		// idempotent latest-value maps, not accumulators.
		e.stateOps[name] = nil
		e.symbolHead[name] = copyStringMap(e.symbolHead[from])
		e.symbolHash[name] = copyStringMap(e.symbolHash[from])
	} else {
		e.stateOps[name] = nil
		e.symbolHead[name] = make(map[string]string)
		e.symbolHash[name] = make(map[string]string)
	}

	e.states[name] = st
	return *st, nil
}

// defaultPolicyFor returns the policy a newly created state gets when
// its creation request doesn't specify one: "prod" always gets
// ops.StrictPolicy() (spec §3), everything else gets the engine's
// configured default.
func (e *Engine) defaultPolicyFor(name string) ops.Policy {
	if name == "prod" {
		return ops.StrictPolicy()
	}
	return e.defaultPolicy
}

// GetState returns a snapshot of the named state plus its open
// conflicts and materialized tree.
func (e *Engine) GetState(name string) (state ops.State, tree map[string]string, openConflicts []ops.Conflict, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[name]
	if !ok {
		return ops.State{}, nil, nil, fmt.Errorf("state %q does not exist", name)
	}
	tree = e.materializeLocked(name, make(map[string]bool))
	for _, c := range e.conflicts {
		if c.State == name && c.Status == ops.ConflictOpen {
			openConflicts = append(openConflicts, c)
		}
	}
	return *st, tree, openConflicts, nil
}

// OpCount returns the number of ops accepted directly onto state,
// excluding ops inherited from its base_state.
func (e *Engine) OpCount(state string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.stateOps[state])
}

// ListStates returns a snapshot of every state.
func (e *Engine) ListStates() []ops.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ops.State, 0, len(e.states))
	for _, st := range e.states {
		out = append(out, *st)
	}
	return out
}

// openConflictCountLocked reports the number of open conflicts for
// state. Must be called with mu already held.
func (e *Engine) openConflictCountLocked(state string) int {
	n := 0
	for _, c := range e.conflicts {
		if c.State == state && c.Status == ops.ConflictOpen {
			n++
		}
	}
	return n
}

// ListConflicts returns every conflict recorded for state.
func (e *Engine) ListConflicts(state string) []ops.Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []ops.Conflict
	for _, c := range e.conflicts {
		if c.State == state {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetConflict returns a single conflict by id.
func (e *Engine) GetConflict(id string) (ops.Conflict, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conflicts[id]
	return c, ok
}

// GetOp returns a single accepted op by id.
func (e *Engine) GetOp(id string) (ops.Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	op, ok := e.opLog[id]
	return op, ok
}

// GetChangeSet returns a single recorded change-set outcome by id.
func (e *Engine) GetChangeSet(id string) (ops.ChangeSetRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cs, ok := e.changeSets[id]
	return cs, ok
}

// ListChangeSets returns every recorded change-set outcome for state.
func (e *Engine) ListChangeSets(state string) []ops.ChangeSetRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []ops.ChangeSetRecord
	for _, cs := range e.changeSets {
		if state == "" || cs.State == state {
			out = append(out, cs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func errStateNotFound(state string) error {
	return fmt.Errorf("state %q does not exist", state)
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
