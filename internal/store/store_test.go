package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func kvStores(t *testing.T) map[string]KVStore {
	t.Helper()
	dir := t.TempDir()

	fs, err := NewFileStore(filepath.Join(dir, "file"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { fs.Close() })

	sq, err := OpenSQLiteStore(filepath.Join(dir, "store.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sq.Close() })

	return map[string]KVStore{"file": fs, "sqlite": sq}
}

func TestKVStore_GetMissingKeyReturnsNotExists(t *testing.T) {
	for name, s := range kvStores(t) {
		t.Run(name, func(t *testing.T) {
			v, exists, err := s.Get(context.Background(), "repo-a")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if exists || v != nil {
				t.Fatalf("expected missing key, got exists=%v value=%v", exists, v)
			}
		})
	}
}

func TestKVStore_UpdateThenGetRoundTrips(t *testing.T) {
	for name, s := range kvStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := s.Update(ctx, "repo-a", func(current []byte, exists bool) ([]byte, error) {
				if exists {
					t.Fatalf("expected no existing value on first write")
				}
				return []byte(`{"sequence":0}`), nil
			})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}

			v, exists, err := s.Get(ctx, "repo-a")
			if err != nil || !exists {
				t.Fatalf("Get after write: exists=%v err=%v", exists, err)
			}
			if !bytes.Equal(v, []byte(`{"sequence":0}`)) {
				t.Fatalf("unexpected value: %s", v)
			}
		})
	}
}

func TestKVStore_UpdateSeesPriorValue(t *testing.T) {
	for name, s := range kvStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.Update(ctx, "repo-a", func(current []byte, exists bool) ([]byte, error) {
				return []byte("v1"), nil
			})

			var seenCurrent []byte
			var seenExists bool
			err := s.Update(ctx, "repo-a", func(current []byte, exists bool) ([]byte, error) {
				seenCurrent = current
				seenExists = exists
				return []byte("v2"), nil
			})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if !seenExists || string(seenCurrent) != "v1" {
				t.Fatalf("expected to see prior value v1, got exists=%v current=%s", seenExists, seenCurrent)
			}

			v, _, _ := s.Get(ctx, "repo-a")
			if string(v) != "v2" {
				t.Fatalf("expected v2, got %s", v)
			}
		})
	}
}

func TestKVStore_UpdateFnErrorAborts(t *testing.T) {
	for name, s := range kvStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			boom := errors.New("boom")
			err := s.Update(ctx, "repo-a", func(current []byte, exists bool) ([]byte, error) {
				return nil, boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("expected boom error, got %v", err)
			}
			_, exists, _ := s.Get(ctx, "repo-a")
			if exists {
				t.Fatalf("expected no value written after aborted update")
			}
		})
	}
}

func TestSQLiteStore_CompressesLargeValues(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSQLiteStore(filepath.Join(dir, "store.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer s.Close()

	large := []byte(strings.Repeat("forge-snapshot-payload ", 1000))
	ctx := context.Background()
	if err := s.Update(ctx, "repo-a", func(current []byte, exists bool) ([]byte, error) {
		return large, nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	var compressed bool
	if err := s.db.QueryRow(`SELECT compressed FROM kv WHERE key = ?`, "repo-a").Scan(&compressed); err != nil {
		t.Fatalf("querying compressed flag: %v", err)
	}
	if !compressed {
		t.Fatalf("expected large value to be stored compressed")
	}

	got, exists, err := s.Get(ctx, "repo-a")
	if err != nil || !exists {
		t.Fatalf("Get: exists=%v err=%v", exists, err)
	}
	if !bytes.Equal(got, large) {
		t.Fatalf("round-tripped value does not match original")
	}
}

func TestFileStore_WritesThroughTempAndRename(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Update(ctx, "repo-a", func(current []byte, exists bool) ([]byte, error) {
		return []byte("hello"), nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("leftover temp file after successful update: %s", e.Name())
		}
	}
}
