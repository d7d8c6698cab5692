package store

import (
	"fmt"
	"path/filepath"
	"testing"
)

// createTestStore opens a fresh database in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPropagation(id string, seq int64) Propagation {
	return Propagation{ID: id, Scenario: "counter", Origin: "leaf", Change: "1", Seq: seq}
}

func testStep(prop string, seq int64, node string) Step {
	return Step{
		ID:          fmt.Sprintf("%s/%d", prop, seq),
		Propagation: prop,
		Seq:         seq,
		Node:        node,
		Kind:        "aggregating",
		Outcome:     "forwarded",
		Change:      "1",
		Forwarded:   "1",
		Uppers:      1,
	}
}
