package idgen

import (
	"sort"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	id := NewID()
	if len(id) != 20 {
		t.Errorf("NewID() length = %d, want 20", len(id))
	}

	// IDs must be unique
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNewID_Sortable(t *testing.T) {
	// IDs generated over time should sort in creation order
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, NewID())
		time.Sleep(2 * time.Millisecond)
	}
	if !sort.StringsAreSorted(ids) {
		t.Errorf("IDs not sorted by creation time: %v", ids)
	}
}

func TestNewWorkItemID(t *testing.T) {
	id := NewWorkItemID()
	if len(id) != 20 {
		t.Errorf("NewWorkItemID() length = %d, want 20", len(id))
	}
}

func TestNewRequestID(t *testing.T) {
	id := NewRequestID()
	if len(id) != 20 {
		t.Errorf("NewRequestID() length = %d, want 20", len(id))
	}
}

func BenchmarkNewID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NewID()
	}
}
