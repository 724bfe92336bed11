package reorder

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func fixedSource(ids ...int64) Source {
	return func() []int64 { return append([]int64(nil), ids...) }
}

func TestBindIsIdempotent(t *testing.T) {
	a := NewAdapter()
	var first, second []int64
	if !a.Bind("transactions", fixedSource(1, 2), func(o []int64) { first = o }) {
		t.Fatal("first Bind returned false")
	}
	if a.Bind("transactions", fixedSource(9, 9), func(o []int64) { second = o }) {
		t.Error("re-Bind returned true, want no-op")
	}
	if !a.Bound("transactions") {
		t.Error("container not bound")
	}

	a.Move("transactions", 0, 1)
	if second != nil {
		t.Error("second sink received a move; original binding should hold")
	}
	if diff := cmp.Diff([]int64{2, 1}, first); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
}

func TestBindRejectsNil(t *testing.T) {
	a := NewAdapter()
	if a.Bind("x", nil, func([]int64) {}) {
		t.Error("Bind accepted nil source")
	}
	if a.Bind("x", fixedSource(1), nil) {
		t.Error("Bind accepted nil sink")
	}
	if a.Bound("x") {
		t.Error("container bound despite nil args")
	}
}

func TestMove(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		want     []int64
		ok       bool
	}{
		{"down", 0, 2, []int64{2, 3, 1}, true},
		{"up", 2, 0, []int64{3, 1, 2}, true},
		{"adjacent", 1, 2, []int64{1, 3, 2}, true},
		{"no-op", 1, 1, nil, false},
		{"from out of range", 3, 0, nil, false},
		{"to out of range", 0, -1, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdapter()
			var got []int64
			a.Bind("list", fixedSource(1, 2, 3), func(o []int64) { got = o })
			if ok := a.Move("list", tt.from, tt.to); ok != tt.ok {
				t.Fatalf("Move(%d, %d) = %v, want %v", tt.from, tt.to, ok, tt.ok)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("sink order (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMoveUnboundContainer(t *testing.T) {
	a := NewAdapter()
	if a.Move("nope", 0, 1) {
		t.Error("Move on unbound container returned true")
	}
}

func TestDropFeedsCurrentSequence(t *testing.T) {
	a := NewAdapter()
	var got []int64
	a.Bind("notes", fixedSource(4, 5, 6), func(o []int64) { got = o })
	if !a.Drop("notes") {
		t.Fatal("Drop returned false")
	}
	if diff := cmp.Diff([]int64{4, 5, 6}, got); diff != "" {
		t.Errorf("sink order (-want +got):\n%s", diff)
	}
}
