package discovery

import (
	"fmt"
	"testing"
)

func TestGate_SeenMarksAndTests(t *testing.T) {
	gate := NewGate(100)

	if gate.Seen("addr1") {
		t.Error("first observation should report unseen")
	}
	if !gate.Seen("addr1") {
		t.Error("second observation should report seen")
	}
	if gate.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", gate.Len())
	}
}

func TestGate_FullResetOnCap(t *testing.T) {
	capacity := 50
	gate := NewGate(capacity)

	for i := 0; i <= capacity; i++ {
		gate.Seen(fmt.Sprintf("addr%d", i))
	}

	// Crossing the cap clears everything, not just the oldest entry.
	if gate.Len() != 0 {
		t.Errorf("expected full reset at cap, got %d entries", gate.Len())
	}

	// Previously seen addresses are reprocessed once after the reset.
	if gate.Seen("addr0") {
		t.Error("address should be unseen after reset")
	}
}

func TestGate_SizeNeverExceedsCapPlusBatch(t *testing.T) {
	capacity := 100
	batch := 25
	gate := NewGate(capacity)

	maxObserved := 0
	for i := 0; i < 10*capacity; i++ {
		gate.Seen(fmt.Sprintf("addr%d", i))
		if i%batch == 0 {
			if n := gate.Len(); n > maxObserved {
				maxObserved = n
			}
		}
	}

	if maxObserved > capacity+batch {
		t.Errorf("gate size %d exceeded cap %d + batch %d", maxObserved, capacity, batch)
	}
}
