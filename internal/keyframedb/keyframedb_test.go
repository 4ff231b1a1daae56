package keyframedb_test

import (
	"testing"

	"github.com/kaben/fusion-core/internal/collab"
	"github.com/kaben/fusion-core/internal/keyframedb"
)

func TestAddAndGet(t *testing.T) {
	db := keyframedb.New()
	db.Add(collab.Keyframe{GlobalIndex: 3, T: 1.5})
	kf, err := db.Get(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kf.T != 1.5 {
		t.Fatalf("kf.T = %v, want 1.5", kf.T)
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	db := keyframedb.New()
	if _, err := db.Get(42); err != keyframedb.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMarkAndClearLoop(t *testing.T) {
	db := keyframedb.New()
	db.Add(collab.Keyframe{GlobalIndex: 1})
	if err := db.MarkLooped(1); err != nil {
		t.Fatalf("MarkLooped: %v", err)
	}
	kf, _ := db.Get(1)
	if !kf.Looped {
		t.Fatalf("expected Looped=true")
	}
	if err := db.ClearLoop(1); err != nil {
		t.Fatalf("ClearLoop: %v", err)
	}
	kf, _ = db.Get(1)
	if kf.Looped {
		t.Fatalf("expected Looped=false after ClearLoop")
	}
}

func TestDownsampleKeepsOnlyMostRecent(t *testing.T) {
	db := keyframedb.New()
	for i := 0; i < 5; i++ {
		db.Add(collab.Keyframe{GlobalIndex: i})
	}
	evicted := db.Downsample(2)
	if len(evicted) != 3 {
		t.Fatalf("evicted = %v, want 3 indices", evicted)
	}
	for _, idx := range []int{0, 1, 2} {
		if _, err := db.Get(idx); err != keyframedb.ErrNotFound {
			t.Fatalf("index %d should have been evicted", idx)
		}
	}
	for _, idx := range []int{3, 4} {
		if _, err := db.Get(idx); err != nil {
			t.Fatalf("index %d should still be present: %v", idx, err)
		}
	}
	if db.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", db.Size())
	}
}

func TestDownsampleNoOpWhenUnderLimit(t *testing.T) {
	db := keyframedb.New()
	db.Add(collab.Keyframe{GlobalIndex: 1})
	if evicted := db.Downsample(5); evicted != nil {
		t.Fatalf("expected no eviction, got %v", evicted)
	}
}
