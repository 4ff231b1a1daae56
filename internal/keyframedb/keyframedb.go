// Package keyframedb is the keyframe database of spec.md §4.5/§9:
// keyframes are owned values keyed by a stable global_index, not raw
// KeyFrame* pointers. Downsample implements the "take last, drop the
// rest" eviction with automatic index reclamation that spec.md asks for
// in place of the original's drain-and-keep-last pointer dance.
package keyframedb

import (
	"fmt"
	"sync"

	"github.com/kaben/fusion-core/internal/collab"
)

// ErrNotFound is returned by Get for an index the database never held
// or has since evicted — spec.md §7: "missing keyframe in DB during
// loop match: logged, discard the candidate, must not crash."
var ErrNotFound = fmt.Errorf("keyframe not found")

// DB is the keyframe database, guarded by its own lock L_kf_db (spec.md
// §5), ordered before L_vis wherever both are held.
type DB struct {
	mu      sync.Mutex
	byIndex map[int]collab.Keyframe
	order   []int // insertion order, for Downsample's "keep last N"
}

// New creates an empty keyframe database.
func New() *DB {
	return &DB{byIndex: make(map[int]collab.Keyframe)}
}

// Add registers a keyframe under its global_index.
func (d *DB) Add(kf collab.Keyframe) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byIndex[kf.GlobalIndex]; !exists {
		d.order = append(d.order, kf.GlobalIndex)
	}
	d.byIndex[kf.GlobalIndex] = kf
}

// Get looks up a keyframe by its stable index.
func (d *DB) Get(index int) (collab.Keyframe, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kf, ok := d.byIndex[index]
	if !ok {
		return collab.Keyframe{}, ErrNotFound
	}
	return kf, nil
}

// MarkLooped records that index has an accepted loop edge against an
// old keyframe (spec.md §4.5: "mark both keyframes as looped").
func (d *DB) MarkLooped(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	kf, ok := d.byIndex[index]
	if !ok {
		return ErrNotFound
	}
	kf.Looped = true
	d.byIndex[index] = kf
	return nil
}

// ClearLoop removes a rejected loop's annotation (spec.md §7: "bad loop
// ... keyframe's loop annotation removed").
func (d *DB) ClearLoop(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	kf, ok := d.byIndex[index]
	if !ok {
		return ErrNotFound
	}
	kf.Looped = false
	d.byIndex[index] = kf
	return nil
}

// Size reports the number of keyframes currently held.
func (d *DB) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

// Downsample keeps only the most recent keep keyframes, evicting the
// rest and returning their indices so the caller (the detector worker)
// can tell the BoW index and any other state to drop them too (spec.md
// §4.5: "downsample and inform the detector to drop evicted indices").
func (d *DB) Downsample(keep int) []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if keep < 0 {
		keep = 0
	}
	if len(d.order) <= keep {
		return nil
	}
	evictCount := len(d.order) - keep
	evicted := make([]int, evictCount)
	copy(evicted, d.order[:evictCount])
	for _, idx := range evicted {
		delete(d.byIndex, idx)
	}
	d.order = d.order[evictCount:]
	return evicted
}
