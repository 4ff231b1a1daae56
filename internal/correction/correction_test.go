package correction_test

import (
	"testing"

	"github.com/kaben/fusion-core/internal/correction"
	"github.com/kaben/fusion-core/internal/spatial"
)

func TestNewHolderStartsAtIdentity(t *testing.T) {
	h := correction.NewHolder()
	c := h.Load()
	if c.R != spatial.Identity || c.T != (spatial.Vec3{}) {
		t.Fatalf("initial correction not identity: %+v", c)
	}
}

func TestStoreIncreasesGenerationMonotonically(t *testing.T) {
	h := correction.NewHolder()
	first := h.Store(spatial.Identity, spatial.Vec3{X: 1})
	second := h.Store(spatial.Identity, spatial.Vec3{X: 2})
	if second.Generation <= first.Generation {
		t.Fatalf("generation did not increase: %d -> %d", first.Generation, second.Generation)
	}
}

func TestApplyIdentityIsNoOp(t *testing.T) {
	p := spatial.Vec3{X: 1, Y: 2, Z: 3}
	q := spatial.DeltaQ(spatial.Vec3{Z: 0.1})
	gotP, gotQ := correction.Apply(correction.Identity, p, q)
	if gotP != p {
		t.Fatalf("position changed under identity correction: %v -> %v", p, gotP)
	}
	if gotQ != spatial.Normalize(q) {
		t.Fatalf("orientation changed unexpectedly under identity correction")
	}
}
