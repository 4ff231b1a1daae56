package pairer_test

import (
	"testing"

	"github.com/kaben/fusion-core/internal/ingress"
	"github.com/kaben/fusion-core/internal/pairer"
)

func imu(t float64) ingress.IMUSample        { return ingress.IMUSample{T: t} }
func frame(t float64) ingress.FeatureFrame   { return ingress.FeatureFrame{T: t} }

func TestEmptyQueuesYieldNothing(t *testing.T) {
	batches, remIMU, remFrames, _ := pairer.Pair(nil, nil)
	if len(batches) != 0 || remIMU != nil || remFrames != nil {
		t.Fatalf("expected empty result, got %v %v %v", batches, remIMU, remFrames)
	}
}

// Scenario 1 (spec §8): frame arrives before any IMU.
func TestFrameBeforeAnyIMUWaitsAndRetainsFrame(t *testing.T) {
	frames := []ingress.FeatureFrame{frame(1.0)}
	batches, _, remFrames, diag := pairer.Pair(nil, frames)
	if len(batches) != 0 {
		t.Fatalf("expected no batches, got %d", len(batches))
	}
	if diag != ingress.DiagWaitForIMU {
		t.Fatalf("diag = %v, want DiagWaitForIMU", diag)
	}
	if len(remFrames) != 1 {
		t.Fatalf("frame must be retained, got %d frames remaining", len(remFrames))
	}
}

// After IMU@0.9 and IMU@1.1 arrive, the batch is ([IMU@0.9], frame@1.0)
// and IMU@1.1 remains queued to straddle the next frame (spec §8 scenario 1).
func TestStartupRaceThenPairs(t *testing.T) {
	imus := []ingress.IMUSample{imu(0.9), imu(1.1)}
	frames := []ingress.FeatureFrame{frame(1.0)}

	batches, remIMU, remFrames, diag := pairer.Pair(imus, frames)
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	b := batches[0]
	if len(b.IMUs) != 1 || b.IMUs[0].T != 0.9 {
		t.Fatalf("batch IMUs = %v, want [0.9]", b.IMUs)
	}
	if b.Frame.T != 1.0 {
		t.Fatalf("batch frame = %v, want 1.0", b.Frame.T)
	}
	if len(remIMU) != 1 || remIMU[0].T != 1.1 {
		t.Fatalf("remaining IMU = %v, want [1.1] (straddling sample kept)", remIMU)
	}
	if len(remFrames) != 0 {
		t.Fatalf("expected frame consumed, got %d remaining", len(remFrames))
	}
	if diag != ingress.DiagOK {
		t.Fatalf("diag = %v, want DiagOK", diag)
	}
}

func TestStaleFrameDroppedOnStartupRace(t *testing.T) {
	// Oldest IMU (2.0) is already at/after the oldest frame (1.0): the
	// frame predates all IMU data and must be dropped (spec §4.2 step 3).
	imus := []ingress.IMUSample{imu(2.0), imu(2.1)}
	frames := []ingress.FeatureFrame{frame(1.0), frame(2.05)}

	batches, remIMU, remFrames, diag := pairer.Pair(imus, frames)
	if len(remFrames) != 0 {
		t.Fatalf("stale frame 1.0 should have been dropped, remaining: %v", remFrames)
	}
	if len(batches) != 1 || batches[0].Frame.T != 2.05 {
		t.Fatalf("expected one batch for frame 2.05, got %v", batches)
	}
	if len(remIMU) != 1 || remIMU[0].T != 2.1 {
		t.Fatalf("straddling IMU 2.1 should remain, got %v", remIMU)
	}
	if diag != ingress.DiagDroppedStaleFrame && diag != ingress.DiagOK {
		t.Fatalf("unexpected diag %v", diag)
	}
}

// Testable property (spec §8): a sample at exactly f.T is included in
// the batch, and the first sample strictly after f.T straddles.
func TestSampleAtExactFrameTimeIncluded(t *testing.T) {
	imus := []ingress.IMUSample{imu(0.5), imu(1.0), imu(1.5)}
	frames := []ingress.FeatureFrame{frame(1.0)}

	batches, remIMU, _, _ := pairer.Pair(imus, frames)
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	got := batches[0].IMUs
	if len(got) != 2 || got[0].T != 0.5 || got[1].T != 1.0 {
		t.Fatalf("batch IMUs = %v, want [0.5, 1.0]", got)
	}
	if len(remIMU) != 1 || remIMU[0].T != 1.5 {
		t.Fatalf("straddling sample 1.5 should remain queued, got %v", remIMU)
	}
}

func TestMultipleFramesProduceMultipleBatchesInOneCall(t *testing.T) {
	imus := []ingress.IMUSample{imu(0.1), imu(0.5), imu(0.9), imu(1.5), imu(2.5)}
	frames := []ingress.FeatureFrame{frame(0.5), frame(1.0), frame(2.0)}

	batches, remIMU, remFrames, _ := pairer.Pair(imus, frames)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(remFrames) != 0 {
		t.Fatalf("all frames should be consumed, got %d remaining", len(remFrames))
	}
	if len(remIMU) != 1 || remIMU[0].T != 2.5 {
		t.Fatalf("only the final straddling sample should remain, got %v", remIMU)
	}
}
