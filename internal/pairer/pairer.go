// Package pairer implements the measurement pairer (spec §4.2): a pure
// function over queued IMU samples and feature frames that extracts
// synchronized (IMU-batch, frame) tuples, grounded on the original
// estimator_node.cpp's getMeasurements().
package pairer

import "github.com/kaben/fusion-core/internal/ingress"

// Pair implements spec §4.2 steps 1-5. It never mutates its inputs;
// callers (ingress.Buffers.NextBatch) are expected to replace the queue
// contents with the returned remainders.
func Pair(imu []ingress.IMUSample, frames []ingress.FeatureFrame) (batches []ingress.Batch, remainingIMU []ingress.IMUSample, remainingFrames []ingress.FeatureFrame, diag ingress.Diagnostic) {
	remainingIMU = imu
	remainingFrames = frames
	diag = ingress.DiagOK

	for {
		if len(remainingIMU) == 0 || len(remainingFrames) == 0 {
			// A queued frame with no IMU at all is the same startup wait
			// as step 2: keep the frame and report the wait.
			if len(remainingIMU) == 0 && len(remainingFrames) > 0 {
				diag = ingress.DiagWaitForIMU
			}
			return batches, remainingIMU, remainingFrames, diag
		}

		// Step 2: newest IMU must be strictly after the oldest queued
		// frame, or we're at startup and must wait without dropping it.
		if !(remainingIMU[len(remainingIMU)-1].T > remainingFrames[0].T) {
			diag = ingress.DiagWaitForIMU
			return batches, remainingIMU, remainingFrames, diag
		}

		// Step 3: the oldest frame must be strictly after the oldest
		// queued IMU sample, or that frame predates all IMU data and is
		// a startup race — drop it and retry.
		if !(remainingIMU[0].T < remainingFrames[0].T) {
			remainingFrames = remainingFrames[1:]
			diag = ingress.DiagDroppedStaleFrame
			continue
		}

		// Step 4: pop the oldest frame, move every IMU sample with
		// t <= f.t into the batch; the first sample with t > f.t stays
		// queued so it straddles into the next batch.
		f := remainingFrames[0]
		remainingFrames = remainingFrames[1:]

		cut := 0
		for cut < len(remainingIMU) && remainingIMU[cut].T <= f.T {
			cut++
		}
		batchIMU := make([]ingress.IMUSample, cut)
		copy(batchIMU, remainingIMU[:cut])
		remainingIMU = remainingIMU[cut:]

		batches = append(batches, ingress.Batch{IMUs: batchIMU, Frame: f})
		diag = ingress.DiagOK
	}
}
