package session

import (
	"math"
	"time"
)

// defaultSilenceThreshold is RMS amplitude on int16 samples below which a
// batch counts as near-silence. Typical speech sits well above 1000.
const defaultSilenceThreshold = 500

// rms computes root-mean-square amplitude of a PCM16 batch.
func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// silenceTracker accumulates consecutive near-silence time. Any batch
// with energy above the threshold resets the run.
type silenceTracker struct {
	threshold float64
	silentFor time.Duration
}

func newSilenceTracker(threshold float64) *silenceTracker {
	if threshold <= 0 {
		threshold = defaultSilenceThreshold
	}
	return &silenceTracker{threshold: threshold}
}

// Observe folds one batch into the tracker and returns the current
// consecutive silence duration.
func (t *silenceTracker) Observe(batch []int16, batchDur time.Duration) time.Duration {
	if rms(batch) < t.threshold {
		t.silentFor += batchDur
	} else {
		t.silentFor = 0
	}
	return t.silentFor
}
