package device

import (
	"math"
	"sync/atomic"
)

// MaxIndexCell packs a 32-bit float gain (low word) and a 32-bit index
// (high word) into one atomically-updated 64-bit cell, exactly as the
// split-gain kernel's argmax-with-key reduction does on a GPU: a single
// compare-and-swap loop, no critical section, first writer wins on ties.
type MaxIndexCell struct {
	packed atomic.Uint64
}

func pack(gain float32, index uint32) uint64 {
	return uint64(math.Float32bits(gain)) | uint64(index)<<32
}

func unpack(v uint64) (float32, uint32) {
	return math.Float32frombits(uint32(v)), uint32(v >> 32)
}

// Reset zero-initializes the cell. Gain 0 is a safe floor because only
// strictly-positive gains are ever submitted to UpdateMax.
func (c *MaxIndexCell) Reset() {
	c.packed.Store(pack(0, 0))
}

// UpdateMax atomically makes the cell store (gain, index) if and only if
// gain is strictly greater than the gain currently held. It loops reading
// the cell and attempting a CAS until either the CAS succeeds or another
// writer has already recorded an equal-or-greater gain.
func (c *MaxIndexCell) UpdateMax(gain float32, index uint32) {
	for {
		cur := c.packed.Load()
		curGain, _ := unpack(cur)
		if curGain >= gain {
			return
		}
		if c.packed.CompareAndSwap(cur, pack(gain, index)) {
			return
		}
	}
}

// Load returns the best (gain, index) pair currently recorded.
func (c *MaxIndexCell) Load() (gain float32, index uint32) {
	return unpack(c.packed.Load())
}

// TwoPhaseMaxIndex is the documented fallback for platforms lacking a
// 64-bit CAS: a per-leaf atomic-max of the gain alone, followed by a second
// pass that records the index whose gain equals the max, ties resolved by
// minimum index for determinism. It is not the pipeline's default — the
// packed MaxIndexCell is — but it is kept because the design explicitly
// calls for this fallback path.
type TwoPhaseMaxIndex struct {
	bestGain atomic.Uint32
}

// Reset zero-initializes the gain-only cell.
func (t *TwoPhaseMaxIndex) Reset() {
	t.bestGain.Store(math.Float32bits(0))
}

// UpdateGain atomically raises the recorded best gain, discarding the index.
func (t *TwoPhaseMaxIndex) UpdateGain(gain float32) {
	for {
		cur := t.bestGain.Load()
		curGain := math.Float32frombits(cur)
		if curGain >= gain {
			return
		}
		if t.bestGain.CompareAndSwap(cur, math.Float32bits(gain)) {
			return
		}
	}
}

// BestGain returns the recorded best gain.
func (t *TwoPhaseMaxIndex) BestGain() float32 {
	return math.Float32frombits(t.bestGain.Load())
}

// ReconcileIndex performs the second pass: given every (gain, index)
// candidate observed during the first pass, returns the index of the
// candidate whose gain equals BestGain(), breaking ties by minimum index.
func ReconcileIndex(best float32, candidates []struct {
	Gain  float32
	Index uint32
}) (uint32, bool) {
	found := false
	var bestIdx uint32
	for _, c := range candidates {
		if c.Gain != best {
			continue
		}
		if !found || c.Index < bestIdx {
			bestIdx = c.Index
			found = true
		}
	}
	return bestIdx, found
}

// TwoPhaseMaxIndex64 is TwoPhaseMaxIndex's double-precision counterpart.
// A 64-bit gain and a 32-bit index together exceed a single CAS word, so
// the double-precision pipeline always takes the two-phase path rather
// than the packed single-CAS cell.
type TwoPhaseMaxIndex64 struct {
	bestGain atomic.Uint64
}

// Reset zero-initializes the gain-only cell.
func (t *TwoPhaseMaxIndex64) Reset() {
	t.bestGain.Store(math.Float64bits(0))
}

// UpdateGain atomically raises the recorded best gain, discarding the index.
func (t *TwoPhaseMaxIndex64) UpdateGain(gain float64) {
	for {
		cur := t.bestGain.Load()
		curGain := math.Float64frombits(cur)
		if curGain >= gain {
			return
		}
		if t.bestGain.CompareAndSwap(cur, math.Float64bits(gain)) {
			return
		}
	}
}

// BestGain returns the recorded best gain.
func (t *TwoPhaseMaxIndex64) BestGain() float64 {
	return math.Float64frombits(t.bestGain.Load())
}

// ReconcileIndex64 is ReconcileIndex's float64 counterpart.
func ReconcileIndex64(best float64, candidates []struct {
	Gain  float64
	Index uint32
}) (uint32, bool) {
	found := false
	var bestIdx uint32
	for _, c := range candidates {
		if c.Gain != best {
			continue
		}
		if !found || c.Index < bestIdx {
			bestIdx = c.Index
			found = true
		}
	}
	return bestIdx, found
}
