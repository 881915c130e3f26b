package device

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxIndexCellConcurrentUpdates(t *testing.T) {
	var cell MaxIndexCell
	cell.Reset()

	const n = 200
	type pair struct {
		gain  float32
		index uint32
	}
	pairs := make([]pair, n)
	rng := rand.New(rand.NewSource(1))
	bestGain := float32(0)
	var bestIdx uint32
	for i := 0; i < n; i++ {
		g := rng.Float32() * 100
		pairs[i] = pair{gain: g, index: uint32(i)}
		if g > bestGain {
			bestGain = g
			bestIdx = uint32(i)
		}
	}

	var wg sync.WaitGroup
	for _, p := range pairs {
		wg.Add(1)
		go func(p pair) {
			defer wg.Done()
			cell.UpdateMax(p.gain, p.index)
		}(p)
	}
	wg.Wait()

	gotGain, gotIdx := cell.Load()
	assert.Equal(t, bestGain, gotGain)
	assert.Equal(t, bestIdx, gotIdx)
}

func TestMaxIndexCellIgnoresSmallerGain(t *testing.T) {
	var cell MaxIndexCell
	cell.Reset()
	cell.UpdateMax(5, 1)
	cell.UpdateMax(3, 2)
	gain, idx := cell.Load()
	assert.Equal(t, float32(5), gain)
	assert.Equal(t, uint32(1), idx)
}

func TestTwoPhaseMaxIndexReconcile(t *testing.T) {
	var tp TwoPhaseMaxIndex
	tp.Reset()

	candidates := []struct {
		Gain  float32
		Index uint32
	}{
		{1.0, 0}, {4.0, 1}, {4.0, 2}, {2.0, 3},
	}
	for _, c := range candidates {
		tp.UpdateGain(c.Gain)
	}
	best := tp.BestGain()
	assert.Equal(t, float32(4.0), best)

	idx, ok := ReconcileIndex(best, candidates)
	require.True(t, ok)
	assert.Equal(t, uint32(1), idx) // tie broken by minimum index
}

func TestRadixSortStableGroupsBySegment(t *testing.T) {
	// segments use 2 bits (0..3); payload carries the original order.
	keys := []uint32{2, 0, 1, 0, 2, 1}
	order := RadixSortStable(keys, 2)

	sorted := ApplyOrderUint32(keys, order)
	for i := 1; i < len(sorted); i++ {
		assert.LessOrEqual(t, sorted[i-1], sorted[i])
	}

	// Stability: within equal keys, relative original order is preserved.
	var zeros []int
	for _, idx := range order {
		if keys[idx] == 0 {
			zeros = append(zeros, idx)
		}
	}
	assert.Equal(t, []int{1, 3}, zeros)
}

func TestArenaGrowsMonotonically(t *testing.T) {
	var a Arena
	buf1 := a.Request(16)
	assert.Len(t, buf1, 16)
	cap1 := a.Cap()

	buf2 := a.Request(8)
	assert.Len(t, buf2, 8)
	assert.Equal(t, cap1, a.Cap(), "arena must not shrink on a smaller request")

	buf3 := a.Request(64)
	assert.Len(t, buf3, 64)
	assert.GreaterOrEqual(t, a.Cap(), 64)
}
