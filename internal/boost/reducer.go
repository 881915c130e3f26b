package boost

import (
	"sync"

	"github.com/gogbdt/gbdt/pkg/device"
)

// LeafReducer is the per-leaf argmax-with-index accumulator the gain kernel
// writes into. It abstracts over the precision-dependent backing primitive:
// single precision uses the packed single-CAS MaxIndexCell; double precision
// falls back to the documented two-phase scheme, because a 64-bit gain plus
// a 32-bit index no longer fit one CAS word.
type LeafReducer[F comparable] interface {
	Len() int
	Reset(leaf int)
	Update(leaf int, gain F, index uint32)
	Result(leaf int) (bestGain F, bestIndex uint32, found bool)
}

// Float32Reducers backs the single-precision pipeline with one MaxIndexCell
// per leaf.
type Float32Reducers struct {
	cells []device.MaxIndexCell
}

// NewFloat32Reducers allocates one cell per leaf.
func NewFloat32Reducers(leaves int) *Float32Reducers {
	return &Float32Reducers{cells: make([]device.MaxIndexCell, leaves)}
}

func (r *Float32Reducers) Len() int { return len(r.cells) }

func (r *Float32Reducers) Reset(leaf int) { r.cells[leaf].Reset() }

func (r *Float32Reducers) Update(leaf int, gain float32, index uint32) {
	r.cells[leaf].UpdateMax(gain, index)
}

func (r *Float32Reducers) Result(leaf int) (float32, uint32, bool) {
	g, idx := r.cells[leaf].Load()
	return g, idx, g > 0
}

type candidate64 struct {
	gain  float64
	index uint32
}

// Float64Reducers backs the double-precision pipeline. Candidates are
// recorded per leaf under a mutex during the first (gain-only) pass, then
// reconciled against the winning gain in Result, exactly as the two-phase
// fallback prescribes.
type Float64Reducers struct {
	cells []device.TwoPhaseMaxIndex64
	mu    []sync.Mutex
	seen  [][]candidate64
}

// NewFloat64Reducers allocates one cell per leaf.
func NewFloat64Reducers(leaves int) *Float64Reducers {
	return &Float64Reducers{
		cells: make([]device.TwoPhaseMaxIndex64, leaves),
		mu:    make([]sync.Mutex, leaves),
		seen:  make([][]candidate64, leaves),
	}
}

func (r *Float64Reducers) Len() int { return len(r.cells) }

func (r *Float64Reducers) Reset(leaf int) {
	r.cells[leaf].Reset()
	r.mu[leaf].Lock()
	r.seen[leaf] = r.seen[leaf][:0]
	r.mu[leaf].Unlock()
}

func (r *Float64Reducers) Update(leaf int, gain float64, index uint32) {
	r.cells[leaf].UpdateGain(gain)
	r.mu[leaf].Lock()
	r.seen[leaf] = append(r.seen[leaf], candidate64{gain, index})
	r.mu[leaf].Unlock()
}

func (r *Float64Reducers) Result(leaf int) (float64, uint32, bool) {
	best := r.cells[leaf].BestGain()
	if best <= 0 {
		return best, 0, false
	}
	cands := make([]struct {
		Gain  float64
		Index uint32
	}, len(r.seen[leaf]))
	for i, c := range r.seen[leaf] {
		cands[i] = struct {
			Gain  float64
			Index uint32
		}{c.gain, c.index}
	}
	idx, ok := device.ReconcileIndex64(best, cands)
	return best, idx, ok
}
