package device

import (
	"math"

	"github.com/gogbdt/gbdt/pkg/gain"
)

// ExclusiveScan computes the exclusive prefix sum of data using the given
// identity element: out[i] is the combined sum of data[0:i]. The scan is
// deliberately global, not segmented — the segmented-per-leaf sums are
// recovered by the caller subtracting a per-leaf base from this global
// prefix, which is only correct because the input has already been grouped
// by leaf via a stable sort. Callers must preserve that property.
func ExclusiveScan[F gain.Float, S gain.Stat[F, S]](data []S, identity S) []S {
	out := make([]S, len(data))
	running := identity
	for i, d := range data {
		out[i] = running
		running = running.Add(d)
	}
	return out
}

// IsFiniteGradOnly reports whether a gradient-only aggregate's accumulated
// sum is finite. A non-finite scan partial indicates the accumulator
// overflowed at the chosen precision.
func IsFiniteGradOnly[F gain.Float](s gain.GradOnly[F]) bool {
	return isFinite(float64(s.G))
}

// IsFiniteGradHess reports whether a gradient+Hessian aggregate's
// accumulated sums are both finite.
func IsFiniteGradHess[F gain.Float](s gain.GradHess[F]) bool {
	return isFinite(float64(s.G)) && isFinite(float64(s.H))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
