package boost

import "github.com/gogbdt/gbdt/pkg/gain"

// LeafStat is a tree node's running statistics: row count and aggregate
// gradient. Gain is reset to zero at the start of each level, as the design
// requires.
type LeafStat[F gain.Float, S gain.Stat[F, S]] struct {
	Count   int64
	SumGrad S
	Gain    F
}

// SplitRecord is the best split chosen for one leaf during a level. FID
// of -1 means "no split recorded yet"; a split is "chosen" only once
// Gain > 0, otherwise the driver writes the degenerate sentinel described
// in the design (FID=0, SplitValue=+Inf, all rows routed left).
type SplitRecord[F gain.Float, S gain.Stat[F, S]] struct {
	FID         int32
	Gain        F
	SplitValue  F
	SplitByTrue bool
	Count       int64
	SumGrad     S
}

// Chosen reports whether this record names a real, positive-gain split.
func (r SplitRecord[F, S]) Chosen() bool {
	return r.FID >= 0 && r.Gain > 0
}
