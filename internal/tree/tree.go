// Package tree implements the RegTree external contract: a perfect binary
// heap of nodes produced by the boosting driver and walked by Predict. The
// driver that grows a tree (internal/boost) owns all split decisions; this
// package only fixes the node layout and the prediction walk.
package tree

import "github.com/gogbdt/gbdt/internal/dataset"

// Node is one slot of the heap. Internal nodes carry a split; leaves carry
// only Weight. IsLeaf is determined by the node's position relative to the
// tree's Depth, not by a stored flag — every node at the last level is a
// leaf, every node before it is internal once a split has been written.
type Node struct {
	FID         int32
	Threshold   float64
	SplitByTrue bool
	Weight      float64
}

// RegTree is a regression tree: a dense array representation of a perfect
// binary heap with Depth levels of nodes (indices [0, 2^Depth)). The last
// level holds leaf weights; every earlier level holds a split or, for a
// degenerate node, the left-routing sentinel described in the boosting
// driver (FID=0, Threshold=+Inf).
type RegTree struct {
	Depth int
	Nodes []Node
}

// NewRegTree allocates a tree of the given depth with zero-valued nodes.
func NewRegTree(depth int) *RegTree {
	return &RegTree{
		Depth: depth,
		Nodes: make([]Node, 1<<uint(depth)),
	}
}

// HeapOffset maps a level to the index of its first node: level 0 is node
// 0, level ℓ starts at 2^ℓ − 1.
func HeapOffset(level int) int {
	return (1 << uint(level)) - 1
}

// ChildNode navigates from heap index i to one of its two children.
func ChildNode(i int, isLeft bool) int {
	if isLeft {
		return 2*i + 1
	}
	return 2*i + 2
}

// IsLeaf reports whether heap index i belongs to the tree's final level.
func (t *RegTree) IsLeaf(i int) bool {
	return i >= HeapOffset(t.Depth-1)
}

// Predict walks the tree for every row of data and writes the resulting
// leaf weight into yOut. yOut must have length data.Rows.
func (t *RegTree) Predict(data *dataset.Matrix, yOut []float64) {
	for r := 0; r < data.Rows; r++ {
		yOut[r] = t.predictRow(data, r)
	}
}

func (t *RegTree) predictRow(data *dataset.Matrix, row int) float64 {
	i := 0
	for !t.IsLeaf(i) {
		n := t.Nodes[i]
		var goLeft bool
		if n.SplitByTrue {
			goLeft = data.RowHasSparse(row, n.FID-int32(data.ColumnsDense))
		} else if int(n.FID) < data.ColumnsDense {
			goLeft = data.Dense[n.FID].Values[row] <= n.Threshold
		} else {
			goLeft = true
		}
		i = ChildNode(i, goLeft)
	}
	return t.Nodes[i].Weight
}
