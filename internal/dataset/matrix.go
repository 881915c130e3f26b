// Package dataset defines the tabular dataset contract the split-finding
// pipeline reads from: dense numeric columns with a precomputed ascending
// permutation, and sparse binary columns stored as ascending true-row lists.
// Besides fixing that layout, the package holds one loader (loader.go) that
// parses LIBSVM text into a Matrix; it has no device-residency transfer step.
package dataset

import (
	"fmt"
	"sort"
)

// DenseColumn is a numeric feature: one float64 per row, plus a
// precomputed permutation of [0, N) sorting rows by ascending value.
type DenseColumn struct {
	Values []float64
	Perm   []int32
}

// SparseColumn is a binary "set indicator" feature: the ascending list of
// row indices where the feature is true.
type SparseColumn struct {
	TrueRows []int32
}

// Matrix is the dataset consumed by the trainer. Dense feature ids occupy
// [0, ColumnsDense); sparse feature ids occupy [ColumnsDense, Columns()).
type Matrix struct {
	Rows          int
	ColumnsDense  int
	ColumnsSparse int
	Dense         []DenseColumn
	Sparse        []SparseColumn

	// RowSparseTrue[r] lists, in ascending fid order, the sparse feature
	// ids (relative to ColumnsDense) that are true for row r. Used by
	// TreeDriver to route a row at a sparse split via binary search.
	RowSparseTrue [][]int32
}

// Columns returns the total feature count.
func (m *Matrix) Columns() int { return m.ColumnsDense + m.ColumnsSparse }

// NewDenseColumn builds a DenseColumn and its sorting permutation from raw
// values.
func NewDenseColumn(values []float64) DenseColumn {
	perm := make([]int32, len(values))
	for i := range perm {
		perm[i] = int32(i)
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return values[perm[i]] < values[perm[j]]
	})
	return DenseColumn{Values: values, Perm: perm}
}

// NewSparseColumn builds a SparseColumn from an ascending list of true rows.
// The caller is responsible for ascending order; Init verifies it.
func NewSparseColumn(trueRows []int32) SparseColumn {
	return SparseColumn{TrueRows: trueRows}
}

// NewMatrix assembles dense and sparse columns into a Matrix and derives
// the per-row sparse true-feature lists Init needs for row routing.
func NewMatrix(rows int, dense []DenseColumn, sparse []SparseColumn) *Matrix {
	m := &Matrix{
		Rows:          rows,
		ColumnsDense:  len(dense),
		ColumnsSparse: len(sparse),
		Dense:         dense,
		Sparse:        sparse,
	}
	m.buildRowSparseTrue()
	return m
}

func (m *Matrix) buildRowSparseTrue() {
	m.RowSparseTrue = make([][]int32, m.Rows)
	for fid, col := range m.Sparse {
		for _, r := range col.TrueRows {
			m.RowSparseTrue[r] = append(m.RowSparseTrue[r], int32(fid))
		}
	}
}

// Init validates and finalizes the matrix layout: dense permutations must
// be permutations of [0, Rows), and sparse true-row lists must be strictly
// ascending.
func (m *Matrix) Init() error {
	if m.Rows <= 0 {
		return fmt.Errorf("dataset: rows must be positive, got %d", m.Rows)
	}
	for fid, col := range m.Dense {
		if len(col.Values) != m.Rows || len(col.Perm) != m.Rows {
			return fmt.Errorf("dataset: dense column %d length mismatch", fid)
		}
		seen := make([]bool, m.Rows)
		for _, p := range col.Perm {
			if p < 0 || int(p) >= m.Rows {
				return fmt.Errorf("dataset: dense column %d permutation out of range", fid)
			}
			if seen[p] {
				return fmt.Errorf("dataset: dense column %d permutation has duplicates", fid)
			}
			seen[p] = true
		}
	}
	for fid, col := range m.Sparse {
		for i := 1; i < len(col.TrueRows); i++ {
			if col.TrueRows[i-1] >= col.TrueRows[i] {
				return fmt.Errorf("dataset: sparse column %d row list not strictly ascending", fid)
			}
		}
		for _, r := range col.TrueRows {
			if r < 0 || int(r) >= m.Rows {
				return fmt.Errorf("dataset: sparse column %d row index out of range", fid)
			}
		}
	}
	if len(m.RowSparseTrue) != m.Rows {
		m.buildRowSparseTrue()
	}
	return nil
}

// CountTrue returns how many rows the sparse column is true for — used to
// seed level 0's per-leaf sparse statistics, where every row is in leaf 0.
func (c SparseColumn) CountTrue() int { return len(c.TrueRows) }

// RowHasSparse reports whether row r's sparse-fid list contains fid,
// resolved via binary search as the spec requires for row routing at a
// sparse split.
func (m *Matrix) RowHasSparse(row int, fid int32) bool {
	list := m.RowSparseTrue[row]
	lo, hi := 0, len(list)
	for lo < hi {
		mid := (lo + hi) / 2
		if list[mid] < fid {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(list) && list[lo] == fid
}
