package dataset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gogbdt/gbdt/pkg/errors"
)

// LoadOptions configures LoadLIBSVM.
type LoadOptions struct {
	// SparseThreshold is the minimum fraction of zero-valued rows a
	// numeric column needs before it is stored as a SparseColumn instead
	// of a DenseColumn. A feature is only eligible for sparse storage if
	// every non-missing value it takes is 0 or 1 (see isBinarySparse).
	SparseThreshold float64
}

// DefaultLoadOptions mirrors the dense-by-default layout most LIBSVM
// consumers expect; callers doing binary-feature workloads raise
// SparseThreshold to route mostly-zero binary columns to SparseColumn.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{SparseThreshold: 1.01} // disabled: never promote to sparse by default
}

// LoadLIBSVMFile opens path and parses it as LIBSVM-format training data:
// one example per line, "<label> <fid>:<value> <fid>:<value> ...", 0-based
// or 1-based feature ids (normalized to 0-based, min id subtracted).
func LoadLIBSVMFile(path string, opts LoadOptions) (*Matrix, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadLIBSVM(context.Background(), f, opts)
}

// LoadLIBSVM parses LIBSVM-format training data from reader and returns the
// resulting Matrix together with the per-row label vector.
func LoadLIBSVM(ctx context.Context, r io.Reader, opts LoadOptions) (*Matrix, []float64, error) {
	type rawRow struct {
		label  float64
		fields map[int]float64
	}

	var rows []rawRow
	maxFid := -1
	minFid := math.MaxInt32

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		tokens := strings.Fields(line)
		label, err := strconv.ParseFloat(tokens[0], 64)
		if err != nil {
			return nil, nil, errors.Wrap(errors.CodeParseError, fmt.Sprintf("line %d: invalid label %q", lineNo, tokens[0]), err)
		}

		row := rawRow{label: label, fields: make(map[int]float64, len(tokens)-1)}
		for _, tok := range tokens[1:] {
			idx := strings.IndexByte(tok, ':')
			if idx < 0 {
				return nil, nil, errors.New(errors.CodeParseError, fmt.Sprintf("line %d: malformed feature token %q", lineNo, tok))
			}
			fid, err := strconv.Atoi(tok[:idx])
			if err != nil {
				return nil, nil, errors.Wrap(errors.CodeParseError, fmt.Sprintf("line %d: invalid feature id %q", lineNo, tok[:idx]), err)
			}
			val, err := strconv.ParseFloat(tok[idx+1:], 64)
			if err != nil {
				return nil, nil, errors.Wrap(errors.CodeParseError, fmt.Sprintf("line %d: invalid feature value %q", lineNo, tok[idx+1:]), err)
			}
			row.fields[fid] = val
			if fid > maxFid {
				maxFid = fid
			}
			if fid < minFid {
				minFid = fid
			}
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("dataset: scan failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, errors.New(errors.CodeEmptyFile, "no rows parsed")
	}
	if maxFid < minFid {
		return nil, nil, fmt.Errorf("dataset: no features parsed")
	}

	columns := maxFid - minFid + 1
	y := make([]float64, len(rows))
	values := make([][]float64, columns)
	present := make([][]bool, columns)
	for c := range values {
		values[c] = make([]float64, len(rows))
		present[c] = make([]bool, len(rows))
	}

	for r, row := range rows {
		y[r] = row.label
		for fid, val := range row.fields {
			c := fid - minFid
			values[c][r] = val
			present[c][r] = true
		}
	}

	var dense []DenseColumn
	var sparse []SparseColumn
	for c := 0; c < columns; c++ {
		if isBinarySparse(values[c], present[c], opts.SparseThreshold) {
			var trueRows []int32
			for r, v := range values[c] {
				if present[c][r] && v != 0 {
					trueRows = append(trueRows, int32(r))
				}
			}
			sort.Slice(trueRows, func(i, j int) bool { return trueRows[i] < trueRows[j] })
			sparse = append(sparse, NewSparseColumn(trueRows))
			continue
		}
		dense = append(dense, NewDenseColumn(values[c]))
	}

	m := NewMatrix(len(rows), dense, sparse)
	if err := m.Init(); err != nil {
		return nil, nil, err
	}
	return m, y, nil
}

// isBinarySparse reports whether a column is a candidate for sparse
// storage: every present value is 0 or 1, and the fraction of zero/absent
// rows meets threshold.
func isBinarySparse(values []float64, present []bool, threshold float64) bool {
	zero := 0
	for r, v := range values {
		if present[r] && v != 0 && v != 1 {
			return false
		}
		if !present[r] || v == 0 {
			zero++
		}
	}
	return float64(zero)/float64(len(values)) >= threshold
}
