package device

// RadixSortStable stably sorts the permutation order [0, len(keys)) by the
// low `bits` bits of keys, using an LSD radix sort over 8-bit digits —
// exactly what the spec calls for: a segmented stable sort keyed on
// (leaf-id, original-position), where "segmented" falls out for free
// because the sort is stable and the payload already carries the original
// feature-sorted order. Returns the permutation: order[i] is the original
// index that belongs at sorted position i.
func RadixSortStable(keys []uint32, bits int) []int {
	n := len(keys)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if n == 0 || bits <= 0 {
		return order
	}

	const digitBits = 8
	const digitBase = 1 << digitBits
	scratch := make([]int, n)

	for shift := 0; shift < bits; shift += digitBits {
		var count [digitBase + 1]int
		for _, idx := range order {
			d := (keys[idx] >> uint(shift)) & (digitBase - 1)
			count[d+1]++
		}
		for d := 0; d < digitBase; d++ {
			count[d+1] += count[d]
		}
		for _, idx := range order {
			d := (keys[idx] >> uint(shift)) & (digitBase - 1)
			scratch[count[d]] = idx
			count[d]++
		}
		order, scratch = scratch, order
	}
	return order
}

// ApplyOrderUint32 permutes src by order into a new slice: result[i] = src[order[i]].
func ApplyOrderUint32(src []uint32, order []int) []uint32 {
	out := make([]uint32, len(order))
	for i, idx := range order {
		out[i] = src[idx]
	}
	return out
}

// ApplyOrderInt32 permutes src by order into a new slice: result[i] = src[order[i]].
func ApplyOrderInt32(src []int32, order []int) []int32 {
	out := make([]int32, len(order))
	for i, idx := range order {
		out[i] = src[idx]
	}
	return out
}

// ApplyOrderFloat64 permutes src by order into a new slice: result[i] = src[order[i]].
func ApplyOrderFloat64(src []float64, order []int) []float64 {
	out := make([]float64, len(order))
	for i, idx := range order {
		out[i] = src[idx]
	}
	return out
}
