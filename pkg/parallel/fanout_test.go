package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()
	assert.GreaterOrEqual(t, cfg.MaxWorkers, 2)
	assert.LessOrEqual(t, cfg.MaxWorkers, 8)
}

func TestPoolConfig_WithWorkers(t *testing.T) {
	cfg := DefaultPoolConfig().WithWorkers(3)
	assert.Equal(t, 3, cfg.MaxWorkers)
}

func TestForEach_ProcessesAllItems(t *testing.T) {
	items := make([]int, 1000)
	for i := range items {
		items[i] = i
	}

	var sum atomic.Int64
	processed, err := ForEach(context.Background(), items, DefaultPoolConfig(), func(_ context.Context, item int) error {
		sum.Add(int64(item))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(items)), processed)

	want := int64(0)
	for _, v := range items {
		want += int64(v)
	}
	assert.Equal(t, want, sum.Load())
}

func TestForEach_EmptyInput(t *testing.T) {
	processed, err := ForEach(context.Background(), []int{}, DefaultPoolConfig(), func(_ context.Context, _ int) error {
		t.Fatal("fn should not be called for empty input")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), processed)
}

func TestForEach_StopsOnError(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	sentinel := errors.New("boom")

	_, err := ForEach(context.Background(), items, PoolConfig{MaxWorkers: 1}, func(_ context.Context, item int) error {
		if item == 3 {
			return sentinel
		}
		return nil
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestReduceChunks_SumsAcrossWorkers(t *testing.T) {
	items := make([]int, 500)
	for i := range items {
		items[i] = i + 1
	}

	total := ReduceChunks(context.Background(), items, DefaultPoolConfig(),
		func(_ context.Context, chunk []int, _ int) int {
			sum := 0
			for _, v := range chunk {
				sum += v
			}
			return sum
		},
		func(partials []int) int {
			sum := 0
			for _, p := range partials {
				sum += p
			}
			return sum
		},
	)
	assert.Equal(t, 500*501/2, total)
}

func TestReduceChunks_EmptyInput(t *testing.T) {
	total := ReduceChunks(context.Background(), []int{}, DefaultPoolConfig(),
		func(_ context.Context, chunk []int, _ int) int { return len(chunk) },
		func(partials []int) int { return len(partials) },
	)
	assert.Equal(t, 0, total)
}

func TestAggregateByKey_MergesAcrossWorkers(t *testing.T) {
	type rowFeature struct {
		Leaf int
		FID  int32
	}

	items := make([]rowFeature, 0, 300)
	for i := 0; i < 300; i++ {
		items = append(items, rowFeature{Leaf: i % 3, FID: int32(i % 2)})
	}

	counts := AggregateByKey(context.Background(), items, DefaultPoolConfig(),
		func(rf rowFeature) (rowFeature, int64) { return rowFeature{Leaf: rf.Leaf, FID: rf.FID}, 1 },
		func(existing, incoming int64) int64 { return existing + incoming },
	)

	var total int64
	for _, v := range counts {
		total += v
	}
	assert.Equal(t, int64(len(items)), total)
	assert.Equal(t, int64(50), counts[rowFeature{Leaf: 0, FID: 0}])
}

func TestAggregateByKey_EmptyInput(t *testing.T) {
	counts := AggregateByKey(context.Background(), []int{}, DefaultPoolConfig(),
		func(i int) (int, int) { return i, i },
		func(a, b int) int { return a + b },
	)
	assert.Empty(t, counts)
}
