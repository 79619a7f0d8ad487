package transform

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellComputesOnce(t *testing.T) {
	var c Cell[int]
	var calls atomic.Int32
	assert.Equal(t, NotComputed, c.State())

	var wg sync.WaitGroup
	results := make([]int, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(func() (int, error) {
				calls.Add(1)
				return 42, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, Succeeded, c.State())
}

func TestCellRemembersFailure(t *testing.T) {
	var c Cell[string]
	boom := errors.New("boom")

	_, err := c.Get(func() (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, Failed, c.State())

	_, err = c.Get(func() (string, error) { return "ok", nil })
	assert.ErrorIs(t, err, boom, "a failed cell is not recomputed")
}

func TestCellStateString(t *testing.T) {
	assert.Equal(t, "not-computed", NotComputed.String())
	assert.Equal(t, "succeeded", Succeeded.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", CellState(9).String())
}
