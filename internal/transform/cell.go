package transform

import "sync"

// CellState is the lifecycle of a Cell.
type CellState int

const (
	NotComputed CellState = iota
	Succeeded
	Failed
)

func (s CellState) String() string {
	switch s {
	case NotComputed:
		return "not-computed"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Cell memoizes one computation. The first caller computes while later
// callers block on the lock, then every caller observes the same value or
// error. A failed computation is not retried.
type Cell[T any] struct {
	mu    sync.Mutex
	state CellState
	value T
	err   error
}

// Get returns the memoized result, computing it on first use.
func (c *Cell[T]) Get(compute func() (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == NotComputed {
		c.value, c.err = compute()
		if c.err != nil {
			c.state = Failed
		} else {
			c.state = Succeeded
		}
	}
	return c.value, c.err
}

// State reports whether the cell has been computed and how.
func (c *Cell[T]) State() CellState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
