package engine

import "fmt"

// DefaultMaxEdges bounds the edges of a single request. A request beyond
// the limit is rejected before any edge is resolved.
const DefaultMaxEdges = 10000

// DefaultWorkers is the default size of the edge worker pool.
const DefaultWorkers = 8

// checkEdgeLimit validates a request's edge count against the limit.
// A limit of zero or less disables the check.
func checkEdgeLimit(edges, limit int) error {
	if limit <= 0 || edges <= limit {
		return nil
	}
	return &EngineError{
		Code:    ErrCodeEdgeLimit,
		Message: fmt.Sprintf("request has %d edges, limit is %d", edges, limit),
	}
}
