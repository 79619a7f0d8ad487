// Package engine resolves dependency edges to variants and caches the
// transform dependencies of each edge.
//
// ARCHITECTURE:
//
// Per-edge resolution:
//  1. depmeta.SelectComponent picks the target among the candidates
//  2. edges with a transform pipeline compute their context key
//  3. a cache hit replays the persisted snapshot (see replay.go)
//  4. otherwise the edge's metadata selects variants and the pipeline's
//     step dependencies are resolved, encoded and persisted
//
// Bounded concurrency:
// Edges of a request run on an errgroup worker pool (WithWorkers). Results
// are written by index, so their order is the request order whatever the
// scheduling. Selections are pure functions of their inputs.
//
// Error handling:
// Edge failures are values: they land in Result.Failures and Result.Err
// reports them together. Structural failures (EngineError, cancellation)
// abort the request.
//
// CRITICAL PATTERNS:
//
// Content addressing
// The context key is ir.ContextKey over canonical JSON of the inputs,
// including ir.EngineVersion, so an engine upgrade never reads stale
// entries.
//
// Never delete
// The engine only upserts and touches entries. Cleanup is external.
package engine
