package engine

// # Replay and Determinism
//
// A cached edge is keyed by the SHA-256 of every input that can change its
// selection or step dependencies (see contextInputs). The same inputs
// always produce the same key, and the persisted snapshot records the
// outcome: component, variant names, the attribute-matching flag and the
// per-step dependencies.
//
// On a hit the engine replays the snapshot instead of recomputing:
//
//	[SelectComponent] -> [context key] -> [ReadEntry] -> [DecodeSnapshot]
//	                                                          |
//	                                  variants looked up by name, flag as persisted,
//	                                  frozen resolvers per step
//
// The attribute-matching flag is never recomputed on replay. Frozen
// resolvers answer the persisted files for every step and refuse
// dependency traversal.
//
// A snapshot that fails to decode, or names variants the component no
// longer publishes, is corrupt: the engine logs a warning, recomputes and
// overwrites the entry under the same key. Entries are never deleted.
//
// Verify recomputes a request with the cache disabled and compares the
// encoded outcome with the persisted bytes, edge by edge.

import (
	"bytes"
	"context"
	"errors"

	"github.com/roach88/graphres/internal/codec"
	"github.com/roach88/graphres/internal/store"
	"github.com/roach88/graphres/internal/transform"
)

// Replayed is a resolution recreated from the store alone.
type Replayed struct {
	ContextKey string
	Snapshot   codec.Snapshot
	Resolvers  transform.ResolverFactory
}

// Replay recreates the frozen resolution persisted under key.
// Returns an error wrapping store.ErrEntryNotFound if there is none and a
// codec.CorruptCacheEntryError if it cannot be decoded.
func (e *Engine) Replay(ctx context.Context, key string) (*Replayed, error) {
	if e.store == nil {
		return nil, invalidRequest("", "replay needs a store")
	}
	entry, err := e.store.ReadEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	snap, err := codec.DecodeSnapshot(entry.Payload)
	if err != nil {
		return nil, err
	}
	if err := e.store.TouchEntry(ctx, key, e.clock.Now()); err != nil {
		return nil, storeError("", "touch cache entry", err)
	}
	return &Replayed{
		ContextKey: key,
		Snapshot:   snap,
		Resolvers:  transform.NewSnapshotResolvers(snap.Steps),
	}, nil
}

// VerifyStatus is the outcome of comparing one edge with its entry.
type VerifyStatus string

const (
	VerifyMatch    VerifyStatus = "match"
	VerifyMismatch VerifyStatus = "mismatch"
	VerifyMissing  VerifyStatus = "missing"
	VerifyCorrupt  VerifyStatus = "corrupt"
	VerifySkipped  VerifyStatus = "skipped"
)

// EdgeVerification is the verification of one edge.
type EdgeVerification struct {
	EdgeID     string
	ContextKey string
	Status     VerifyStatus
}

// Verification lists every edge of a verified request in request order.
type Verification struct {
	Edges []EdgeVerification
}

// OK reports whether no edge mismatched or was corrupt. Missing and
// skipped edges do not fail verification.
func (v *Verification) OK() bool {
	for _, e := range v.Edges {
		if e.Status == VerifyMismatch || e.Status == VerifyCorrupt {
			return false
		}
	}
	return true
}

// Verify recomputes req without the cache and compares each cached edge
// with the bytes persisted under its key. Edges without a pipeline and
// failed edges are skipped. The store is only read.
func (e *Engine) Verify(ctx context.Context, req *Request) (*Verification, error) {
	if e.store == nil {
		return nil, invalidRequest("", "verify needs a store")
	}
	res, err := e.resolve(ctx, req, false)
	if err != nil {
		return nil, err
	}

	out := &Verification{Edges: make([]EdgeVerification, 0, len(res.Edges))}
	for _, r := range res.Edges {
		v := EdgeVerification{EdgeID: r.EdgeID, ContextKey: r.ContextKey, Status: VerifySkipped}
		if r.Failure != nil || r.ContextKey == "" {
			out.Edges = append(out.Edges, v)
			continue
		}

		want, err := codec.EncodeSnapshot(snapshotOf(r))
		if err != nil {
			return nil, &EngineError{Code: ErrCodeStore, Message: "encode snapshot", EdgeID: r.EdgeID, Err: err}
		}
		entry, err := e.store.ReadEntry(ctx, r.ContextKey)
		switch {
		case errors.Is(err, store.ErrEntryNotFound):
			v.Status = VerifyMissing
		case err != nil:
			return nil, storeError(r.EdgeID, "read cache entry", err)
		case bytes.Equal(entry.Payload, want):
			v.Status = VerifyMatch
		default:
			if _, derr := codec.DecodeSnapshot(entry.Payload); derr != nil {
				v.Status = VerifyCorrupt
			} else {
				v.Status = VerifyMismatch
			}
		}
		out.Edges = append(out.Edges, v)
	}

	e.logger.Info("verification finished", "resolution", res.ID, "edges", len(out.Edges), "ok", out.OK())
	return out, nil
}
