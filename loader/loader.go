// Package loader implements the Per-Parent Batch Loader: a
// data loader keyed by external-object identity that coalesces sibling
// field resolves on the same parent into one planner invocation per tick.
package loader

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/common"
	"github.com/fusionschema/stitch/external"
	"github.com/fusionschema/stitch/planner"
	"github.com/fusionschema/stitch/stitching"
	"github.com/fusionschema/stitch/subschema"
)

// dispatchDelay is how long a batch waits for concurrently-resolving
// sibling fields to join before Load's own goroutine dispatches it via
// Flush. Flush is idempotent, so a caller-triggered Flush racing this
// timer is harmless — whichever runs first wins and the other is a no-op.
const dispatchDelay = time.Millisecond

// identity returns the underlying map header's address as a stable key for
// reference-equality lookups; external.Object is a map type and therefore
// not itself usable as a Go map key.
func identity(obj external.Object) uintptr {
	return reflect.ValueOf(obj).Pointer()
}

// PlanFunc is the planner entry point a Loader batches calls into,
// satisfied by planner.Plan.
type PlanFunc func(ctx context.Context, mt *stitching.MergedTypeInfo, parent external.Object, fieldNodes []*ast.Field, sources, targets []*subschema.Subschema) (*planner.Result, error)

type request struct {
	fieldNode *ast.Field
	result chan FieldOutcome
}

// FieldOutcome is what a Loader hands back to each caller once its parent's
// batch has been dispatched: either the object now carrying the requested
// field, or the error explaining why it never will.
type FieldOutcome struct {
	Value external.Object
	Err error
}

// batch is the in-flight coalescing window for one parent object. Every
// Load call for the same parent identity arriving before Flush joins the
// same batch and is dispatched together as one planner invocation.
type batch struct {
	// dispatchID identifies this coalescing window across Load/Flush for
	// tracing, distinct from the parent identity key used to look it up.
	dispatchID uuid.UUID
	mt *stitching.MergedTypeInfo
	parent external.Object
	sources []*subschema.Subschema
	targets []*subschema.Subschema
	requests []request
}

// Loader is a registry of in-flight batches keyed by parent identity. A
// Loader lives as long as whoever created it holds it (Gateway keeps one per
// merged type for its whole lifetime, shared across operations and
// parents); each batch is removed from it once dispatched.
type Loader struct {
	plan PlanFunc

	mu sync.Mutex
	batches map[uintptr]*batch
}

// New builds a Loader that dispatches coalesced batches through plan.
func New(plan PlanFunc) *Loader {
	return &Loader{plan: plan, batches: make(map[uintptr]*batch)}
}

// Load enqueues fieldNode's resolution against parent, tick-deferring
// dispatch until every synchronously-enqueued sibling in this call has also
// enqueued. Since this engine is not itself an event loop, the tick
// boundary is emulated with a short coalescing window keyed by parent
// identity: the first Load call for a parent starts a goroutine that sleeps
// dispatchDelay and then dispatches via Flush on the caller's behalf, giving
// concurrently-resolving sibling fields time to land in the same batch. A
// caller that already knows every sibling has enqueued may still call Flush
// itself to dispatch early.
func (l *Loader) Load(ctx context.Context, parent external.Object, mt *stitching.MergedTypeInfo, sources, targets []*subschema.Subschema, fieldNode *ast.Field) <-chan FieldOutcome {
	key := identity(parent)

	l.mu.Lock()
	b, ok := l.batches[key]
	if !ok {
		b = &batch{dispatchID: uuid.New(), mt: mt, parent: parent, sources: sources, targets: targets}
		l.batches[key] = b
		go l.dispatchAfter(ctx, parent, dispatchDelay)
	}
	ch := make(chan FieldOutcome, 1)
	b.requests = append(b.requests, request{fieldNode: fieldNode, result: ch})
	l.mu.Unlock()
	return ch
}

// dispatchAfter waits delay then flushes parent's batch, if it is still
// pending. It is the auto-dispatch half of the coalescing window Load opens.
func (l *Loader) dispatchAfter(ctx context.Context, parent external.Object, delay time.Duration) {
	time.Sleep(delay)
	_ = l.Flush(ctx, parent)
}

// Flush dispatches every batch accumulated for parent as a single planner
// invocation and fans the result back out to each waiting request.
func (l *Loader) Flush(ctx context.Context, parent external.Object) error {
	key := identity(parent)

	l.mu.Lock()
	b, ok := l.batches[key]
	if ok {
		delete(l.batches, key)
	}
	l.mu.Unlock()
	if !ok {
		return nil
	}

	fieldNodes := unionFieldNodes(b.requests)

	result, err := l.plan(ctx, b.mt, b.parent, fieldNodes, b.sources, b.targets)
	if err != nil {
		dispatchErr := fmt.Errorf("batch dispatch %s: %w", b.dispatchID, err)
		for _, r := range b.requests {
			r.result <- FieldOutcome{Err: dispatchErr}
		}
		return dispatchErr
	}

	for _, r := range b.requests {
		key := common.ResponseKey(r.fieldNode)
		if e, hasErr := result.Errors[key]; hasErr {
			r.result <- FieldOutcome{Err: e}
			continue
		}
		r.result <- FieldOutcome{Value: result.Parents[key]}
	}

	return nil
}

// unionFieldNodes deduplicates requested field nodes by response key.
func unionFieldNodes(requests []request) []*ast.Field {
	seen := make(map[string]bool)
	out := make([]*ast.Field, 0, len(requests))
	for _, r := range requests {
		key := common.ResponseKey(r.fieldNode)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r.fieldNode)
	}
	return out
}
