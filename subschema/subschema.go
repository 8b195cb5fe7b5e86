// Package subschema holds the data model an executable subschema is
// described with and the request
// envelope used to talk to it.
package subschema

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"
)

// Transform is the capability interface every request/result transform in
// the pipeline implements. Any subset of the three
// methods may be a no-op; TransformContext is created fresh for every
// delegation and threads state from the request side to the result side.
type Transform interface {
	// TransformSchema rewrites the subschema's advertised schema at
	// composition time. May return the input unchanged; the built-in
	// transforms all do.
	TransformSchema(schema *ast.Schema) *ast.Schema

	// TransformRequest rewrites an outgoing Request before it is sent to
	// the subschema's executor. tctx is this transform's private
	// per-delegation scratch space.
	TransformRequest(req *Request, tctx *TransformContext) *Request

	// TransformResult rewrites an incoming Result on the way back from
	// the subschema's executor, symmetric with TransformRequest.
	TransformResult(res *Result, tctx *TransformContext) *Result
}

// TransformContext is a transform's private, per-delegation scratch space,
// initialized empty on every delegation and never shared across transforms.
type TransformContext struct {
	data map[string]interface{}
}

// NewTransformContext allocates an empty TransformContext.
func NewTransformContext() *TransformContext {
	return &TransformContext{data: make(map[string]interface{})}
}

// Set stores a value under key for later retrieval by the same transform's
// TransformResult call.
func (t *TransformContext) Set(key string, value interface{}) {
	t.data[key] = value
}

// Get retrieves a value previously stored with Set.
func (t *TransformContext) Get(key string) (interface{}, bool) {
	v, ok := t.data[key]
	return v, ok
}

// Request is a request en route to a subschema's executor. document holds only the operation being delegated (already
// filtered to a single operation) plus whatever fragments it references.
type Request struct {
	Document *ast.QueryDocument
	Variables map[string]interface{}
	OperationName string
	OperationType ast.Operation
	RootValue interface{}
	Context context.Context
}

// Patch is one item of an AsyncIterable a streaming executor produces: the
// first patch is the initial result, later ones are `@defer`/`@stream`
// increments.
type Patch struct {
	Data map[string]interface{}
	Errors []error
	Path []interface{}
	Label string
	HasNext bool
}

// Result is a subschema's synchronous execution result.
type Result struct {
	Data map[string]interface{}
	Errors []error
}

// AsyncResult is what Executor returns for a streaming operation: the first
// value observed on Patches is defined to be the initial result.
type AsyncResult struct {
	Patches <-chan Patch
	// Close, if non-nil, cancels the underlying stream — invoked by the
	// Receiver when numRequests reaches zero.
	Close func()
}

// Executor is the callable a Subschema uses to run a Request. Exactly one of the two return values is non-nil.
// Network transports, retries, and auth are the caller's concern — this
// interface is the entire surface the core consumes from that collaborator.
type Executor func(req *Request) (*Result, *AsyncResult, error)

// ProxyingResolverFactory builds a resolver for a root or merged-type field.
// Nothing in this module calls one: root fields are delegated directly by
// the gateway's handler, and Subschema.CreateProxyingResolver is not read.
type ProxyingResolverFactory func(info ProxyingResolverInfo) Resolver

// ProxyingResolverInfo is the argument passed to a ProxyingResolverFactory.
type ProxyingResolverInfo struct {
	Subschema *Subschema
	FieldName string
	OperationType ast.Operation
}

// Resolver resolves one field on a parent value. Its signature is shared by
// proxying resolvers (C3), the default merged resolver (C9), and any plain
// user-supplied resolver.
type Resolver func(ctx context.Context, parent interface{}, args map[string]interface{}, info *ResolveInfo) (interface{}, error)

// ResolveInfo is the subset of standard-executor resolve info the core
// needs: the requested field node (for its selection set, arguments and
// alias) plus the static return type it must produce.
type ResolveInfo struct {
	FieldName string
	FieldNodes []*ast.Field
	ReturnType *ast.Type
	ParentType *ast.Definition
	Operation *ast.OperationDefinition
	Variables map[string]interface{}
	Schema *ast.Schema
}

// MergedFieldConfig is per-field merge configuration for one subschema's
// view of a merged type.
type MergedFieldConfig struct {
	// SelectionSet is the computed-field dependency: fields this
	// subschema needs already present on the parent before it can serve
	// Computed. Parsed once at composition.
	SelectionSet ast.SelectionSet
	Computed bool
}

// EntryPoint describes how to fetch a merged type from this subschema: it
// is either a single-value entry point keyed by Args, or (when Batch is
// true) a list entry point keyed by Key/ArgsFromKeys.
type EntryPoint struct {
	FieldName string
	Batch bool

	// Key is the list of parent-object fields threaded into ArgsFromKeys
	// for a batched entry point (e.g. ["id"]).
	Key []string
	// ArgsFromKeys builds one root-field argument set per requested key
	// tuple, for batched entry points.
	ArgsFromKeys func(keys []interface{}) map[string]interface{}

	// Args builds the root-field argument set for a singular entry
	// point directly from the parent object.
	Args func(parent map[string]interface{}) map[string]interface{}
}

// MergedTypeConfig is one subschema's contribution to a merged type.
type MergedTypeConfig struct {
	// SelectionSet is the key selection set this subschema requires as
	// input whenever the type leaves it and must be re-entered
	// elsewhere.
	SelectionSet ast.SelectionSet

	Fields map[string]*MergedFieldConfig

	EntryPoint *EntryPoint

	// Canonical marks this subschema as the authoritative definition
	// source for the type at large.
	Canonical bool
	// CanonicalFields marks individual fields as canonical independent
	// of the type-level flag.
	CanonicalFields map[string]bool
}

// Subschema is one executable schema plus its stitching configuration.
type Subschema struct {
	Name string
	Schema *ast.Schema
	// TransformedSchema is Schema after every Transforms[i].TransformSchema
	// has been applied in order.
	TransformedSchema *ast.Schema

	Transforms []Transform

	// Merge maps a composed type name to this subschema's merge
	// configuration for it.
	Merge map[string]*MergedTypeConfig

	CreateProxyingResolver ProxyingResolverFactory

	Executor Executor

	// Batch is carried as configuration only; composition does not read
	// it. Each entry point's shape is set by its own EntryPoint.Batch.
	Batch bool
}

// ApplySchemaTransforms computes TransformedSchema by folding every
// transform's TransformSchema over Schema, left to right.
func (s *Subschema) ApplySchemaTransforms() {
	schema := s.Schema
	for _, t := range s.Transforms {
		schema = t.TransformSchema(schema)
	}
	s.TransformedSchema = schema
}
