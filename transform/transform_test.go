package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/subschema"
)

func TestAddTypenameIsIdempotent(t *testing.T) {
	set := ast.SelectionSet{&ast.Field{Name: "id"}}

	once := addTypename(append(ast.SelectionSet{}, set...))
	twice := addTypename(append(ast.SelectionSet{}, once...))

	assert.Len(t, once, 2)
	assert.Len(t, twice, 2)
}

func TestAddTypenameRecursesIntoChildSelections(t *testing.T) {
	child := ast.SelectionSet{&ast.Field{Name: "name"}}
	set := ast.SelectionSet{&ast.Field{Name: "author", SelectionSet: child}}

	out := addTypename(set)

	author := out[0].(*ast.Field)
	assert.Len(t, author.SelectionSet, 2)
}

func TestMergeSelectionSetsSkipsDuplicateFieldNames(t *testing.T) {
	base := ast.SelectionSet{&ast.Field{Name: "id"}}
	extra := ast.SelectionSet{&ast.Field{Name: "id"}, &ast.Field{Name: "email"}}

	out := mergeSelectionSets(base, extra)

	assert.Len(t, out, 2)
}

func TestPipelineThreadsTransformContextBetweenRequestAndResult(t *testing.T) {
	seen := make(chan interface{}, 1)
	rt := &recordingTransform{seen: seen}
	p := New([]subschema.Transform{rt})

	req := &subschema.Request{Variables: map[string]interface{}{}}
	p.TransformRequest(req)
	p.TransformResult(&subschema.Result{})

	v := <-seen
	assert.Equal(t, "marked", v)
}

type recordingTransform struct {
	baseTransform
	seen chan interface{}
}

func (r *recordingTransform) TransformRequest(req *subschema.Request, tctx *subschema.TransformContext) *subschema.Request {
	tctx.Set("k", "marked")
	return req
}

func (r *recordingTransform) TransformResult(res *subschema.Result, tctx *subschema.TransformContext) *subschema.Result {
	v, _ := tctx.Get("k")
	r.seen <- v
	return res
}
