// Package transform implements the Request Transform Pipeline: an ordered, bidirectional list of transforms applied around a
// sub-request on the way out and around a sub-result on the way back.
package transform

import (
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/subschema"
)

// Pipeline is an ordered list of transforms, applied left-to-right on the
// request side and right-to-left on the result side.
type Pipeline struct {
	transforms []subschema.Transform
	contexts []*subschema.TransformContext
}

// New builds a Pipeline from ts in delegation order.
func New(ts []subschema.Transform) *Pipeline {
	return &Pipeline{transforms: ts}
}

// TransformRequest applies every transform's TransformRequest in order,
// each seeded with a fresh TransformContext that TransformResult on the
// same transform will later receive back.
func (p *Pipeline) TransformRequest(req *subschema.Request) *subschema.Request {
	p.contexts = make([]*subschema.TransformContext, len(p.transforms))
	for i, t := range p.transforms {
		tctx := subschema.NewTransformContext()
		p.contexts[i] = tctx
		req = t.TransformRequest(req, tctx)
	}
	return req
}

// TransformResult applies every transform's TransformResult in reverse
// order, each receiving the TransformContext its TransformRequest call
// populated.
func (p *Pipeline) TransformResult(res *subschema.Result) *subschema.Result {
	for i := len(p.transforms) - 1; i >= 0; i-- {
		tctx := p.contexts[i]
		if tctx == nil {
			tctx = subschema.NewTransformContext()
		}
		res = p.transforms[i].TransformResult(res, tctx)
	}
	return res
}

// baseTransform gives every built-in a no-op default for the methods it
// doesn't care about, so each built-in below only needs to implement the
// one or two methods relevant to it.
type baseTransform struct{}

func (baseTransform) TransformSchema(schema *ast.Schema) *ast.Schema {
	return schema
}

func (baseTransform) TransformRequest(req *subschema.Request, _ *subschema.TransformContext) *subschema.Request {
	return req
}

func (baseTransform) TransformResult(res *subschema.Result, _ *subschema.TransformContext) *subschema.Result {
	return res
}
