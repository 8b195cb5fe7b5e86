package transform

import (
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/common"
	"github.com/fusionschema/stitch/subschema"
)

// AddTypename ensures every non-empty selection set carries a __typename
// field, idempotently ( "AddTypename ensures every selection set
// with a field has a __typename alongside"; §9 property
// "AddTypename(AddTypename(doc)) ≡ AddTypename(doc)"). It runs last among
// the built-ins after any field-dropping transform.
type AddTypename struct {
	baseTransform
}

func NewAddTypename() *AddTypename {
	return &AddTypename{}
}

func (a *AddTypename) TransformRequest(req *subschema.Request, _ *subschema.TransformContext) *subschema.Request {
	if req.Document == nil {
		return req
	}
	for _, op := range req.Document.Operations {
		op.SelectionSet = addTypename(op.SelectionSet)
	}
	return req
}

func addTypename(set ast.SelectionSet) ast.SelectionSet {
	if len(set) == 0 {
		return set
	}

	hasTypename := false
	for _, sel := range set {
		switch v := sel.(type) {
			case *ast.Field:
			if v.Name == common.TypenameFieldName {
				hasTypename = true
			}
			v.SelectionSet = addTypename(v.SelectionSet)
			case *ast.InlineFragment:
			v.SelectionSet = addTypename(v.SelectionSet)
			case *ast.FragmentSpread:
			v.Definition.SelectionSet = addTypename(v.Definition.SelectionSet)
		}
	}

	if hasTypename {
		return set
	}

	return append(set, &ast.Field{Name: common.TypenameFieldName, Alias: common.TypenameFieldName})
}
