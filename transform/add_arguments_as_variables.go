package transform

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/common"
	"github.com/fusionschema/stitch/subschema"
)

// AddArgumentsAsVariables lifts extra arguments carried by the delegation
// context (e.g. a merged-type entry point's synthesized key argument) into
// variables on the root field, so the value never has to be inlined as a
// literal in the delegated document.
type AddArgumentsAsVariables struct {
	baseTransform
	// ExtraArgs is applied to every root selection field other than
	// __typename; keys not
	// already present as an argument on that field are added as
	// `$name: value` variable references.
	ExtraArgs map[string]interface{}
}

func NewAddArgumentsAsVariables(extraArgs map[string]interface{}) *AddArgumentsAsVariables {
	return &AddArgumentsAsVariables{ExtraArgs: extraArgs}
}

func (a *AddArgumentsAsVariables) TransformRequest(req *subschema.Request, _ *subschema.TransformContext) *subschema.Request {
	if req.Document == nil || len(a.ExtraArgs) == 0 {
		return req
	}
	if req.Variables == nil {
		req.Variables = make(map[string]interface{})
	}

	for _, op := range req.Document.Operations {
		for _, sel := range op.SelectionSet {
			field, ok := sel.(*ast.Field)
			if !ok || field.Name == common.TypenameFieldName {
				continue
			}
			for name, val := range a.ExtraArgs {
				if field.Arguments.ForName(name) != nil {
					continue
				}
				varName := fmt.Sprintf("_v%d_%s", len(req.Variables), name)
				req.Variables[varName] = val
				field.Arguments = append(field.Arguments, &ast.Argument{
						Name: name,
						Value: &ast.Value{Kind: ast.Variable, Raw: varName},
				})
			}
		}
	}

	return req
}
