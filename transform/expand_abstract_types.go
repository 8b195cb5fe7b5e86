package transform

import (
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/subschema"
)

// ExpandAbstractTypes rewrites inline fragments on abstract types (unions,
// interfaces) to explicit fragments over the concrete implementations
// present in the target subschema, so a subschema missing a member of a
// caller-known union still receives a spreadable selection.
type ExpandAbstractTypes struct {
	baseTransform
	TargetSchema *ast.Schema
}

func NewExpandAbstractTypes(targetSchema *ast.Schema) *ExpandAbstractTypes {
	return &ExpandAbstractTypes{TargetSchema: targetSchema}
}

func (e *ExpandAbstractTypes) TransformRequest(req *subschema.Request, _ *subschema.TransformContext) *subschema.Request {
	if req.Document == nil {
		return req
	}
	for _, op := range req.Document.Operations {
		op.SelectionSet = e.expandSet(op.SelectionSet)
	}
	for _, frag := range req.Document.Fragments {
		frag.SelectionSet = e.expandSet(frag.SelectionSet)
	}
	return req
}

func (e *ExpandAbstractTypes) expandSet(set ast.SelectionSet) ast.SelectionSet {
	out := make(ast.SelectionSet, 0, len(set))
	for _, sel := range set {
		switch v := sel.(type) {
			case *ast.Field:
			v.SelectionSet = e.expandSet(v.SelectionSet)
			out = append(out, v)
			case *ast.InlineFragment:
			v.SelectionSet = e.expandSet(v.SelectionSet)
			def, ok := e.TargetSchema.Types[v.TypeCondition]
			if !ok || (def.Kind != ast.Union && def.Kind != ast.Interface) {
				out = append(out, v)
				continue
			}
			for _, implName := range e.implementations(v.TypeCondition) {
				cp := &ast.InlineFragment{
					TypeCondition: implName,
					Directives: v.Directives,
					SelectionSet: v.SelectionSet,
					ObjectDefinition: e.TargetSchema.Types[implName],
					Position: v.Position,
				}
				out = append(out, cp)
			}
			case *ast.FragmentSpread:
			out = append(out, v)
		}
	}
	return out
}

func (e *ExpandAbstractTypes) implementations(abstractName string) []string {
	def := e.TargetSchema.Types[abstractName]
	if def == nil {
		return nil
	}
	if def.Kind == ast.Union {
		return def.Types
	}
	var names []string
	for name, t := range e.TargetSchema.Types {
		if t.Kind != ast.Object {
			continue
		}
		for _, iface := range t.Interfaces {
			if iface == abstractName {
				names = append(names, name)
				break
			}
		}
	}
	return names
}
