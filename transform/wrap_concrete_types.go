package transform

import (
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/subschema"
)

// WrapConcreteTypes appends a `__typename` field to the selection set of
// every field whose return type is a concrete object type in the source
// schema, so the result still identifies its runtime type on the target
// side. It does not wrap the selection in an inline fragment, and fields
// whose return type is abstract are left unchanged.
type WrapConcreteTypes struct {
	baseTransform
	SourceSchema *ast.Schema
}

func NewWrapConcreteTypes(sourceSchema *ast.Schema) *WrapConcreteTypes {
	return &WrapConcreteTypes{SourceSchema: sourceSchema}
}

func (w *WrapConcreteTypes) TransformRequest(req *subschema.Request, _ *subschema.TransformContext) *subschema.Request {
	if req.Document == nil {
		return req
	}
	for _, op := range req.Document.Operations {
		w.wrapSet(op.SelectionSet)
	}
	return req
}

func (w *WrapConcreteTypes) wrapSet(set ast.SelectionSet) {
	for _, sel := range set {
		field, ok := sel.(*ast.Field)
		if !ok || field.SelectionSet == nil || field.Definition == nil {
			continue
		}

		retType := field.Definition.Type.Name()
		def, ok := w.SourceSchema.Types[retType]
		if ok && def.Kind == ast.Object {
			field.SelectionSet = append(field.SelectionSet, &ast.Field{
					Name: "__typename",
					Alias: "__typename",
					ObjectDefinition: def,
			})
		}

		w.wrapSet(field.SelectionSet)
	}
}
