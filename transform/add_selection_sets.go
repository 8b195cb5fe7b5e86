package transform

import (
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/subschema"
)

// AddSelectionSets merges the Stitching Index's required key/computed-field
// selection set into every occurrence of a merged type in the outgoing
// request, so the target subschema receives whatever it needs to serve a
// merged-parent request later.
type AddSelectionSets struct {
	baseTransform
	// SelectionSetsByType maps a type name to the selection set every
	// occurrence of that type must carry.
	SelectionSetsByType map[string]ast.SelectionSet
	// SelectionSetsByField maps typeName/fieldName to the computed-field
	// dependency selection set.
	SelectionSetsByField map[string]map[string]ast.SelectionSet
}

func NewAddSelectionSets(byType map[string]ast.SelectionSet, byField map[string]map[string]ast.SelectionSet) *AddSelectionSets {
	return &AddSelectionSets{SelectionSetsByType: byType, SelectionSetsByField: byField}
}

func (a *AddSelectionSets) TransformRequest(req *subschema.Request, _ *subschema.TransformContext) *subschema.Request {
	if req.Document == nil {
		return req
	}
	for _, op := range req.Document.Operations {
		a.visit(op.SelectionSet)
	}
	return req
}

func (a *AddSelectionSets) visit(set ast.SelectionSet) {
	for _, sel := range set {
		field, ok := sel.(*ast.Field)
		if !ok || field.SelectionSet == nil {
			continue
		}

		typeName := ""
		if field.Definition != nil {
			typeName = field.Definition.Type.Name()
		}

		if extra, ok := a.SelectionSetsByType[typeName]; ok {
			field.SelectionSet = mergeSelectionSets(field.SelectionSet, extra)
		}
		if perField, ok := a.SelectionSetsByField[typeName]; ok {
			if extra, ok := perField[field.Name]; ok {
				field.SelectionSet = mergeSelectionSets(field.SelectionSet, extra)
			}
		}

		a.visit(field.SelectionSet)
	}
}

// mergeSelectionSets appends fields from extra not already present by name
// in base, preserving base's ordering.
func mergeSelectionSets(base, extra ast.SelectionSet) ast.SelectionSet {
	present := make(map[string]bool)
	for _, sel := range base {
		if f, ok := sel.(*ast.Field); ok {
			present[f.Name] = true
		}
	}
	out := append(ast.SelectionSet{}, base...)
	for _, sel := range extra {
		if f, ok := sel.(*ast.Field); ok {
			if present[f.Name] {
				continue
			}
			present[f.Name] = true
		}
		out = append(out, sel)
	}
	return out
}
