package transform

import (
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/subschema"
)

// FilterToSchema drops fields, fragments, variables, and arguments not
// present in the target schema, then drops selection sets left empty by
// that pruning, then drops variable definitions no longer referenced. It
// runs last on the request side and is idempotent: filtering an
// already-filtered document against the same schema changes nothing.
type FilterToSchema struct {
	baseTransform
	TargetSchema *ast.Schema
}

func NewFilterToSchema(targetSchema *ast.Schema) *FilterToSchema {
	return &FilterToSchema{TargetSchema: targetSchema}
}

func (f *FilterToSchema) TransformRequest(req *subschema.Request, _ *subschema.TransformContext) *subschema.Request {
	if req.Document == nil {
		return req
	}

	for _, frag := range req.Document.Fragments {
		def, ok := f.TargetSchema.Types[frag.TypeCondition]
		if !ok {
			continue
		}
		frag.SelectionSet = f.filterSet(frag.SelectionSet, def)
	}

	for _, op := range req.Document.Operations {
		var rootName string
		switch op.Operation {
			case ast.Mutation:
			rootName = f.TargetSchema.Mutation.Name
			case ast.Subscription:
			rootName = f.TargetSchema.Subscription.Name
			default:
			rootName = f.TargetSchema.Query.Name
		}
		rootDef := f.TargetSchema.Types[rootName]
		op.SelectionSet = f.filterSet(op.SelectionSet, rootDef)
		op.VariableDefinitions = f.filterUnusedVariables(op.VariableDefinitions, op.SelectionSet)
	}

	req.Document.Fragments = f.dropEmptyFragments(req.Document.Fragments)

	return req
}

func (f *FilterToSchema) filterSet(set ast.SelectionSet, parent *ast.Definition) ast.SelectionSet {
	if parent == nil {
		return nil
	}

	out := make(ast.SelectionSet, 0, len(set))
	for _, sel := range set {
		switch v := sel.(type) {
			case *ast.Field:
			fieldDef := parent.Fields.ForName(v.Name)
			if fieldDef == nil && v.Name != "__typename" {
				continue
			}
			var childParent *ast.Definition
			if fieldDef != nil {
				childParent = f.TargetSchema.Types[fieldDef.Type.Name()]
			}
			v.Arguments = f.filterArguments(v.Arguments, fieldDef)
			v.SelectionSet = f.filterSet(v.SelectionSet, childParent)
			if fieldDef != nil && fieldDef.Type.NamedType != "" && len(v.SelectionSet) == 0 && childParent != nil && len(childParent.Fields) > 0 {
				// a field expecting a non-leaf selection set that lost
				// all its children is dropped rather than sent empty.
				continue
			}
			out = append(out, v)

			case *ast.InlineFragment:
			cond := parent
			if v.TypeCondition != "" {
				def, ok := f.TargetSchema.Types[v.TypeCondition]
				if !ok {
					continue
				}
				cond = def
			}
			v.SelectionSet = f.filterSet(v.SelectionSet, cond)
			if len(v.SelectionSet) == 0 {
				continue
			}
			out = append(out, v)

			case *ast.FragmentSpread:
			if _, ok := f.TargetSchema.Types[v.Definition.TypeCondition]; !ok {
				continue
			}
			out = append(out, v)
		}
	}
	return out
}

func (f *FilterToSchema) filterArguments(args ast.ArgumentList, fieldDef *ast.FieldDefinition) ast.ArgumentList {
	if fieldDef == nil {
		return nil
	}
	out := make(ast.ArgumentList, 0, len(args))
	for _, a := range args {
		if fieldDef.Arguments.ForName(a.Name) != nil {
			out = append(out, a)
		}
	}
	return out
}

func (f *FilterToSchema) filterUnusedVariables(defs ast.VariableDefinitionList, set ast.SelectionSet) ast.VariableDefinitionList {
	used := make(map[string]bool)
	collectVariableUses(set, used)

	out := make(ast.VariableDefinitionList, 0, len(defs))
	for _, d := range defs {
		if used[d.Variable] {
			out = append(out, d)
		}
	}
	return out
}

func collectVariableUses(set ast.SelectionSet, used map[string]bool) {
	for _, sel := range set {
		switch v := sel.(type) {
			case *ast.Field:
			for _, a := range v.Arguments {
				markVariables(a.Value, used)
			}
			collectVariableUses(v.SelectionSet, used)
			case *ast.InlineFragment:
			collectVariableUses(v.SelectionSet, used)
			case *ast.FragmentSpread:
			collectVariableUses(v.Definition.SelectionSet, used)
		}
	}
}

func markVariables(v *ast.Value, used map[string]bool) {
	if v == nil {
		return
	}
	if v.Kind == ast.Variable {
		used[v.Raw] = true
		return
	}
	for _, child := range v.Children {
		markVariables(child.Value, used)
	}
}

func (f *FilterToSchema) dropEmptyFragments(frags ast.FragmentDefinitionList) ast.FragmentDefinitionList {
	out := make(ast.FragmentDefinitionList, 0, len(frags))
	for _, frag := range frags {
		if len(frag.SelectionSet) == 0 {
			continue
		}
		out = append(out, frag)
	}
	return out
}
