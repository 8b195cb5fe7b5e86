// Package registry implements the Type Candidate Registry:
// it collects every named type contributed by every wrapped subschema, by
// user-supplied extension typeDefs, and by user-supplied types, and groups
// them by name for the Type Merger (C2) to reduce.
package registry

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/common"
	"github.com/fusionschema/stitch/subschema"
)

// Candidate is one named-type contribution toward the composed schema.
type Candidate struct {
	Type *ast.Definition
	Subschema *subschema.Subschema
	// TransformedType is the same definition as it appears in the
	// subschema's TransformedSchema, used by C3 to decide field
	// ownership post-transform.
	TransformedType *ast.Definition
}

// Registry is typeName -> ordered candidate list, plus a merged directive
// definition table.
type Registry struct {
	Candidates map[string][]*Candidate
	Directives map[string]*ast.DirectiveDefinition

	// RootCandidates holds the three operation root names so C2 always merges them
	// regardless of mergeTypes.
	RootCandidates map[string]bool

	MergeDirectives bool
}

// New allocates an empty Registry. mergeDirectives selects how duplicate
// directive definitions are handled: false keeps the last definition seen
// for a name, true keeps the first. Definitions are never combined.
func New(mergeDirectives bool) *Registry {
	return &Registry{
		Candidates: make(map[string][]*Candidate),
		Directives: make(map[string]*ast.DirectiveDefinition),
		RootCandidates: make(map[string]bool),
		MergeDirectives: mergeDirectives,
	}
}

// AddSubschema collects every non-introspection named type of sub (using
// its transformed schema for field-shape decisions, its original schema for
// identity) as one candidate each.
func (r *Registry) AddSubschema(sub *subschema.Subschema) error {
	if sub.Schema == nil {
		return fmt.Errorf("subschema %q has no schema", sub.Name)
	}
	if sub.TransformedSchema == nil {
		sub.TransformedSchema = sub.Schema
	}

	for name, def := range sub.Schema.Types {
		if isIntrospectionType(name) {
			continue
		}

		transformed := sub.TransformedSchema.Types[name]

		r.Candidates[name] = append(r.Candidates[name], &Candidate{
				Type: def,
				Subschema: sub,
				TransformedType: transformed,
		})

		if common.IsRootObjectName(name) {
			r.RootCandidates[name] = true
		}
	}

	directives := make(ast.DirectiveDefinitionList, 0, len(sub.Schema.Directives))
	for _, d := range sub.Schema.Directives {
		directives = append(directives, d)
	}
	r.addDirectives(directives)

	return nil
}

// AddTypeDefs parses an SDL extension document and adds every definition in
// it as a userland candidate.
func (r *Registry) AddTypeDefs(doc *ast.SchemaDocument) error {
	for _, def := range doc.Definitions {
		r.Candidates[def.Name] = append(r.Candidates[def.Name], &Candidate{Type: def})
		if common.IsRootObjectName(def.Name) {
			r.RootCandidates[def.Name] = true
		}
	}

	r.addDirectives(doc.Directives)

	return nil
}

// AddTypes adds pre-built *ast.Definition values as userland candidates.
func (r *Registry) AddTypes(defs...*ast.Definition) {
	for _, def := range defs {
		r.Candidates[def.Name] = append(r.Candidates[def.Name], &Candidate{Type: def})
	}
}

func (r *Registry) addDirectives(defs ast.DirectiveDefinitionList) {
	for _, d := range defs {
		if !r.MergeDirectives {
			r.Directives[d.Name] = d
			continue
		}
		if _, ok := r.Directives[d.Name]; !ok {
			r.Directives[d.Name] = d
		}
	}
}

// Names returns every collected type name, that is, every name with at
// least one candidate, in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Candidates))
	for name := range r.Candidates {
		names = append(names, name)
	}
	return names
}

func isIntrospectionType(name string) bool {
	switch name {
		case "__Schema", "__Type", "__Field", "__InputValue", "__EnumValue", "__Directive", "__TypeKind", "__DirectiveLocation":
		return true
		default:
		return false
	}
}
