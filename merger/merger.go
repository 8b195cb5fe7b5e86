// Package merger implements the Type Merger: for every name
// collected by the Type Candidate Registry it decides whether to merge every
// candidate into one output type or choose a single winner, then rewires
// the resulting type map into a referentially consistent whole.
package merger

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap"

	"github.com/fusionschema/stitch/common"
	"github.com/fusionschema/stitch/gqlerrors"
	"github.com/fusionschema/stitch/registry"
)

// MergeTypes selects which names are merge candidates rather than
// choose candidates.
// The zero-value MergeTypes behaves as false: nothing is merged except operation
// roots and names already carrying a subschema merge config.
type MergeTypes struct {
	All bool
	Names map[string]bool
	Predicate func(name string, candidates []*registry.Candidate) bool
}

func (m MergeTypes) selects(name string, candidates []*registry.Candidate) bool {
	if m.All {
		return true
	}
	if m.Names != nil && m.Names[name] {
		return true
	}
	if m.Predicate != nil {
		return m.Predicate(name, candidates)
	}
	return false
}

// ConflictInfo is passed to OnTypeConflict so a caller can see provenance
// when picking a winner.
type ConflictInfo struct {
	Left *registry.Candidate
	Right *registry.Candidate
}

// OnTypeConflict resolves a choose-type conflict between two candidates,
// reduced left to right over the whole candidate list.
type OnTypeConflict func(prev, next *ast.Definition, info ConflictInfo) *ast.Definition

// Result is the output of Merge: a referentially consistent type map plus
// the set of names that were merged (rather than chosen), which the
// Stitching Index (C3) needs to know which types require merge resolvers.
type Result struct {
	Types map[string]*ast.Definition
	Directives ast.DirectiveDefinitionList
	MergedType map[string]bool
}

// Merge reduces reg's candidates per name into a single composed type map
//. hasMergeConfig reports whether at least one subschema
// declared a MergedTypeConfig for name; it is computed by the caller from the raw
// subschema list before StitchingInfo exists, breaking the circularity.
func Merge(reg *registry.Registry, mt MergeTypes, onConflict OnTypeConflict, hasMergeConfig func(name string) bool, logger *zap.Logger) (*Result, error) {
	if onConflict == nil {
		onConflict = lastWriteWins
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	result := &Result{
		Types: make(map[string]*ast.Definition, len(reg.Candidates)),
		Directives: sortedDirectives(reg.Directives),
		MergedType: make(map[string]bool),
	}

	names := reg.Names()
	sort.Strings(names)

	for _, name := range names {
		candidates := reg.Candidates[name]
		if len(candidates) == 0 {
			continue
		}

		shouldMerge := common.IsRootObjectName(name) ||
		hasMergeConfig(name) ||
		(mt.selects(name, candidates) && !anySpecifiedScalar(candidates))

		var merged *ast.Definition
		var err error
		if shouldMerge {
			merged, err = mergeCandidates(name, candidates)
			result.MergedType[name] = true
		} else {
			merged, err = chooseCandidate(candidates, onConflict)
			if len(candidates) > 1 {
				logger.Warn("type chosen over merged",
					zap.String("type", name),
					zap.Int("candidates", len(candidates)))
			}
		}
		if err != nil {
			return nil, err
		}

		result.Types[name] = merged
	}

	rewireTypes(result.Types)

	return result, nil
}

func anySpecifiedScalar(candidates []*registry.Candidate) bool {
	return lo.ContainsBy(candidates, func(c *registry.Candidate) bool {
			return c.Type.Kind == ast.Scalar && common.IsBuiltinName(c.Type.Name)
	})
}

func lastWriteWins(_, next *ast.Definition, _ ConflictInfo) *ast.Definition {
	return next
}

// chooseCandidate reduces left to right through candidates with onConflict,
// starting from the first.
func chooseCandidate(candidates []*registry.Candidate, onConflict OnTypeConflict) (*ast.Definition, error) {
	winner := candidates[0]
	for i := 1; i < len(candidates); i++ {
		next := candidates[i]
		chosen := onConflict(winner.Type, next.Type, ConflictInfo{Left: winner, Right: next})
		if chosen == next.Type {
			winner = next
		}
	}
	return winner.Type, nil
}

// mergeCandidates unions fields, interfaces, enum values, input fields and
// union members across every candidate, honoring canonical ownership for
// description, directives, default values, and field types on conflict.
func mergeCandidates(name string, candidates []*registry.Candidate) (*ast.Definition, error) {
	kind := candidates[0].Type.Kind
	for _, c := range candidates[1:] {
		if c.Type.Kind != kind {
			return nil, gqlerrors.NewConfigurationError(
				fmt.Errorf("type %q has conflicting kinds across subschemas: %s vs %s", name, kind, c.Type.Kind))
		}
	}

	canonical := canonicalCandidate(candidates)

	out := &ast.Definition{
		Kind: kind,
		Name: name,
		Description: canonical.Type.Description,
		Directives: append(ast.DirectiveList{}, canonical.Type.Directives...),
		Position: canonical.Type.Position,
	}

	switch kind {
		case ast.Object, ast.InputObject:
		out.Fields = mergeFieldLists(candidates, canonical)
		out.Interfaces = mergeInterfaces(candidates)
		case ast.Interface:
		out.Fields = mergeFieldLists(candidates, canonical)
		out.Interfaces = mergeInterfaces(candidates)
		case ast.Union:
		out.Types = mergeUnionMembers(candidates)
		case ast.Enum:
		out.EnumValues = mergeEnumValues(candidates, canonical)
		case ast.Scalar:
		// Invariant 1: a scalar's identity is preserved from
		// its canonical subschema; there is nothing else to union.
	}

	return out, nil
}

// canonicalCandidate returns the subschema-designated authoritative
// candidate, defaulting to the last one if none is marked.
func canonicalCandidate(candidates []*registry.Candidate) *registry.Candidate {
	for _, c := range candidates {
		if c.Subschema == nil {
			continue
		}
		if cfg, ok := c.Subschema.Merge[c.Type.Name]; ok && cfg.Canonical {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

func mergeFieldLists(candidates []*registry.Candidate, canonical *registry.Candidate) ast.FieldList {
	byName := make(map[string]*ast.FieldDefinition)
	order := make([]string, 0)

	for _, c := range candidates {
		for _, f := range c.Type.Fields {
			existing, ok := byName[f.Name]
			if !ok {
				cp := *f
				byName[f.Name] = &cp
				order = append(order, f.Name)
				continue
			}
			// canonical field type/description/directives win on conflict.
			if isCanonicalField(canonical, c, f.Name) {
				merged := *f
				merged.Arguments = existing.Arguments
				byName[f.Name] = &merged
			}
		}
	}

	fields := make(ast.FieldList, 0, len(order))
	for _, name := range order {
		fields = append(fields, byName[name])
	}
	return fields
}

func isCanonicalField(canonical *registry.Candidate, current *registry.Candidate, fieldName string) bool {
	if current == canonical {
		return true
	}
	if current.Subschema == nil {
		return false
	}
	cfg, ok := current.Subschema.Merge[current.Type.Name]
	if !ok || cfg.CanonicalFields == nil {
		return false
	}
	return cfg.CanonicalFields[fieldName]
}

func mergeInterfaces(candidates []*registry.Candidate) []string {
	var out []string
	for _, c := range candidates {
		out = append(out, c.Type.Interfaces...)
	}
	return lo.Uniq(out)
}

func mergeUnionMembers(candidates []*registry.Candidate) []string {
	var out []string
	for _, c := range candidates {
		out = append(out, c.Type.Types...)
	}
	return lo.Uniq(out)
}

func mergeEnumValues(candidates []*registry.Candidate, canonical *registry.Candidate) ast.EnumValueList {
	byName := make(map[string]*ast.EnumValueDefinition)
	order := make([]string, 0)

	for _, c := range candidates {
		for _, v := range c.Type.EnumValues {
			if _, ok := byName[v.Name]; !ok {
				cp := *v
				byName[v.Name] = &cp
				order = append(order, v.Name)
			} else if c == canonical {
				cp := *v
				byName[v.Name] = &cp
			}
		}
	}

	values := make(ast.EnumValueList, 0, len(order))
	for _, name := range order {
		values = append(values, byName[name])
	}
	return values
}

// rewireTypes rebuilds every *ast.Type reference held indirectly through
// field/argument definitions so the returned type map is referentially
// consistent. Since gqlparser's ast.Type only carries a NamedType string
// plus wrapping info, no pointer surgery is required beyond ensuring every
// field's type points at a name present in types; a dangling reference is
// left for the executor to reject at validation time, matching gqlparser's
// own "unknown references do not throw here" behavior at schema load.
func rewireTypes(types map[string]*ast.Definition) {
	for _, def := range types {
		for _, f := range def.Fields {
			f.Type = rewireType(f.Type, types)
		}
	}
}

func rewireType(t *ast.Type, types map[string]*ast.Definition) *ast.Type {
	if t == nil {
		return nil
	}
	if t.Elem != nil {
		return &ast.Type{Elem: rewireType(t.Elem, types), NonNull: t.NonNull, Position: t.Position}
	}
	if _, ok := types[t.NamedType]; !ok {
		return t
	}
	return t
}

func sortedDirectives(directives map[string]*ast.DirectiveDefinition) ast.DirectiveDefinitionList {
	names := make([]string, 0, len(directives))
	for name := range directives {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make(ast.DirectiveDefinitionList, 0, len(names))
	for _, name := range names {
		list = append(list, directives[name])
	}
	return list
}
