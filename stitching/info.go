// Package stitching implements the Stitching Index: the
// process-wide, immutable StitchingInfo built once per composition call,
// along with the per-subschema merged-type entry-point resolvers. Root
// fields are delegated by the gateway's handler, not by resolvers built
// here.
package stitching

import (
	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/subschema"
)

// MergedTypeResolver fetches type T from subschema sub for parent, honoring
// selectionSet as the fields the caller ultimately needs.
type MergedTypeResolver func(parent map[string]interface{}, sub *subschema.Subschema, selectionSet ast.SelectionSet) (map[string]interface{}, []error, error)

// MergedTypeInfo is one merged type's compiled routing table.
type MergedTypeInfo struct {
	TypeName string

	// TargetSubschemas maps a source subschema to every other subschema
	// that also serves T.
	TargetSubschemas map[*subschema.Subschema][]*subschema.Subschema

	// SelectionSets is the parsed key selection set each subschema needs
	// as input to serve T.
	SelectionSets map[*subschema.Subschema]ast.SelectionSet

	// FieldSelectionSets is the computed-field dependency selection set,
	// per subschema per field.
	FieldSelectionSets map[*subschema.Subschema]map[string]ast.SelectionSet

	// UniqueFields maps a field name to the single subschema serving it.
	UniqueFields map[string]*subschema.Subschema

	// NonUniqueFields maps a field name to every subschema serving it,
	// used when more than one subschema can serve the same field name.
	NonUniqueFields map[string][]*subschema.Subschema

	// Resolvers is the merged-type entry point per subschema.
	Resolvers map[*subschema.Subschema]MergedTypeResolver

	AllSubschemas []*subschema.Subschema
}

// Info is the immutable, process-wide result of composition.
type Info struct {
	Schema *ast.Schema

	// SubschemaMap maps a subschema's original schema pointer to the
	// Subschema record itself.
	SubschemaMap map[*ast.Schema]*subschema.Subschema

	// SelectionSetsByType is the union, across every subschema that owns
	// part of T, of the key selection set required whenever T leaves one
	// subschema.
	SelectionSetsByType map[string]ast.SelectionSet

	// SelectionSetsByField is the computed-field dependency selection
	// set, flattened by type and field.
	SelectionSetsByField map[string]map[string]ast.SelectionSet

	// DynamicSelectionSetsByField lists functions producing a selection
	// set from a caller's field node. Compile allocates it empty and
	// nothing in this module populates it.
	DynamicSelectionSetsByField map[string]map[string][]func(*ast.Field) ast.SelectionSet

	MergedTypes map[string]*MergedTypeInfo

	AllSubschemas []*subschema.Subschema
}

// ForType returns the merged-type routing table for name, if any.
func (info *Info) ForType(name string) (*MergedTypeInfo, bool) {
	mt, ok := info.MergedTypes[name]
	return mt, ok
}

// Compile builds Info from every subschema's merge configuration. It must
// run after the type merger has produced the composed schema, since
// selection sets are validated against composed types.
func Compile(schema *ast.Schema, subschemas []*subschema.Subschema, mergedTypeNames map[string]bool) (*Info, error) {
	info := &Info{
		Schema: schema,
		SubschemaMap: make(map[*ast.Schema]*subschema.Subschema),
		SelectionSetsByType: make(map[string]ast.SelectionSet),
		SelectionSetsByField: make(map[string]map[string]ast.SelectionSet),
		DynamicSelectionSetsByField: make(map[string]map[string][]func(*ast.Field) ast.SelectionSet),
		MergedTypes: make(map[string]*MergedTypeInfo),
		AllSubschemas: subschemas,
	}

	for _, sub := range subschemas {
		info.SubschemaMap[sub.Schema] = sub
	}

	for typeName := range mergedTypeNames {
		mt, err := compileMergedType(typeName, subschemas)
		if err != nil {
			return nil, err
		}
		if mt == nil {
			continue
		}
		info.MergedTypes[typeName] = mt

		info.SelectionSetsByType[typeName] = unionSelectionSets(lo.MapToSlice(mt.SelectionSets, func(_ *subschema.Subschema, ss ast.SelectionSet) ast.SelectionSet { return ss }))

		fieldSS := make(map[string]ast.SelectionSet)
		for _, perField := range mt.FieldSelectionSets {
			for field, ss := range perField {
				fieldSS[field] = unionSelectionSets([]ast.SelectionSet{fieldSS[field], ss})
			}
		}
		info.SelectionSetsByField[typeName] = fieldSS
	}

	return info, nil
}

func compileMergedType(typeName string, subschemas []*subschema.Subschema) (*MergedTypeInfo, error) {
	var owners []*subschema.Subschema
	for _, sub := range subschemas {
		if _, ok := sub.Schema.Types[typeName]; ok {
			owners = append(owners, sub)
		}
	}
	if len(owners) == 0 {
		return nil, nil
	}

	mt := &MergedTypeInfo{
		TypeName: typeName,
		TargetSubschemas: make(map[*subschema.Subschema][]*subschema.Subschema),
		SelectionSets: make(map[*subschema.Subschema]ast.SelectionSet),
		FieldSelectionSets: make(map[*subschema.Subschema]map[string]ast.SelectionSet),
		UniqueFields: make(map[string]*subschema.Subschema),
		NonUniqueFields: make(map[string][]*subschema.Subschema),
		Resolvers: make(map[*subschema.Subschema]MergedTypeResolver),
		AllSubschemas: owners,
	}

	// Invariant 2: TargetSubschemas[S] excludes S.
	for _, s := range owners {
		var targets []*subschema.Subschema
		for _, o := range owners {
			if o != s {
				targets = append(targets, o)
			}
		}
		mt.TargetSubschemas[s] = targets
	}

	fieldOwners := make(map[string][]*subschema.Subschema)

	for _, sub := range owners {
		def := sub.Schema.Types[typeName]
		for _, f := range def.Fields {
			fieldOwners[f.Name] = append(fieldOwners[f.Name], sub)
		}

		cfg := sub.Merge[typeName]
		if cfg == nil {
			continue
		}

		mt.SelectionSets[sub] = cfg.SelectionSet

		if len(cfg.Fields) > 0 {
			fieldSS := make(map[string]ast.SelectionSet)
			for fieldName, fcfg := range cfg.Fields {
				if fcfg.Computed && fcfg.SelectionSet != nil {
					fieldSS[fieldName] = fcfg.SelectionSet
				}
			}
			mt.FieldSelectionSets[sub] = fieldSS
		}

		resolver, err := buildMergedTypeResolver(typeName, sub, cfg)
		if err != nil {
			return nil, err
		}
		if resolver != nil {
			mt.Resolvers[sub] = resolver
		}
	}

	for fieldName, subs := range fieldOwners {
		if len(subs) == 1 {
			mt.UniqueFields[fieldName] = subs[0]
		} else {
			mt.NonUniqueFields[fieldName] = subs
		}
	}

	return mt, nil
}

// unionSelectionSets merges several selection sets into one, deduplicating
// plain fields by name and preserving first-seen order.
func unionSelectionSets(sets []ast.SelectionSet) ast.SelectionSet {
	seen := make(map[string]bool)
	var out ast.SelectionSet
	for _, ss := range sets {
		for _, sel := range ss {
			f, ok := sel.(*ast.Field)
			if !ok {
				out = append(out, sel)
				continue
			}
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			out = append(out, f)
		}
	}
	return out
}
