// Package planner implements the Merged-Parent Planner: for
// a field resolve on an external object, it plans which additional
// subschemas must be queried to satisfy not-yet-present fields, executing
// in rounds until every field is either satisfied or provably unreachable.
package planner

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap"

	"github.com/fusionschema/stitch/common"
	"github.com/fusionschema/stitch/external"
	"github.com/fusionschema/stitch/gqlerrors"
	"github.com/fusionschema/stitch/stitching"
	"github.com/fusionschema/stitch/subschema"
)

// Field is one requested field node the planner must route to a subschema
// or mark unreachable.
type Field = *ast.Field

// Result is the planner's output for one invocation: every response key
// requested resolves to either the parent object that now carries it, or an
// error explaining why it never will.
type Result struct {
	Parents map[string]external.Object
	Errors map[string]error
}

// proxiabilityKey and delegationKey are the composite keys the two pure
// planning steps are memoized under: the merged type by pointer, the
// subschema and field-node slices by name fingerprint.
type proxiabilityKey struct {
	mergedType *stitching.MergedTypeInfo
	sources string
	targets string
}

type delegationKey struct {
	mergedType *stitching.MergedTypeInfo
	proxiable string
	fields string
}

const memoCacheSize = 4096

var (
	proxiabilityCache, _ = lru.New[proxiabilityKey, proxiabilityResult](memoCacheSize)
	delegationCache, _ = lru.New[delegationKey, delegationResult](memoCacheSize)
	memoMu sync.Mutex
)

type proxiabilityResult struct {
	proxiable []*subschema.Subschema
	nonProxiable []*subschema.Subschema
}

type delegationResult struct {
	delegationMap map[*subschema.Subschema]ast.SelectionSet
	proxiableFieldNodes []Field
	unproxiableFieldNodes []Field
}

// Plan runs the planner to completion, recursing round by round until
// delegationMap is empty.
func Plan(
	ctx context.Context,
	mt *stitching.MergedTypeInfo,
	parent external.Object,
	fieldNodes []Field,
	sourceSubschemas []*subschema.Subschema,
	targetSubschemas []*subschema.Subschema,
) (*Result, error) {
	result := &Result{
		Parents: make(map[string]external.Object),
		Errors: make(map[string]error),
	}
	return planRound(ctx, mt, parent, fieldNodes, sourceSubschemas, targetSubschemas, result, 1)
}

func planRound(
	ctx context.Context,
	mt *stitching.MergedTypeInfo,
	parent external.Object,
	fieldNodes []Field,
	sourceSubschemas []*subschema.Subschema,
	targetSubschemas []*subschema.Subschema,
	result *Result,
	round int,
) (*Result, error) {
	proxiable, nonProxiable := sortSubschemasByProxiability(mt, sourceSubschemas, targetSubschemas)

	delegationMap, proxiableFieldNodes, unproxiableFieldNodes := buildDelegationPlan(mt, proxiable, fieldNodes)

	common.LoggerFrom(ctx).Debug("planner round",
		zap.String("type", mt.TypeName),
		zap.Int("round", round),
		zap.Int("proxiableFields", len(proxiableFieldNodes)),
		zap.Int("unproxiableFields", len(unproxiableFieldNodes)))

	if len(delegationMap) == 0 {
		for _, f := range fieldNodes {
			key := common.ResponseKey(f)
			if _, done := result.Parents[key]; !done {
				result.Parents[key] = parent
			}
		}
		return result, nil
	}

	type roundOutcome struct {
		sub *subschema.Subschema
		src external.Source
	}

	subs := make([]*subschema.Subschema, 0, len(delegationMap))
	for s := range delegationMap {
		subs = append(subs, s)
	}

	outcomes, err := common.Concurrently(ctx, subs, func(_ context.Context, sub *subschema.Subschema) (roundOutcome, error) {
			selectionSet := delegationMap[sub]
			resolver, ok := mt.Resolvers[sub]
			if !ok {
				return roundOutcome{sub: sub, src: external.Source{
						Subschema: sub.Name,
						SelectionSet: selectionSet,
						Err: gqlerrors.NewPlannerDeadEndError(mt.TypeName, nil),
				}}, nil
			}

			data, errs, rerr := resolver(parent, sub, selectionSet)
			if rerr != nil {
				return roundOutcome{sub: sub, src: external.Source{
						Subschema: sub.Name,
						SelectionSet: selectionSet,
						Err: rerr,
				}}, nil
			}
			if len(errs) > 0 {
				return roundOutcome{sub: sub, src: external.Source{
						Subschema: sub.Name,
						SelectionSet: selectionSet,
						Err: errs[0],
				}}, nil
			}

			return roundOutcome{sub: sub, src: external.Source{
					Subschema: sub,
					SelectionSet: selectionSet,
					Object: external.Annotate(data, nil, sub),
			}}, nil
	})
	if err != nil {
		return nil, err
	}

	sources := make([]external.Source, 0, len(outcomes))
	for _, o := range outcomes {
		sources = append(sources, o.src)
	}

	nextParent := external.MergeExternal(cloneObject(parent), sources)

	for _, f := range proxiableFieldNodes {
		result.Parents[common.ResponseKey(f)] = nextParent
	}

	if len(unproxiableFieldNodes) == 0 {
		return result, nil
	}

	newSources := append(append([]*subschema.Subschema{}, sourceSubschemas...), proxiable...)
	return planRound(ctx, mt, nextParent, unproxiableFieldNodes, newSources, nonProxiable, result, round+1)
}

func cloneObject(obj external.Object) external.Object {
	out := make(external.Object, len(obj)+1)
	for k, v := range obj {
		out[k] = v
	}
	return out
}

// sortSubschemasByProxiability partitions targets into those whose key and
// computed-field selection-set dependencies are already satisfied by the
// union of sources' transformed types for T, versus those that aren't.
func sortSubschemasByProxiability(mt *stitching.MergedTypeInfo, sources, targets []*subschema.Subschema) ([]*subschema.Subschema, []*subschema.Subschema) {
	key := proxiabilityKey{mergedType: mt, sources: fingerprint(sources), targets: fingerprint(targets)}

	memoMu.Lock()
	if cached, ok := proxiabilityCache.Get(key); ok {
		memoMu.Unlock()
		return cached.proxiable, cached.nonProxiable
	}
	memoMu.Unlock()

	var proxiable, nonProxiable []*subschema.Subschema
	for _, target := range targets {
		satisfied := subschemaTypesContainSelectionSet(mt, sources, mt.SelectionSets[target])
		for _, fieldDep := range mt.FieldSelectionSets[target] {
			if !satisfied {
				break
			}
			satisfied = subschemaTypesContainSelectionSet(mt, sources, fieldDep)
		}
		if satisfied {
			proxiable = append(proxiable, target)
		} else {
			nonProxiable = append(nonProxiable, target)
		}
	}

	memoMu.Lock()
	proxiabilityCache.Add(key, proxiabilityResult{proxiable: proxiable, nonProxiable: nonProxiable})
	memoMu.Unlock()

	return proxiable, nonProxiable
}

// subschemaTypesContainSelectionSet reports whether every field named in
// dep appears, recursively, in at least one of sources' view of the type.
func subschemaTypesContainSelectionSet(mt *stitching.MergedTypeInfo, sources []*subschema.Subschema, dep ast.SelectionSet) bool {
	if len(dep) == 0 {
		return true
	}

	available := make(map[string]bool)
	for _, s := range sources {
		def := s.TransformedSchema.Types[mt.TypeName]
		if def == nil {
			continue
		}
		for _, f := range def.Fields {
			available[f.Name] = true
		}
	}

	for _, sel := range dep {
		f, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		if !available[f.Name] {
			return false
		}
		if len(f.SelectionSet) > 0 && !subschemaTypesContainSelectionSet(mt, sources, f.SelectionSet) {
			return false
		}
	}
	return true
}

// buildDelegationPlan routes each requested field node to a proxiable
// subschema, preferring one already targeted this round for non-unique
// fields.
func buildDelegationPlan(mt *stitching.MergedTypeInfo, proxiable []*subschema.Subschema, fieldNodes []Field) (map[*subschema.Subschema]ast.SelectionSet, []Field, []Field) {
	key := delegationKey{mergedType: mt, proxiable: fingerprint(proxiable), fields: fieldFingerprint(fieldNodes)}

	memoMu.Lock()
	if cached, ok := delegationCache.Get(key); ok {
		memoMu.Unlock()
		return cached.delegationMap, cached.proxiableFieldNodes, cached.unproxiableFieldNodes
	}
	memoMu.Unlock()

	proxiableSet := make(map[*subschema.Subschema]bool, len(proxiable))
	for _, s := range proxiable {
		proxiableSet[s] = true
	}

	delegationMap := make(map[*subschema.Subschema]ast.SelectionSet)
	var proxiableFieldNodes, unproxiableFieldNodes []Field

	for _, f := range fieldNodes {
		if f.Name == common.TypenameFieldName {
			continue
		}

		if owner, ok := mt.UniqueFields[f.Name]; ok {
			if proxiableSet[owner] {
				delegationMap[owner] = append(delegationMap[owner], f)
				proxiableFieldNodes = append(proxiableFieldNodes, f)
			} else {
				unproxiableFieldNodes = append(unproxiableFieldNodes, f)
			}
			continue
		}

		if owners, ok := mt.NonUniqueFields[f.Name]; ok {
			var candidates []*subschema.Subschema
			for _, o := range owners {
				if proxiableSet[o] {
					candidates = append(candidates, o)
				}
			}
			if len(candidates) == 0 {
				unproxiableFieldNodes = append(unproxiableFieldNodes, f)
				continue
			}

			chosen := candidates[0]
			for _, c := range candidates {
				if _, alreadyTargeted := delegationMap[c]; alreadyTargeted {
					chosen = c
					break
				}
			}

			delegationMap[chosen] = append(delegationMap[chosen], f)
			proxiableFieldNodes = append(proxiableFieldNodes, f)
			continue
		}

		unproxiableFieldNodes = append(unproxiableFieldNodes, f)
	}

	memoMu.Lock()
	delegationCache.Add(key, delegationResult{
		delegationMap: delegationMap,
		proxiableFieldNodes: proxiableFieldNodes,
		unproxiableFieldNodes: unproxiableFieldNodes,
	})
	memoMu.Unlock()

	return delegationMap, proxiableFieldNodes, unproxiableFieldNodes
}

// fingerprint builds a stable, order-sensitive identity string for a
// subschema slice, used only as a memoization cache key component — never
// as a substitute for real reference-equality checks in production code
// that cares about pointer identity of the slice itself.
func fingerprint(subs []*subschema.Subschema) string {
	out := make([]byte, 0, len(subs)*8)
	for _, s := range subs {
		out = append(out, []byte(s.Name)...)
		out = append(out, ',')
	}
	return string(out)
}

// fieldFingerprint builds a stable, order-sensitive identity string for a
// field-node slice from response keys alone, the same reference-equality
// caveat as fingerprint applies: two requests naming the same fields hit the
// same cache entry even though their *ast.Field values are distinct AST
// nodes, which is fine since callers only ever read Name/Alias/SelectionSet
// shape back off the cached nodes, never compare them by pointer.
func fieldFingerprint(fields []Field) string {
	out := make([]byte, 0, len(fields)*8)
	for _, f := range fields {
		out = append(out, []byte(common.ResponseKey(f))...)
		out = append(out, ',')
	}
	return string(out)
}
