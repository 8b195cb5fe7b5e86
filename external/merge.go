package external

import (
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/gqlerrors"
)

// Source is one round's contribution toward a merged parent: either a
// successfully-resolved object, or an error/nil result that must be
// spread as a located error onto every response key the caller asked that
// subschema for.
type Source struct {
	Subschema interface{}
	SelectionSet ast.SelectionSet
	Object Object
	Err error
	Path []interface{}
}

// MergeExternal deep-merges sources into target in order, synthesizing
// per-field located errors for any source that failed, and rebuilds the
// field-subschema map and unpathed-errors annotation as it goes.
func MergeExternal(target Object, sources []Source) Object {
	if target == nil {
		target = Object{}
	}
	targetAnn := annotationsOf(target)

	for _, src := range sources {
		if src.Err != nil {
			spreadError(target, targetAnn, src)
			continue
		}
		if src.Object == nil {
			spreadNull(target, targetAnn, src)
			continue
		}

		deepMerge(target, src.Object)

		srcAnn := annotationsOf(src.Object)
		for key := range src.Object {
			if key == annotationKey {
				continue
			}
			if provenance, ok := srcAnn.FieldSubschemaMap[key]; ok {
				targetAnn.FieldSubschemaMap[key] = provenance
			} else {
				targetAnn.FieldSubschemaMap[key] = src.Subschema
			}
		}
		targetAnn.UnpathedErrors = append(targetAnn.UnpathedErrors, srcAnn.UnpathedErrors...)
	}

	return target
}

// spreadError relocates a whole-source error onto every response key the
// caller had requested from that source, as a located error.
func spreadError(target Object, targetAnn *Annotations, src Source) {
	keys := collectFields(src.SelectionSet)
	for _, key := range keys {
		located := gqlerrors.NewLocatedError(src.Err, append(append([]interface{}{}, src.Path...), key))
		targetAnn.UnpathedErrors = append(targetAnn.UnpathedErrors, located)
		target[key] = nil
		targetAnn.FieldSubschemaMap[key] = src.Subschema
	}
}

// spreadNull marks every requested response key that target does not
// already hold as null, without recording an error, matching a source that
// legitimately resolved to no object. Keys already present keep their value.
func spreadNull(target Object, targetAnn *Annotations, src Source) {
	keys := collectFields(src.SelectionSet)
	for _, key := range keys {
		if _, exists := target[key]; !exists {
			target[key] = nil
		}
		targetAnn.FieldSubschemaMap[key] = src.Subschema
	}
}

// deepMerge folds src into dst: leaf keys present in both take src's value
// (later source wins), intermediate objects recurse, and arrays are
// replaced wholesale rather than concatenated.
func deepMerge(dst, src Object) {
	for k, v := range src {
		if k == annotationKey {
			continue
		}
		existing, ok := dst[k]
		if !ok {
			dst[k] = v
			continue
		}
		existingObj, existingIsObj := existing.(Object)
		srcObj, srcIsObj := v.(Object)
		if existingIsObj && srcIsObj {
			deepMerge(existingObj, srcObj)
			continue
		}
		dst[k] = v
	}
}
