// Package external implements the External Object Annotation primitive
//: the three hidden annotations attached to every value a
// merged/proxied type resolver hands back, and the deep-merge operation
// that folds a newly-delegated source into an existing external object.
package external

import (
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/common"
)

// annotationKey is the map key an Object's hidden bookkeeping is stashed
// under, chosen to never collide with a GraphQL response key (which is
// always a valid Name token and can't contain a space).
const annotationKey = "__stitch annotations__"

// Annotations is the hidden state attached to an external object: its origin subschema, a per-field
// provenance map, and unpathed errors relocated onto it.
type Annotations struct {
	Subschema interface{}
	FieldSubschemaMap map[string]interface{}
	UnpathedErrors []error
	// Receiver is not populated by this module: delegate.Delegate stores a
	// streaming delegation's *receiver.Receiver on the object itself under
	// the "__receiver__" key, and resolve.Resolver reads it from there.
	Receiver interface{}
}

// Object is a plain response object (map[string]interface{}) carrying
// Annotations. It is not a distinct wire type — obj[annotationKey] is
// simply excluded when the object is serialized or handed to a selection
// set formatter.
type Object = map[string]interface{}

// Annotate attaches the three hidden annotations to obj in place and
// returns it.
func Annotate(obj Object, errs []error, subschema interface{}) Object {
	if obj == nil {
		obj = Object{}
	}
	obj[annotationKey] = &Annotations{
		Subschema: subschema,
		FieldSubschemaMap: make(map[string]interface{}),
		UnpathedErrors: errs,
	}
	for k := range obj {
		if k == annotationKey {
			continue
		}
		obj[annotationKey].(*Annotations).FieldSubschemaMap[k] = subschema
	}
	return obj
}

// IsExternalObject type-tests x by presence of the unpathed-errors
// annotation.
func IsExternalObject(x interface{}) bool {
	obj, ok := x.(Object)
	if !ok {
		return false
	}
	_, ok = obj[annotationKey]
	return ok
}

// annotationsOf returns obj's Annotations, allocating empty ones if absent
// so callers never need a nil check.
func annotationsOf(obj Object) *Annotations {
	if a, ok := obj[annotationKey].(*Annotations); ok {
		return a
	}
	a := &Annotations{FieldSubschemaMap: make(map[string]interface{})}
	obj[annotationKey] = a
	return a
}

// Subschema returns obj's origin subschema annotation.
func Subschema(obj Object) interface{} {
	return annotationsOf(obj).Subschema
}

// FieldSubschema returns the subschema that supplied response key k on obj.
func FieldSubschema(obj Object, k string) interface{} {
	return annotationsOf(obj).FieldSubschemaMap[k]
}

// UnpathedErrors returns obj's unpathed errors annotation.
func UnpathedErrors(obj Object) []error {
	return annotationsOf(obj).UnpathedErrors
}

// StripAnnotations returns a shallow copy of obj without the hidden
// bookkeeping key, suitable for serialization.
func StripAnnotations(obj Object) Object {
	out := make(Object, len(obj))
	for k, v := range obj {
		if k == annotationKey {
			continue
		}
		out[k] = v
	}
	return out
}

// collectFields flattens selectionSet into the plain field names it
// requests ( "every response key (from collectFields(selectionSet))"),
// skipping __typename since it never carries an error.
func collectFields(selectionSet ast.SelectionSet) []string {
	fields := common.SelectionSetToFields(selectionSet, nil)
	keys := make([]string, 0, len(fields))
	seen := make(map[string]bool)
	for _, f := range fields {
		key := common.ResponseKey(f)
		if key == common.TypenameFieldName || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}
