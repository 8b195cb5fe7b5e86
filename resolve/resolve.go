// Package resolve implements the Default Merged Resolver:
// the field resolver installed on merged and proxied types, which
// short-circuits on data already present and otherwise triggers the
// planner through the per-parent batch loader.
package resolve

import (
	"context"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/common"
	"github.com/fusionschema/stitch/external"
	"github.com/fusionschema/stitch/gqlerrors"
	"github.com/fusionschema/stitch/loader"
	"github.com/fusionschema/stitch/receiver"
	"github.com/fusionschema/stitch/stitching"
	"github.com/fusionschema/stitch/subschema"
)

// Loaders vends one *loader.Loader per merged type name; how long a loader
// lives is up to the implementation.
type Loaders interface {
	For(typeName string) *loader.Loader
}

// Resolver builds the default merged resolver bound to mt. A located error
// raised for a null value carries the field name alone as its path.
func Resolver(mt *stitching.MergedTypeInfo, loaders Loaders) subschema.Resolver {
	return func(ctx context.Context, parent interface{}, args map[string]interface{}, info *subschema.ResolveInfo) (interface{}, error) {
		obj, ok := parent.(external.Object)
		if !ok || !external.IsExternalObject(obj) {
			// Step 1: not an ExternalObject, fall back to default
			// property access.
			return defaultFieldAccess(parent, info), nil
		}

		responseKey := responseKeyOf(info)

		if v, present := obj[responseKey]; present {
			return resolveExternalValue(v, external.UnpathedErrors(obj), external.Subschema(obj), info)
		}

		origin, _ := external.Subschema(obj).(*subschema.Subschema)
		if origin != nil && belongsToSchema(origin, info) {
			if recv, ok := obj["__receiver__"].(*receiver.Receiver); ok {
				data, err := recv.Request([]interface{}{responseKey})
				if err != nil {
					return nil, err
				}
				return resolveExternalValue(data, nil, origin, info)
			}
			return nil, nil
		}

		l := loaders.For(mt.TypeName)
		sources, targets := splitSubschemas(mt, origin)
		ch := l.Load(ctx, obj, mt, sources, targets, fieldNodeOf(info))
		outcome := <-ch
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		if outcome.Value == nil {
			return nil, nil
		}
		return resolveExternalValue(outcome.Value[responseKey], external.UnpathedErrors(outcome.Value), external.Subschema(outcome.Value), info)
	}
}

func defaultFieldAccess(parent interface{}, info *subschema.ResolveInfo) interface{} {
	if m, ok := parent.(map[string]interface{}); ok {
		return m[info.FieldName]
	}
	return nil
}

func responseKeyOf(info *subschema.ResolveInfo) string {
	if len(info.FieldNodes) > 0 {
		return common.ResponseKey(info.FieldNodes[0])
	}
	return info.FieldName
}

func fieldNodeOf(info *subschema.ResolveInfo) *ast.Field {
	if len(info.FieldNodes) > 0 {
		return info.FieldNodes[0]
	}
	return &ast.Field{Name: info.FieldName}
}

func belongsToSchema(sub *subschema.Subschema, info *subschema.ResolveInfo) bool {
	def := sub.TransformedSchema.Types[info.ParentType.Name]
	if def == nil {
		return false
	}
	return def.Fields.ForName(info.FieldName) != nil
}

func splitSubschemas(mt *stitching.MergedTypeInfo, origin *subschema.Subschema) (sources, targets []*subschema.Subschema) {
	if origin == nil {
		return nil, mt.AllSubschemas
	}
	return []*subschema.Subschema{origin}, mt.TargetSubschemas[origin]
}

// resolveExternalValue converts value from a subschema's wire form to
// internal form, recursing element-wise through lists, and raising the
// first located error when value is null but unpathedErrors describes why.
func resolveExternalValue(value interface{}, unpathedErrors []error, sub interface{}, info *subschema.ResolveInfo) (interface{}, error) {
	if value == nil {
		if len(unpathedErrors) > 0 {
			return nil, gqlerrors.NewLocatedError(unpathedErrors[0], []interface{}{info.FieldName})
		}
		return nil, nil
	}

	if list, ok := value.([]interface{}); ok {
		out := make([]interface{}, len(list))
		for i, item := range list {
			converted, err := resolveExternalValue(item, nil, sub, info)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	}

	if obj, ok := value.(external.Object); ok {
		return obj, nil
	}
	if obj, ok := value.(map[string]interface{}); ok {
		return external.Annotate(obj, nil, sub), nil
	}

	return convertScalar(value, info)
}

// convertScalar performs enum/scalar wire-form conversion. Since this
// engine treats the underlying executor as the source of truth for scalar
// representation, most values pass through unchanged: only Int values
// decoded as float64 become int, and String/ID values are formatted as
// strings.
func convertScalar(value interface{}, info *subschema.ResolveInfo) (interface{}, error) {
	if info.ReturnType == nil {
		return value, nil
	}
	switch info.ReturnType.NamedType {
		case "Int":
		switch v := value.(type) {
			case float64:
			return int(v), nil
			case int:
			return v, nil
		}
		case "String", "ID":
		return fmt.Sprintf("%v", value), nil
	}
	return value, nil
}
