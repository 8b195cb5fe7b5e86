package stitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/common"
	"github.com/fusionschema/stitch/delegate"
	"github.com/fusionschema/stitch/external"
	"github.com/fusionschema/stitch/gqlerrors"
	"github.com/fusionschema/stitch/requests"
	"github.com/fusionschema/stitch/subschema"
)

// operationResult is one entry of a (possibly batched) HTTP response,
// carrying its slot so out-of-order concurrent completion can still be
// written back in request order.
type operationResult struct {
	requests.Response
	index int
}

// ServeHTTP validates and root-delegates a client operation against the
// composed schema: parse via requests.Parse (single object or batch,
// including multipart file uploads), load each query against the composed
// schema, then delegate every root selection to whichever subschema owns
// it, recursing into merged-type selections through the default merged
// resolver.
func (gw *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parsed, err := requests.Parse(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	ctx := common.WithLogger(r.Context(), gw.logger)

	results, err := common.Concurrently(ctx, lo.Range(len(parsed.Requests)), func(ctx context.Context, index int) (operationResult, error) {
			return operationResult{Response: gw.runOperation(ctx, parsed.Requests[index]), index: index}, nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	if parsed.IsBatchMode {
		ordered := make(requests.Responses, len(results))
		for _, res := range results {
			ordered[res.index] = res.Response
		}
		_ = enc.Encode(ordered)
		return
	}
	_ = enc.Encode(results[0].Response)
}

// runOperation validates op against the composed schema and root-delegates
// every top-level selection independently. A root field with a non-empty
// selection set is then walked recursively through resolveSelectionSet so
// merged-type fields the owning subschema doesn't itself serve trigger the
// planner/loader/default-merged-resolver chain instead of being read
// straight off the delegated object.
func (gw *Gateway) runOperation(ctx context.Context, op *requests.Request) requests.Response {
	query, gqlErr := gqlparser.LoadQuery(gw.Schema, op.Query)
	if gqlErr != nil {
		return requests.Response{Errors: gqlerrors.FormatError(gqlErr)}
	}

	operation, err := selectOperation(query, op.OperationName)
	if err != nil {
		return requests.Response{Errors: gqlerrors.ErrorList{gqlerrors.NewConfigurationError(err)}}
	}

	root := gw.Schema.Query
	if operation.Operation == ast.Mutation {
		root = gw.Schema.Mutation
	}
	if root == nil {
		return requests.Response{Errors: gqlerrors.ErrorList{gqlerrors.NewConfigurationError(fmt.Errorf("schema has no root for operation type %s", operation.Operation))}}
	}

	type rootOutcome struct {
		key string
		value interface{}
		errs gqlerrors.ErrorList
		subschema string
	}

	rootFields := common.SelectionSetToFields(operation.SelectionSet, root)

	outcomes, _ := common.Concurrently(ctx, rootFields, func(ctx context.Context, field *ast.Field) (rootOutcome, error) {
			key := common.ResponseKey(field)

			if field.Name == common.TypenameFieldName {
				return rootOutcome{key: key, value: root.Name}, nil
			}

			sub := gw.subschemaOwning(root.Name, field.Name)
			if sub == nil {
				return rootOutcome{key: key, errs: gqlerrors.ErrorList{gqlerrors.NewConfigurationError(fmt.Errorf("no subschema owns %s.%s", root.Name, field.Name))}}, nil
			}

			path := []interface{}{key}
			obj, pathedErrs, err := delegate.Delegate(delegate.Context{
					Subschema: sub,
					FieldName: field.Name,
					Arguments: field.Arguments,
					Definition: field.Definition,
					SelectionSet: field.SelectionSet,
					Variables: op.Variables,
					OperationType: operation.Operation,
					Path: path,
					Ctx: ctx,
			})
			if err != nil {
				return rootOutcome{key: key, errs: gqlerrors.FormatError(err)}, nil
			}

			errs := append(gqlerrors.ErrorList{}, pathedErrs...)

			if len(field.SelectionSet) == 0 {
				return rootOutcome{key: key, value: external.StripAnnotations(obj), errs: errs, subschema: sub.Name}, nil
			}

			returnTypeName := fieldReturnTypeName(root, field.Name)
			value, nestedErrs := gw.resolveSelectionSet(ctx, returnTypeName, obj, field.SelectionSet, operation, op.Variables, path)
			return rootOutcome{key: key, value: value, errs: append(errs, nestedErrs...), subschema: sub.Name}, nil
	})

	data := make(map[string]interface{}, len(outcomes))
	provenance := make(map[string]string, len(outcomes))
	var errs gqlerrors.ErrorList
	for _, o := range outcomes {
		data[o.key] = o.value
		errs = append(errs, o.errs...)
		if o.subschema != "" {
			provenance[o.key] = o.subschema
		}
	}

	return requests.Response{Data: data, Errors: errs, Provenance: provenance}
}

// resolveSelectionSet resolves every requested field of selectionSet against
// value (typeName's already-fetched representation), recursing into nested
// selections and consulting the gateway's default merged resolver (via
// ResolverFor) whenever typeName is a merged type. Sibling fields resolve
// concurrently so a shared loader.Loader can coalesce their planner rounds
// into one round trip.
func (gw *Gateway) resolveSelectionSet(ctx context.Context, typeName string, value interface{}, selectionSet ast.SelectionSet, operation *ast.OperationDefinition, variables map[string]interface{}, path []interface{}) (interface{}, gqlerrors.ErrorList) {
	if value == nil {
		return nil, nil
	}

	if list, ok := value.([]interface{}); ok {
		type itemOutcome struct {
			index int
			value interface{}
			errs gqlerrors.ErrorList
		}
		outcomes, _ := common.Concurrently(ctx, lo.Range(len(list)), func(ctx context.Context, i int) (itemOutcome, error) {
				itemPath := append(append([]interface{}{}, path...), i)
				v, errs := gw.resolveSelectionSet(ctx, typeName, list[i], selectionSet, operation, variables, itemPath)
				return itemOutcome{index: i, value: v, errs: errs}, nil
		})
		out := make([]interface{}, len(list))
		var errs gqlerrors.ErrorList
		for _, o := range outcomes {
			out[o.index] = o.value
			errs = append(errs, o.errs...)
		}
		return out, errs
	}

	def, ok := gw.Schema.Types[typeName]
	if !ok {
		return nil, gqlerrors.ErrorList{gqlerrors.NewLocatedError(fmt.Errorf("composed schema has no type %s", typeName), path)}
	}

	type fieldOutcome struct {
		key string
		value interface{}
		errs gqlerrors.ErrorList
	}

	fields := common.SelectionSetToFields(selectionSet, def)
	resolver := gw.ResolverFor(typeName)

	outcomes, _ := common.Concurrently(ctx, fields, func(ctx context.Context, field *ast.Field) (fieldOutcome, error) {
			key := common.ResponseKey(field)
			fieldPath := append(append([]interface{}{}, path...), key)

			if field.Name == common.TypenameFieldName {
				return fieldOutcome{key: key, value: typeName}, nil
			}

			fieldDef := def.Fields.ForName(field.Name)
			if fieldDef == nil {
				return fieldOutcome{key: key, errs: gqlerrors.ErrorList{gqlerrors.NewLocatedError(fmt.Errorf("no field %s.%s in composed schema", typeName, field.Name), fieldPath)}}, nil
			}

			args, err := resolveArguments(field, fieldDef, variables)
			if err != nil {
				return fieldOutcome{key: key, errs: gqlerrors.ErrorList{gqlerrors.NewLocatedError(err, fieldPath)}}, nil
			}

			fv, err := resolveFieldValue(ctx, resolver, value, args, field, fieldDef, def, operation, variables)
			if err != nil {
				return fieldOutcome{key: key, errs: gqlerrors.ErrorList{gqlerrors.NewLocatedError(err, fieldPath)}}, nil
			}

			if len(field.SelectionSet) == 0 || fv == nil {
				if obj, ok := fv.(external.Object); ok {
					return fieldOutcome{key: key, value: external.StripAnnotations(obj)}, nil
				}
				return fieldOutcome{key: key, value: fv}, nil
			}

			nested, errs := gw.resolveSelectionSet(ctx, fieldDef.Type.Name(), fv, field.SelectionSet, operation, variables, fieldPath)
			return fieldOutcome{key: key, value: nested, errs: errs}, nil
	})

	out := make(map[string]interface{}, len(outcomes))
	var errs gqlerrors.ErrorList
	for _, o := range outcomes {
		out[o.key] = o.value
		errs = append(errs, o.errs...)
	}
	return out, errs
}

// resolveFieldValue reads field's value off parent, preferring the merged
// resolver (which triggers the planner/loader chain when the field isn't
// already present) and falling back to plain property access when parent
// isn't a merged type.
func resolveFieldValue(ctx context.Context, resolver subschema.Resolver, parent interface{}, args map[string]interface{}, field *ast.Field, fieldDef *ast.FieldDefinition, parentDef *ast.Definition, operation *ast.OperationDefinition, variables map[string]interface{}) (interface{}, error) {
	if resolver != nil {
		info := &subschema.ResolveInfo{
			FieldName: field.Name,
			FieldNodes: []*ast.Field{field},
			ReturnType: fieldDef.Type,
			ParentType: parentDef,
			Operation: operation,
			Variables: variables,
		}
		return resolver(ctx, parent, args, info)
	}
	if obj, ok := parent.(external.Object); ok {
		return obj[field.Name], nil
	}
	if m, ok := parent.(map[string]interface{}); ok {
		return m[field.Name], nil
	}
	return nil, nil
}

// resolveArguments builds a field's runtime argument map from its AST
// arguments (resolved against variables) plus any declared defaults for
// arguments the caller omitted.
func resolveArguments(field *ast.Field, fieldDef *ast.FieldDefinition, variables map[string]interface{}) (map[string]interface{}, error) {
	args := make(map[string]interface{}, len(field.Arguments))
	for _, arg := range field.Arguments {
		v, err := arg.Value.Value(variables)
		if err != nil {
			return nil, err
		}
		args[arg.Name] = v
	}
	for _, argDef := range fieldDef.Arguments {
		if _, ok := args[argDef.Name]; ok {
			continue
		}
		if argDef.DefaultValue == nil {
			continue
		}
		v, err := argDef.DefaultValue.Value(variables)
		if err != nil {
			return nil, err
		}
		args[argDef.Name] = v
	}
	return args, nil
}

// fieldReturnTypeName looks up fieldName's return type name on def.
func fieldReturnTypeName(def *ast.Definition, fieldName string) string {
	fd := def.Fields.ForName(fieldName)
	if fd == nil {
		return ""
	}
	return fd.Type.Name()
}

func selectOperation(query *ast.QueryDocument, name *string) (*ast.OperationDefinition, error) {
	if name != nil {
		op := query.Operations.ForName(*name)
		if op == nil {
			return nil, fmt.Errorf("unable to extract query for operation %s", *name)
		}
		return op, nil
	}
	if len(query.Operations) == 1 {
		return query.Operations[0], nil
	}
	return nil, errors.New("many queries provided, but no operationName")
}

// subschemaOwning returns whichever subschema declares rootFieldName on
// rootTypeName.
func (gw *Gateway) subschemaOwning(rootTypeName, rootFieldName string) *subschema.Subschema {
	for _, sub := range gw.Subschemas {
		def, ok := sub.TransformedSchema.Types[rootTypeName]
		if !ok {
			continue
		}
		if def.Fields.ForName(rootFieldName) != nil {
			return sub
		}
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(requests.Response{Errors: gqlerrors.FormatError(err)})
}
