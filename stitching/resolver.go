package stitching

import (
	"context"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/gqlerrors"
	"github.com/fusionschema/stitch/subschema"
	"github.com/fusionschema/stitch/transform"
)

// buildMergedTypeResolver wraps cfg.EntryPoint into a MergedTypeResolver
// that fetches a single instance of typeName from sub given a parent key
// object, handling both the singular (Args) and list-batch (ArgsFromKeys)
// entry point shapes.
func buildMergedTypeResolver(typeName string, sub *subschema.Subschema, cfg *subschema.MergedTypeConfig) (MergedTypeResolver, error) {
	if cfg == nil || cfg.EntryPoint == nil {
		return nil, nil
	}
	ep := cfg.EntryPoint
	if ep.Batch {
		if ep.ArgsFromKeys == nil {
			return nil, gqlerrors.NewConfigurationError(
				fmt.Errorf("merged type %q on subschema %q declares a batch entry point %q with no ArgsFromKeys function", typeName, sub.Name, ep.FieldName))
		}
		return buildBatchResolver(typeName, sub, ep), nil
	}
	if ep.Args == nil {
		return nil, gqlerrors.NewConfigurationError(
			fmt.Errorf("merged type %q on subschema %q declares a non-batch entry point %q with no Args function", typeName, sub.Name, ep.FieldName))
	}

	return func(parent map[string]interface{}, targetSub *subschema.Subschema, selectionSet ast.SelectionSet) (map[string]interface{}, []error, error) {
		if targetSub != sub {
			return nil, nil, fmt.Errorf("resolver for subschema %q invoked with target %q", sub.Name, targetSub.Name)
		}
		if sub.Executor == nil {
			return nil, nil, gqlerrors.NewConfigurationError(fmt.Errorf("subschema %q has no executor", sub.Name))
		}

		req := buildEntryPointRequest(sub, ep.FieldName, selectionSet, ep.Args(parent))

		res, err := runEntryPoint(sub, ep.FieldName, req)
		if err != nil {
			return nil, nil, err
		}

		var out map[string]interface{}
		if v, ok := res.Data[ep.FieldName]; ok {
			out, _ = v.(map[string]interface{})
		}

		return out, res.Errors, nil
	}, nil
}

// buildBatchResolver adapts a list-batch entry point (`@merge(key: [...])`)
// to the per-parent MergedTypeResolver shape: it calls ArgsFromKeys with
// this single parent's key values and matches its own row back out of the
// returned list by comparing ep.Key's fields.
func buildBatchResolver(typeName string, sub *subschema.Subschema, ep *subschema.EntryPoint) MergedTypeResolver {
	return func(parent map[string]interface{}, targetSub *subschema.Subschema, selectionSet ast.SelectionSet) (map[string]interface{}, []error, error) {
		if targetSub != sub {
			return nil, nil, fmt.Errorf("resolver for subschema %q invoked with target %q", sub.Name, targetSub.Name)
		}
		if sub.Executor == nil {
			return nil, nil, gqlerrors.NewConfigurationError(fmt.Errorf("subschema %q has no executor", sub.Name))
		}

		keyValue := batchKeyValue(parent, ep.Key)
		req := buildEntryPointRequest(sub, ep.FieldName, selectionSet, ep.ArgsFromKeys([]interface{}{keyValue}))

		res, err := runEntryPoint(sub, ep.FieldName, req)
		if err != nil {
			return nil, nil, err
		}

		list, ok := res.Data[ep.FieldName].([]interface{})
		if !ok {
			return nil, nil, fmt.Errorf("subschema %q entry point %q did not return a list for the batched key", sub.Name, ep.FieldName)
		}
		for _, item := range list {
			row, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if batchRowMatches(row, parent, ep.Key) {
				return row, res.Errors, nil
			}
		}
		return nil, nil, gqlerrors.NewPlannerDeadEndError(typeName, nil)
	}
}

// batchKeyValue extracts a single value (or tuple, for a composite key)
// from parent for the fields named in key.
func batchKeyValue(parent map[string]interface{}, key []string) interface{} {
	if len(key) == 1 {
		return parent[key[0]]
	}
	tuple := make(map[string]interface{}, len(key))
	for _, k := range key {
		tuple[k] = parent[k]
	}
	return tuple
}

// batchRowMatches reports whether row carries the same values as parent for
// every field named in key.
func batchRowMatches(row, parent map[string]interface{}, key []string) bool {
	for _, k := range key {
		if row[k] != parent[k] {
			return false
		}
	}
	return true
}

// buildEntryPointRequest builds the throwaway single-field query document
// an entry point resolver sends to its subschema, threading extraArgs
// through AddArgumentsAsVariables so they arrive as a real `$var` reference
// with a properly declared variable-definitions header rather than being
// stuffed into req.Variables under a name nothing in the document refers to.
func buildEntryPointRequest(sub *subschema.Subschema, fieldName string, selectionSet ast.SelectionSet, extraArgs map[string]interface{}) *subschema.Request {
	var fieldDef *ast.FieldDefinition
	if sub.Schema != nil && sub.Schema.Query != nil {
		fieldDef = sub.Schema.Query.Fields.ForName(fieldName)
	}

	field := &ast.Field{Name: fieldName, Definition: fieldDef, SelectionSet: selectionSet}
	doc := &ast.QueryDocument{
		Operations: ast.OperationList{{
				Operation: ast.Query,
				SelectionSet: ast.SelectionSet{field},
		}},
	}

	req := &subschema.Request{
		Document: doc,
		OperationType: ast.Query,
		Context: context.Background(),
	}

	pipeline := append(append([]subschema.Transform{}, sub.Transforms...), transform.NewAddArgumentsAsVariables(extraArgs))
	return transform.New(pipeline).TransformRequest(req)
}

// runEntryPoint invokes sub's executor with req, awaiting the first patch of
// an async result if the executor streams.
func runEntryPoint(sub *subschema.Subschema, fieldName string, req *subschema.Request) (*subschema.Result, error) {
	res, async, err := sub.Executor(req)
	if err != nil {
		return nil, gqlerrors.NewDelegationTransportError(sub.Name, err, nil)
	}
	if async != nil {
		first, ok := <-async.Patches
		if !ok {
			return nil, fmt.Errorf("subschema %q produced no patches for entry point %q", sub.Name, fieldName)
		}
		res = &subschema.Result{Data: first.Data, Errors: first.Errors}
	}
	return res, nil
}
