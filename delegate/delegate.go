// Package delegate implements the Delegator: builds a
// sub-request from a DelegationContext, runs it through the request
// transform pipeline, invokes the target subschema's executor, and hands
// back an annotated external value.
package delegate

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap"

	"github.com/fusionschema/stitch/common"
	"github.com/fusionschema/stitch/external"
	"github.com/fusionschema/stitch/gqlerrors"
	"github.com/fusionschema/stitch/receiver"
	"github.com/fusionschema/stitch/subschema"
	"github.com/fusionschema/stitch/transform"
)

// Context is the delegation context handed to the Delegator: everything
// needed to build and run one sub-request. SelectionSet is the delegated
// field's own children (not the field itself); Arguments and Definition are
// normally the client field's own, letting its arguments and declared types
// flow straight through into the sub-request.
type Context struct {
	Subschema *subschema.Subschema
	FieldName string
	Arguments ast.ArgumentList
	Definition *ast.FieldDefinition
	SelectionSet ast.SelectionSet
	Variables map[string]interface{}
	OperationType ast.Operation
	Path []interface{}
	Ctx context.Context
}

// Delegate runs the six delegation steps and returns the annotated
// external value plus any result errors that already carried a path into
// dctx.Path's subtree (SubschemaFieldError-class errors) — the caller
// composes these into the response's top-level error list, since they
// belong there rather than inside the returned object.
func Delegate(dctx Context) (external.Object, gqlerrors.ErrorList, error) {
	sub := dctx.Subschema
	if sub.Executor == nil {
		return nil, nil, gqlerrors.NewConfigurationError(&missingExecutorError{name: sub.Name})
	}

	field := &ast.Field{Name: dctx.FieldName, Arguments: dctx.Arguments, Definition: dctx.Definition, SelectionSet: dctx.SelectionSet}
	doc := &ast.QueryDocument{
		Operations: ast.OperationList{{
				Operation: dctx.OperationType,
				SelectionSet: ast.SelectionSet{field},
		}},
	}

	req := &subschema.Request{
		Document: doc,
		Variables: dctx.Variables,
		OperationType: dctx.OperationType,
		Context: dctx.Ctx,
	}

	pipeline := transform.New(sub.Transforms)
	req = pipeline.TransformRequest(req)

	logger := common.LoggerFrom(dctx.Ctx)

	res, async, err := sub.Executor(req)
	if err != nil {
		logger.Error("delegation transport error", zap.String("subschema", sub.Name), zap.Any("path", dctx.Path), zap.Error(err))
		return nil, nil, gqlerrors.NewDelegationTransportError(sub.Name, err, dctx.Path)
	}

	var recv *receiver.Receiver
	if async != nil {
		recv = receiver.New(async, dctx.FieldName)
		data, errs, ierr := recv.GetInitialResult()
		if ierr != nil {
			logger.Error("delegation transport error", zap.String("subschema", sub.Name), zap.Any("path", dctx.Path), zap.Error(ierr))
			return nil, nil, gqlerrors.NewDelegationTransportError(sub.Name, ierr, dctx.Path)
		}
		res = &subschema.Result{Data: data, Errors: errs}
	}

	res = pipeline.TransformResult(res)

	pathed, unpathed := splitErrors(res.Errors, dctx.Path)

	value := extractFieldValue(res.Data, dctx.FieldName)

	obj := external.Annotate(value, unpathed, sub)
	if recv != nil {
		obj["__receiver__"] = recv
	}

	var pathedErrors gqlerrors.ErrorList
	for _, e := range pathed {
		pathedErrors = append(pathedErrors, gqlerrors.FormatError(e)...)
	}

	return obj, pathedErrors, nil
}

// extractFieldValue reads the delegated field's value out of the top-level
// result data, defaulting to an empty object so annotation always has a map
// to attach to.
func extractFieldValue(data map[string]interface{}, fieldName string) external.Object {
	if data == nil {
		return external.Object{}
	}
	if v, ok := data[fieldName].(map[string]interface{}); ok {
		return v
	}
	return external.Object{}
}

// splitErrors separates result errors that already carry a path from those that don't.
func splitErrors(errs []error, basePath []interface{}) (pathed []error, unpathed []error) {
	for _, e := range errs {
		if ge, ok := e.(*gqlerrors.Error); ok && len(ge.Path) > 0 {
			pathed = append(pathed, ge)
			continue
		}
		unpathed = append(unpathed, e)
	}
	return pathed, unpathed
}

type missingExecutorError struct{ name string }

func (e *missingExecutorError) Error() string {
	return "subschema " + e.name + " has no executor configured"
}
