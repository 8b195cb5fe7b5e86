package common

import (
	"context"

	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/ast"
	"golang.org/x/sync/errgroup"
)

// IsEqual compares two comparable slices element-wise.
func IsEqual[T comparable](a []T, b []T) bool {
	if len(a) != len(b) {
		return false
	}

	for i, v := range a {
		if b[i] != v {
			return false
		}
	}
	return true
}

// Concurrently runs mapFunc over payload, one goroutine per item with no
// limit on fan-out, and collects results in input order, mirroring the
// `Promise.all` used by planner rounds and by the gateway's root fields.
// The first error cancels ctx for the remaining in-flight calls.
func Concurrently[T, P any](ctx context.Context, payload []T, mapFunc func(context.Context, T) (P, error)) ([]P, error) {
	results := make([]P, len(payload))
	group, groupCtx := errgroup.WithContext(ctx)

	for i, item := range payload {
		i, item := i, item
		group.Go(func() error {
				res, err := mapFunc(groupCtx, item)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// ResponseKey returns the response key a field occupies in its parent's
// result object: its alias if present, otherwise its name.
func ResponseKey(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// SelectionSetToFields extracts from selectionSet all data as a flat field
// list. parentDef may be nil to skip filtering; when passed, fields that
// don't belong to parentDef are excluded and inline fragments are only
// descended into when their type condition matches parentDef exactly.
func SelectionSetToFields(selectionSet ast.SelectionSet, parentDef *ast.Definition) []*ast.Field {
	var result []*ast.Field
	for _, s := range selectionSet {
		switch s := s.(type) {
			case *ast.Field:
			if parentDef != nil && !lo.ContainsBy(parentDef.Fields, func(fd *ast.FieldDefinition) bool {
					return fd.Name == s.Name
			}) {
				continue
			}
			result = append(result, s)
			case *ast.InlineFragment:
			if parentDef != nil && s.TypeCondition != parentDef.Name {
				continue
			}
			result = append(result, SelectionSetToFields(s.SelectionSet, parentDef)...)
			case *ast.FragmentSpread:
			if s.Definition == nil {
				continue
			}
			if parentDef != nil && s.Definition.TypeCondition != parentDef.Name {
				continue
			}
			result = append(result, SelectionSetToFields(s.Definition.SelectionSet, parentDef)...)
		}
	}

	return result
}

// ResponseKeys returns the deduplicated, order-preserving response keys of
// every field in selectionSet.
func ResponseKeys(selectionSet ast.SelectionSet) []string {
	fields := SelectionSetToFields(selectionSet, nil)
	return lo.Uniq(lo.Map(fields, func(f *ast.Field, _ int) string { return ResponseKey(f) }))
}
