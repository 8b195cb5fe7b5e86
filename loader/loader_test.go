package loader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/external"
	"github.com/fusionschema/stitch/planner"
	"github.com/fusionschema/stitch/stitching"
	"github.com/fusionschema/stitch/subschema"
)

func TestLoadCoalescesSiblingFieldsIntoOnePlannerCall(t *testing.T) {
	calls := 0
	var seenFields []string

	plan := func(_ context.Context, _ *stitching.MergedTypeInfo, parent external.Object, fieldNodes []*ast.Field, _, _ []*subschema.Subschema) (*planner.Result, error) {
		calls++
		result := &planner.Result{Parents: make(map[string]external.Object), Errors: map[string]error{}}
		for _, f := range fieldNodes {
			seenFields = append(seenFields, f.Name)
			result.Parents[f.Name] = parent
		}
		return result, nil
	}

	l := New(plan)
	parent := external.Object{"id": "1"}

	ch1 := l.Load(context.Background(), parent, nil, nil, nil, &ast.Field{Name: "reviews"})
	ch2 := l.Load(context.Background(), parent, nil, nil, nil, &ast.Field{Name: "rating"})

	require.NoError(t, l.Flush(context.Background(), parent))

	out1 := <-ch1
	out2 := <-ch2

	assert.Equal(t, 1, calls)
	assert.ElementsMatch(t, []string{"reviews", "rating"}, seenFields)
	require.NoError(t, out1.Err)
	require.NoError(t, out2.Err)
}

func TestLoadDispatchesWithoutAnExplicitFlushOnceItsCoalescingWindowElapses(t *testing.T) {
	calls := 0
	plan := func(_ context.Context, _ *stitching.MergedTypeInfo, parent external.Object, fieldNodes []*ast.Field, _, _ []*subschema.Subschema) (*planner.Result, error) {
		calls++
		result := &planner.Result{Parents: make(map[string]external.Object), Errors: map[string]error{}}
		for _, f := range fieldNodes {
			result.Parents[f.Name] = parent
		}
		return result, nil
	}

	l := New(plan)
	parent := external.Object{"id": "1"}

	ch1 := l.Load(context.Background(), parent, nil, nil, nil, &ast.Field{Name: "reviews"})
	ch2 := l.Load(context.Background(), parent, nil, nil, nil, &ast.Field{Name: "rating"})

	out1 := <-ch1
	out2 := <-ch2

	assert.Equal(t, 1, calls)
	require.NoError(t, out1.Err)
	require.NoError(t, out2.Err)
}

func TestFlushIsIdempotentAgainstARacingAutoDispatch(t *testing.T) {
	calls := 0
	plan := func(_ context.Context, _ *stitching.MergedTypeInfo, parent external.Object, fieldNodes []*ast.Field, _, _ []*subschema.Subschema) (*planner.Result, error) {
		calls++
		return &planner.Result{Parents: map[string]external.Object{"reviews": parent}, Errors: map[string]error{}}, nil
	}

	l := New(plan)
	parent := external.Object{"id": "1"}

	ch := l.Load(context.Background(), parent, nil, nil, nil, &ast.Field{Name: "reviews"})
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, l.Flush(context.Background(), parent))

	out := <-ch
	require.NoError(t, out.Err)
	assert.Equal(t, 1, calls)
}

func TestLoadKeyedByParentIdentityNotEquality(t *testing.T) {
	calls := 0
	plan := func(_ context.Context, _ *stitching.MergedTypeInfo, parent external.Object, fieldNodes []*ast.Field, _, _ []*subschema.Subschema) (*planner.Result, error) {
		calls++
		result := &planner.Result{Parents: make(map[string]external.Object)}
		for _, f := range fieldNodes {
			result.Parents[f.Name] = parent
		}
		return result, nil
	}
	l := New(plan)

	parentA := external.Object{"id": "1"}
	parentB := external.Object{"id": "1"}

	chA := l.Load(context.Background(), parentA, nil, nil, nil, &ast.Field{Name: "x"})
	chB := l.Load(context.Background(), parentB, nil, nil, nil, &ast.Field{Name: "y"})

	require.NoError(t, l.Flush(context.Background(), parentA))
	require.NoError(t, l.Flush(context.Background(), parentB))

	<-chA
	<-chB

	assert.Equal(t, 2, calls, "distinct parent maps with equal content must not share a batch")
}
