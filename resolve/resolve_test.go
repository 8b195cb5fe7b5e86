package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/external"
	"github.com/fusionschema/stitch/loader"
	"github.com/fusionschema/stitch/stitching"
	"github.com/fusionschema/stitch/subschema"
)

type fakeLoaders struct{ l *loader.Loader }

func (f *fakeLoaders) For(string) *loader.Loader { return f.l }

func TestResolverShortCircuitsOnPresentData(t *testing.T) {
	obj := external.Annotate(external.Object{"name": "Ada"}, nil, "users")

	mt := &stitching.MergedTypeInfo{TypeName: "User"}
	r := Resolver(mt, &fakeLoaders{})

	info := &subschema.ResolveInfo{
		FieldName: "name",
		FieldNodes: []*ast.Field{{Name: "name"}},
	}

	v, err := r(context.Background(), obj, nil, info)
	require.NoError(t, err)
	assert.Equal(t, "Ada", v)
}

func TestResolverFallsBackToPlainMapAccessForNonExternalParent(t *testing.T) {
	mt := &stitching.MergedTypeInfo{TypeName: "User"}
	r := Resolver(mt, &fakeLoaders{})

	info := &subschema.ResolveInfo{FieldName: "name"}
	v, err := r(context.Background(), map[string]interface{}{"name": "Ada"}, nil, info)
	require.NoError(t, err)
	assert.Equal(t, "Ada", v)
}

func TestResolveExternalValueRecursesThroughLists(t *testing.T) {
	info := &subschema.ResolveInfo{ReturnType: &ast.Type{NamedType: "Int"}}
	v, err := resolveExternalValue([]interface{}{float64(1), float64(2)}, nil, "users", info)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 2}, v)
}

func TestResolveExternalValueRaisesLocatedErrorOnNullWithUnpathedError(t *testing.T) {
	info := &subschema.ResolveInfo{FieldName: "name"}
	_, err := resolveExternalValue(nil, []error{assertError("boom")}, "users", info)
	assert.Error(t, err)
}

type assertError string

func (e assertError) Error() string { return string(e) }
