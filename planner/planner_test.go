package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/external"
	"github.com/fusionschema/stitch/stitching"
	"github.com/fusionschema/stitch/subschema"
)

func testType(name string, fields...string) *ast.Definition {
	def := &ast.Definition{Kind: ast.Object, Name: name}
	for _, f := range fields {
		def.Fields = append(def.Fields, &ast.FieldDefinition{Name: f})
	}
	return def
}

func TestBuildDelegationPlanRoutesUniqueFieldsToTheirOwner(t *testing.T) {
	users := &subschema.Subschema{Name: "users"}
	reviews := &subschema.Subschema{Name: "reviews"}

	mt := &stitching.MergedTypeInfo{
		TypeName: "User",
		UniqueFields: map[string]*subschema.Subschema{"name": users, "rating": reviews},
		NonUniqueFields: map[string][]*subschema.Subschema{},
	}

	fields := []Field{{Name: "name"}, {Name: "rating"}}
	delegationMap, proxiableFieldNodes, unproxiableFieldNodes := buildDelegationPlan(mt, []*subschema.Subschema{users, reviews}, fields)

	assert.Len(t, delegationMap, 2)
	assert.Len(t, proxiableFieldNodes, 2)
	assert.Empty(t, unproxiableFieldNodes)
}

func TestBuildDelegationPlanMarksFieldUnproxiableWhenOwnerNotProxiable(t *testing.T) {
	users := &subschema.Subschema{Name: "users"}

	mt := &stitching.MergedTypeInfo{
		TypeName: "User",
		UniqueFields: map[string]*subschema.Subschema{"name": users},
	}

	fields := []Field{{Name: "name"}}
	delegationMap, proxiableFieldNodes, unproxiableFieldNodes := buildDelegationPlan(mt, nil, fields)

	assert.Empty(t, delegationMap)
	assert.Empty(t, proxiableFieldNodes)
	assert.Len(t, unproxiableFieldNodes, 1)
}

func TestBuildDelegationPlanPrefersAlreadyTargetedSubschemaForNonUniqueFields(t *testing.T) {
	users := &subschema.Subschema{Name: "users"}
	mirror := &subschema.Subschema{Name: "mirror"}

	mt := &stitching.MergedTypeInfo{
		TypeName: "User",
		UniqueFields: map[string]*subschema.Subschema{"name": users},
		NonUniqueFields: map[string][]*subschema.Subschema{"id": {users, mirror}},
	}

	fields := []Field{{Name: "name"}, {Name: "id"}}
	delegationMap, _, _ := buildDelegationPlan(mt, []*subschema.Subschema{users, mirror}, fields)

	assert.Len(t, delegationMap[users], 2)
	assert.Empty(t, delegationMap[mirror])
}

func TestSubschemaTypesContainSelectionSetChecksAvailabilityRecursively(t *testing.T) {
	sub := &subschema.Subschema{
		Name: "users",
		TransformedSchema: &ast.Schema{Types: map[string]*ast.Definition{"User": testType("User", "id", "name")}},
	}
	mt := &stitching.MergedTypeInfo{TypeName: "User"}

	dep := ast.SelectionSet{&ast.Field{Name: "id"}}
	assert.True(t, subschemaTypesContainSelectionSet(mt, []*subschema.Subschema{sub}, dep))

	missing := ast.SelectionSet{&ast.Field{Name: "email"}}
	assert.False(t, subschemaTypesContainSelectionSet(mt, []*subschema.Subschema{sub}, missing))
}

func TestPlanTerminatesWhenDelegationMapEmpty(t *testing.T) {
	mt := &stitching.MergedTypeInfo{
		TypeName: "User",
		SelectionSets: map[*subschema.Subschema]ast.SelectionSet{},
		Resolvers: map[*subschema.Subschema]stitching.MergedTypeResolver{},
	}

	parent := external.Annotate(external.Object{"id": "1"}, nil, nil)
	result, err := Plan(context.Background(), mt, parent, []Field{{Name: "__typename"}}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, result)
}
