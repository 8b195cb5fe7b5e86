package stitching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/fusionschema/stitch/subschema"
)

func objectDef(name string, fields...string) *ast.Definition {
	def := &ast.Definition{Kind: ast.Object, Name: name}
	for _, f := range fields {
		def.Fields = append(def.Fields, &ast.FieldDefinition{Name: f})
	}
	return def
}

func newTestSubschema(name string, types...*ast.Definition) *subschema.Subschema {
	schema := &ast.Schema{Types: make(map[string]*ast.Definition)}
	for _, t := range types {
		schema.Types[t.Name] = t
	}
	return &subschema.Subschema{Name: name, Schema: schema, Merge: make(map[string]*subschema.MergedTypeConfig)}
}

func TestCompileExcludesSelfFromTargetSubschemas(t *testing.T) {
	users := newTestSubschema("users", objectDef("User", "id", "name"))
	reviews := newTestSubschema("reviews", objectDef("User", "id", "reviews"))

	users.Merge["User"] = &subschema.MergedTypeConfig{
		SelectionSet: ast.SelectionSet{&ast.Field{Name: "id"}},
	}
	reviews.Merge["User"] = &subschema.MergedTypeConfig{
		SelectionSet: ast.SelectionSet{&ast.Field{Name: "id"}},
	}

	info, err := Compile(nil, []*subschema.Subschema{users, reviews}, map[string]bool{"User": true})
	require.NoError(t, err)

	mt, ok := info.ForType("User")
	require.True(t, ok)

	assert.NotContains(t, mt.TargetSubschemas[users], users)
	assert.Contains(t, mt.TargetSubschemas[users], reviews)
	assert.NotContains(t, mt.TargetSubschemas[reviews], reviews)
	assert.Contains(t, mt.TargetSubschemas[reviews], users)
}

func TestCompileUniqueAndNonUniqueFields(t *testing.T) {
	users := newTestSubschema("users", objectDef("User", "id", "name"))
	reviews := newTestSubschema("reviews", objectDef("User", "id", "reviews"))

	info, err := Compile(nil, []*subschema.Subschema{users, reviews}, map[string]bool{"User": true})
	require.NoError(t, err)

	mt, ok := info.ForType("User")
	require.True(t, ok)

	assert.Equal(t, users, mt.UniqueFields["name"])
	assert.Equal(t, reviews, mt.UniqueFields["reviews"])
	assert.ElementsMatch(t, []*subschema.Subschema{users, reviews}, mt.NonUniqueFields["id"])
}

func TestCompileSkipsTypeAbsentFromMergedTypeNames(t *testing.T) {
	users := newTestSubschema("users", objectDef("User", "id"))

	info, err := Compile(nil, []*subschema.Subschema{users}, map[string]bool{})
	require.NoError(t, err)

	_, ok := info.ForType("User")
	assert.False(t, ok)
}
