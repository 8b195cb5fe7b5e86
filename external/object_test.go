package external

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vektah/gqlparser/v2/ast"
)

func TestAnnotateMarksObjectAsExternal(t *testing.T) {
	obj := Annotate(Object{"id": "1"}, nil, "users")

	assert.True(t, IsExternalObject(obj))
	assert.Equal(t, "users", Subschema(obj))
	assert.Equal(t, "users", FieldSubschema(obj, "id"))
}

func TestIsExternalObjectFalseForPlainMap(t *testing.T) {
	assert.False(t, IsExternalObject(Object{"id": "1"}))
	assert.False(t, IsExternalObject("not a map"))
}

func TestStripAnnotationsRemovesHiddenKey(t *testing.T) {
	obj := Annotate(Object{"id": "1"}, nil, "users")
	stripped := StripAnnotations(obj)

	_, hasAnnotation := stripped[annotationKey]
	assert.False(t, hasAnnotation)
	assert.Equal(t, "1", stripped["id"])
}

func TestMergeExternalDeepMergesSuccessfulSource(t *testing.T) {
	target := Annotate(Object{"id": "1"}, nil, "users")
	source := Annotate(Object{"reviews": []interface{}{"a"}}, nil, "reviews")

	merged := MergeExternal(target, []Source{{Subschema: "reviews", Object: source}})

	assert.Equal(t, "1", merged["id"])
	assert.Equal(t, []interface{}{"a"}, merged["reviews"])
	assert.Equal(t, "reviews", FieldSubschema(merged, "reviews"))
}

func TestMergeExternalSpreadsErrorAcrossRequestedFields(t *testing.T) {
	target := Annotate(Object{"id": "1"}, nil, "users")
	ss := ast.SelectionSet{&ast.Field{Name: "reviews"}, &ast.Field{Name: "rating"}}

	merged := MergeExternal(target, []Source{{
				Subschema: "reviews",
				SelectionSet: ss,
				Err: errors.New("boom"),
				Path: []interface{}{"user"},
	}})

	assert.Nil(t, merged["reviews"])
	assert.Nil(t, merged["rating"])
	assert.Len(t, UnpathedErrors(merged), 2)
}

func TestMergeExternalReplacesArraysRatherThanConcatenating(t *testing.T) {
	target := Annotate(Object{"tags": []interface{}{"a", "b"}}, nil, "users")
	source := Annotate(Object{"tags": []interface{}{"c"}}, nil, "reviews")

	merged := MergeExternal(target, []Source{{Subschema: "reviews", Object: source}})

	assert.Equal(t, []interface{}{"c"}, merged["tags"])
}
