package receiver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusionschema/stitch/subschema"
)

func TestGetInitialResultReturnsFirstPatch(t *testing.T) {
	patches := make(chan subschema.Patch, 2)
	patches <- subschema.Patch{Data: map[string]interface{}{"id": "1"}, HasNext: false}
	close(patches)

	r := New(&subschema.AsyncResult{Patches: patches}, "user")

	data, errs, err := r.GetInitialResult()
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, "1", data["id"])
}

func TestRequestResolvesSynchronouslyWhenValueAlreadyArrived(t *testing.T) {
	patches := make(chan subschema.Patch, 1)
	patches <- subschema.Patch{Data: map[string]interface{}{"id": "1"}, HasNext: false}
	close(patches)

	r := New(&subschema.AsyncResult{Patches: patches}, "user")
	_, _, err := r.GetInitialResult()
	require.NoError(t, err)

	data, err := r.Request(nil)
	require.NoError(t, err)
	assert.Equal(t, "1", data["id"])
}

func TestTopicIsUniquePerReceiver(t *testing.T) {
	a := New(&subschema.AsyncResult{Patches: make(chan subschema.Patch)}, "user")
	b := New(&subschema.AsyncResult{Patches: make(chan subschema.Patch)}, "user")

	assert.NotEmpty(t, a.Topic())
	assert.NotEqual(t, a.Topic(), b.Topic())
}

func TestRequestBlocksUntilDeferredPatchArrives(t *testing.T) {
	patches := make(chan subschema.Patch, 2)
	patches <- subschema.Patch{Data: map[string]interface{}{"id": "1"}, HasNext: true}

	r := New(&subschema.AsyncResult{Patches: patches}, "user")
	_, _, err := r.GetInitialResult()
	require.NoError(t, err)

	result := make(chan map[string]interface{}, 1)
	go func() {
		data, err := r.Request([]interface{}{"reviews"})
		require.NoError(t, err)
		result <- data
	}()

	time.Sleep(10 * time.Millisecond)
	patches <- subschema.Patch{
		Path: []interface{}{"reviews"},
		Data: map[string]interface{}{"rating": 5},
		HasNext: false,
	}
	close(patches)

	select {
		case data := <-result:
		assert.Equal(t, 5, data["rating"])
		case <-time.After(time.Second):
		t.Fatal("timed out waiting for deferred patch")
	}
}
