// Package receiver implements the Receiver: an async
// multiplexer that maps a subschema's incremental @defer/@stream patches to
// pathed subscribers and keeps enriching external objects as patches
// arrive.
package receiver

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/fusionschema/stitch/subschema"
)

// pathKey stringifies a response path into a map key, e.g. "user.reviews.0".
func pathKey(path []interface{}) string {
	key := ""
	for i, seg := range path {
		if i > 0 {
			key += "."
		}
		key += fmt.Sprintf("%v", seg)
	}
	return key
}

type subscriber chan Value

// Value is what a subscriber receives once its path key resolves: either
// the external value the receiver built for that patch, or an error.
type Value struct {
	Data map[string]interface{}
	Err error
}

// Receiver multiplexes one subschema stream over every resolver that ends
// up waiting on a value somewhere under its root field.
type Receiver struct {
	async *subschema.AsyncResult
	fieldName string
	// topic is a collision-free identifier for this stream's pubsub
	// subscription, distinct from the path keys used to demultiplex
	// individual patches within it.
	topic uuid.UUID

	mu sync.Mutex
	externalValues map[string]map[string]interface{}
	subscribers map[string][]subscriber

	numRequests atomic.Int64
	iterating atomic.Bool
	done chan struct{}
}

// New wraps async as a Receiver rooted at fieldName.
func New(async *subschema.AsyncResult, fieldName string) *Receiver {
	return &Receiver{
		async: async,
		fieldName: fieldName,
		topic: uuid.New(),
		externalValues: make(map[string]map[string]interface{}),
		subscribers: make(map[string][]subscriber),
		done: make(chan struct{}),
	}
}

// Topic is this stream's opaque subscription identifier, for correlating
// log lines and diagnostics across a deferred/streamed response's patches.
func (r *Receiver) Topic() string {
	return r.topic.String()
}

// GetInitialResult awaits the first patch and records it under the root
// path key.
func (r *Receiver) GetInitialResult() (map[string]interface{}, []error, error) {
	first, ok := <-r.async.Patches
	if !ok {
		return nil, nil, fmt.Errorf("receiver %s for field %q closed before any patch arrived", r.topic, r.fieldName)
	}

	r.mu.Lock()
	r.externalValues[pathKey(nil)] = first.Data
	r.mu.Unlock()

	if first.HasNext {
		r.ensureIterating()
	}

	return first.Data, first.Errors, nil
}

// Request routes a resolver's request for the value at path through the
// receiver: if it has already arrived, it resolves synchronously; else the
// caller blocks on the pubsub topic for that path key.
func (r *Receiver) Request(path []interface{}) (map[string]interface{}, error) {
	key := pathKey(path)

	r.mu.Lock()
	if v, ok := r.externalValues[key]; ok {
		r.mu.Unlock()
		return v, nil
	}

	ch := make(subscriber, 1)
	r.subscribers[key] = append(r.subscribers[key], ch)
	r.numRequests.Inc()
	r.mu.Unlock()

	r.ensureIterating()

	select {
		case v := <-ch:
		return v.Data, v.Err
		case <-r.done:
		return nil, fmt.Errorf("receiver %s for field %q closed before path %q resolved", r.topic, r.fieldName, key)
	}
}

// ensureIterating starts the singleton pump goroutine at most once per
// receiver.
func (r *Receiver) ensureIterating() {
	if !r.iterating.CompareAndSwap(false, true) {
		return
	}
	go r.iterate()
}

// iterate consumes patches until hasNext=false or numRequests reaches zero,
// publishing each patch's external value on its path key and closing done
// once the stream is exhausted.
func (r *Receiver) iterate() {
	defer close(r.done)

	for patch := range r.async.Patches {
		if r.numRequests.Load() == 0 {
			r.cancel()
			return
		}

		key := pathKey(patch.Path)

		r.mu.Lock()
		r.externalValues[key] = patch.Data
		subs := r.subscribers[key]
		delete(r.subscribers, key)
		r.mu.Unlock()

		var err error
		if len(patch.Errors) > 0 {
			err = patch.Errors[0]
		}
		for _, ch := range subs {
			ch <- Value{Data: patch.Data, Err: err}
			r.numRequests.Dec()
		}

		if !patch.HasNext {
			return
		}
	}
}

// cancel invokes the underlying stream's Close, if any.
func (r *Receiver) cancel() {
	if r.async.Close != nil {
		r.async.Close()
	}
}

// NumRequests reports the number of resolvers currently waiting on this
// receiver, for tests and diagnostics.
func (r *Receiver) NumRequests() int64 {
	return r.numRequests.Load()
}
