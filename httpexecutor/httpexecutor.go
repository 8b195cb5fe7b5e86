// Package httpexecutor is a reference subschema.Executor implementation
// over plain HTTP POST, grounded on the same request/response shape and
// middleware chain as a conventional GraphQL-over-HTTP transport. It is not
// part of the core: it exists to demonstrate the Executor contract end to
// end and to give callers a working transport out of the box.
package httpexecutor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/buger/jsonparser"

	"github.com/fusionschema/stitch/format"
	"github.com/fusionschema/stitch/gqlerrors"
	"github.com/fusionschema/stitch/subschema"
)

// Middleware mutates an outgoing HTTP request before it's sent, e.g. to
// attach auth headers propagated from the incoming operation's context.
type Middleware func(*http.Request) error

// Executor is a reference subschema.Executor over HTTP POST.
type Executor struct {
	URL string
	Client *http.Client
	Middlewares []Middleware
}

// New builds an Executor targeting url.
func New(url string, middlewares...Middleware) *Executor {
	return &Executor{URL: url, Client: &http.Client{}, Middlewares: middlewares}
}

// requestBody is the wire shape sent to the remote subschema, matching the
// conventional `{query, variables, operationName}` GraphQL-over-HTTP POST
// body.
type requestBody struct {
	Query string `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
	OperationName string `json:"operationName,omitempty"`
}

// Do implements subschema.Executor. It never returns an AsyncResult: plain
// HTTP POST has no streaming story, so `@defer`/`@stream` responses are out
// of reach for this reference transport (a websocket or SSE executor would
// return one).
func (e *Executor) Do(req *subschema.Request) (*subschema.Result, *subschema.AsyncResult, error) {
	if req.Document == nil || len(req.Document.Operations) == 0 {
		return nil, nil, errors.New("httpexecutor: request has no operation")
	}
	op := req.Document.Operations[0]

	body := requestBody{
		Query: format.FormatOperation(op.Operation, op.SelectionSet, nonEmpty(req.OperationName)),
		Variables: req.Variables,
		OperationName: req.OperationName,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}

	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	for _, mdw := range e.Middlewares {
		if err := mdw(httpReq); err != nil {
			return nil, nil, err
		}
	}

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, nil, err
	}
	raw := buf.Bytes()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("httpexecutor: non-2xx response: %s", strconv.Itoa(resp.StatusCode))
	}

	return parseResult(raw)
}

// parseResult decodes {data, errors} using jsonparser to avoid a full
// struct unmarshal of the (often large) data payload, keeping only the
// errors list strongly typed.
func parseResult(raw []byte) (*subschema.Result, *subschema.AsyncResult, error) {
	result := &subschema.Result{Data: make(map[string]interface{})}

	dataValue, dataType, _, err := jsonparser.Get(raw, "data")
	if err == nil && dataType == jsonparser.Object {
		if err := json.Unmarshal(dataValue, &result.Data); err != nil {
			return nil, nil, err
		}
	}

	_, err = jsonparser.ArrayEach(raw, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
			if err != nil {
				return
			}
			var ge gqlerrors.Error
			if err := json.Unmarshal(value, &ge); err == nil {
				result.Errors = append(result.Errors, &ge)
			}
		}, "errors")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return nil, nil, err
	}

	return result, nil, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// AsExecutor adapts Do to the subschema.Executor function type.
func (e *Executor) AsExecutor(req *subschema.Request) (*subschema.Result, *subschema.AsyncResult, error) {
	return e.Do(req)
}

var _ subschema.Executor = (&Executor{}).AsExecutor
