package requests

import "github.com/fusionschema/stitch/gqlerrors"

type Responses []Response

type Response struct {
	Errors gqlerrors.ErrorList `json:"errors"`
	Data map[string]interface{} `json:"data"`
	// Provenance maps each top-level response key to the name of the
	// subschema that served the root delegation for it, letting a client
	// or gateway operator see which backend answered which part of a
	// stitched response without re-deriving it from the schema config.
	Provenance map[string]string `json:"provenance,omitempty"`
}
