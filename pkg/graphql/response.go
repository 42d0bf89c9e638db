package graphql

import (
	"encoding/json"
	"net/http"

	"github.com/tidwall/sjson"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/api"
)

// Location points into the GraphQL document that produced an error.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is one entry of a GraphQL "errors" array.
type Error struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Data returns a 200 response whose body is {"data": data}.
func Data(data any) (*api.Response, error) {
	return build(data, nil)
}

// Errors returns a 200 response whose body is {"errors": [...]}.
func Errors(errs ...Error) (*api.Response, error) {
	return build(nil, errs)
}

// Result returns a response carrying both data and errors, for partial
// results.
func Result(data any, errs []Error) (*api.Response, error) {
	return build(data, errs)
}

func build(data any, errs []Error) (*api.Response, error) {
	body := []byte(`{}`)
	var err error
	if data != nil {
		raw, merr := json.Marshal(data)
		if merr != nil {
			return nil, errx.Wrap(ErrInvalidResponseData, merr)
		}
		if body, err = sjson.SetRawBytes(body, "data", raw); err != nil {
			return nil, errx.Wrap(ErrInvalidResponseData, err)
		}
	}
	if len(errs) > 0 {
		if body, err = sjson.SetBytes(body, "errors", errs); err != nil {
			return nil, errx.Wrap(ErrInvalidResponseData, err)
		}
	}
	return api.RawJSON(http.StatusOK, body), nil
}
