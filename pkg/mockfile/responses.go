package mockfile

import (
	"net/http"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/graphql"
)

func status(spec ResponseSpec) int {
	if spec.Status == 0 {
		return http.StatusOK
	}
	return spec.Status
}

func withHeaders(r *api.Response, spec ResponseSpec) *api.Response {
	for k, v := range spec.Headers {
		r.Header.Set(k, v)
	}
	return r
}

func textResponse(spec ResponseSpec) (*api.Response, error) {
	return withHeaders(api.Text(status(spec), spec.Body), spec), nil
}

func jsonResponse(spec ResponseSpec) (*api.Response, error) {
	r, err := api.JSON(status(spec), spec.JSON)
	if err != nil {
		return nil, errx.Wrap(ErrInvalidResponse, err)
	}
	return withHeaders(r, spec), nil
}

func graphqlResponse(spec ResponseSpec) (*api.Response, error) {
	r, err := graphql.Result(spec.Data, spec.Errors)
	if err != nil {
		return nil, errx.Wrap(ErrInvalidResponse, err)
	}
	if spec.Status != 0 {
		r.StatusCode = spec.Status
		r.StatusText = http.StatusText(spec.Status)
	}
	return withHeaders(r, spec), nil
}

func emptyResponse(spec ResponseSpec) (*api.Response, error) {
	return withHeaders(api.NewResponse(status(spec), nil), spec), nil
}

func passthroughResponse(ResponseSpec) (*api.Response, error) {
	return api.Passthrough(), nil
}

func networkErrorResponse(ResponseSpec) (*api.Response, error) {
	return api.NetworkError(), nil
}
