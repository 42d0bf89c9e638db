package graphql

import "errors"

var (
	ErrParseQuery          = errors.New("graphql: cannot parse query")
	ErrNoOperation         = errors.New("graphql: document has no operation")
	ErrAnonymousOperation  = errors.New("graphql: anonymous operation")
	ErrOperationType       = errors.New("graphql: operation type mismatch")
	ErrMultipart           = errors.New("graphql: invalid multipart request")
	ErrInvalidResponseData = errors.New("graphql: invalid response data")
)
