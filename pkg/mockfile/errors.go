package mockfile

import "errors"

var (
	ErrReadFile         = errors.New("mockfile: read file")
	ErrParseFile        = errors.New("mockfile: parse file")
	ErrNestedHandlers   = errors.New("mockfile: nested handler lists are not supported")
	ErrInvalidHandler   = errors.New("mockfile: invalid handler definition")
	ErrUnknownKind      = errors.New("mockfile: unknown handler kind")
	ErrUnknownResponse  = errors.New("mockfile: unknown response type")
	ErrInvalidResponse  = errors.New("mockfile: invalid response")
	ErrMissingResponses = errors.New("mockfile: handler has no response")
)
