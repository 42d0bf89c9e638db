package graphql

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/api"
)

// Request is a GraphQL operation carried by an HTTP request.
type Request struct {
	Operation
	Query     string
	Variables map[string]any
}

const maxMultipartMemory = 32 << 20

// ParseRequest extracts the GraphQL operation from req. It returns
// (nil, nil) when req does not carry a GraphQL query at all, and an error
// when it carries one that cannot be parsed.
func ParseRequest(req *api.Request) (*Request, error) {
	query, variables, operationName, err := readInput(req)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return nil, nil
	}

	op, err := ParseQuery(query, operationName)
	if err != nil {
		return nil, errx.With(err, ` (failed to intercept a GraphQL request to "%s %s")`, req.Method(), req.URL().String())
	}
	return &Request{Operation: op, Query: query, Variables: variables}, nil
}

func readInput(req *api.Request) (query string, variables map[string]any, operationName string, err error) {
	switch req.Method() {
	case http.MethodGet:
		q := req.URL().Query()
		return q.Get("query"), decodeVariables(gjson.Parse(q.Get("variables"))), q.Get("operationName"), nil

	case http.MethodPost:
		body, err := req.Body()
		if err != nil {
			return "", nil, "", err
		}
		mediaType, params, _ := mime.ParseMediaType(req.Header().Get("Content-Type"))
		if mediaType == "multipart/form-data" {
			ops, err := readMultipart(body, params["boundary"])
			if err != nil {
				return "", nil, "", err
			}
			body = ops
		}
		if !gjson.ValidBytes(body) {
			return "", nil, "", nil
		}
		parsed := gjson.ParseBytes(body)
		return parsed.Get("query").String(),
			decodeVariables(parsed.Get("variables")),
			parsed.Get("operationName").String(),
			nil
	}
	return "", nil, "", nil
}

func decodeVariables(v gjson.Result) map[string]any {
	if !v.IsObject() {
		return map[string]any{}
	}
	out, ok := v.Value().(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return out
}

// readMultipart implements the GraphQL multipart request form: the
// "operations" field holds the JSON payload and "map" assigns each file
// part to one or more variable paths.
func readMultipart(body []byte, boundary string) ([]byte, error) {
	if boundary == "" {
		return nil, errx.With(ErrMultipart, ": missing boundary")
	}
	form, err := multipart.NewReader(bytes.NewReader(body), boundary).ReadForm(maxMultipartMemory)
	if err != nil {
		return nil, errx.Wrap(ErrMultipart, err)
	}
	defer form.RemoveAll()

	operations := []byte(first(form.Value["operations"]))
	if len(operations) == 0 {
		return nil, errx.With(ErrMultipart, ": missing operations field")
	}

	fileMap := gjson.Parse(first(form.Value["map"]))
	var setErr error
	fileMap.ForEach(func(key, paths gjson.Result) bool {
		headers := form.File[key.String()]
		if len(headers) == 0 {
			return true
		}
		fh := headers[0]
		size, rerr := fileSize(fh)
		if rerr != nil {
			setErr = rerr
			return false
		}
		file := map[string]any{
			"name": fh.Filename,
			"type": fh.Header.Get("Content-Type"),
			"size": size,
		}
		for _, p := range paths.Array() {
			operations, setErr = sjson.SetBytes(operations, p.String(), file)
			if setErr != nil {
				return false
			}
		}
		return true
	})
	if setErr != nil {
		return nil, errx.Wrap(ErrMultipart, setErr)
	}
	return operations, nil
}

func fileSize(fh *multipart.FileHeader) (int64, error) {
	f, err := fh.Open()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(io.Discard, f)
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
