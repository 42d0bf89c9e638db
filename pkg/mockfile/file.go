// Package mockfile loads declarative mock definitions from YAML or JSON
// and compiles them into request and connection handlers.
package mockfile

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/graphql"
	"github.com/jingkaihe/netmock/pkg/policy"
)

// Handler kinds.
const (
	KindHTTP      = "http"
	KindGraphQL   = "graphql"
	KindWebSocket = "websocket"
)

// Built-in response types.
const (
	ResponseText         = "text"
	ResponseJSON         = "json"
	ResponseGraphQL      = "graphql"
	ResponseEmpty        = "empty"
	ResponsePassthrough  = "passthrough"
	ResponseNetworkError = "network_error"
)

// File is a complete mock definition file.
type File struct {
	api.Config `yaml:",inline"`

	Gate     *policy.GateConfig `yaml:"gate,omitempty"`
	Handlers Definitions        `yaml:"handlers"`
}

// Definitions is a flat list of handler definitions.
type Definitions []Definition

// UnmarshalYAML rejects nested lists before decoding each definition.
func (d *Definitions) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return errx.With(ErrParseFile, ": line %d: handlers must be a list", node.Line)
	}
	out := make(Definitions, 0, len(node.Content))
	for i, item := range node.Content {
		if item.Kind == yaml.SequenceNode {
			return errx.With(ErrNestedHandlers, ": handlers[%d] (line %d)", i, item.Line)
		}
		var def Definition
		if err := item.Decode(&def); err != nil {
			return errx.With(ErrParseFile, ": handlers[%d]: %w", i, err)
		}
		out = append(out, def)
	}
	*d = out
	return nil
}

// Definition describes one handler. Kind selects which fields apply.
type Definition struct {
	Kind string `yaml:"kind,omitempty"`
	Once bool   `yaml:"once,omitempty"`

	// HTTP and WebSocket URL matching. Path is a pattern such as
	// "/user/:id"; PathRegexp is matched against the full URL.
	Method     string `yaml:"method,omitempty"`
	Path       string `yaml:"path,omitempty"`
	PathRegexp string `yaml:"path_regexp,omitempty"`

	// GraphQL operation matching.
	Operation  string `yaml:"operation,omitempty"`
	Name       string `yaml:"name,omitempty"`
	NameRegexp string `yaml:"name_regexp,omitempty"`
	Endpoint   string `yaml:"endpoint,omitempty"`

	// WebSocket behavior on connection.
	Send    []string `yaml:"send,omitempty"`
	Echo    bool     `yaml:"echo,omitempty"`
	Connect bool     `yaml:"connect,omitempty"`

	// Response answers every matching request. Responses answers them in
	// order and then keeps repeating the last one.
	Response  *ResponseSpec  `yaml:"response,omitempty"`
	Responses []ResponseSpec `yaml:"responses,omitempty"`
}

// ResponseSpec describes one mocked response. Type is inferred from the
// populated fields when empty.
type ResponseSpec struct {
	Type    string            `yaml:"type,omitempty"`
	Status  int               `yaml:"status,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty"`
	JSON    any               `yaml:"json,omitempty"`
	Data    any               `yaml:"data,omitempty"`
	Errors  []graphql.Error   `yaml:"errors,omitempty"`
	Delay   time.Duration     `yaml:"delay,omitempty"`
}

func (s ResponseSpec) typeName() string {
	switch {
	case s.Type != "":
		return s.Type
	case s.JSON != nil:
		return ResponseJSON
	case s.Data != nil || len(s.Errors) > 0:
		return ResponseGraphQL
	case s.Body != "":
		return ResponseText
	default:
		return ResponseEmpty
	}
}

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errx.Wrap(ErrReadFile, err)
	}
	return Parse(data)
}

// Parse decodes a YAML or JSON document and validates its settings.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errx.Wrap(ErrParseFile, err)
	}
	if err := f.Config.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}
