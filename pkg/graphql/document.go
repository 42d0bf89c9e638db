// Package graphql extracts GraphQL operations from intercepted HTTP
// requests and builds GraphQL response envelopes.
package graphql

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/jingkaihe/netmock/internal/errx"
)

// OperationType is the kind of a GraphQL operation.
type OperationType string

const (
	Query        OperationType = "query"
	Mutation     OperationType = "mutation"
	Subscription OperationType = "subscription"
	// All matches every operation type.
	All OperationType = "all"
)

// Operation describes one parsed operation definition.
type Operation struct {
	Type OperationType
	// Name is empty for anonymous operations.
	Name string
}

// ParseQuery parses query and returns the operation selected by
// operationName, or the first operation when operationName is empty or
// unknown.
func ParseQuery(query, operationName string) (Operation, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return Operation{}, errx.Wrap(ErrParseQuery, err)
	}
	if len(doc.Operations) == 0 {
		return Operation{}, ErrNoOperation
	}
	selected := doc.Operations[0]
	if operationName != "" {
		if op := doc.Operations.ForName(operationName); op != nil {
			selected = op
		}
	}
	return Operation{Type: OperationType(selected.Operation), Name: selected.Name}, nil
}

// ParseDocument parses a document used to declare a handler. Unlike
// requests, declarations must name their operation and agree with the
// expected type unless expected is All.
func ParseDocument(document string, expected OperationType) (Operation, error) {
	op, err := ParseQuery(document, "")
	if err != nil {
		return Operation{}, err
	}
	if op.Name == "" {
		return Operation{}, errx.With(ErrAnonymousOperation, ": handlers cannot be declared from an unnamed %s", op.Type)
	}
	if expected != All && op.Type != expected {
		return Operation{}, errx.With(ErrOperationType, ": expected %q but document declares %s %q", expected, op.Type, op.Name)
	}
	return op, nil
}
