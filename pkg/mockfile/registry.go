package mockfile

import (
	"sort"
	"sync"

	"github.com/jingkaihe/netmock/pkg/api"
)

// ResponseFactory builds the mocked response described by spec.
type ResponseFactory func(spec ResponseSpec) (*api.Response, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]ResponseFactory{}
)

func init() {
	Register(ResponseText, textResponse)
	Register(ResponseJSON, jsonResponse)
	Register(ResponseGraphQL, graphqlResponse)
	Register(ResponseEmpty, emptyResponse)
	Register(ResponsePassthrough, passthroughResponse)
	Register(ResponseNetworkError, networkErrorResponse)
}

// Register adds a response factory. Programs embedding the mock server
// call this from their own init functions.
// Panics if a factory is already registered for typeName.
func Register(typeName string, factory ResponseFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[typeName]; exists {
		panic("mockfile: duplicate response factory registration for type " + typeName)
	}
	registry[typeName] = factory
}

// LookupFactory returns the factory for a response type name.
func LookupFactory(typeName string) (ResponseFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[typeName]
	return f, ok
}

// RegisteredTypes returns the registered response type names, sorted.
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(registry))
	for name := range registry {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
