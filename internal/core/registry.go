package core

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// SchemaInfo contains display information about an import schema.
type SchemaInfo struct {
	Key                  string        `json:"key"`   // Unique identifier: "contacts"
	Group                string        `json:"group"` // Area of the product: "CRM", "Inventory"
	Label                string        `json:"label"` // Display name: "Contacts"
	Description          string        `json:"description,omitempty"`
	Fields               []ImportField `json:"fields"`
	RequiredFields       []string      `json:"requiredFields"`
	DuplicateCheckFields []string      `json:"duplicateCheckFields"`
}

// Backend carries the collaborators a schema needs to build its bulk creator.
type Backend struct {
	DB           TxBeginner   // nil when no database is configured
	Mode         string       // "postgres" or "http"
	BulkEndpoint string       // Base URL for http mode
	BulkToken    string       // Bearer token for http mode
	HTTPClient   *http.Client // Client for http mode
}

// NewImporterFunc builds a session for a schema.
type NewImporterFunc func(id string, backend Backend, opts SessionOptions) (Importer, error)

// SchemaDefinition contains everything needed to run imports of one kind.
type SchemaDefinition struct {
	Info        SchemaInfo
	NewImporter NewImporterFunc
	Examples    []map[string]string // Example rows for the downloadable template
}

var (
	registry   = make(map[string]SchemaDefinition)
	registryMu sync.RWMutex
)

// Register adds a schema definition to the registry.
// Panics if a schema with the same key is already registered.
func Register(def SchemaDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("schema already registered: %s", def.Info.Key))
	}
	if def.NewImporter == nil {
		panic(fmt.Sprintf("schema %s has no importer factory", def.Info.Key))
	}

	registry[def.Info.Key] = def
}

// Get returns a schema definition by key.
// Returns false if not found.
func Get(key string) (SchemaDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered schema definitions.
// Sorted by group then by key for consistent ordering.
func All() []SchemaDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]SchemaDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Info.Group != result[j].Info.Group {
			return result[i].Info.Group < result[j].Info.Group
		}
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// ByGroup returns all schema definitions for a specific group.
// Sorted by key for consistent ordering.
func ByGroup(group string) []SchemaDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var result []SchemaDefinition
	for _, def := range registry {
		if def.Info.Group == group {
			result = append(result, def)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// Groups returns all unique group names.
// Sorted alphabetically.
func Groups() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, def := range registry {
		seen[def.Info.Group] = true
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}

	sort.Strings(groups)
	return groups
}

// SchemaCount returns the number of registered schemas.
func SchemaCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered schemas.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]SchemaDefinition)
}

// Define builds a SchemaDefinition for a typed schema. newCreator is called
// once per session to obtain the bulk creator.
func Define[T any](info SchemaInfo, schema ImportSchema[T], newCreator func(Backend) (BulkCreator[T], error)) SchemaDefinition {
	info.Fields = schema.Fields
	info.RequiredFields = schema.RequiredFields
	info.DuplicateCheckFields = schema.DuplicateCheckFields

	return SchemaDefinition{
		Info: info,
		NewImporter: func(id string, backend Backend, opts SessionOptions) (Importer, error) {
			creator, err := newCreator(backend)
			if err != nil {
				return nil, err
			}
			return NewSession(id, schema, creator, opts), nil
		},
	}
}
