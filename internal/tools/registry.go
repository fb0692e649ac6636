package tools

import (
	"fmt"
	"sort"
	"sync"

	"agentstation/internal/logging"
)

// Registry is the process-wide tool catalog. Reads vastly outnumber writes:
// registration happens at startup and through the manifest, lookups happen on
// every executor step.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	logger  logging.Logger
}

type entry struct {
	schema  Schema
	invoker Invoker
}

// NewRegistry creates an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		entries: make(map[string]entry),
		logger:  logging.OrNop(logger),
	}
}

// Register adds a schema/invoker pair. Registering an existing name fails
// with ErrDuplicateTool.
func (r *Registry) Register(schema Schema, invoker Invoker) error {
	if schema.Name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if invoker == nil {
		return fmt.Errorf("register tool %s: nil invoker", schema.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[schema.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, schema.Name)
	}
	r.entries[schema.Name] = entry{schema: schema, invoker: invoker}
	r.logger.Info("tool registered: %s", schema.Name)
	return nil
}

// Unregister removes a tool. Returns false when the name was absent.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	r.logger.Info("tool unregistered: %s", name)
	return true
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (Schema, Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Schema{}, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e.schema, e.invoker, nil
}

// ListNames returns all registered tool names, sorted.
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListSchemas returns all registered schemas, sorted by name.
func (r *Registry) ListSchemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]Schema, 0, len(r.entries))
	for _, e := range r.entries {
		schemas = append(schemas, e.schema)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// SearchByTag returns the names of tools carrying the given tag, sorted.
func (r *Registry) SearchByTag(tag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, e := range r.entries {
		if e.schema.HasTag(tag) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
