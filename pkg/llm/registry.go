package llm

import (
	"fmt"

	"github.com/talktothecity/pipeline/pkg/registry"
)

// Registry holds named Completer instances; the server builds one per
// configured provider at startup and resolves its default backend by name.
type Registry struct {
	*registry.BaseRegistry[Completer]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Completer]()}
}

// RegisterCompleter names and stores a Completer.
func (r *Registry) RegisterCompleter(name string, c Completer) error {
	if name == "" {
		return fmt.Errorf("llm: completer name cannot be empty")
	}
	if c == nil {
		return fmt.Errorf("llm: completer cannot be nil")
	}
	return r.Register(name, c)
}

// GetCompleter retrieves a named Completer.
func (r *Registry) GetCompleter(name string) (Completer, error) {
	c, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("llm: completer %q not found", name)
	}
	return c, nil
}
