// Package messaging keeps a registry of messaging-client kinds so accounts
// can select their transport from configuration.
package messaging

import (
	"fmt"
	"log/slog"

	"PriceScanner/internal/ports"
)

// Factory builds a client for one account from its options map.
type Factory func(account string, options map[string]string, logger *slog.Logger) (ports.MessagingClient, error)

// Registry maps client kind names to their factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds or replaces a client factory.
func (r *Registry) Register(kind string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[kind] = factory
}

// Build resolves the factory for kind and constructs the account's client.
func (r *Registry) Build(kind, account string, options map[string]string, logger *slog.Logger) (ports.MessagingClient, error) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("messaging client kind %s is not registered", kind)
	}
	return factory(account, options, logger)
}
