package token

import (
	"errors"
	"fmt"

	"plainsmart.org/internal/config"
)

// ClientRegistry is the immutable set of client registrations, validated at
// construction. A client referencing a scope the service does not define is
// a configuration error and fails the process at startup.
type ClientRegistry struct {
	clients map[string]config.Client
}

// NewClientRegistry validates and indexes the given registrations.
func NewClientRegistry(clients []config.Client) (*ClientRegistry, error) {
	known := make(map[string]struct{}, len(config.KnownScopes))
	for _, s := range config.KnownScopes {
		known[s] = struct{}{}
	}

	reg := &ClientRegistry{clients: make(map[string]config.Client, len(clients))}
	for _, c := range clients {
		if c.ID == "" {
			return nil, errors.New("client id is required")
		}
		if _, dup := reg.clients[c.ID]; dup {
			return nil, fmt.Errorf("duplicate client %q", c.ID)
		}
		for _, scope := range c.AllowedScopes {
			if _, ok := known[scope]; !ok {
				return nil, fmt.Errorf("client %q references undefined scope %q", c.ID, scope)
			}
		}
		reg.clients[c.ID] = c
	}
	return reg, nil
}

// Lookup resolves a client id presented on a token request.
func (r *ClientRegistry) Lookup(id string) (config.Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return config.Client{}, fmt.Errorf("%w: %q", ErrUnknownClient, id)
	}
	return c, nil
}
