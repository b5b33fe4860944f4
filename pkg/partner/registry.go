package partner

import "fmt"

// Registry holds one Client per partner kind, the polymorphic dispatch
// point spec.md §4.E describes ("variants are selected by partner kind").
type Registry struct {
	clients map[string]Client
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds a Client, keyed by its own Kind().
func (r *Registry) Register(c Client) {
	r.clients[c.Kind()] = c
}

// Get returns the Client registered for kind.
func (r *Registry) Get(kind string) (Client, error) {
	c, ok := r.clients[kind]
	if !ok {
		return nil, fmt.Errorf("no partner client registered for kind %q", kind)
	}
	return c, nil
}

// All returns every registered Client.
func (r *Registry) All() []Client {
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}
