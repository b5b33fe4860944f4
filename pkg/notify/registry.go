package notify

import "fmt"

// Registry holds all configured notification channels.
type Registry struct {
	channels map[string]Channel
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Register adds a channel to the registry.
func (r *Registry) Register(c Channel) {
	r.channels[c.Name()] = c
}

// Get returns the channel with the given name.
func (r *Registry) Get(name string) (Channel, error) {
	c, ok := r.channels[name]
	if !ok {
		return nil, fmt.Errorf("notification channel %q not registered", name)
	}
	return c, nil
}

// All returns every registered channel.
func (r *Registry) All() []Channel {
	result := make([]Channel, 0, len(r.channels))
	for _, c := range r.channels {
		result = append(result, c)
	}
	return result
}
