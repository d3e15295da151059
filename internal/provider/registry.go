package provider

import "strings"

// Registry keeps clients in registration order.
type Registry struct {
	clients []Client
	byName  map[string]Client
}

// NewRegistry registers clients in the given order.
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{byName: make(map[string]Client)}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a client by name. A replaced client keeps its slot.
func (r *Registry) Register(c Client) {
	if r == nil || c == nil {
		return
	}
	if r.byName == nil {
		r.byName = make(map[string]Client)
	}
	name := c.Name()
	if _, ok := r.byName[name]; ok {
		for i, existing := range r.clients {
			if existing.Name() == name {
				r.clients[i] = c
			}
		}
	} else {
		r.clients = append(r.clients, c)
	}
	r.byName[name] = c
}

// Get returns a client by name.
func (r *Registry) Get(name string) Client {
	if r == nil {
		return nil
	}
	return r.byName[name]
}

// Names returns registered names in order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c.Name())
	}
	return out
}

// Ordered returns the named clients in the order given, skipping unknown and
// repeated names. An empty list returns every client in registration order.
func (r *Registry) Ordered(names []string) []Client {
	if r == nil {
		return nil
	}
	if len(names) == 0 {
		return append([]Client(nil), r.clients...)
	}
	seen := make(map[string]bool, len(names))
	out := make([]Client, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if c := r.byName[name]; c != nil {
			out = append(out, c)
		}
	}
	return out
}
