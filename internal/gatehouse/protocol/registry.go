package protocol

import "strings"

// Registry maps a protocol type to its adapter. Assembled once at
// process start, read-only afterwards.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.adapters[strings.ToLower(a.ProtocolType())] = a
}

// ForProtocol resolves the adapter for a device's configured protocol
// type. Case-insensitive; unknown types return ok=false.
func (r *Registry) ForProtocol(protocolType string) (Adapter, bool) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(protocolType))]
	return a, ok
}
