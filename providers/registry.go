package providers

import (
	"sort"
	"strings"

	"github.com/mmdatafocus/banklink_backend/utils"
)

// Registry is an immutable name -> Provider lookup, built once at process
// start and injected into every consumer.
type Registry struct {
	byName map[string]Provider
	names  []string
}

func NewRegistry(list ...Provider) *Registry {
	byName := make(map[string]Provider, len(list))
	names := make([]string, 0, len(list))
	for _, p := range list {
		if p == nil {
			continue
		}
		name := p.Name()
		if _, exists := byName[name]; exists {
			continue
		}
		byName[name] = p
		names = append(names, name)
	}
	sort.Strings(names)
	return &Registry{byName: byName, names: names}
}

// Resolve returns the provider registered under exactly name. Unknown names
// fail with a not-found error enumerating the known providers; callers must
// not guess or fall back.
func (r *Registry) Resolve(name string) (Provider, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, utils.NewNotFoundError("provider",
			name+" (known providers: "+strings.Join(r.names, ", ")+")")
	}
	return p, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns every registered provider.
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.byName))
	for _, name := range r.names {
		out = append(out, r.byName[name])
	}
	return out
}
