// Package agents holds the closed set of downstream agent endpoints the
// gateway is allowed to forward to.
package agents

import (
	"slices"
	"strings"
)

// DefaultAgents are the agent endpoints exposed by the downstream AI service.
var DefaultAgents = []string{"dormant", "compliance", "ia-chat", "sql-bot"}

// Registry is a fixed allow-list of agent names. It is built once at startup
// and read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	allowed map[string]struct{}
	names   []string
}

func NewRegistry(names []string) *Registry {
	r := &Registry{allowed: make(map[string]struct{}, len(names))}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := r.allowed[name]; ok {
			continue
		}
		r.allowed[name] = struct{}{}
		r.names = append(r.names, name)
	}
	slices.Sort(r.names)
	return r
}

// IsAllowed reports whether name is a permitted agent. Matching is exact and
// case sensitive.
func (r *Registry) IsAllowed(name string) bool {
	_, ok := r.allowed[name]
	return ok
}

// Names returns the sorted allow-list, for error messages.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}
