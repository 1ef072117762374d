// Package env composes the environment handed to agent processes.
package env

import (
	"os"
	"sort"
	"strings"
)

// Env layers variables over a base environment. The zero value uses the
// supervisor's own environment as the base.
type Env struct {
	base map[string]string
	vars map[string]string
}

// New returns an Env whose base is the current process environment.
func New() *Env {
	return &Env{base: parse(os.Environ()), vars: map[string]string{}}
}

// FromList returns an Env whose base is the given KEY=VALUE list.
func FromList(base []string) *Env {
	return &Env{base: parse(base), vars: map[string]string{}}
}

// WithSet returns a copy of e with k=v layered on top.
func (e *Env) WithSet(k, v string) *Env {
	out := e.clone()
	if k != "" {
		out.vars[k] = v
	}
	return out
}

// WithList returns a copy of e with every KEY=VALUE entry layered on top, in order.
func (e *Env) WithList(list []string) *Env {
	out := e.clone()
	for k, v := range parseOrdered(list) {
		out.vars[k] = v
	}
	return out
}

func (e *Env) clone() *Env {
	out := &Env{base: e.base, vars: make(map[string]string, len(e.vars))}
	if out.base == nil {
		out.base = parse(os.Environ())
	}
	for k, v := range e.vars {
		out.vars[k] = v
	}
	return out
}

// Merge returns the composed environment sorted by key. Layered values may
// reference other variables as ${NAME}; references resolve against the
// composed map once, without recursion. Unknown references are left intact.
func (e *Env) Merge(extra []string) []string {
	m := make(map[string]string, len(e.base)+len(e.vars))
	for k, v := range e.base {
		m[k] = v
	}
	layered := make(map[string]string, len(e.vars))
	for k, v := range e.vars {
		layered[k] = v
	}
	for k, v := range parseOrdered(extra) {
		layered[k] = v
	}
	lookup := func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
	resolved := make(map[string]string, len(layered))
	for k, v := range layered {
		resolved[k] = expand(v, lookup)
	}
	for k, v := range resolved {
		m[k] = v
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

// expand replaces ${NAME} references. A bare $NAME is kept literally since
// agent env values such as passwords may legitimately contain '$'.
func expand(s string, lookup func(string) (string, bool)) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var sb strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			sb.WriteString(s)
			break
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			sb.WriteString(s)
			break
		}
		name := s[i+2 : i+2+j]
		sb.WriteString(s[:i])
		if v, ok := lookup(name); ok && name != "" {
			sb.WriteString(v)
		} else {
			sb.WriteString(s[i : i+3+j])
		}
		s = s[i+3+j:]
	}
	return sb.String()
}

func parse(list []string) map[string]string {
	return parseOrdered(list)
}

// parseOrdered applies entries in order so later duplicates win. Entries
// without '=' or with an empty key are dropped.
func parseOrdered(list []string) map[string]string {
	m := make(map[string]string, len(list))
	for _, kv := range list {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}
