package env

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Var maps variable names to values.
type Var map[string]string

// Env composes the environment handed to the miner's start and stop commands.
type Env struct {
	base Var // OS environment, cached on first use
	over Var // configured overrides
}

// Parse builds an Env from "K=V" entries. Entries without '=' or with an empty key
// are rejected.
func Parse(entries []string) (*Env, error) {
	e := &Env{over: make(Var, len(entries))}
	for _, kv := range entries {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			return nil, fmt.Errorf("invalid env entry %q: want KEY=VALUE", kv)
		}
		e.over[kv[:i]] = kv[i+1:]
	}
	return e, nil
}

// Empty reports whether no overrides are configured, in which case commands can
// simply inherit the process environment.
func (e *Env) Empty() bool { return e == nil || len(e.over) == 0 }

func (e *Env) fromOS() Var {
	base := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			base[kv[:i]] = kv[i+1:]
		}
	}
	return base
}

// Merge returns the OS environment with the overrides applied, in "K=V" form sorted by
// key. ${VAR} in override values is expanded once against the merged map.
func (e *Env) Merge() []string {
	if e.base == nil {
		e.base = e.fromOS()
	}
	m := make(Var, len(e.base)+len(e.over))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.over {
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		if _, ok := e.over[k]; ok {
			v = expand(v, m)
		}
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(k string) string {
		if v, ok := m[k]; ok {
			return v
		}
		return ""
	})
}
