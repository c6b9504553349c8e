package env

import (
	"strings"
	"testing"
)

// FuzzParseMerge ensures arbitrary entries never panic and merged output stays well formed.
func FuzzParseMerge(f *testing.F) {
	f.Add([]byte("A=1\nB=${A}-x"))
	f.Add([]byte("FOO=${FOO}"))
	f.Add([]byte("X=${Y}\nY=${X}"))
	f.Add([]byte("=bad"))

	f.Fuzz(func(t *testing.T, b []byte) {
		entries := splitNZ(string(b))
		if len(entries) > 20 {
			entries = entries[:20]
		}
		e, err := Parse(entries)
		if err != nil {
			return
		}
		for _, kv := range e.Merge() {
			if !strings.Contains(kv, "=") || strings.HasPrefix(kv, "=") {
				t.Fatalf("bad pair: %q", kv)
			}
		}
	})
}

func splitNZ(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
