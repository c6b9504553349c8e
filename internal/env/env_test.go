package env

import (
	"slices"
	"testing"
)

func TestParse_Rejects(t *testing.T) {
	for _, bad := range []string{"NOVALUE", "=x", ""} {
		if _, err := Parse([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestMerge_OverridesAndExpands(t *testing.T) {
	t.Setenv("MINERMON_TEST_BASE", "/opt/miner")
	e, err := Parse([]string{
		"GPU_MAX_HEAP_SIZE=100",
		"MINER_CONF=${MINERMON_TEST_BASE}/pool.conf",
		"MINERMON_TEST_BASE_COPY=${MISSING}x",
	})
	if err != nil {
		t.Fatal(err)
	}
	out := e.Merge()
	for _, want := range []string{
		"GPU_MAX_HEAP_SIZE=100",
		"MINER_CONF=/opt/miner/pool.conf",
		"MINERMON_TEST_BASE_COPY=x",
		"MINERMON_TEST_BASE=/opt/miner",
	} {
		if !slices.Contains(out, want) {
			t.Fatalf("missing %q in merged env", want)
		}
	}
	if !slices.IsSorted(out) {
		t.Fatalf("merged env should be sorted")
	}
}

func TestMerge_OverrideWins(t *testing.T) {
	t.Setenv("MINERMON_TEST_X", "os")
	e, _ := Parse([]string{"MINERMON_TEST_X=cfg"})
	out := e.Merge()
	if !slices.Contains(out, "MINERMON_TEST_X=cfg") || slices.Contains(out, "MINERMON_TEST_X=os") {
		t.Fatalf("override should replace OS value")
	}
}

func TestEmpty(t *testing.T) {
	var nilEnv *Env
	if !nilEnv.Empty() {
		t.Fatalf("nil env is empty")
	}
	e, _ := Parse(nil)
	if !e.Empty() {
		t.Fatalf("no entries is empty")
	}
}
