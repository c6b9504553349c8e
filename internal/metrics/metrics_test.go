package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncCycle("healthy")
	IncCycle("healthy")
	IncAction("start", "ok")
	IncNotification("sent")
	SetPoolStatus("stale")
	SetMinerRunning(true, 120)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"minermon_monitor_cycles_total":       false,
		"minermon_miner_actions_total":        false,
		"minermon_notify_notifications_total": false,
		"minermon_pool_status":                false,
		"minermon_miner_running":              false,
		"minermon_miner_uptime_seconds":       false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
		if n == "minermon_pool_status" {
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				want := 0.0
				if label == "stale" {
					want = 1
				}
				if m.GetGauge().GetValue() != want {
					t.Fatalf("pool status %s = %v want %v", label, m.GetGauge().GetValue(), want)
				}
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHelpersNoopBeforeRegister(t *testing.T) {
	regOK.Store(false)
	// must not panic or record anything
	IncCycle("x")
	IncAction("stop", "failed")
	SetMinerRunning(false, 0)
	RecordMinerResources(context.Background(), int32(os.Getpid()))
}

func TestRecordMinerResources_Self(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	RecordMinerResources(context.Background(), int32(os.Getpid()))
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "minermon_miner_memory_rss_bytes" {
			if mf.GetMetric()[0].GetGauge().GetValue() <= 0 {
				t.Fatalf("expected positive rss for own process")
			}
			return
		}
	}
	t.Fatalf("rss metric not gathered")
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncCycle("skip_not_running")

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "minermon_monitor_cycles_total") {
		t.Fatalf("metrics output missing cycles counter")
	}
}
