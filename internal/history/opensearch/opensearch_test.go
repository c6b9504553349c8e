package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loykin/minermon/internal/history"
)

func testEvent() history.Event {
	return history.Event{
		Type:       history.EventRestarted,
		OccurredAt: time.Now().UTC(),
		Monitor:    "rig-01",
		Session:    "os-session",
		PID:        12345,
		Detail:     "pool not updating",
	}
}

func TestOpenSearchSink_Send(t *testing.T) {
	var receivedBody []byte
	var receivedURL string
	var receivedMethod string
	var contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedURL = r.URL.Path
		contentType = r.Header.Get("Content-Type")
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"test","_index":"miner-history","result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL, "miner-history")
	if err := sink.Send(context.Background(), testEvent()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if receivedMethod != http.MethodPost {
		t.Errorf("Expected POST method, got: %s", receivedMethod)
	}
	if receivedURL != "/miner-history/_doc" {
		t.Errorf("Expected URL path /miner-history/_doc, got: %s", receivedURL)
	}
	if contentType != "application/json" {
		t.Errorf("Expected JSON content type, got: %s", contentType)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(receivedBody, &doc); err != nil {
		t.Fatalf("Failed to parse received JSON: %v", err)
	}
	if doc["type"] != string(history.EventRestarted) {
		t.Errorf("Expected type %s, got: %v", history.EventRestarted, doc["type"])
	}
	if doc["monitor"] != "rig-01" || doc["session"] != "os-session" {
		t.Errorf("unexpected identity fields: %v", doc)
	}
	if doc["pid"] != float64(12345) {
		t.Errorf("Expected pid 12345, got: %v", doc["pid"])
	}
}

func TestOpenSearchSink_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	err := New(server.URL, "miner-history").Send(context.Background(), testEvent())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "opensearch sink status 400") {
		t.Errorf("Expected status error message, got: %v", err)
	}
}

func TestOpenSearchSink_TrailingSlash(t *testing.T) {
	var receivedURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedURL = r.URL.Path
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	if err := New(server.URL+"/", "events").Send(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	if receivedURL != "/events/_doc" {
		t.Errorf("Expected /events/_doc, got %s", receivedURL)
	}
}
