package metricsource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestQueryInstantSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got == "" {
			t.Errorf("expected a query parameter")
		}
		resp := map[string]any{
			"status": "success",
			"data": map[string]any{
				"result": []map[string]any{
					{"value": []any{1700000000, "42.5"}},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	v, err := c.QueryInstant(context.Background(), "up", map[string]string{"service": "api"})
	if err != nil {
		t.Fatalf("QueryInstant() error: %v", err)
	}
	if v != 42.5 {
		t.Errorf("expected 42.5, got %v", v)
	}
}

func TestQueryInstantEmptyResultReturnsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"result": []any{}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	v, err := c.QueryInstant(context.Background(), "up", nil)
	if err != nil {
		t.Fatalf("QueryInstant() error: %v", err)
	}
	if v != 0 {
		t.Errorf("expected 0 for empty result, got %v", v)
	}
}

func TestQueryInstantTransportErrorIsReturned(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "", 50*time.Millisecond)
	_, err := c.QueryInstant(context.Background(), "up", nil)
	if err == nil {
		t.Fatal("expected a transport error")
	}
}

func TestQueryBundle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": map[string]any{
				"result": []map[string]any{
					{"value": []any{0, "0.25"}},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	snap, err := c.QueryBundle(context.Background(), DefaultBundle, map[string]string{"service": "api"})
	if err != nil {
		t.Fatalf("QueryBundle() error: %v", err)
	}
	if snap.LatencyP95Ms != 250 {
		t.Errorf("expected latency p95 of 250ms, got %v", snap.LatencyP95Ms)
	}
}
