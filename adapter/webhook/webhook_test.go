package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nuralogix/dfx-apiv2-client-go/adapter"
	"github.com/nuralogix/dfx-apiv2-client-go/iox"
)

func testEvent() *adapter.MeasurementCompletedEvent {
	return adapter.NewMeasurementCompletedEvent(
		"meas-001", "study-001", "sess-001", "websocket",
		3, 3, 1500*time.Millisecond,
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	)
}

func newAdapter(t *testing.T, cfg Config) *Adapter {
	t.Helper()
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Millisecond
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { iox.DiscardClose(a) })
	return a
}

func TestPublish_Success(t *testing.T) {
	var received adapter.MeasurementCompletedEvent
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("unmarshal: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := newAdapter(t, Config{URL: ts.URL})
	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if received.MeasurementID != "meas-001" {
		t.Errorf("measurement_id = %q, want meas-001", received.MeasurementID)
	}
	if received.EventType != adapter.EventTypeMeasurementCompleted {
		t.Errorf("event_type = %q", received.EventType)
	}
	if received.ResultsReceived != 3 {
		t.Errorf("results_received = %d, want 3", received.ResultsReceived)
	}
}

func TestPublish_CustomHeaders(t *testing.T) {
	var authHeader string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	a := newAdapter(t, Config{
		URL:     ts.URL,
		Headers: map[string]string{"Authorization": "Bearer hook-token"},
	})
	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if authHeader != "Bearer hook-token" {
		t.Errorf("Authorization = %q", authHeader)
	}
}

func TestPublish_StatusHandling(t *testing.T) {
	tests := []struct {
		name         string
		code         int
		retries      int
		wantErr      bool
		wantAttempts int32
	}{
		{"200", 200, 3, false, 1},
		{"202", 202, 3, false, 1},
		{"400 no retry", 400, 3, true, 1},
		{"404 no retry", 404, 3, true, 1},
		{"500 retried", 500, 2, true, 3},
		{"503 retried", 503, 1, true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tt.code)
			}))
			defer ts.Close()

			a := newAdapter(t, Config{URL: ts.URL, Retries: tt.retries})
			err := a.Publish(t.Context(), testEvent())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := attempts.Load(); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
			if tt.wantErr {
				var se *StatusError
				if !errors.As(err, &se) || se.Code != tt.code {
					t.Errorf("err = %v, want StatusError{%d}", err, tt.code)
				}
			}
		})
	}
}

func TestPublish_RecoversAfterTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := newAdapter(t, Config{URL: ts.URL, Retries: 3})
	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish should succeed after retries: %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()
	defer close(release)

	a := newAdapter(t, Config{URL: ts.URL})
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	if err := a.Publish(ctx, testEvent()); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := New(Config{URL: "http://example.com", Retries: -1}); err == nil {
		t.Error("expected error for negative retries")
	}

	a, err := New(Config{URL: "http://example.com"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.config.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", a.config.Timeout, DefaultTimeout)
	}
}
