// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return rec.Code, string(body)
}

func stopServer(t *testing.T, server *Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Stop(ctx)
}

func TestServer_ServesMetricsOverTCP(t *testing.T) {
	server := NewServer("127.0.0.1:0", func() bool { return true })

	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer stopServer(t, server)

	addr := server.Addr()
	if addr == "" {
		t.Fatal("server address is empty")
	}

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("failed to GET /metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	bodyStr := string(body)
	for _, want := range []string{"# HELP", "# TYPE", "go_", "process_"} {
		if !strings.Contains(bodyStr, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestServer_Probes(t *testing.T) {
	var ready atomic.Bool

	tests := []struct {
		name     string
		checker  ReadinessChecker
		path     string
		setReady bool
		wantCode int
		wantBody string
	}{
		{name: "liveness", path: "/healthz/liveness", wantCode: http.StatusOK, wantBody: "ok"},
		{name: "readiness nil checker", path: "/healthz/readiness", wantCode: http.StatusOK, wantBody: "ok"},
		{name: "readiness not ready", checker: ready.Load, path: "/healthz/readiness", wantCode: http.StatusServiceUnavailable, wantBody: "not ready"},
		{name: "readiness ready", checker: ready.Load, setReady: true, path: "/healthz/readiness", wantCode: http.StatusOK, wantBody: "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready.Store(tt.setReady)
			server := NewServer("127.0.0.1:0", tt.checker)

			code, body := get(t, server.Handler(), tt.path)
			if code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, code)
			}
			if strings.TrimSpace(body) != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, body)
			}
		})
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer stopServer(t, server)

	if _, err := server.Start(); err == nil {
		t.Error("expected error on double start, got nil")
	}
}

func TestServer_StartFailsOnBadAddress(t *testing.T) {
	server := NewServer("256.0.0.1:bad", nil)

	if _, err := server.Start(); err == nil {
		t.Fatal("expected listen error")
	}
	if server.Addr() != "" {
		t.Errorf("expected empty address, got %q", server.Addr())
	}
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Errorf("stop without start should not error: %v", err)
	}
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	errCh, err := server.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer stopServer(t, server)

	// Closing the listener underneath Serve simulates a runtime failure.
	_ = server.listener.Close()

	select {
	case serveErr := <-errCh:
		if serveErr == nil {
			t.Error("expected an error from the error channel after closing listener")
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error on error channel")
	}
}

func TestServer_ErrorChannelClosesOnNormalShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	errCh, err := server.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			t.Errorf("unexpected error on normal shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error channel to close")
	}
}

func TestServer_RecordsAuthAndHTTPMetrics(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	metrics := server.Metrics()
	metrics.RecordAuth("login", OutcomeSuccess)
	metrics.RecordAuth("login", OutcomeSuccess)
	metrics.RecordAuth("login", OutcomeRejected)
	metrics.ObserveHTTP("POST", "/auth/login", http.StatusUnauthorized, 15*time.Millisecond)

	_, body := get(t, server.Handler(), "/metrics")

	wants := []string{
		`pronoia_auth_operations_total{operation="login",outcome="success"} 2`,
		`pronoia_auth_operations_total{operation="login",outcome="rejected"} 1`,
		`pronoia_http_requests_total{method="POST",route="/auth/login",status="401"} 1`,
		`pronoia_http_request_duration_seconds_count{method="POST",route="/auth/login"} 1`,
	}
	for _, want := range wants {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s in metrics output", want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordAuth("register", OutcomeError)
	m.ObserveHTTP("GET", "/auth/validate", http.StatusOK, time.Millisecond)
}

func TestNewMetrics_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	NewMetrics(reg)
}
