//go:build !windows

package inference

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camtrap-go/internal/conf"
	"github.com/tphakala/camtrap-go/internal/errors"
)

// writeScript writes an executable shell script that stands in for the Python
// model server.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func testInferenceSettings() *conf.InferenceSettings {
	return &conf.InferenceSettings{
		Host:                 "127.0.0.1",
		BatchSize:            10,
		StartupRetries:       2,
		StartupRetryInterval: 1,
	}
}

func TestSupervisorStartInterpreterMissing(t *testing.T) {
	t.Parallel()

	s := NewSupervisor("/nonexistent/python", "/nonexistent/server.py", nil, testInferenceSettings())
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategorySubprocess))
	assert.Equal(t, StateFailed, s.State())
}

func TestSupervisorStartServerExitsEarly(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "exit 3")
	s := NewSupervisor("/bin/sh", script, nil, testInferenceSettings())

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "exited during startup")
	assert.Equal(t, StateFailed, s.State())
}

func TestSupervisorStartHealthExhaustion(t *testing.T) {
	t.Parallel()

	// The process stays alive but never serves the health endpoint.
	script := writeScript(t, "sleep 60")
	s := NewSupervisor("/bin/sh", script, nil, testInferenceSettings())

	start := time.Now()
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "did not become healthy")
	assert.True(t, errors.HasCategory(err, errors.CategoryModelStartup))
	assert.Equal(t, StateFailed, s.State())
	// Two retries with a one second interval; the subprocess must be gone
	// well before the sleep would finish.
	assert.Less(t, time.Since(start), 30*time.Second)
}

func TestSupervisorStartBecomesReady(t *testing.T) {
	t.Parallel()

	// A fixed debug port lets a local HTTP server stand in for the model
	// server's health and info endpoints while a dummy subprocess holds the
	// process slot.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":{"type":"speciesnet","version":"4.0.1a"}}`))
	})
	srv := &httptest.Server{Listener: listener, Config: &http.Server{Handler: mux}}
	srv.Start()
	defer srv.Close()

	script := writeScript(t, "sleep 60")
	settings := testInferenceSettings()
	settings.DebugPort = port

	s := NewSupervisor("/bin/sh", script, nil, settings)
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateReady, s.State())
	assert.Contains(t, s.BaseURL(), "127.0.0.1")

	s.Stop()
	assert.Equal(t, StateStopped, s.State())

	// Repeated stop stays safe.
	s.Stop()
	assert.Equal(t, StateStopped, s.State())
}

func TestSupervisorStartCancelled(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "sleep 60")
	s := NewSupervisor("/bin/sh", script, nil, testInferenceSettings())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Start(ctx)
	require.Error(t, err)
	assert.Equal(t, StateFailed, s.State())
}

func TestSupervisorDoubleStart(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "exit 0")
	s := NewSupervisor("/bin/sh", script, nil, testInferenceSettings())

	_ = s.Start(context.Background())
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "already started")
}
