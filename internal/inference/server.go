package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/camtrap-go/internal/conf"
	"github.com/tphakala/camtrap-go/internal/errors"
)

// Supervisor states. Transitions: NotStarted → Starting → {Ready | Failed},
// Ready → Stopped.
const (
	StateNotStarted int32 = iota
	StateStarting
	StateReady
	StateStopped
	StateFailed
)

// Supervisor owns the lifecycle of the external model-serving process: port
// allocation, spawn, health checking and forced termination.
type Supervisor struct {
	Interpreter string   // resolved Python interpreter path
	Script      string   // resolved server script path
	Args        []string // extra server arguments from the model manifest

	host          string
	debugPort     int
	retries       int
	retryInterval time.Duration

	port     int
	baseURL  string
	cmd      *exec.Cmd
	exited   chan struct{} // closed when the process has been reaped
	waitErr  error
	state    atomic.Int32
	stopOnce sync.Once

	healthClient *http.Client
}

// NewSupervisor builds a supervisor for the given resolved model server.
func NewSupervisor(interpreter, script string, args []string, settings *conf.InferenceSettings) *Supervisor {
	return &Supervisor{
		Interpreter:   interpreter,
		Script:        script,
		Args:          args,
		host:          settings.Host,
		debugPort:     settings.DebugPort,
		retries:       settings.StartupRetries,
		retryInterval: time.Duration(settings.StartupRetryInterval) * time.Second,
		healthClient:  &http.Client{Timeout: 5 * time.Second},
	}
}

// FreePort allocates an ephemeral free TCP port by binding to port zero,
// reading the assigned port and releasing the listener.
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("allocating free port: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	if err := listener.Close(); err != nil {
		return 0, fmt.Errorf("releasing allocated port: %w", err)
	}
	return port, nil
}

// BaseURL returns the server's base URL. Valid once Start has succeeded.
func (s *Supervisor) BaseURL() string {
	return s.baseURL
}

// State returns the current lifecycle state.
func (s *Supervisor) State() int32 {
	return s.state.Load()
}

// Start spawns the server process and polls its health endpoint until it is
// ready or the retry budget is exhausted. On exhaustion the process is
// force-terminated and a startup-timeout error is returned. Startup failure
// is fatal to the run.
func (s *Supervisor) Start(ctx context.Context) error {
	logger := getLoggerSafe("inference")

	if !s.state.CompareAndSwap(StateNotStarted, StateStarting) {
		return errors.Newf("inference server already started").
			Component("inference").
			Category(errors.CategoryState).
			Build()
	}

	port := s.debugPort
	if port == 0 {
		var err error
		port, err = FreePort()
		if err != nil {
			s.state.Store(StateFailed)
			return errors.New(err).
				Component("inference").
				Category(errors.CategoryNetwork).
				Build()
		}
	}
	s.port = port
	s.baseURL = fmt.Sprintf("http://%s:%d", s.host, port)

	args := append([]string{s.Script, "--port", strconv.Itoa(port)}, s.Args...)
	cmd := exec.Command(s.Interpreter, args...)
	setProcAttrs(cmd)

	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()

	if err := cmd.Start(); err != nil {
		s.state.Store(StateFailed)
		return errors.New(err).
			Component("inference").
			Category(errors.CategorySubprocess).
			Context("interpreter", s.Interpreter).
			Context("script", s.Script).
			Build()
	}
	s.cmd = cmd
	s.exited = make(chan struct{})

	logger.Info("inference server started",
		"pid", cmd.Process.Pid,
		"port", port,
		"script", s.Script)

	go forwardServerOutput(stdout, logger, "stdout")
	go forwardServerOutput(stderr, logger, "stderr")
	go func() {
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()

	if err := s.awaitHealthy(ctx); err != nil {
		s.Stop()
		s.state.Store(StateFailed)
		return err
	}

	s.state.Store(StateReady)
	s.logServerInfo(logger)
	return nil
}

// awaitHealthy polls the health endpoint with a fixed interval until it
// returns 200, the retry budget runs out, the process dies, or ctx is
// cancelled.
func (s *Supervisor) awaitHealthy(ctx context.Context) error {
	healthURL := s.baseURL + "/health"

	for attempt := 1; attempt <= s.retries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.exited:
			return errors.Newf("inference server exited during startup: %v", s.waitErr).
				Component("inference").
				Category(errors.CategorySubprocess).
				Build()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, http.NoBody)
		if err != nil {
			return err
		}
		resp, err := s.healthClient.Do(req)
		if err == nil {
			statusOK := resp.StatusCode == http.StatusOK
			_ = resp.Body.Close()
			if statusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.exited:
			return errors.Newf("inference server exited during startup: %v", s.waitErr).
				Component("inference").
				Category(errors.CategorySubprocess).
				Build()
		case <-time.After(s.retryInterval):
		}
	}

	return errors.Newf("inference server did not become healthy after %d attempts", s.retries).
		Component("inference").
		Category(errors.CategoryModelStartup).
		Context("health_url", healthURL).
		Context("retries", s.retries).
		Build()
}

// logServerInfo fetches the server's /info endpoint best-effort and logs the
// reported model metadata.
func (s *Supervisor) logServerInfo(logger *slog.Logger) {
	resp, err := s.healthClient.Get(s.baseURL + "/info")
	if err != nil {
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return
	}

	var info struct {
		Model struct {
			Type    string `json:"type"`
			Version string `json:"version"`
		} `json:"model"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&info); err != nil {
		return
	}
	logger.Info("inference server ready",
		"model_type", info.Model.Type,
		"model_version", info.Model.Version,
		"base_url", s.baseURL)
}

// Stop force-terminates the server process and its descendants. It is
// idempotent and safe to call on an already-dead or never-started process.
// Termination failures are logged, never propagated.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		logger := getLoggerSafe("inference")

		if s.cmd == nil || s.cmd.Process == nil {
			s.state.Store(StateStopped)
			return
		}

		if err := killProcessTree(s.cmd); err != nil {
			logger.Warn("failed to kill inference server process", "error", err, "pid", s.cmd.Process.Pid)
		}

		// Reap the process; don't hang forever if the kill was lost.
		select {
		case <-s.exited:
		case <-time.After(10 * time.Second):
			logger.Warn("timed out waiting for inference server to exit", "pid", s.cmd.Process.Pid)
		}

		s.state.Store(StateStopped)
		logger.Info("inference server stopped")
	})
}

// forwardServerOutput relays one of the subprocess output streams into the
// structured log at debug level.
func forwardServerOutput(r io.Reader, logger *slog.Logger, stream string) {
	if r == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		logger.Debug("inference server output", "stream", stream, "line", scanner.Text())
	}
}
