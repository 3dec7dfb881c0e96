package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"vpn-shop-bot/internal/logger"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Manager handles graceful shutdown coordination
type Manager struct {
	logger  *logger.Logger
	timeout time.Duration
	signals []os.Signal
	hooks   []hook
	mu      sync.Mutex
}

// NewManager creates a new shutdown manager
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	return &Manager{
		logger:  log,
		timeout: timeout,
		signals: []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
}

// Register adds a cleanup hook. Hooks run after the workers stop, last registered first.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Run calls run with a context that is cancelled on a shutdown signal or when parent is done.
// Once run returns, or the timeout passes after cancellation, the hooks are executed.
// The error of run is returned.
func (m *Manager) Run(parent context.Context, run func(ctx context.Context) error) error {
	sigCtx, stop := signal.NotifyContext(parent, m.signals...)
	defer stop()

	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- run(ctx)
	}()

	var runErr error
	select {
	case runErr = <-done:
		if runErr != nil {
			m.logger.ErrorErr(runErr, "Worker failed, shutting down")
		}
	case <-sigCtx.Done():
		m.logger.Info("Shutdown requested")
		cancel()
		select {
		case runErr = <-done:
		case <-time.After(m.timeout):
			m.logger.Warn("Workers did not stop in time")
		}
	}
	cancel()

	if err := m.Shutdown(); err != nil {
		m.logger.ErrorErr(err, "Shutdown finished with errors")
	}
	return runErr
}

// Shutdown executes the hooks in reverse registration order within the timeout
func (m *Manager) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.logger.Info("Starting graceful shutdown")

	m.mu.Lock()
	hooks := make([]hook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if ctx.Err() != nil {
			m.logger.Warn("Shutdown timeout exceeded, skipping remaining hooks")
			errs = append(errs, ctx.Err())
			break
		}
		if err := h.fn(ctx); err != nil {
			m.logger.WithField("hook", h.name).ErrorErr(err, "Shutdown hook failed")
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		m.logger.Info("Graceful shutdown completed successfully")
	}
	return errors.Join(errs...)
}

// SetTimeout updates the shutdown timeout
func (m *Manager) SetTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
}

// AddSignal adds a custom signal to listen for
func (m *Manager) AddSignal(sig os.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, sig)
}
