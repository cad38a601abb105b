package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gister/internal/config"
	"gister/internal/discovery"
	"gister/internal/logging"
	"gister/internal/notifications"
	"gister/internal/pipeline"
	"gister/internal/stage"
	"gister/internal/store"
)

// Manager coordinates queue processing using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *store.Store
	machine      *pipeline.Machine
	runner       *discovery.Runner
	sheet        discovery.Sheet
	logger       *slog.Logger
	notifier     notifications.Service
	pollInterval time.Duration
	batchSize    int
	concurrency  int

	handlers map[store.Stage]stage.Handler

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a workflow manager. The sheet may be nil when no
// backfill intake is configured; the runner may be nil when the daemon runs
// without automated discovery.
func NewManager(cfg *config.Config, st *store.Store, machine *pipeline.Machine, runner *discovery.Runner, sheet discovery.Sheet, notifier notifications.Service, logger *slog.Logger) *Manager {
	if notifier == nil {
		notifier = notifications.Noop()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:          cfg,
		store:        st,
		machine:      machine,
		runner:       runner,
		sheet:        sheet,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		notifier:     notifier,
		pollInterval: time.Duration(cfg.Pipeline.PollIntervalSeconds) * time.Second,
		batchSize:    cfg.Pipeline.BatchSize,
		concurrency:  cfg.Pipeline.Concurrency,
		handlers:     make(map[store.Stage]stage.Handler),
	}
}

// ConfigureHandlers registers the stage handlers. Must be called before
// Start.
func (m *Manager) ConfigureHandlers(handlers map[store.Stage]stage.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = make(map[store.Stage]stage.Handler, len(handlers))
	for stg, handler := range handlers {
		m.handlers[stg] = handler
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.handlers) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	loops := 1
	if m.runner != nil {
		loops += len(m.cfg.Discovery.Sources)
	}
	if m.sheet != nil && m.runner != nil {
		loops++
	}
	m.wg.Add(loops)
	m.mu.Unlock()

	go m.runQueue(runCtx)
	if m.runner != nil {
		for _, source := range m.cfg.Discovery.Sources {
			go m.runDiscovery(runCtx, source)
		}
		if m.sheet != nil {
			go m.runBackfill(runCtx)
		}
	}
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
