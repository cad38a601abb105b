package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"gister/internal/api"
	"gister/internal/config"
	"gister/internal/logging"
	"gister/internal/pipeline"
	"gister/internal/store"
	"gister/internal/workflow"
)

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	workflow *workflow.Manager
	machine  *pipeline.Machine
	svc      *api.Service
	server   *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, wf *workflow.Manager, machine *pipeline.Machine, svc *api.Service) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil || wf == nil || machine == nil {
		return nil, errors.New("daemon requires config, store, logger, workflow manager, and state machine")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "gisterd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		workflow: wf,
		machine:  machine,
		svc:      svc,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	server, err := newAPIServer(cfg, svc, logger)
	if err != nil {
		return nil, err
	}
	d.server = server
	return d, nil
}

// Start acquires the instance lock, recovers interrupted items, and launches
// the workflow manager and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another gisterd instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// Nothing can be in flight while we hold a fresh lock, so items stuck
	// in a processing status are leftovers from a crash.
	recovered, err := d.machine.Recover(runCtx)
	if err != nil {
		d.releaseLock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("recover interrupted items: %w", err)
	}
	if recovered > 0 {
		d.logger.Info("recovered interrupted items", logging.Int("count", recovered))
	}

	if err := d.workflow.Start(runCtx); err != nil {
		d.releaseLock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if d.server != nil {
		if err := d.server.start(runCtx); err != nil {
			d.workflow.Stop()
			d.releaseLock()
			cancel()
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("gisterd started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if d.server != nil {
		d.server.stop()
	}
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("gisterd stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// LockPath returns the daemon's instance lock file path.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}
