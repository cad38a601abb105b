package main

import (
	"context"
	"strings"
	"sync"

	"gister/internal/api"
	"gister/internal/budget"
	"gister/internal/checkpoint"
	"gister/internal/config"
	"gister/internal/deadletter"
	"gister/internal/logging"
	"gister/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the state database and hands it to fn.
func (c *commandContext) withStore(fn func(context.Context, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(context.Background(), st)
}

// withService opens the state database and hands a view service to fn. The
// service is the same one backing the daemon's HTTP API, so CLI output and
// API responses always agree.
func (c *commandContext) withService(fn func(context.Context, *api.Service) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	logger := logging.NewNop()
	svc := api.NewService(
		st,
		nil,
		budget.NewEnforcer(cfg, st, logger, nil),
		checkpoint.NewManager(st, logger),
		deadletter.NewManager(st, logger, nil),
	)
	return fn(context.Background(), svc)
}
