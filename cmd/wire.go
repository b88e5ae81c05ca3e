package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/bnema/editor-relay/internal/adapters/relayclient"
	statusadapter "github.com/bnema/editor-relay/internal/adapters/render/status"
	sqliterepo "github.com/bnema/editor-relay/internal/adapters/repo/sqlite"
	tomlrepo "github.com/bnema/editor-relay/internal/adapters/repo/toml"
	"github.com/bnema/editor-relay/internal/application"
	"github.com/bnema/editor-relay/internal/config"
	"github.com/bnema/editor-relay/internal/ports"
	"github.com/spf13/viper"
)

type app struct {
	cfg            config.Config
	viper          *viper.Viper
	logger         *slog.Logger
	client         *relayclient.Client
	clock          ports.Clock
	statusRenderer func(application.Stats, statusadapter.RenderOptions) (string, error)
}

func wireApp(v *viper.Viper, configFile string, logOutput io.Writer) (*app, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: cfg.Log.Level}))
	if cfg.File != "" {
		logger.Debug("config loaded", "file", cfg.File)
	}

	return &app{
		cfg:            cfg,
		viper:          v,
		logger:         logger,
		client:         relayclient.New(cfg.Client.BaseURL),
		clock:          ports.SystemClock{},
		statusRenderer: statusadapter.Render,
	}, nil
}

// openStore returns the session store for the configured driver and a func
// that releases it.
func (a *app) openStore() (ports.SessionStore, func() error, error) {
	noop := func() error { return nil }

	switch a.cfg.Store.Driver {
	case config.StoreMemory:
		return ports.NopSessionStore{}, noop, nil
	case config.StoreTOML:
		a.viper.Set(config.KeyStorePath, a.cfg.Store.Path)
		store, err := tomlrepo.NewStore(a.viper)
		if err != nil {
			return nil, noop, fmt.Errorf("wire toml session store: %w", err)
		}
		return store, noop, nil
	case config.StoreSQLite:
		store, err := sqliterepo.Open(a.cfg.Store.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("wire sqlite session store: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
}

func (a *app) newRelay(store ports.SessionStore) *application.Relay {
	cfg := application.Config{
		WaitTimeout: a.cfg.Server.WaitTimeout,
		IdleTimeout: a.cfg.Server.IdleTimeout,
	}
	return application.NewRelay(store, a.clock, a.logger, cfg)
}
