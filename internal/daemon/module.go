// Package daemon composes the sync engine, transport, and profile plumbing
// into an fx application. cmd/chatlined runs it headless; the TUI builds the
// same graph in-process.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/davrbek/chatline/internal/api"
	"github.com/davrbek/chatline/internal/bus"
	"github.com/davrbek/chatline/internal/engine"
	"github.com/davrbek/chatline/internal/lock"
	"github.com/davrbek/chatline/internal/logging"
	"github.com/davrbek/chatline/internal/prefs"
	"github.com/davrbek/chatline/internal/profile"
	"github.com/davrbek/chatline/internal/status"
	"github.com/davrbek/chatline/internal/transport"
	"github.com/davrbek/chatline/internal/typing"
)

// Params is the resolved runtime configuration passed to the fx module.
type Params struct {
	Profile        string
	UserID         string
	Token          string
	MessageBaseURL string
	SocketURL      string
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			providePrefs,
			provideAPIClient,
			provideTransport,
			provideEngine,
			provideBroadcaster,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func providePrefs(p Params, logger *zap.Logger) (*prefs.DB, error) {
	db, err := prefs.Open(profile.PrefsDBPath(p.Profile))
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	return db, nil
}

func provideAPIClient(p Params, db *prefs.DB, logger *zap.Logger) (*api.Client, error) {
	deviceID, err := db.DeviceID()
	if err != nil {
		return nil, err
	}
	return api.New(p.MessageBaseURL, p.Token, deviceID, logger), nil
}

func provideTransport(p Params, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *transport.Client {
	return transport.New(p.SocketURL, p.Token, machine, b, logger)
}

func provideEngine(p Params, client *api.Client, t *transport.Client, b *bus.Bus, logger *zap.Logger) *engine.Engine {
	return engine.New(p.UserID, client, t, b, logger)
}

func provideBroadcaster(t *transport.Client, logger *zap.Logger) *typing.Broadcaster {
	return typing.NewBroadcaster(t, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *prefs.DB, eng *engine.Engine, t *transport.Client, caster *typing.Broadcaster, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			eng.BindTransport(t)
			go func() {
				if err := t.Connect(context.Background()); err != nil {
					logger.Error("connect failed", zap.Error(err))
					return
				}
				if err := eng.Bootstrap(context.Background()); err != nil {
					logger.Error("bootstrap failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			caster.Stop()
			t.Disconnect()
			eng.Wait()
			if err := db.Close(); err != nil {
				logger.Warn("error closing prefs store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
