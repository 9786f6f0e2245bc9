// Package daemon composes the sync engine's components into a running
// process: one profile, one lock, one store, one scheduler.
package daemon

import (
	"context"

	"chatsync/internal/bus"
	"chatsync/internal/cache"
	"chatsync/internal/chat"
	"chatsync/internal/coalesce"
	"chatsync/internal/config"
	"chatsync/internal/lock"
	"chatsync/internal/logging"
	"chatsync/internal/netstate"
	"chatsync/internal/profile"
	"chatsync/internal/remote"
	"chatsync/internal/scheduler"
	"chatsync/internal/store"
	"chatsync/internal/syncer"
	"chatsync/internal/window"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
}

// Module returns the fx module for the engine daemon, composing all
// providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideEngineConfig,
			provideStore,
			provideRemote,
			provideWindows,
			provideChatList,
			provideCoalescer,
			provideSyncEngine,
			provideFacade,
			provideScheduler,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *netstate.Machine {
	return netstate.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideEngineConfig(p Params, logger *zap.Logger) (*config.Engine, error) {
	cfg, err := config.LoadEngine(profile.EngineConfigPath(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("engine config loaded",
		zap.String("remote", cfg.RemoteBaseURL),
		zap.Int("window_size", cfg.WindowSize),
		zap.Duration("sync_interval", cfg.SyncInterval.Duration))
	return cfg, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
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
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRemote(cfg *config.Engine) remote.Source {
	return remote.NewClient(cfg.RemoteBaseURL, cfg.AuthToken)
}

func provideWindows(cfg *config.Engine) *window.Registry {
	return window.NewRegistry(cfg.WindowSize, cfg.PreloadThreshold)
}

func provideChatList(cfg *config.Engine) *cache.ChatList {
	return cache.NewChatList(cfg.ChatListTTL.Duration)
}

func provideCoalescer() *coalesce.Group {
	return coalesce.NewGroup()
}

func provideSyncEngine(src remote.Source, db *store.DB, windows *window.Registry, b *bus.Bus, cfg *config.Engine, logger *zap.Logger) *syncer.Engine {
	return syncer.NewEngine(src, db, windows, b, logger, cfg.CurrentUserID)
}

func provideFacade(cfg *config.Engine, db *store.DB, src remote.Source, windows *window.Registry, list *cache.ChatList, group *coalesce.Group, eng *syncer.Engine, machine *netstate.Machine, b *bus.Bus, logger *zap.Logger) *chat.Facade {
	return chat.New(chat.Params{
		UserID:   cfg.CurrentUserID,
		PageSize: cfg.PageSize,
		DB:       db,
		Remote:   src,
		Windows:  windows,
		List:     list,
		Group:    group,
		Syncer:   eng,
		Net:      machine,
		Bus:      b,
		Logger:   logger,
	})
}

func provideScheduler(cfg *config.Engine, eng *syncer.Engine, facade *chat.Facade, windows *window.Registry, logger *zap.Logger) *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{
		SyncInterval:    cfg.SyncInterval.Duration,
		IdleThreshold:   cfg.IdleThreshold.Duration,
		IdleCheckPeriod: cfg.IdleCheckPeriod.Duration,
		ChatDebounce:    cfg.ChatDebounce.Duration,
		ListDebounce:    cfg.ListDebounce.Duration,
		WarmTopChats:    cfg.WarmTopChats,
	}, eng, facade, windows, logger)
}

func registerLifecycle(lc fx.Lifecycle, sched *scheduler.Scheduler, group *coalesce.Group, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Every coalesced fetch counts as foreground activity for
			// idle detection.
			group.SetOnActivity(sched.MarkActivity)
			sched.Start(context.Background())
			logger.Info("engine started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			sched.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("engine stopped")
			return nil
		},
	})
}
