// Package app wires the daemon together: config, logging, storage, the
// translation service and the autosync schedule.
package app

import (
	"context"
	"sync"

	"lingod/internal/autosync"
	"lingod/internal/config"
	"lingod/internal/eventbus"
	"lingod/internal/storage"
	"lingod/internal/translate"
	logx "lingod/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	translator *translate.Service
	syncer     *autosync.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logSvc.Logger().With(logx.String("comp", "config")))

	bus := eventbus.New()

	// Storage is optional; a nil store means settings fall back to defaults.
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", cfg.Storage.Driver))
	}

	trCfg, err := mapTranslateConfig(cfg)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	client, err := mapClient(cfg)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	translator := translate.New(trCfg, client, store, bus,
		logSvc.Logger().With(logx.String("comp", "translate")))

	syncSvc := autosync.New(autosync.Config{
		Enabled:   cfg.AutoSync.Enabled,
		Schedule:  cfg.AutoSync.Schedule,
		Languages: cfg.AutoSync.Languages,
	}, translator, autosync.NewDirSource(cfg.AutoSync.Dir),
		logSvc.Logger().With(logx.String("comp", "autosync")))

	return &App{
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		translator: translator,
		syncer:     syncSvc,
	}, nil
}

// Translator exposes the translation service for operational callers.
func (a *App) Translator() *translate.Service { return a.translator }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.syncer.Start(runCtx); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	events, unsub := a.bus.Subscribe(128)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		for {
			select {
			case <-runCtx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	}()

	a.log.Info("lingod started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.translator.Cancel()
	a.syncer.Stop()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown wait aborted", logx.Err(ctx.Err()))
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing store", logx.Err(err))
		}
	}
	a.log.Info("lingod stopped")
	return a.logs.Close()
}

// reloadLoop applies committed config reloads to the live services.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config matters.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
					continue
				default:
				}
				break
			}
			a.apply(ctx, cfg)
		}
	}
}

func (a *App) apply(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(mapLogConfig(cfg))

	trCfg, err := mapTranslateConfig(cfg)
	if err != nil {
		// Parse validates durations before commit, so this is unexpected.
		a.log.Warn("config reload: translate section rejected", logx.Err(err))
	} else {
		a.translator.Apply(trCfg)
	}

	if err := a.syncer.Apply(ctx, autosync.Config{
		Enabled:   cfg.AutoSync.Enabled,
		Schedule:  cfg.AutoSync.Schedule,
		Languages: cfg.AutoSync.Languages,
	}); err != nil {
		a.log.Warn("config reload: autosync section rejected", logx.Err(err))
	}

	// Storage driver changes need a restart; the open handle keeps its config.
	a.log.Info("config applied", logx.String("level", cfg.Logging.Level))
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapTranslateConfig(cfg *config.Config) (translate.Config, error) {
	hold, err := config.ParseDurationField("translate.rate_limit_hold", cfg.Translate.RateLimitHold)
	if err != nil {
		return translate.Config{}, err
	}
	return translate.Config{
		ChunkSize:     cfg.Translate.ChunkSize,
		RateLimitHold: hold,
	}, nil
}

func mapClient(cfg *config.Config) (translate.Client, error) {
	timeout, err := config.ParseDurationField("translator.timeout", cfg.Translator.Timeout)
	if err != nil {
		return nil, err
	}
	return translate.NewHTTPClient(translate.HTTPClientConfig{
		Endpoint: cfg.Translator.Endpoint,
		APIKey:   cfg.Translator.APIKey,
		Timeout:  timeout,
	}), nil
}
