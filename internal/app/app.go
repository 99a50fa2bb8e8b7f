// Package app wires the bot together: config, logging, the Telegram
// adapter, the catalog client, the notifier and the watcher service.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"dropwatch/internal/catalog"
	"dropwatch/internal/config"
	"dropwatch/internal/notifier"
	kit "dropwatch/internal/transport"
	telegram "dropwatch/internal/transport/telegram/adapter"
	"dropwatch/internal/transport/telegram/router"
	"dropwatch/internal/watcher"
	logx "dropwatch/pkg/logx"
)

const updateChanCap = 256

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	adapter *telegram.Adapter
	svc     *watcher.Service
	router  *router.Router

	updates chan kit.Update
	cfgCh   chan *config.Config
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(configPath string) (*App, error) {
	cfgm := config.NewManager(configPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgm.SetLogger(log.With(logx.String("svc", "config")))

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("svc", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	catTimeout, err := config.ParseDurationField("catalog.timeout", cfg.Catalog.Timeout)
	if err != nil {
		return nil, err
	}
	shop := catalog.NewClient(catalog.Config{
		BaseURL:  cfg.Catalog.BaseURL,
		Timeout:  catTimeout,
		RetryMax: cfg.Catalog.RetryMax,
	}, log.With(logx.String("svc", "catalog")))

	notifCfg := notifier.Config{}
	if cfg.Notifier != nil {
		notifCfg.RatePerSec = cfg.Notifier.RatePerSec
	}
	notif := notifier.New(notifCfg, adapter, log.With(logx.String("svc", "notifier")))

	pollInterval, err := config.ParseDurationField("watcher.poll_interval", cfg.Watcher.PollInterval)
	if err != nil {
		return nil, err
	}
	svc := watcher.New(watcher.Config{PollInterval: pollInterval}, shop, notif,
		log.With(logx.String("svc", "watcher")))

	rt := router.New(adapter, svc, catalog.ImageURL, log.With(logx.String("svc", "router")))

	return &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log.With(logx.String("svc", "app")),
		adapter: adapter,
		svc:     svc,
		router:  rt,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.svc.Start(runCtx)

	a.updates = make(chan kit.Update, updateChanCap)
	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return fmt.Errorf("start telegram: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.router.Run(runCtx, a.updates)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	a.cfgCh = a.cfgm.Subscribe(1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.applyReloads(runCtx)
	}()

	a.log.Info("started")
	return nil
}

// applyReloads handles hot config reloads. Logging changes take effect
// immediately; everything else needs a restart and is only reported.
func (a *App) applyReloads(ctx context.Context) {
	prev := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgCh:
			if !ok || cfg == nil {
				return
			}
			changed, attrs := config.SummarizeChange(prev, cfg)
			prev = cfg
			if len(changed) == 0 {
				continue
			}
			a.log.Info("config reloaded", append(attrs, logx.String("sections", strings.Join(changed, ",")))...)

			for _, section := range changed {
				switch section {
				case "logging":
					a.logs.Apply(logx.Config{
						Level:   cfg.Logging.Level,
						Console: cfg.Logging.Console,
						File: logx.FileConfig{
							Enabled: cfg.Logging.File.Enabled,
							Path:    cfg.Logging.File.Path,
						},
					})
					a.log.Info("logging config applied")
				default:
					a.log.Warn("section change takes effect after restart", logx.String("section", section))
				}
			}
		}
	}
}

func (a *App) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}

	_ = a.adapter.Stop(ctx)
	a.svc.Stop(ctx)
	a.cfgm.Unsubscribe(a.cfgCh)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown incomplete", logx.Err(ctx.Err()))
	}

	a.log.Info("stopped")
	_ = a.logs.Close()
}
