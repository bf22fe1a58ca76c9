// Package app assembles the campaign engine and its supporting services
// from configuration. The cmd binary and the tests are thin layers over
// this type.
package app

import (
	"context"
	"sync"
	"time"

	"zapfacil/internal/audio"
	"zapfacil/internal/campaign"
	"zapfacil/internal/config"
	"zapfacil/internal/connection"
	"zapfacil/internal/contacts"
	"zapfacil/internal/driver"
	"zapfacil/internal/driver/rodweb"
	"zapfacil/internal/eventbus"
	"zapfacil/internal/history"
	"zapfacil/internal/report"
	"zapfacil/internal/schedule"
	"zapfacil/pkg/logx"
)

type Options struct {
	ConfigPath string
	// Driver overrides the browser-backed driver; nil means the app
	// launches its own rodweb client on Start.
	Driver driver.Driver
	// AudioDevice overrides the capture/playback device; nil means
	// portaudio's defaults.
	AudioDevice audio.Device
	// Headless, when non-nil, overrides the driver.headless config key
	// (set from the command line).
	Headless *bool
}

type App struct {
	cfgm     *config.Manager
	settings *config.SettingsStore
	bus      eventbus.Bus
	logs     *logx.Service
	log      logx.Logger

	drv     driver.Driver
	rod     *rodweb.Client
	monitor *connection.Monitor
	audio   *audio.Pipeline
	reports *report.Store
	history *history.Store
	engine  *campaign.Engine
	sched   *schedule.Service

	watchCancel context.CancelFunc
	wg          sync.WaitGroup
}

func New(opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	logs, log := logx.NewService(cfg.Log, bus)
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	settings, err := config.OpenSettings(cfg.SettingsPath)
	if err != nil {
		logs.Close()
		return nil, err
	}

	a := &App{
		cfgm:     cfgm,
		settings: settings,
		bus:      bus,
		logs:     logs,
		log:      log,
	}

	if opts.Driver != nil {
		a.drv = opts.Driver
	} else {
		headless := cfg.Driver.Headless
		if opts.Headless != nil {
			headless = *opts.Headless
		}
		a.rod = rodweb.New(rodweb.Config{
			Headless:       headless,
			ProfileDir:     cfg.Driver.ProfileDir,
			Bin:            cfg.Driver.Bin,
			CallTimeout:    cfg.Driver.CallTimeout.Std(),
			StartupTimeout: cfg.Driver.StartupTimeout.Std(),
		}, log.With(logx.String("comp", "driver")))
		a.drv = a.rod
	}

	a.monitor = connection.NewMonitor(connection.Config{
		Attempts: cfg.Reconnect.Attempts,
		Wait:     cfg.Reconnect.Wait.Std(),
	}, a.drv, bus, log.With(logx.String("comp", "connection")))

	dev := opts.AudioDevice
	if dev == nil {
		dev = audio.PortAudioDevice{}
	}
	a.audio = audio.NewPipeline(audio.Config{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
	}, dev, bus, log.With(logx.String("comp", "audio")))

	a.reports, err = report.NewStore(cfg.ReportsDir, log.With(logx.String("comp", "report")))
	if err != nil {
		logs.Close()
		return nil, err
	}
	a.history, err = history.Open(history.Config{Path: cfg.HistoryPath},
		log.With(logx.String("comp", "history")))
	if err != nil {
		logs.Close()
		return nil, err
	}

	a.engine = campaign.New(campaign.Options{
		MinDelay: cfg.Pacing.MinDelay.Std(),
		MaxDelay: cfg.Pacing.MaxDelay.Std(),
	}, campaign.Deps{
		Driver:   a.drv,
		Monitor:  a.monitor,
		Contacts: contacts.NewLoader(cfg.CountryCode, log.With(logx.String("comp", "contacts"))),
		Reports:  a.reports,
		History:  a.history,
		Bus:      bus,
		Log:      log.With(logx.String("comp", "campaign")),
	})

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warn("unknown timezone, using local",
			logx.String("timezone", cfg.Timezone), logx.Err(err))
		loc = time.Local
	}
	a.sched = schedule.New(settings, a.engine, a.monitor, loc, bus,
		log.With(logx.String("comp", "schedule")))

	return a, nil
}

// Start connects the browser session (when owned), arms the persisted
// schedule and begins watching the config file.
func (a *App) Start(ctx context.Context) error {
	if a.rod != nil {
		if err := a.rod.Connect(ctx); err != nil {
			return err
		}
	}
	a.sched.Start(ctx)

	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel

	changes := a.cfgm.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(watchCtx); err != nil && watchCtx.Err() == nil {
			a.log.Error("config watcher stopped", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(changes)
		for {
			select {
			case cfg := <-changes:
				// Only logging is hot-reloadable; the rest of the config
				// is bound at construction.
				a.logs.Apply(cfg.Log)
				a.log.Info("logging configuration reloaded")
			case <-watchCtx.Done():
				return
			}
		}
	}()

	a.log.Info("application started")
	return nil
}

// Stop shuts everything down in dependency order. Safe to call after a
// failed Start.
func (a *App) Stop(ctx context.Context) {
	a.engine.Stop()
	if done := a.engine.Done(); done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	a.sched.Stop(ctx)
	if err := a.audio.Discard(); err != nil {
		a.log.Warn("discarding recording on shutdown", logx.Err(err))
	}
	if a.watchCancel != nil {
		a.watchCancel()
	}
	a.wg.Wait()
	if a.rod != nil {
		if err := a.rod.Close(); err != nil {
			a.log.Warn("closing browser", logx.Err(err))
		}
	}
	if err := a.history.Close(); err != nil {
		a.log.Warn("closing history store", logx.Err(err))
	}
	a.log.Info("application stopped")
	a.logs.Close()
}

func (a *App) Engine() *campaign.Engine     { return a.engine }
func (a *App) Audio() *audio.Pipeline       { return a.audio }
func (a *App) Reports() *report.Store       { return a.reports }
func (a *App) History() *history.Store      { return a.history }
func (a *App) Schedule() *schedule.Service  { return a.sched }
func (a *App) Monitor() *connection.Monitor { return a.monitor }
func (a *App) Bus() eventbus.Bus            { return a.bus }
func (a *App) Config() *config.Config       { return a.cfgm.Get() }
