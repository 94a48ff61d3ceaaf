// Package main implements the steamidle daemon: a Telegram bot that logs in
// to Steam accounts on behalf of its chats and idles game hours.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/spf13/pflag"
	rootpkg "tools.zach/dev/steamidle"
	"tools.zach/dev/steamidle/internal/account/steamclient"
	"tools.zach/dev/steamidle/internal/appcatalog"
	"tools.zach/dev/steamidle/internal/bot"
	"tools.zach/dev/steamidle/internal/config"
	"tools.zach/dev/steamidle/internal/heartbeat"
	"tools.zach/dev/steamidle/internal/logger"
	"tools.zach/dev/steamidle/internal/paths"
	"tools.zach/dev/steamidle/internal/session"
	"tools.zach/dev/steamidle/internal/telegram"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via -ldflags "-X main.version=...". Bare
// builds fall back to the VCS revision embedded by the toolchain.
var version = "dev"

func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Setup
// ///////////////////////////////////////////////

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// seedConfig writes the embedded default config when none exists. With reset
// an existing config is first moved to its backup path.
func seedConfig(dir paths.DataDir, reset bool) error {
	_, err := os.Stat(dir.Config())
	switch {
	case err == nil && !reset:
		return nil
	case err == nil:
		if err := os.Rename(dir.Config(), dir.ConfigBackup()); err != nil {
			return fmt.Errorf("back up config: %w", err)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.WriteFile(dir.Config(), rootpkg.DefaultConfigTOML, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

// openCatalogStore opens the app name cache selected by backend.
func openCatalogStore(dir paths.DataDir, backend string) (appcatalog.Store, error) {
	switch backend {
	case "sqlite":
		store, err := appcatalog.NewSQLiteStore(dir.AppCacheDB())
		if err != nil {
			return nil, fmt.Errorf("open app cache database: %w", err)
		}
		return store, nil
	case "json", "":
		return appcatalog.NewJSONStore(dir.AppCache()), nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", backend)
	}
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	dataDir := pflag.StringP("data-dir", "d", defaultDataDir(), "data directory for config, caches and logs")
	envFile := pflag.String("env-file", "", "dotenv file to load (default <data-dir>/.env)")
	resetConfig := pflag.Bool("reset-config", false, "back up the current config and write the defaults")
	showVersion := pflag.BoolP("version", "v", false, "print the version and exit")
	pflag.Parse()

	ver := resolveVersion()
	if *showVersion {
		fmt.Println(ver)
		return
	}

	if err := run(*dataDir, *envFile, *resetConfig, ver); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(dataDir, envFile string, resetConfig bool, ver string) error {
	dir := paths.DataDir{Root: dataDir}
	if err := os.MkdirAll(dir.Root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pid, err := acquirePID(dir)
	if err != nil {
		return err
	}
	defer pid.Release()

	if err := seedConfig(dir, resetConfig); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if envFile == "" {
		envFile = dir.Env()
	}
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}

	cfg, err := config.Load(dir.Root, config.Environ)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("no bot token: set %s or telegram.token in %s", config.EnvBotToken, dir.Config())
	}

	var level slog.LevelVar
	level.Set(logger.ParseLevel(cfg.Log.Level))
	var console io.Writer
	if cfg.Log.Console {
		console = os.Stderr
	}
	log, logCloser, err := logger.New(logger.Options{
		Path:      dir.Log(),
		Level:     &level,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Console:   console,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("steamidle starting", "version", ver, "data_dir", dir.Root, "catalog", cfg.Catalog.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	d, err := newDaemon(ctx, cfg, dir, ver, log)
	if err != nil {
		logger.Fail(log, "startup failed", "error", err)
		return err
	}
	defer d.close()

	watcher, err := config.NewWatcher(dir.Root)
	if err != nil {
		slog.Warn("config watcher unavailable, access changes need a restart", "error", err)
	} else {
		defer watcher.Close()
		if watcher.Polling() {
			slog.Info("using polling mode for config watching")
		}
		go config.Watch(ctx, watcher, dir.Root, config.Environ, func(next *config.Config) {
			d.bot.SetAccess(next.Access)
			level.Set(logger.ParseLevel(next.Log.Level))
		})
	}

	err = d.run(ctx)
	slog.Info("steamidle stopped")
	return err
}

// ///////////////////////////////////////////////
// Daemon
// ///////////////////////////////////////////////

// daemon owns the long-lived components.
type daemon struct {
	log      *slog.Logger
	store    appcatalog.Store
	sessions *session.Manager
	bot      *bot.Bot
	hb       *heartbeat.Server
	pinger   *heartbeat.Pinger
}

func newDaemon(ctx context.Context, cfg *config.Config, dir paths.DataDir, ver string, log *slog.Logger) (*daemon, error) {
	store, err := openCatalogStore(dir, cfg.Catalog.Backend)
	if err != nil {
		return nil, err
	}
	resolver := appcatalog.New(store, appcatalog.Options{
		AppListURL:    cfg.Catalog.AppListURL,
		AppDetailsURL: cfg.Catalog.AppDetailsURL,
		Logger:        log,
	})

	tg := telegram.New(cfg.Telegram.Token, telegram.Options{
		APIURL:      cfg.Telegram.APIURL,
		PollTimeout: cfg.Telegram.PollTimeout(),
		Logger:      log,
	})
	me, err := tg.GetMe(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("check bot token: %w", err)
	}
	log.Info("bot authorized", "username", me.Username, "cached_apps", resolver.Len())

	if cfg.Steam.APIKey == "" {
		log.Warn("no Steam Web API key, account levels will be reported as unknown")
	}

	sender := bot.NewSender(tg)
	sessions := session.NewManager(session.Options{
		Dialer: steamclient.NewDialer(steamclient.Options{
			APIKey: cfg.Steam.APIKey,
			Logger: log,
		}),
		Replier:          sender,
		Resolver:         resolver,
		Logger:           log,
		LoginTimeout:     cfg.Steam.LoginTimeout(),
		GuardTimeout:     cfg.Steam.GuardTimeout(),
		ReassertInterval: cfg.Steam.ReassertInterval(),
	})

	d := &daemon{
		log:      log,
		store:    store,
		sessions: sessions,
		bot: bot.New(bot.Options{
			Poller:   tg,
			Sessions: sessions,
			Replier:  sender,
			Access:   cfg.Access,
			Logger:   log,
		}),
	}

	if cfg.Heartbeat.Enabled {
		d.hb = heartbeat.New(heartbeat.Options{
			Port:     cfg.Heartbeat.Port,
			Sessions: sessions.Registry().Len,
			Version:  ver,
			Logger:   log,
		})
		if cfg.Heartbeat.SelfURL != "" {
			d.pinger = heartbeat.NewPinger(cfg.Heartbeat.SelfURL, cfg.Heartbeat.PingInterval(), log)
		}
	}
	return d, nil
}

// run blocks until ctx is done or the bot stops on its own.
func (d *daemon) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	background := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.log.Error("background task panic", "task", name, "panic", r)
				}
			}()
			fn(ctx)
		}()
	}

	if d.hb != nil {
		background("heartbeat", func(ctx context.Context) {
			if err := d.hb.Run(ctx); err != nil {
				d.log.Error("heartbeat server stopped", "error", err)
			}
		})
	}
	if d.pinger != nil {
		background("self_ping", d.pinger.Run)
	}

	err := d.bot.Run(ctx)
	cancel()
	wg.Wait()

	if errors.Is(err, telegram.ErrUnauthorized) {
		return fmt.Errorf("telegram rejected the bot token: %w", err)
	}
	return err
}

func (d *daemon) close() {
	start := time.Now()
	d.sessions.Close()
	if err := d.store.Close(); err != nil {
		d.log.Warn("close app cache", "error", err)
	}
	d.log.Info("sessions closed", "elapsed", time.Since(start))
}
