package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"eventcal/internal/calendar"
	"eventcal/internal/config"
	appLog "eventcal/internal/log"
	"eventcal/internal/metrics"
	"eventcal/internal/store"
	"eventcal/internal/web"
)

// flagConfig holds CLI flag values that override the config file.
type flagConfig struct {
	configPath string
	listen     string
	dataDir    string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.dataDir != "" {
		conf.DataDir = flags.dataDir
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	defer appLog.Sync()

	format, err := store.ParseFormat(conf.Format)
	if err != nil {
		appLog.Error("invalid storage format", err, "format", conf.Format)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"data_dir", conf.DataDir,
		"format", format,
		"allow_conflict", conf.AllowConflict,
		"autosave", conf.Autosave,
		"calendars", len(conf.Calendars),
		"once", flags.once,
	)

	cals, err := loadCalendars(conf)
	if err != nil {
		appLog.Error("failed to restore calendars", err, "data_dir", conf.DataDir)
		os.Exit(1)
	}

	rec, err := metrics.New()
	if err != nil {
		appLog.Error("metrics disabled", err)
	}
	defer rec.Shutdown(context.Background())

	srv := web.NewServer(conf, cals, web.WithMetrics(rec))
	save := func(cals []*calendar.Calendar) error {
		start := time.Now()
		err := store.SaveAll(cals, conf.DataDir, format)
		rec.RecordSave(context.Background(), len(cals), time.Since(start), err)
		return err
	}

	if flags.once {
		if err := srv.SaveDirty(true, save); err != nil {
			appLog.Error("save failed", err, "data_dir", conf.DataDir)
			os.Exit(1)
		}
		appLog.Info("calendars saved; exiting", "count", len(cals))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := cron.New()
	if _, err := sched.AddFunc(conf.Autosave, func() {
		if err := srv.SaveDirty(false, save); err != nil {
			appLog.Error("autosave failed", err, "data_dir", conf.DataDir)
		}
	}); err != nil {
		appLog.Error("invalid autosave schedule", err, "autosave", conf.Autosave)
		os.Exit(1)
	}
	sched.Start()

	if err := srv.ListenAndServe(ctx); err != nil {
		appLog.Error("HTTP server stopped", err)
	}
	<-sched.Stop().Done()

	if err := srv.SaveDirty(false, save); err != nil {
		appLog.Error("final save failed", err, "data_dir", conf.DataDir)
		os.Exit(1)
	}
	appLog.Info("eventcal exiting")
}

// loadCalendars restores the data directory. A missing or empty directory
// is seeded from the calendars listed in the config.
func loadCalendars(conf *config.Config) ([]*calendar.Calendar, error) {
	opt := calendar.WithAllowConflict(conf.AllowConflict)

	var cals []*calendar.Calendar
	if _, err := os.Stat(conf.DataDir); err == nil {
		restored, err := store.RestoreAll(conf.DataDir, opt)
		if err != nil {
			return nil, err
		}
		cals = restored
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if len(cals) > 0 {
		return cals, nil
	}

	for _, cc := range conf.Calendars {
		cals = append(cals, calendar.New(cc.Title, calendar.WithAllowConflict(conf.AllowConflictFor(cc))))
	}
	appLog.Info("seeded calendars from config", "count", len(cals))
	return cals, nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/eventcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.dataDir, "data", "", "Calendar data directory (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Restore calendars, save them in the configured format and exit")

	flag.Parse()

	return cfg
}
