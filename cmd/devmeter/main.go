package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	devmeter "github.com/maddsua/devmeter"
)

type CliFlags struct {
	Cfg      *string
	Debug    *bool
	JsonLogs *bool
	Export   *string
	Out      *string
	Device   *int
}

func main() {

	godotenv.Load()

	cli := CliFlags{
		Cfg:      flag.String("cfg", "", "config file location"),
		Debug:    flag.Bool("debug", false, "enable debug logging"),
		JsonLogs: flag.Bool("json_logs", false, "log in json format"),
		Export:   flag.String("export", "", "one-shot report export: 'text' or 'html'"),
		Out:      flag.String("out", "", "report output file (stdout when empty)"),
		Device:   flag.Int("device", 0, "device index for report export"),
	}
	flag.Parse()

	if os.Getenv("DEBUG") == "true" || *cli.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if os.Getenv("LOGFMT") == "json" || *cli.JsonLogs {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}

	devices := devmeter.EnumerateDevices()
	if len(devices) == 0 {
		slog.Error("No compute devices found")
		os.Exit(1)
	}

	for _, device := range devices {
		info := device.Info()
		slog.Info("Found device",
			slog.Int("index", info.Index),
			slog.String("name", info.Name))
	}

	if *cli.Export != "" {
		if err := exportReport(devices, *cli.Export, *cli.Out, *cli.Device); err != nil {
			slog.Error("Report export failed",
				slog.String("err", err.Error()))
			os.Exit(1)
		}
		return
	}

	if *cli.Cfg == "" {
		if loc, has := FindConfig([]string{
			"./devmeter.yml",
			"/etc/mws/devmeter/devmeter.yml",
		}); has {
			cli.Cfg = &loc
		}
	}

	cfg := &devmeter.RootConfig{}

	if *cli.Cfg != "" {

		loaded, err := LoadConfigFile(*cli.Cfg)
		if err != nil {
			slog.Error("Failed to load config",
				slog.String("err", err.Error()))
			os.Exit(1)
		}

		cfg = loaded

		slog.Info("Config file loaded",
			slog.String("at", *cli.Cfg))
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("Failed to validate config",
			slog.String("err", err.Error()))
		os.Exit(1)
	}

	var writers []devmeter.StorageWriter
	var history devmeter.Storage

	if val := os.Getenv("TIMESCALE_URL"); val != "" {
		cfg.Storage.TimescaleUrl = val
	}

	if cfg.Storage.TimescaleUrl != "" {

		timescale, err := devmeter.NewTimescaleStorage(cfg.Storage.TimescaleUrl)
		if err != nil {
			slog.Error("Failed to set up timescale storage",
				slog.String("err", err.Error()))
			os.Exit(1)
		}

		defer timescale.Close()
		writers = append(writers, timescale)
	}

	if path := cfg.Storage.SqlitePath; path != "" {

		sqlite, err := devmeter.NewSqliteStorage(path)
		if err != nil {
			slog.Error("Failed to set up sqlite storage",
				slog.String("err", err.Error()))
			os.Exit(1)
		}

		defer sqlite.Close()
		writers = append(writers, sqlite)
		history = sqlite
	}

	for _, writer := range writers {
		slog.Info("USING STORAGE",
			slog.String("type", writer.Type()))
	}

	monitor := devmeter.NewMonitor(devices)
	monitor.RefreshEvery = cfg.Refresh.Every.Duration()
	monitor.AutoRefresh = cfg.Refresh.AutoEnabled()
	monitor.HeavyMode = cfg.Refresh.Heavy
	monitor.Writers = writers

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {

		exit := make(chan os.Signal, 2)
		signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)

		<-exit
		cancel()
		slog.Info("Shutting down...")
	}()

	if cfg.Updates != nil {
		go checkUpdates(ctx, cfg.Updates)
	}

	var server *http.Server

	if cfg.Exporter != nil {

		server = &http.Server{
			Addr: cfg.Exporter.Listen,
			Handler: &devmeter.WebExporter{
				Monitor: monitor,
				History: history,
			},
		}

		go func() {

			slog.Info("Web exporter listening",
				slog.String("at", server.Addr))

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Web exporter failed",
					slog.String("err", err.Error()))
				cancel()
			}
		}()
	}

	monitor.Run(ctx)

	if server != nil {

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		server.Shutdown(shutdownCtx)
	}
}

func checkUpdates(ctx context.Context, cfg *devmeter.UpdatesConfig) {

	check := devmeter.UpdateCheck{
		Url:   cfg.Url,
		Proxy: cfg.Proxy,
	}

	release, err := check.Check(ctx)
	if err != nil {
		slog.Warn("Can't load version information",
			slog.String("err", err.Error()))
		return
	}

	switch {
	case release.UpdateAvailable:
		slog.Info("New version is available",
			slog.String("version", release.Version),
			slog.String("download", release.DownloadUrl))
	case release.Prerelease:
		slog.Warn("You are running a prerelease version")
	default:
		slog.Info("No new version was found")
	}
}

func exportReport(devices []devmeter.Device, format string, out string, idx int) error {

	if idx < 0 || idx >= len(devices) {
		return fmt.Errorf("device index %d out of range", idx)
	}

	device := devices[idx]

	worker := devmeter.NewWorker(device)
	defer worker.Shutdown()

	if err := worker.TriggerAndWait(devmeter.CorrelationID(idx)); err != nil {
		return err
	}

	wrt := os.Stdout
	if out != "" {

		file, err := os.Create(out)
		if err != nil {
			return err
		}

		defer file.Close()
		wrt = file
	}

	switch format {
	case "text":
		return devmeter.WriteTextReport(wrt, device.Info())
	case "html":
		return devmeter.WriteHTMLReport(wrt, device.Info())
	default:
		return fmt.Errorf("unsupported report format '%s'", format)
	}
}
