package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trainwatch/config"
	"trainwatch/feed"
	"trainwatch/feed/amtrak"
	"trainwatch/feed/brightline"
	"trainwatch/feed/via"
	"trainwatch/metrics"
	"trainwatch/model"
	"trainwatch/normalize"
	"trainwatch/poller"
	"trainwatch/stations"
	"trainwatch/status"
	"trainwatch/track"
)

// trainView is the oneshot output: the normalized train plus its
// derived status and snapped display position.
type trainView struct {
	model.Train
	Meta     model.TrainMeta `json:"meta"`
	Position *track.Position `json:"position,omitempty"`
}

func main() {
	configPath := flag.String("config", "config.yml", "path to the YAML configuration file")
	mode := flag.String("mode", "poll", "poll: run until signalled; oneshot: one cycle, JSON to stdout")
	agency := flag.String("agency", "", "restrict polling to one agency (amtrak, via, brightline)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	// The embedded cipher constants must round-trip before any real
	// ciphertext is trusted to them.
	if err := amtrak.VerifyCipher(); err != nil {
		logger.Error("cipher self-check failed", "error", err)
		os.Exit(1)
	}

	table, err := stations.Load(cfg.Assets.StationsPath)
	if err != nil {
		logger.Error("failed to load stations", "error", err)
		os.Exit(1)
	}

	var collector *metrics.Collector
	if cfg.MetricsAddr != "" {
		collector = metrics.NewCollector()
	}

	var snapper *track.Snapper
	if cfg.Assets.TrackGeometryPath != "" {
		network, err := track.LoadNetwork(cfg.Assets.TrackGeometryPath)
		if err != nil {
			logger.Error("failed to load track geometry", "error", err)
			os.Exit(1)
		}
		snapper = track.NewSnapper(network, table, logger, collector)
		logger.Info("track geometry loaded", "segments", network.Segments())
	}

	adapters := buildAdapters(cfg, table, logger, *agency)
	if len(adapters) == 0 {
		logger.Error("no feed adapters configured", "agency", *agency)
		os.Exit(1)
	}

	store := normalize.NewStore()
	p := poller.New(adapters, store, cfg.PollInterval(), cfg.PollTimeout(), logger, collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch *mode {
	case "oneshot":
		p.PollOnce(ctx)
		if err := dumpSnapshot(os.Stdout, store, snapper); err != nil {
			logger.Error("failed to write snapshot", "error", err)
			os.Exit(1)
		}

	case "poll":
		var srv *http.Server
		if cfg.MetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", collector.Handler())
			srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
			go func() {
				logger.Info("metrics listening", "addr", cfg.MetricsAddr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("metrics server error", "error", err)
				}
			}()
		}

		go p.Run(ctx)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutdown signal received")
		cancel()

		if srv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "error", err)
			}
		}
		logger.Info("shutdown complete")

	default:
		logger.Error("unknown mode", "mode", *mode)
		os.Exit(1)
	}
}

func buildAdapters(cfg config.AppConfig, table *stations.Table, logger *slog.Logger, only string) []feed.Adapter {
	fetcher := feed.NewHTTPFetcher(cfg.PollTimeout())

	var adapters []feed.Adapter
	if cfg.Feeds.AmtrakURL != "" {
		adapters = append(adapters, amtrak.New(fetcher, cfg.Feeds.AmtrakURL, table, logger))
	}
	if cfg.Feeds.ViaURL != "" {
		adapters = append(adapters, via.New(fetcher, cfg.Feeds.ViaURL, table, logger))
	}
	if cfg.Feeds.BrightlinePositionsURL != "" && cfg.Feeds.BrightlineTripUpdatesURL != "" {
		adapters = append(adapters, brightline.New(fetcher, cfg.Feeds.BrightlinePositionsURL, cfg.Feeds.BrightlineTripUpdatesURL, table, logger))
	}

	if only == "" {
		return adapters
	}
	for _, a := range adapters {
		if string(a.Agency()) == only {
			return []feed.Adapter{a}
		}
	}
	return nil
}

func dumpSnapshot(w *os.File, store *normalize.Store, snapper *track.Snapper) error {
	now := time.Now()
	trains := store.Snapshot()

	views := make([]trainView, 0, len(trains))
	for _, t := range trains {
		v := trainView{Train: t, Meta: status.Evaluate(t, now)}
		if snapper != nil {
			if pos, ok := snapper.Snap(t, v.Meta.Next); ok {
				v.Position = &pos
			}
		}
		views = append(views, v)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(views)
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
