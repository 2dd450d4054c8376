package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"detectd/internal/artifactcache"
	"detectd/internal/backend"
	"detectd/internal/common/fsutil"
	"detectd/internal/config"
	"detectd/internal/fetch"
	"detectd/internal/httpapi"
	"detectd/internal/manager"
	"detectd/internal/registry"
)

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	// Flags with environment variable defaults
	addr := flag.String("addr", envStr("DETECTD_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	configPath := flag.String("config", os.Getenv("DETECTD_CONFIG"), "Optional config file (.yaml/.yml/.json/.toml)")
	manifestPath := flag.String("manifest", envStr("DETECTD_MANIFEST", "~/.config/detectd/detectors.yaml"), "Detector manifest (YAML)")
	cacheDir := flag.String("cache-dir", envStr("DETECTD_CACHE_DIR", "~/.cache/detectd"), "Directory for the artifact cache database")
	cacheMaxMB := flag.Int("cache-max-mb", envInt("DETECTD_CACHE_MAX_MB", 0), "Artifact cache size limit in MB (0=default)")
	memoryThresholdMB := flag.Int("memory-threshold-mb", envInt("DETECTD_MEMORY_THRESHOLD_MB", 0), "Memory pressure warning threshold in MB (0=default)")
	loadConcurrency := flag.Int("load-concurrency", envInt("DETECTD_LOAD_CONCURRENCY", 0), "Max simultaneous detector loads (0=default)")
	runConcurrency := flag.Int("run-concurrency", envInt("DETECTD_RUN_CONCURRENCY", 0), "Max simultaneous predicts per run (0=default)")
	predictTimeoutMs := flag.Int("predict-timeout-ms", envInt("DETECTD_PREDICT_TIMEOUT_MS", 0), "Per-detector predict budget in ms (0=default)")
	preload := flag.String("preload", os.Getenv("DETECTD_PRELOAD"), "Comma-separated detector IDs to load at startup ('all' for every detector)")
	logLevel := flag.String("log-level", envStr("DETECTD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	corsOrigins := flag.String("cors-origins", os.Getenv("DETECTD_CORS_ORIGINS"), "Comma-separated CORS origins (empty disables CORS)")
	flag.Parse()

	// An optional config file fills in whatever the flags left at zero.
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config %s: %v", *configPath, err)
		}
		applyUnset := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { applyUnset[f.Name] = true })
		if !applyUnset["addr"] && cfg.Addr != "" {
			*addr = cfg.Addr
		}
		if !applyUnset["manifest"] && cfg.ManifestPath != "" {
			*manifestPath = cfg.ManifestPath
		}
		if !applyUnset["cache-dir"] && cfg.CacheDir != "" {
			*cacheDir = cfg.CacheDir
		}
		if !applyUnset["cache-max-mb"] && cfg.CacheMaxMB != 0 {
			*cacheMaxMB = cfg.CacheMaxMB
		}
		if !applyUnset["memory-threshold-mb"] && cfg.MemoryThresholdMB != 0 {
			*memoryThresholdMB = cfg.MemoryThresholdMB
		}
		if !applyUnset["load-concurrency"] && cfg.LoadConcurrency != 0 {
			*loadConcurrency = cfg.LoadConcurrency
		}
		if !applyUnset["run-concurrency"] && cfg.RunConcurrency != 0 {
			*runConcurrency = cfg.RunConcurrency
		}
		if !applyUnset["predict-timeout-ms"] && cfg.PredictTimeoutMs != 0 {
			*predictTimeoutMs = cfg.PredictTimeoutMs
		}
		if !applyUnset["log-level"] && cfg.LogLevel != "" {
			*logLevel = cfg.LogLevel
		}
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().Level(lvl)
	httpapi.SetLogger(logger)

	cachePath, err := fsutil.ExpandHome(*cacheDir)
	if err != nil {
		log.Fatalf("cache dir: %v", err)
	}
	manifest, err := fsutil.ExpandHome(*manifestPath)
	if err != nil {
		log.Fatalf("manifest path: %v", err)
	}

	cache := artifactcache.Open(artifactcache.Config{
		Path:         filepath.Join(cachePath, "artifacts.db"),
		MaxSizeBytes: int64(*cacheMaxMB) << 20,
		Logger:       logger,
	})
	defer cache.Close()
	if cache.Degraded() {
		logger.Warn().Str("dir", cachePath).Msg("artifact cache degraded; downloads will not persist")
	}

	m, err := registry.LoadManifest(manifest)
	if err != nil {
		log.Fatalf("failed to load detector manifest: %v", err)
	}
	table, err := registry.BuildTable(m, registry.Deps{
		Backend: backend.Resolve(logger),
		Fetcher: fetch.New(cache, logger),
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("invalid detector manifest: %v", err)
	}

	mgr := manager.NewWithConfig(manager.Config{
		Table:             table,
		MemoryThresholdMB: *memoryThresholdMB,
		LoadConcurrency:   *loadConcurrency,
		RunConcurrency:    *runConcurrency,
		PredictTimeout:    time.Duration(*predictTimeoutMs) * time.Millisecond,
		Logger:            logger,
	})

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	if origins := splitCSV(*corsOrigins); len(origins) > 0 {
		httpapi.SetCORSOptions(true, origins,
			[]string{"GET", "POST", "DELETE", "OPTIONS"},
			[]string{"Accept", "Content-Type", "X-Log-Level"})
	}

	if ids := splitCSV(*preload); len(ids) > 0 {
		if len(ids) == 1 && ids[0] == "all" {
			ids = table.IDs()
		}
		go func() {
			res := mgr.LoadMany(baseCtx, ids, manager.BatchOptions{})
			for id, lerr := range res.Failed {
				logger.Error().Str("detector", id).Err(lerr).Msg("preload failed")
			}
			logger.Info().Int("loaded", len(res.Loaded)).Int("failed", len(res.Failed)).Msg("preload finished")
		}()
	}

	mux := httpapi.NewMux(mgr, cache)
	srv := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		logger.Info().Str("addr", *addr).Str("manifest", manifest).Int("detectors", table.Len()).Msg("detectd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	mgr.UnloadAll(ctx)
}
