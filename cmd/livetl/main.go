// Command livetl serves the live translation HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/ZaguanLabs/livetl"
	"github.com/ZaguanLabs/livetl/cache"
	"github.com/ZaguanLabs/livetl/provider"
	"github.com/ZaguanLabs/livetl/server"
)

// Build-time variables (can be overridden with ldflags)
var (
	version   = livetl.Version
	commit    = livetl.GitCommit
	buildDate = livetl.BuildDate
)

type config struct {
	Addr         string        `env:"LIVETL_ADDR" envDefault:":8080"`
	OpenAIAPIKey string        `env:"OPENAI_API_KEY"`
	OpenAIModel  string        `env:"LIVETL_OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	RedisURL     string        `env:"LIVETL_REDIS_URL"`
	CacheTTL     int           `env:"LIVETL_CACHE_TTL" envDefault:"86400"`
	RateLimit    int           `env:"LIVETL_RATE_LIMIT" envDefault:"100"`
	RateWindow   time.Duration `env:"LIVETL_RATE_WINDOW" envDefault:"1m"`
	ProviderRPM  int           `env:"LIVETL_PROVIDER_RPM" envDefault:"120"`
	LogLevel     string        `env:"LIVETL_LOG_LEVEL" envDefault:"info"`
	LogPretty    bool          `env:"LIVETL_LOG_PRETTY"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("livetl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	addr := fs.String("addr", "", "Listen address (overrides LIVETL_ADDR)")
	envFile := fs.String("env-file", "", "Load environment from this file before reading config")
	cacheFile := fs.String("cache-file", "livetl-cache.json", "Cache file for -dump-cache and -load-cache")
	dumpCache := fs.Bool("dump-cache", false, "Export the cache file as JSON to stdout and exit")
	loadCache := fs.String("load-cache", "", "Import a cache export from this path into the cache file and exit")
	showVersion := fs.Bool("version", false, "Show version")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintf(stdout, "%s %s\n", livetl.Name, version)
		if commit != "unknown" && commit != "" {
			fmt.Fprintf(stdout, "  commit:  %s\n", commit)
		}
		if buildDate != "unknown" && buildDate != "" {
			fmt.Fprintf(stdout, "  built:   %s\n", buildDate)
		}
		return nil
	}

	if *dumpCache {
		store := cache.NewFileStore(cache.FileStoreConfig{Path: *cacheFile})
		return store.Export(stdout, map[string]string{"app": livetl.Name, "version": version})
	}
	if *loadCache != "" {
		f, err := os.Open(*loadCache)
		if err != nil {
			return fmt.Errorf("opening cache export: %w", err)
		}
		defer f.Close()
		store := cache.NewFileStore(cache.FileStoreConfig{Path: *cacheFile})
		result, err := cache.Import(f, store)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "imported %d entries (%d failed)\n", result.Imported, result.Failed)
		return nil
	}

	cfg, err := loadConfig(*envFile)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	log := newLogger(cfg, stderr)

	srv, err := buildServer(cfg, log)
	if err != nil {
		return err
	}

	return serve(srv, cfg.Addr, log)
}

// loadConfig reads the process environment, optionally seeded from a
// dotenv file. A missing default .env is not an error.
func loadConfig(envFile string) (config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return config{}, &livetl.ConfigError{Message: fmt.Sprintf("loading %s: %v", envFile, err)}
		}
	} else {
		_ = godotenv.Load()
	}

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, &livetl.ConfigError{Message: err.Error()}
	}
	return cfg, nil
}

func newLogger(cfg config, stderr io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = stderr
	if cfg.LogPretty {
		out = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().
		Timestamp().
		Str("app", livetl.Name).
		Logger()
}

// buildServer assembles the provider chain, cache store, and HTTP handler.
// Without an API key the server still runs; translation requests echo their
// input and health reports unconfigured.
func buildServer(cfg config, log zerolog.Logger) (*http.Server, error) {
	var p livetl.Provider
	if cfg.OpenAIAPIKey != "" {
		base := provider.NewOpenAIProvider(provider.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
		})
		limited := livetl.NewRateLimitedProvider(base, livetl.RateLimitConfig{
			RequestsPerMinute: cfg.ProviderRPM,
		})
		p = livetl.NewRetryableProvider(limited, livetl.DefaultRetryConfig())
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, serving in echo mode")
	}

	adapter := provider.NewAdapter(p, log)

	var store cache.Store
	if cfg.RedisURL != "" {
		rs, err := cache.NewRedisStore(cache.RedisConfig{
			URL: cfg.RedisURL,
			TTL: cfg.CacheTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		store = rs
		log.Info().Str("url", cfg.RedisURL).Msg("using redis translation cache")
	} else {
		store = cache.NewInMemoryStore(cfg.CacheTTL)
	}

	api := server.NewAPI(adapter, store, server.NewMemoryUserLanguages(), server.IPRateLimitConfig{
		Limit:  cfg.RateLimit,
		Window: cfg.RateWindow,
	}, log)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// serve runs the HTTP server until SIGINT or SIGTERM, then shuts down
// gracefully.
func serve(srv *http.Server, addr string, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("version", livetl.FullVersion()).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
