package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"cineplex/internal/clients/credentials"
	"cineplex/internal/clients/fetch"
	"cineplex/internal/clients/metadata"
	"cineplex/internal/clients/notifications"
	"cineplex/internal/config"
	"cineplex/internal/core"
	"cineplex/internal/database"
	"cineplex/internal/handlers"
	"cineplex/internal/utils"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"config.yml" description:"Path to configuration file"`
	EnvFile string `short:"e" long:"env" default:".env" description:"Optional dotenv file with API_KEY_n entries"`
	Debug   bool   `short:"d" long:"debug" description:"Enable debug logging"`
	Port    int    `short:"p" long:"port" description:"Override the HTTP port"`
}

func main() {
	opts := &Options{}
	if _, err := flags.ParseArgs(opts, os.Args[1:]); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(2)
	}

	if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal("Failed to load env file:", err)
	}

	// Load configuration
	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if opts.Debug {
		cfg.App.Debug = true
	}
	if opts.Port > 0 {
		cfg.App.Port = opts.Port
	}

	if err := os.MkdirAll(cfg.App.DataPath, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Initialize logger to write to both file and console
	logFile, err := os.OpenFile(filepath.Join(cfg.App.DataPath, "app.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()

	multiWriter := io.MultiWriter(os.Stdout, logFile)
	logger := utils.NewLogger(cfg.App.Debug, multiWriter)

	db, err := database.NewSQLite(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db, logger); err != nil {
		logger.Fatal("Failed to run migrations:", err)
	}

	notifier := newNotifier(cfg, logger)

	issuer, err := credentials.NewHTTPIssuer(cfg.Credentials.Endpoint, cfg.APITimeout())
	if err != nil {
		logger.Fatal("Failed to create key issuer client:", err)
	}
	store := credentials.NewStore(credentials.NewPool(), issuer,
		credentials.WithFallback(cfg.Credentials.FallbackKey),
		credentials.WithFreshFor(cfg.CredentialsFreshFor()),
		credentials.WithLogger(logger),
		credentials.WithNotifier(notifier),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	memo := newMemo(cfg, logger)
	fetchOpts := []fetch.Option{
		fetch.WithHTTPClient(&http.Client{Timeout: cfg.APITimeout()}),
		fetch.WithMaxRetries(cfg.API.MaxRetries),
		fetch.WithCredentialHeader(cfg.API.CredentialHeader),
		fetch.WithMemo(memo),
		fetch.WithMetrics(fetch.NewMetricsCollector(registry)),
		fetch.WithLogger(logger),
		fetch.WithNotifier(notifier),
	}
	if cfg.API.RateLimit > 0 {
		fetchOpts = append(fetchOpts, fetch.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.API.RateLimit), cfg.API.RateBurst)))
	}
	client := fetch.New(cfg.API.BaseURL, store, fetchOpts...)

	manager := core.NewManager(cfg, db, metadata.NewKinopoiskClient(client), store, memo, logger)

	var keyIssuer *handlers.KeyIssuer
	if cfg.Issuer.Enabled {
		keyIssuer = handlers.NewKeyIssuer(cfg.Issuer.Keys)
		if len(cfg.Issuer.Keys) == 0 {
			logger.Warn("Key issuer enabled but no keys configured (issuer.keys or API_KEY_n)")
		}
	}

	server := handlers.NewServer(cfg, manager, keyIssuer, registry, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start:", err)
		}
	}()

	if err := manager.StartScheduler(); err != nil {
		logger.Fatal("Failed to start scheduler:", err)
	}

	err = config.Watch(ctx, opts.Config, func(next *config.Config) {
		if keyIssuer != nil {
			keyIssuer.SetKeys(next.Issuer.Keys)
		}
		manager.UpdateConfig(next)
		logger.Info("Configuration reloaded,", len(next.Issuer.Keys), "issuer keys")
	}, func(err error) {
		logger.Warn("Config reload failed:", err)
	})
	if err != nil {
		logger.Warn("Config hot reload disabled:", err)
	}

	logger.Info("Cineplex started successfully on port", cfg.App.Port)

	// Wait for interrupt
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("Shutting down...")
	cancel()
	manager.Stop()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed:", err)
	}
}

func newNotifier(cfg *config.Config, logger *utils.Logger) notifications.Notifier {
	apiKey := cfg.Notifications.Pushbullet.APIKey
	if apiKey == "" {
		return notifications.Nop{}
	}
	pb := notifications.NewPushbulletClient(apiKey, logger)
	if err := pb.Test(); err != nil {
		logger.Warn("Pushbullet disabled:", err)
		return notifications.Nop{}
	}
	logger.Info("Pushbullet notifications enabled")
	return pb
}

// newMemo returns the shared Redis memo when configured and reachable, the
// in-process one otherwise.
func newMemo(cfg *config.Config, logger *utils.Logger) fetch.Memo {
	if cfg.Cache.RedisAddr == "" {
		return fetch.NewMemoryMemo()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable, keeping the memo in memory:", err)
		rdb.Close()
		return fetch.NewMemoryMemo()
	}
	logger.Info("Memoizing responses in Redis at", cfg.Cache.RedisAddr)
	return fetch.NewRedisMemo(rdb, cfg.Cache.Prefix)
}
