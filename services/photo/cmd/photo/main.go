package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"openbooks/internal/ratelimit"
	"openbooks/internal/util"
	"openbooks/pkg/storage"
	"openbooks/pkg/store"
	"openbooks/services/photo/internal/app"
	"openbooks/services/photo/internal/config"
	"openbooks/services/photo/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancelOpen := context.WithTimeout(ctx, 15*time.Second)
	adapter, err := store.Open(openCtx, store.Config{
		Provider:        cfg.DBProvider,
		FilePath:        cfg.DBFile(),
		RedisAddr:       cfg.RedisAddr,
		RedisPassword:   cfg.RedisPassword,
		RedisPrefix:     cfg.RedisPrefix,
		DatabaseURL:     cfg.DatabaseURL,
		MongoURI:        cfg.MongoURI,
		MongoDatabase:   cfg.MongoDatabase,
		MongoCollection: cfg.MongoCollection,
	})
	cancelOpen()
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer adapter.Close()

	uploader, uploadDir, err := newUploader(cfg)
	if err != nil {
		log.Fatalf("failed to init uploader: %v", err)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.UploadRateLimitPerMinute > 0 {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "photo:ratelimit", cfg.UploadRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init upload rate limiter: %v", err)
		}
		defer limiter.Close()
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	appCore, err := app.New(app.Config{Store: adapter})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	appCore.Start(util.ContextWithLogger(ctx, logger))

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Uploader:       uploader,
		UploadDir:      uploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		UploadLimiter:  limiter,
		TrustedProxies: trusted,
		Services:       deploymentServices(cfg),
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "err", err)
		}
	}()

	slog.Info("photo server listening", "addr", addr, "db", cfg.DBProvider, "storage", cfg.StorageProvider)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}

// newUploader returns the image store and, for local storage, the directory
// to serve under /uploads/.
func newUploader(cfg config.FileConfig) (storage.Uploader, string, error) {
	if cfg.StorageProvider == config.StorageMinio {
		m, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicURL,
		})
		if err != nil {
			return nil, "", err
		}
		return m, "", nil
	}
	fs, err := storage.NewFileStore(cfg.UploadDir, "/uploads")
	if err != nil {
		return nil, "", err
	}
	return fs, fs.Dir(), nil
}

func deploymentServices(cfg config.FileConfig) []server.ServiceStatus {
	db := server.ServiceStatus{Name: "Database", State: "OK", Dot: "ok", Note: "JSON file (" + cfg.DBFile() + ")"}
	if cfg.DBProvider != store.ProviderFile {
		db.Note = strings.ToUpper(cfg.DBProvider[:1]) + cfg.DBProvider[1:] + " (partitioned items)"
	}
	objects := server.ServiceStatus{Name: "Object Storage", State: "OK", Dot: "ok", Note: "Local uploads folder"}
	if cfg.StorageProvider == config.StorageMinio {
		objects.Note = "MinIO bucket " + cfg.MinioBucket
	}
	cache := server.ServiceStatus{Name: "Caching Layer", State: "WARN", Dot: "warn", Note: "Not configured"}
	if cfg.UploadRateLimitPerMinute > 0 {
		cache = server.ServiceStatus{Name: "Caching Layer", State: "OK", Dot: "ok", Note: "Redis upload rate limit"}
	}
	return []server.ServiceStatus{
		{Name: "Static Web Hosting", State: "OK", Dot: "ok", Note: "Served by this process"},
		{Name: "REST API Endpoint", State: "OK", Dot: "ok", Note: "/api"},
		objects,
		db,
		cache,
		{Name: "Auth & Roles", State: "WARN", Dot: "warn", Note: "Demo user switching, no real auth"},
		{Name: "CDN", State: "WARN", Dot: "warn", Note: "Not configured"},
	}
}
