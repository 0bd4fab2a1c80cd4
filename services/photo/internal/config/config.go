package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the file read when Load is given an empty path.
const ConfigPath = "config.yaml"

// Storage provider names.
const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// FileConfig is loaded from YAML and then overridden by environment variables.
type FileConfig struct {
	Port     string `yaml:"port" env:"PORT"`
	LogLevel string `yaml:"logLevel" env:"LOG_LEVEL"`

	DBProvider string `yaml:"dbProvider" env:"DB_PROVIDER"`
	DataDir    string `yaml:"dataDir" env:"DATA_DIR"`

	RedisAddr     string `yaml:"redisAddr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redisPassword" env:"REDIS_PASSWORD"`
	RedisPrefix   string `yaml:"redisPrefix" env:"REDIS_PREFIX"`

	DatabaseURL string `yaml:"databaseURL" env:"DATABASE_URL"`

	MongoURI        string `yaml:"mongoURI" env:"MONGO_URI"`
	MongoDatabase   string `yaml:"mongoDatabase" env:"MONGO_DATABASE"`
	MongoCollection string `yaml:"mongoCollection" env:"MONGO_COLLECTION"`

	StorageProvider string `yaml:"storageProvider" env:"STORAGE_PROVIDER"`
	UploadDir       string `yaml:"uploadDir" env:"UPLOAD_DIR"`
	MinioEndpoint   string `yaml:"minioEndpoint" env:"MINIO_ENDPOINT"`
	MinioAccessKey  string `yaml:"minioAccessKey" env:"MINIO_ACCESS_KEY"`
	MinioSecretKey  string `yaml:"minioSecretKey" env:"MINIO_SECRET_KEY"`
	MinioBucket     string `yaml:"minioBucket" env:"MINIO_BUCKET"`
	MinioUseSSL     bool   `yaml:"minioUseSSL" env:"MINIO_USE_SSL"`
	MinioPublicURL  string `yaml:"minioPublicURL" env:"MINIO_PUBLIC_URL"`

	MaxUploadBytes           int64    `yaml:"maxUploadBytes" env:"MAX_UPLOAD_BYTES"`
	UploadRateLimitPerMinute int      `yaml:"uploadRateLimitPerMinute" env:"UPLOAD_RATE_LIMIT_PER_MINUTE"`
	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs" env:"TRUSTED_PROXY_CIDRS" envSeparator:","`
}

// DBFile is the JSON document used by the file provider.
func (c FileConfig) DBFile() string {
	return filepath.Join(c.DataDir, "db.json")
}

// Load reads config from path (defaults to config.yaml). A missing file is
// not an error: defaults and environment variables still apply.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	cfg.DBProvider = strings.ToLower(strings.TrimSpace(cfg.DBProvider))
	cfg.StorageProvider = strings.ToLower(strings.TrimSpace(cfg.StorageProvider))
	if cfg.Port == "" {
		cfg.Port = "3000"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DBProvider == "" {
		cfg.DBProvider = "file"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.StorageProvider == "" {
		cfg.StorageProvider = StorageLocal
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 6 << 20
	}
}

func validateConfig(cfg FileConfig) error {
	switch cfg.DBProvider {
	case "file":
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for dbProvider redis (set in config.yaml or REDIS_ADDR)")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for dbProvider postgres (set in config.yaml or DATABASE_URL)")
		}
	case "mongo":
		if strings.TrimSpace(cfg.MongoURI) == "" || strings.TrimSpace(cfg.MongoDatabase) == "" {
			return errors.New("config: mongoURI and mongoDatabase are required for dbProvider mongo")
		}
	default:
		return fmt.Errorf("config: unknown dbProvider %q (file, redis, postgres, mongo)", cfg.DBProvider)
	}
	switch cfg.StorageProvider {
	case StorageLocal:
	case StorageMinio:
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint and minioBucket are required for storageProvider minio")
		}
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return errors.New("config: minio credentials are required (MINIO_ACCESS_KEY, MINIO_SECRET_KEY)")
		}
	default:
		return fmt.Errorf("config: unknown storageProvider %q (local, minio)", cfg.StorageProvider)
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	if cfg.UploadRateLimitPerMinute < 0 {
		return errors.New("config: uploadRateLimitPerMinute must be >= 0")
	}
	if cfg.UploadRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when uploadRateLimitPerMinute is set")
	}
	return nil
}
