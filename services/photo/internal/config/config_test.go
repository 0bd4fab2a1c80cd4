package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "3000" || cfg.DBProvider != "file" || cfg.StorageProvider != StorageLocal {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxUploadBytes != 6*1024*1024 {
		t.Fatalf("max upload = %d", cfg.MaxUploadBytes)
	}
	if cfg.DBFile() != filepath.Join("data", "db.json") {
		t.Fatalf("db file = %q", cfg.DBFile())
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
dbProvider: redis
redisAddr: "localhost:6379"
trustedProxyCidrs: ["10.0.0.0/8"]
`)
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PROVIDER", "Mongo")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_DATABASE", "photos")
	t.Setenv("UPLOAD_RATE_LIMIT_PER_MINUTE", "5")
	t.Setenv("TRUSTED_PROXY_CIDRS", "10.0.0.0/8,192.168.0.0/16")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("env should override port, got %q", cfg.Port)
	}
	if cfg.DBProvider != "mongo" || cfg.MongoDatabase != "photos" {
		t.Fatalf("unexpected provider config: %+v", cfg)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("yaml value lost: %q", cfg.RedisAddr)
	}
	if cfg.UploadRateLimitPerMinute != 5 {
		t.Fatalf("rate limit = %d", cfg.UploadRateLimitPerMinute)
	}
	if len(cfg.TrustedProxyCIDRs) != 2 {
		t.Fatalf("trusted proxies = %v", cfg.TrustedProxyCIDRs)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown provider", "dbProvider: dynamo\n", "unknown dbProvider"},
		{"redis without addr", "dbProvider: redis\n", "redisAddr"},
		{"postgres without dsn", "dbProvider: postgres\n", "databaseURL"},
		{"mongo without database", "dbProvider: mongo\nmongoURI: mongodb://x\n", "mongoDatabase"},
		{"minio without endpoint", "storageProvider: minio\n", "minioEndpoint"},
		{"minio without keys", "storageProvider: minio\nminioEndpoint: x:9000\nminioBucket: b\n", "credentials"},
		{"unknown storage", "storageProvider: azure\n", "unknown storageProvider"},
		{"negative upload size", "maxUploadBytes: -1\n", "maxUploadBytes"},
		{"rate limit without redis", "uploadRateLimitPerMinute: 3\n", "redisAddr"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "port: [")); err == nil {
		t.Fatalf("expected parse error")
	}
}
