package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Scan       ScanConfig       `yaml:"scan"`
	Occupancy  OccupancyConfig  `yaml:"occupancy"`
	QR         QRConfig         `yaml:"qr"`
	Admin      AdminConfig      `yaml:"admin"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Reports    ReportsConfig    `yaml:"reports"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
// Push is disabled when either key is empty.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// ScanConfig controls duplicate-scan suppression.
type ScanConfig struct {
	CooldownMillis        int           `yaml:"cooldown_ms"`
	Cooldown              time.Duration `yaml:"-"`
	SweepMultiplier       int           `yaml:"sweep_multiplier"`
	StorageTimeoutSeconds int           `yaml:"storage_timeout_seconds"`
	StorageTimeout        time.Duration `yaml:"-"`
}

// OccupancyConfig controls area counter maintenance.
type OccupancyConfig struct {
	ReconcileOnStart bool `yaml:"reconcile_on_start"`
}

// QRConfig controls generated registration codes.
type QRConfig struct {
	OutputDir    string `yaml:"output_dir"`
	ValidityDays int    `yaml:"validity_days"`
	Size         int    `yaml:"size"`
}

// AdminConfig holds the administrator credential and token settings.
type AdminConfig struct {
	PasswordHash    string `yaml:"password_hash"` // bcrypt
	TokenSecret     string `yaml:"token_secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
}

// ReportsConfig controls how report days and months are bucketed.
type ReportsConfig struct {
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig holds the database connection configuration.
// A DSN starting with "sqlite:" opens a SQLite file instead of Postgres.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// Load reads the configuration from the given path.
// Values from the environment (or a .env file next to the binary) override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("could not load .env file: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"DATABASE_DSN":        &cfg.Database.DSN,
		"ADMIN_PASSWORD_HASH": &cfg.Admin.PasswordHash,
		"ADMIN_TOKEN_SECRET":  &cfg.Admin.TokenSecret,
		"VAPID_PUBLIC_KEY":    &cfg.Push.PublicKey,
		"VAPID_PRIVATE_KEY":   &cfg.Push.PrivateKey,
	}
	for key, dst := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Scan.CooldownMillis <= 0 {
		cfg.Scan.CooldownMillis = 2500
	}
	cfg.Scan.Cooldown = time.Duration(cfg.Scan.CooldownMillis) * time.Millisecond
	if cfg.Scan.SweepMultiplier <= 0 {
		cfg.Scan.SweepMultiplier = 4
	}
	if cfg.Scan.StorageTimeoutSeconds <= 0 {
		cfg.Scan.StorageTimeoutSeconds = 5
	}
	cfg.Scan.StorageTimeout = time.Duration(cfg.Scan.StorageTimeoutSeconds) * time.Second

	if cfg.QR.OutputDir == "" {
		cfg.QR.OutputDir = "static/qrcodes"
	}
	if cfg.QR.ValidityDays <= 0 {
		cfg.QR.ValidityDays = 365
	}
	if cfg.QR.Size <= 0 {
		cfg.QR.Size = 256
	}

	if cfg.Admin.TokenTTLMinutes <= 0 {
		cfg.Admin.TokenTTLMinutes = 480
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Reports.Timezone == "" {
		cfg.Reports.Timezone = "Local"
	}
}

// Location resolves the reports timezone, falling back to the local zone.
func (r ReportsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		log.Printf("invalid reports.timezone %q: %v; using local time", r.Timezone, err)
		return time.Local
	}
	return loc
}
