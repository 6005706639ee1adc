package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int    `yaml:"port"`
	GinMode     string `yaml:"ginMode"`
	LogLevel    string `yaml:"logLevel"`
	TLSCertFile string `yaml:"tlsCertFile"`
	TLSKeyFile  string `yaml:"tlsKeyFile"`

	DatabaseURL         string `yaml:"databaseURL"`
	DatabaseAutoMigrate bool   `yaml:"databaseAutoMigrate"`

	TaggerEnabled                bool `yaml:"taggerEnabled"`
	TaggerPollSeconds            int  `yaml:"taggerPollSeconds"`
	TaggerBatchSize              int  `yaml:"taggerBatchSize"`
	TaggerDownloadTimeoutSeconds int  `yaml:"taggerDownloadTimeoutSeconds"`
	AnnotateEnabled              bool `yaml:"annotateEnabled"`

	StorageEndpoint      string `yaml:"storageEndpoint"`
	StorageAccessKey     string `yaml:"storageAccessKey"`
	StorageSecretKey     string `yaml:"storageSecretKey"`
	StorageBucket        string `yaml:"storageBucket"`
	StorageUseSSL        bool   `yaml:"storageUseSSL"`
	StoragePublicBaseURL string `yaml:"storagePublicBaseURL"`

	RedisAddr            string `yaml:"redisAddr"`
	RedisPassword        string `yaml:"redisPassword"`
	FrameCacheTTLSeconds int    `yaml:"frameCacheTTLSeconds"`
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.TaggerPollSeconds) * time.Second
}

func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.TaggerDownloadTimeoutSeconds) * time.Second
}

func (c Config) FrameCacheTTL() time.Duration {
	return time.Duration(c.FrameCacheTTLSeconds) * time.Second
}

// StorageConfigured reports whether object storage credentials are present.
func (c Config) StorageConfigured() bool {
	return c.StorageEndpoint != "" && c.StorageAccessKey != "" && c.StorageSecretKey != ""
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

// OSEnv reads the process environment.
func OSEnv() Env { return osEnv{} }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func defaults() Config {
	return Config{
		Port:                         3000,
		GinMode:                      "release",
		LogLevel:                     "info",
		TaggerEnabled:                true,
		TaggerPollSeconds:            10,
		TaggerDownloadTimeoutSeconds: 15,
		AnnotateEnabled:              true,
		StorageBucket:                "defect-images",
		FrameCacheTTLSeconds:         60,
	}
}

// LoadConfigFromEnv applies defaults, then the YAML file named by
// CONFIG_FILE if any, then environment overrides.
func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := defaults()

	if path := env.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envInt(env, "PORT", &cfg.Port); err != nil {
		return Config{}, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT")
	}

	envString(env, "GIN_MODE", &cfg.GinMode)
	envString(env, "LOG_LEVEL", &cfg.LogLevel)
	envString(env, "TLS_CERT_FILE", &cfg.TLSCertFile)
	envString(env, "TLS_KEY_FILE", &cfg.TLSKeyFile)

	envString(env, "DATABASE_URL", &cfg.DatabaseURL)
	if err := envBool(env, "DATABASE_AUTO_MIGRATE", &cfg.DatabaseAutoMigrate); err != nil {
		return Config{}, err
	}

	if err := envBool(env, "TAGGER_ENABLED", &cfg.TaggerEnabled); err != nil {
		return Config{}, err
	}
	if err := envInt(env, "TAGGER_POLL_SECONDS", &cfg.TaggerPollSeconds); err != nil {
		return Config{}, err
	}
	if cfg.TaggerPollSeconds <= 0 {
		return Config{}, fmt.Errorf("invalid TAGGER_POLL_SECONDS")
	}
	if err := envInt(env, "TAGGER_BATCH_SIZE", &cfg.TaggerBatchSize); err != nil {
		return Config{}, err
	}
	if cfg.TaggerBatchSize < 0 {
		return Config{}, fmt.Errorf("invalid TAGGER_BATCH_SIZE")
	}
	if err := envInt(env, "TAGGER_DOWNLOAD_TIMEOUT_SECONDS", &cfg.TaggerDownloadTimeoutSeconds); err != nil {
		return Config{}, err
	}
	if cfg.TaggerDownloadTimeoutSeconds <= 0 {
		return Config{}, fmt.Errorf("invalid TAGGER_DOWNLOAD_TIMEOUT_SECONDS")
	}
	if err := envBool(env, "ANNOTATE_ENABLED", &cfg.AnnotateEnabled); err != nil {
		return Config{}, err
	}

	envString(env, "STORAGE_ENDPOINT", &cfg.StorageEndpoint)
	envString(env, "STORAGE_ACCESS_KEY", &cfg.StorageAccessKey)
	envString(env, "STORAGE_SECRET_KEY", &cfg.StorageSecretKey)
	envString(env, "STORAGE_BUCKET", &cfg.StorageBucket)
	if err := envBool(env, "STORAGE_USE_SSL", &cfg.StorageUseSSL); err != nil {
		return Config{}, err
	}
	envString(env, "STORAGE_PUBLIC_BASE_URL", &cfg.StoragePublicBaseURL)

	envString(env, "REDIS_ADDR", &cfg.RedisAddr)
	envString(env, "REDIS_PASSWORD", &cfg.RedisPassword)
	if err := envInt(env, "FRAME_CACHE_TTL_SECONDS", &cfg.FrameCacheTTLSeconds); err != nil {
		return Config{}, err
	}
	if cfg.FrameCacheTTLSeconds <= 0 {
		return Config{}, fmt.Errorf("invalid FRAME_CACHE_TTL_SECONDS")
	}

	return cfg, nil
}

func envString(env Env, key string, dst *string) {
	if raw := env.Getenv(key); raw != "" {
		*dst = raw
	}
}

func envInt(env Env, key string, dst *int) error {
	raw := env.Getenv(key)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s", key)
	}
	*dst = n
	return nil
}

func envBool(env Env, key string, dst *bool) error {
	raw := env.Getenv(key)
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s", key)
	}
	*dst = b
	return nil
}
