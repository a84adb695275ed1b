// Package config provides the configuration structure for the kokoro-service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Environment variables consulted by Load.
const (
	EnvConfigPath  = "KOKORO_CONFIG"
	EnvPort        = "PORT"
	EnvHost        = "HOST"
	EnvAssetsPath  = "ASSETS_PATH"
	EnvNATSURL     = "NATS_URL"
	EnvRedisURL    = "REDIS_URL"
	EnvOnnxLibrary = "ONNXRUNTIME_LIB_PATH"
	EnvEspeakPath  = "ESPEAK_PATH"
)

// DefaultConfigFile is read when KOKORO_CONFIG is unset.
const DefaultConfigFile = "kokoro.toml"

// Object store backends.
const (
	BackendNATS  = "nats"
	BackendRedis = "redis"
)

const maxPort = 65535

// Accepted range for tts_service.default_speed.
const (
	minDefaultSpeed float32 = 0.5
	maxDefaultSpeed float32 = 2.0
)

var (
	// ErrInvalidPort is returned when server.port is outside 1..65535.
	ErrInvalidPort = errors.New("server port must be between 1 and 65535")
	// ErrAssetsPathEmpty is returned when no assets directory is configured.
	ErrAssetsPathEmpty = errors.New("assets path cannot be empty")
	// ErrCacheCapacity is returned when cache.capacity is not positive.
	ErrCacheCapacity = errors.New("cache capacity must be positive")
	// ErrCacheTTL is returned when cache.ttl_seconds is not positive.
	ErrCacheTTL = errors.New("cache ttl must be positive")
	// ErrDefaultSpeed is returned when tts_service.default_speed is outside 0.5..2.0.
	ErrDefaultSpeed = errors.New("default speed must be between 0.5 and 2.0")
	// ErrUnknownBackend is returned for an object store backend other than nats or redis.
	ErrUnknownBackend = errors.New("unknown object store backend")
	// ErrRedisURLRequired is returned when the redis backend is selected without a URL.
	ErrRedisURLRequired = errors.New("redis url is required for the redis backend")
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host                   string   `toml:"host"`
	Port                   int      `toml:"port"`
	RequestTimeoutSeconds  int      `toml:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int      `toml:"shutdown_timeout_seconds"`
	AllowedOrigins         []string `toml:"allowed_origins"`
}

// AssetsConfig locates the model, voice embeddings and runtime library.
type AssetsConfig struct {
	Path            string `toml:"path"`
	OnnxLibraryPath string `toml:"onnx_library_path"`
	IntraOpThreads  int    `toml:"intra_op_threads"`
	PreloadVoices   bool   `toml:"preload_voices"`
}

// TTSServiceConfig holds request defaults for the synthesis service.
type TTSServiceConfig struct {
	DefaultVoice   string  `toml:"default_voice"`
	DefaultSpeed   float32 `toml:"default_speed"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// CacheConfig sizes the synthesis result cache.
type CacheConfig struct {
	Capacity   int `toml:"capacity"`
	TTLSeconds int `toml:"ttl_seconds"`
}

// EspeakConfig configures the espeak-ng phonemizer.
type EspeakConfig struct {
	Path      string `toml:"path"`
	DataPath  string `toml:"data_path"`
	ExtraArgs string `toml:"extra_args"`
}

// NATSConfig holds the configuration for NATS. An empty URL disables the
// job worker.
type NATSConfig struct {
	URL                      string `toml:"url"`
	TextProcessedSubject     string `toml:"text_processed_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	QueueGroup               string `toml:"queue_group"`
	ObjectStoreBackend       string `toml:"object_store_backend"`
	ObjectStoreBucket        string `toml:"object_store_bucket"`
}

// RedisConfig configures the Redis object store backend.
type RedisConfig struct {
	URL           string `toml:"url"`
	KeyPrefix     string `toml:"key_prefix"`
	ObjectTTLSecs int    `toml:"object_ttl_seconds"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server ServerConfig     `toml:"server"`
	Assets AssetsConfig     `toml:"assets"`
	TTS    TTSServiceConfig `toml:"tts_service"`
	Cache  CacheConfig      `toml:"cache"`
	Espeak EspeakConfig     `toml:"espeak"`
	NATS   NATSConfig       `toml:"nats"`
	Redis  RedisConfig      `toml:"redis"`
	Paths  PathsConfig      `toml:"paths"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   3002,
			RequestTimeoutSeconds:  30,
			ShutdownTimeoutSeconds: 10,
			AllowedOrigins:         []string{"*"},
		},
		Assets: AssetsConfig{
			Path:           "./assets",
			IntraOpThreads: 4,
			PreloadVoices:  true,
		},
		TTS: TTSServiceConfig{
			DefaultVoice:   "american_female_bella",
			DefaultSpeed:   1.0,
			TimeoutSeconds: 30,
		},
		Cache: CacheConfig{
			Capacity:   50,
			TTLSeconds: 3600,
		},
		Espeak: EspeakConfig{
			Path: "espeak-ng",
		},
		NATS: NATSConfig{
			TextProcessedSubject:     "text.processed",
			AudioChunkCreatedSubject: "audio.chunk.created",
			QueueGroup:               "kokoro-workers",
			ObjectStoreBackend:       BackendNATS,
			ObjectStoreBucket:        "AUDIO_FILES",
		},
		Redis: RedisConfig{
			KeyPrefix: "kokoro:",
		},
		Paths: PathsConfig{
			BaseLogsDir: filepath.Join(os.TempDir(), "kokoro-service"),
		},
	}
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CacheTTL returns the cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// RequestTimeout returns the HTTP request deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// JobTimeout returns the per-message worker deadline.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.TTS.TimeoutSeconds) * time.Second
}

// RedisObjectTTL returns the expiry applied to uploaded Redis objects; zero
// keeps them forever.
func (c *Config) RedisObjectTTL() time.Duration {
	return time.Duration(c.Redis.ObjectTTLSecs) * time.Second
}

// LoadFile decodes path over the defaults. A missing file yields the
// defaults unchanged.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	err = toml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Load reads .env, the TOML file named by KOKORO_CONFIG (or kokoro.toml),
// applies environment overrides and validates the result.
func Load(log *logger.Logger) (*Config, error) {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to load .env file: %v", err)
	}

	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = DefaultConfigFile
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	err = cfg.ApplyEnv(os.LookupEnv)
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info("Loaded configuration from %s", path)

	return cfg, nil
}

// ApplyEnv overrides fields from the environment through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if value, ok := lookup(EnvPort); ok && value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidPort, EnvPort, value)
		}

		c.Server.Port = port
	}

	overrides := []struct {
		name   string
		target *string
	}{
		{EnvHost, &c.Server.Host},
		{EnvAssetsPath, &c.Assets.Path},
		{EnvNATSURL, &c.NATS.URL},
		{EnvRedisURL, &c.Redis.URL},
		{EnvOnnxLibrary, &c.Assets.OnnxLibraryPath},
		{EnvEspeakPath, &c.Espeak.Path},
	}

	for _, override := range overrides {
		if value, ok := lookup(override.name); ok && value != "" {
			*override.target = value
		}
	}

	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Server.Port)
	}

	if c.Assets.Path == "" {
		return ErrAssetsPathEmpty
	}

	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("%w: got %d", ErrCacheCapacity, c.Cache.Capacity)
	}

	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("%w: got %d", ErrCacheTTL, c.Cache.TTLSeconds)
	}

	if !(c.TTS.DefaultSpeed >= minDefaultSpeed && c.TTS.DefaultSpeed <= maxDefaultSpeed) {
		return fmt.Errorf("%w: got %v", ErrDefaultSpeed, c.TTS.DefaultSpeed)
	}

	switch c.NATS.ObjectStoreBackend {
	case BackendNATS:
	case BackendRedis:
		if c.NATS.URL != "" && c.Redis.URL == "" {
			return ErrRedisURLRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.NATS.ObjectStoreBackend)
	}

	return nil
}
