package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all service settings.
const envPrefix = "COMMUTEMAP"

// Sentinel errors returned (wrapped) by Load.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigParseError   = errors.New("config file could not be parsed")
	ErrConfigValidation   = errors.New("config validation failed")
)

// newViper builds a pre-configured Viper instance: YAML file type,
// COMMUTEMAP_ env prefix, automatic env binding and a key replacer that maps
// "." to "_" so that "upstream.base_url" resolves to COMMUTEMAP_UPSTREAM_BASE_URL.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	registerDefaults(v)
	return v
}

// registerDefaults makes every key known to viper.  Unmarshal only consults
// the environment for keys it already knows about.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.mode", DefaultServerMode)
	v.SetDefault("server.read_timeout", DefaultServerReadTimeout)
	v.SetDefault("server.write_timeout", DefaultServerWriteTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultServerShutdownTimeout)
	v.SetDefault("server.max_body_size", DefaultServerMaxBodySize)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("upstream.base_url", DefaultUpstreamBaseURL)
	v.SetDefault("upstream.timeout", DefaultUpstreamTimeout)
	v.SetDefault("upstream.user_agent", DefaultUpstreamUserAgent)

	v.SetDefault("overlay.palette", DefaultPalette)
	v.SetDefault("overlay.spread_radius_meters", DefaultSpreadRadiusMeters)
	v.SetDefault("overlay.hull_visible", false)

	v.SetDefault("session.idle_ttl", DefaultSessionIdleTTL)
	v.SetDefault("session.sweep_interval", DefaultSessionSweepInterval)
	v.SetDefault("session.max_sessions", DefaultSessionMax)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", DefaultRedisPoolSize)
	v.SetDefault("redis.route_ttl", DefaultRedisRouteTTL)
	v.SetDefault("redis.key_prefix", DefaultRedisKeyPrefix)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", DefaultMetricsNamespace)
	v.SetDefault("metrics.path", DefaultMetricsPath)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", DefaultTracingServiceName)
	v.SetDefault("tracing.exporter", DefaultTracingExporter)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", DefaultTracingSampleRatio)
}

// Load reads the YAML file at configPath, merges any COMMUTEMAP_* environment
// variable overrides, applies defaults for unset fields, and validates the
// result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %w: %q: %v", ErrConfigFileNotFound, configPath, err)
		}
		return nil, fmt.Errorf("config: %w: %q: %v", ErrConfigParseError, configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from COMMUTEMAP_* environment
// variables and defaults, with no config file required.
//
//	COMMUTEMAP_<SECTION>_<FIELD>   e.g.  COMMUTEMAP_UPSTREAM_BASE_URL
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// LoadOrEnv calls Load when configPath is set and LoadFromEnv otherwise.
func LoadOrEnv(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	return Load(configPath)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w: %v", ErrConfigParseError, err)
	}

	// A comma-separated env value arrives as a single element.
	cfg.Overlay.Palette = splitList(cfg.Overlay.Palette)
	cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins)

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}

	return cfg, nil
}

func splitList(in []string) []string {
	if len(in) != 1 || !strings.Contains(in[0], ",") {
		return in
	}
	parts := strings.Split(in[0], ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Watcher delivers re-parsed configurations after the file changes on disk.
type Watcher struct {
	mu      sync.Mutex
	v       *viper.Viper
	onError func(error)
	last    *Config
}

// Current returns the most recent valid configuration seen by the watcher.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Watch monitors configPath and invokes onChange with the newly parsed Config
// whenever the file is modified.  Only settings that are safe to change at
// runtime (log level, hull default) should be applied by the callback.
// Invalid intermediate files are reported to onError (if non-nil) and do not
// trigger onChange.
func Watch(configPath string, onChange func(*Config), onError func(error)) (*Watcher, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: %w: %q: %v", ErrConfigParseError, configPath, err)
	}

	initial, err := unmarshalAndFinalize(v)
	if err != nil {
		return nil, err
	}

	w := &Watcher{v: v, onError: onError, last: initial}
	v.OnConfigChange(func(_ fsnotify.Event) {
		w.mu.Lock()
		cfg, err := unmarshalAndFinalize(w.v)
		if err == nil {
			w.last = cfg
		}
		w.mu.Unlock()
		if err != nil {
			if w.onError != nil {
				w.onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return w, nil
}

// MustLoad is a convenience wrapper around Load that panics on any error.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
