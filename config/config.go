package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all gateway configuration. Tags use mapstructure for viper
// unmarshalling; every key can also come from the environment.
type Config struct {
	HTTPPort  string `mapstructure:"HTTP_PORT"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	// UpstreamBaseURL is the opaque REST backend everything is proxied to.
	UpstreamBaseURL string `mapstructure:"UPSTREAM_BASE_URL"`

	// RedisURL enables the redis-backed shared storage when non-empty;
	// otherwise the in-memory store is used.
	RedisURL string `mapstructure:"REDIS_URL"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	Session SessionConfig `mapstructure:",squash"`
	Widget  WidgetConfig  `mapstructure:",squash"`
}

// SessionConfig carries the revalidation knobs of the session store. Each
// trigger can be disabled independently.
type SessionConfig struct {
	RevalidateOnFocus   bool `mapstructure:"SESSION_REVALIDATE_ON_FOCUS"`
	RevalidateOnStorage bool `mapstructure:"SESSION_REVALIDATE_ON_STORAGE"`
	RefreshEnabled      bool `mapstructure:"SESSION_REFRESH_ENABLED"`

	// MinSyncInterval throttles focus/visibility revalidation.
	MinSyncInterval time.Duration `mapstructure:"SESSION_MIN_SYNC_INTERVAL"`
	// RefreshInterval is the periodic visible-tab token refresh cadence.
	RefreshInterval time.Duration `mapstructure:"SESSION_REFRESH_INTERVAL"`
	// MaxAgeCheckInterval is the cadence of the logged-at age check.
	MaxAgeCheckInterval time.Duration `mapstructure:"SESSION_MAX_AGE_CHECK_INTERVAL"`
	// MaxLoginAge forces a token refresh (or logout on failure) once the
	// recorded login timestamp is older than this.
	MaxLoginAge time.Duration `mapstructure:"SESSION_MAX_LOGIN_AGE"`

	// RegistryTTL evicts idle browser sessions from the registry.
	RegistryTTL time.Duration `mapstructure:"SESSION_REGISTRY_TTL"`
}

// WidgetConfig describes the embedded support widget vendor.
type WidgetConfig struct {
	Enabled bool `mapstructure:"WIDGET_ENABLED"`
	Debug   bool `mapstructure:"WIDGET_DEBUG"`

	// ScriptURLs are loaded strictly in order; the second never starts
	// before the first resolves.
	ScriptURLs []string `mapstructure:"WIDGET_SCRIPT_URLS"`

	ScriptTimeout  time.Duration `mapstructure:"WIDGET_SCRIPT_TIMEOUT"`
	RetryAttempts  int           `mapstructure:"WIDGET_RETRY_ATTEMPTS"`
	RetryBackoff   time.Duration `mapstructure:"WIDGET_RETRY_BACKOFF"`

	// VendorKeySubstrings match the storage/cookie keys purged on a hard
	// reset. The vendor's markup and key names are not ours to control.
	VendorKeySubstrings []string `mapstructure:"WIDGET_VENDOR_KEY_SUBSTRINGS"`

	// OverlaySelectors cover the vendor's known overlay node variants.
	OverlaySelectors []string `mapstructure:"WIDGET_OVERLAY_SELECTORS"`

	// ClosedSentinel is the marker text the vendor renders into a closed
	// conversation.
	ClosedSentinel string `mapstructure:"WIDGET_CLOSED_SENTINEL"`
}

// Load reads configuration from file, environment variables and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/portal-gateway/")
	v.AddConfigPath("$HOME/.portal-gateway")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults and env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("UPSTREAM_BASE_URL", "http://localhost:9000")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("OTEL_SERVICE_NAME", "portal-gateway")

	v.SetDefault("SESSION_REVALIDATE_ON_FOCUS", true)
	v.SetDefault("SESSION_REVALIDATE_ON_STORAGE", true)
	v.SetDefault("SESSION_REFRESH_ENABLED", true)
	v.SetDefault("SESSION_MIN_SYNC_INTERVAL", 5*time.Minute)
	v.SetDefault("SESSION_REFRESH_INTERVAL", 10*time.Minute)
	v.SetDefault("SESSION_MAX_AGE_CHECK_INTERVAL", time.Minute)
	v.SetDefault("SESSION_MAX_LOGIN_AGE", 30*24*time.Hour)
	v.SetDefault("SESSION_REGISTRY_TTL", 12*time.Hour)

	v.SetDefault("WIDGET_ENABLED", true)
	v.SetDefault("WIDGET_DEBUG", false)
	v.SetDefault("WIDGET_SCRIPT_URLS", []string{})
	v.SetDefault("WIDGET_SCRIPT_TIMEOUT", 7*time.Second)
	v.SetDefault("WIDGET_RETRY_ATTEMPTS", 3)
	v.SetDefault("WIDGET_RETRY_BACKOFF", 800*time.Millisecond)
	v.SetDefault("WIDGET_VENDOR_KEY_SUBSTRINGS", []string{"zenvia", "movidesk"})
	v.SetDefault("WIDGET_OVERLAY_SELECTORS", []string{
		"#md-app-widget",
		".md-chat-widget-container",
		".md-chat-widget-btn-container",
	})
	v.SetDefault("WIDGET_CLOSED_SENTINEL", "Esta conversa foi encerrada")
}
