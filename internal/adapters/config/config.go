package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "KALKO_EDGE"

// ServerConfig holds server-related configurations.
// Note: Fields should be exported (start with uppercase) to be unmarshalled by Viper.
type ServerConfig struct {
	HTTPPort int `mapstructure:"http_port"`
}

// BackendConfig holds the Kalko backend API connection settings.
type BackendConfig struct {
	// BaseURL is the backend root; REST paths are joined under "/v1".
	BaseURL string `mapstructure:"base_url"`
	// WebsocketURL is the endpoint the recalculation channel dials. When empty
	// it is derived from BaseURL by swapping the scheme to ws(s) and appending /ws.
	WebsocketURL string `mapstructure:"websocket_url"`
	// WebhookForwardPath is the backend path payment-provider callbacks are relayed to.
	WebhookForwardPath    string `mapstructure:"webhook_forward_path"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// RedisConfig holds Redis-related configurations.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"` // Optional
	DB       int    `mapstructure:"db"`       // Optional
}

// LogConfig holds logging-related configurations.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig holds authentication-related configurations.
type AuthConfig struct {
	// IdentityUserInfoURL is the identity provider endpoint used to validate
	// bearer tokens. Should primarily come from ENV.
	IdentityUserInfoURL string `mapstructure:"identity_userinfo_url"`
	// DevFallbackToken is accepted as-is when the identity provider is not
	// configured, for local development only.
	DevFallbackToken string `mapstructure:"dev_fallback_token"`
	// ServiceToken authenticates the upstream recalculation channel handshake
	// when no user session is driving the connection.
	ServiceToken         string `mapstructure:"service_token"`
	TokenCacheTTLSeconds int    `mapstructure:"token_cache_ttl_seconds"`
	// TestModeBypass disables route protection entirely. Test environments only.
	TestModeBypass bool   `mapstructure:"test_mode_bypass"`
	SignInPath     string `mapstructure:"sign_in_path"`
}

// CacheConfig holds the per-store TTL and bound settings.
type CacheConfig struct {
	ListTTLSeconds      int `mapstructure:"list_ttl_seconds"`      // list/detail resources, default 120
	AggregateTTLSeconds int `mapstructure:"aggregate_ttl_seconds"` // dashboard/settings resources, default 300
	MaxEntriesPerStore  int `mapstructure:"max_entries_per_store"` // bound on distinct query signatures
}

// ChannelConfig holds the recalculation channel connection policy.
type ChannelConfig struct {
	MaxReconnectAttempts        int `mapstructure:"max_reconnect_attempts"`
	ReconnectInitialDelayMs     int `mapstructure:"reconnect_initial_delay_ms"`
	ReconnectMaxDelayMs         int `mapstructure:"reconnect_max_delay_ms"`
	ConnectTimeoutSeconds       int `mapstructure:"connect_timeout_seconds"`
	PollFallbackIntervalSeconds int `mapstructure:"poll_fallback_interval_seconds"`
}

// PublicConfig is the small set of non-secret values exposed verbatim by the
// runtime config endpoint so deployments can inject them without a rebuild.
type PublicConfig struct {
	APIBaseURL           string `mapstructure:"api_base_url" json:"apiBaseUrl"`
	StripePublishableKey string `mapstructure:"stripe_publishable_key" json:"stripePublishableKey"`
	IdentityClientID     string `mapstructure:"identity_client_id" json:"identityClientId"`
	IdentityDomain       string `mapstructure:"identity_domain" json:"identityDomain"`
}

// AppConfig holds application-specific configurations.
type AppConfig struct {
	ServiceName                     string `mapstructure:"service_name"`
	Version                         string `mapstructure:"version"`
	ShutdownTimeoutSeconds          int    `mapstructure:"shutdown_timeout_seconds"`
	PingIntervalSeconds             int    `mapstructure:"ping_interval_seconds"`
	PongWaitSeconds                 int    `mapstructure:"pong_wait_seconds"`
	WriteTimeoutSeconds             int    `mapstructure:"write_timeout_seconds"`
	WebsocketMessageBufferSize      int    `mapstructure:"websocket_message_buffer_size"`
	WebsocketBackpressureDropPolicy string `mapstructure:"websocket_backpressure_drop_policy"`
}

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Log     LogConfig     `mapstructure:"log"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Channel ChannelConfig `mapstructure:"channel"`
	Public  PublicConfig  `mapstructure:"public"`
	App     AppConfig     `mapstructure:"app"`
}

// Provider defines an interface for accessing application configuration.
// This allows for easy mocking in tests and decouples the app from Viper.
type Provider interface {
	Get() *Config
}

// viperProvider implements the Provider interface using Viper.
type viperProvider struct {
	config atomic.Pointer[Config]
	viper  *viper.Viper
	logger *zap.Logger // Using zap.Logger directly for config internal logging, not domain.Logger to avoid circular deps
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("app.service_name", "kalko-edge-service")
	v.SetDefault("app.shutdown_timeout_seconds", 30)
	v.SetDefault("app.ping_interval_seconds", 20)
	v.SetDefault("app.pong_wait_seconds", 60)
	v.SetDefault("app.write_timeout_seconds", 10)
	v.SetDefault("app.websocket_message_buffer_size", 100)
	v.SetDefault("app.websocket_backpressure_drop_policy", "drop_oldest")
	v.SetDefault("backend.request_timeout_seconds", 30)
	v.SetDefault("backend.webhook_forward_path", "/v1/billing/webhook")
	v.SetDefault("auth.token_cache_ttl_seconds", 300)
	v.SetDefault("auth.sign_in_path", "/sign-in")
	v.SetDefault("cache.list_ttl_seconds", 120)
	v.SetDefault("cache.aggregate_ttl_seconds", 300)
	v.SetDefault("cache.max_entries_per_store", 256)
	v.SetDefault("channel.max_reconnect_attempts", 5)
	v.SetDefault("channel.reconnect_initial_delay_ms", 1000)
	v.SetDefault("channel.reconnect_max_delay_ms", 5000)
	v.SetDefault("channel.connect_timeout_seconds", 20)
	v.SetDefault("channel.poll_fallback_interval_seconds", 30)
}

// NewViperProvider creates and initializes a new configuration provider using Viper.
// It loads configuration from file and environment variables, and sets up hot-reloading
// on SIGHUP. A basic logger (e.g., zap.NewProduction()) should be passed for internal
// logging during setup. appCtx is the application lifecycle context used for graceful
// shutdown of background tasks.
func NewViperProvider(appCtx context.Context, logger *zap.Logger) (Provider, error) {
	v := viper.New()

	setDefaults(v)

	configName := os.Getenv("VIPER_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if path := os.Getenv("VIPER_CONFIG_PATH"); path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".") // Also look in current directory for local dev

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")) // e.g., server.http_port becomes SERVER_HTTP_PORT

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fileFound = false
			logger.Warn("Config file not found; relying on defaults and environment variables", zap.Error(err))
		} else {
			logger.Error("Failed to read config file", zap.Error(err))
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		logger.Error("Failed to unmarshal config", zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	p := &viperProvider{
		viper:  v,
		logger: logger,
	}
	p.config.Store(cfg)

	// Reload automatically when the config file itself changes on disk.
	// Watching is only possible when a file was actually located.
	if fileFound {
		v.OnConfigChange(func(e fsnotify.Event) {
			p.logger.Info("Config file changed, reloading", zap.String("file", e.Name), zap.String("op", e.Op.String()))
			p.reload()
		})
		v.WatchConfig()
	}

	// Set up SIGHUP for hot-reloading configuration
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in SIGHUP handler goroutine",
					zap.String("goroutine_name", "SIGHUPConfigReloader"),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		for {
			select {
			case <-appCtx.Done():
				signal.Stop(sigChan)
				p.logger.Info("Stopping SIGHUP config reloader")
				return
			case <-sigChan:
				p.logger.Info("SIGHUP received, reloading configuration")
				p.reload()
			}
		}
	}()

	return p, nil
}

func (p *viperProvider) reload() {
	if err := p.viper.ReadInConfig(); err != nil {
		p.logger.Error("Config reload: failed to re-read config file, keeping previous configuration", zap.Error(err))
		return
	}
	fresh := &Config{}
	if err := p.viper.Unmarshal(fresh); err != nil {
		p.logger.Error("Config reload: failed to unmarshal, keeping previous configuration", zap.Error(err))
		return
	}
	p.config.Store(fresh)
	p.logger.Info("Configuration reloaded")
}

// Get returns the current configuration snapshot.
func (p *viperProvider) Get() *Config {
	return p.config.Load()
}

// Static wraps a fixed Config in a Provider, primarily for tests.
type Static struct {
	Config *Config
}

// Get implements Provider.
func (s *Static) Get() *Config {
	return s.Config
}
