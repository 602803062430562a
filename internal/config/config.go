package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the relay.
type Config struct {
	App        AppConfig           `mapstructure:"app"`
	HTTP       HTTPConfig          `mapstructure:"http"`
	Provider   ProviderCredentials `mapstructure:"provider"`
	CallBridge CallBridgeConfig    `mapstructure:"call_bridge"`
	Redis      RedisConfig         `mapstructure:"redis"`
	Dedup      DedupConfig         `mapstructure:"dedup"`
	Kafka      KafkaConfig         `mapstructure:"kafka"`
	Telemetry  TelemetryConfig     `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowOrigins    string        `mapstructure:"allow_origins"`
}

// ProviderCredentials are the communications provider settings. They are read
// once at startup and never change afterwards.
type ProviderCredentials struct {
	AccountID  string `mapstructure:"account_id"`
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	FromNumber string `mapstructure:"from_number"`
}

// Missing lists the environment variables whose values are absent.
func (p ProviderCredentials) Missing() []string {
	var missing []string
	if strings.TrimSpace(p.AccountID) == "" {
		missing = append(missing, EnvAccountID)
	}
	if strings.TrimSpace(p.APIKey) == "" {
		missing = append(missing, EnvAPIKey)
	}
	if strings.TrimSpace(p.APISecret) == "" {
		missing = append(missing, EnvAPISecret)
	}
	if strings.TrimSpace(p.FromNumber) == "" {
		missing = append(missing, EnvFromNumber)
	}
	return missing
}

// Complete reports whether every credential field is present.
func (p ProviderCredentials) Complete() bool {
	return len(p.Missing()) == 0
}

type CallBridgeConfig struct {
	// ProviderName selects the provider backend: "twilio" or "mock".
	ProviderName   string        `mapstructure:"provider_name"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Announcement   string        `mapstructure:"announcement"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// DedupConfig controls the Idempotency-Key guard. It only runs when Redis is configured.
type DedupConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	ClientID   string   `mapstructure:"client_id"`
	EventTopic string   `mapstructure:"event_topic"`
}

type TelemetryConfig struct {
	Endpoint       string  `mapstructure:"endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
}

// Provider credential environment variables. They are bound without the RELAY_ prefix.
const (
	EnvAccountID  = "PROVIDER_ACCOUNT_ID"
	EnvAPIKey     = "PROVIDER_API_KEY"
	EnvAPISecret  = "PROVIDER_API_SECRET"
	EnvFromNumber = "PROVIDER_FROM_NUMBER"
)

// DefaultAnnouncement is the TwiML spoken to the callee.
const DefaultAnnouncement = "<Response><Say>Emergency Alert. This is a simulation call.</Say></Response>"

// Load reads configuration from an optional file and environment variables.
// A missing file is not an error: the relay is expected to run from env alone.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(NewEnvReplacer())
	v.AutomaticEnv()

	for key, env := range map[string]string{
		"provider.account_id":  EnvAccountID,
		"provider.api_key":     EnvAPIKey,
		"provider.api_secret":  EnvAPISecret,
		"provider.from_number": EnvFromNumber,
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "emergency-call-relay")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.version", "dev")

	v.SetDefault("http.port", 3000)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.allow_origins", "*")

	v.SetDefault("provider.account_id", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.api_secret", "")
	v.SetDefault("provider.from_number", "")

	v.SetDefault("call_bridge.provider_name", "twilio")
	v.SetDefault("call_bridge.request_timeout", 10*time.Second)
	v.SetDefault("call_bridge.announcement", DefaultAnnouncement)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 2*time.Second)
	v.SetDefault("redis.read_timeout", time.Second)
	v.SetDefault("redis.write_timeout", time.Second)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 0)
	v.SetDefault("redis.max_retries", 1)

	v.SetDefault("dedup.enabled", false)
	v.SetDefault("dedup.ttl", 2*time.Minute)
	v.SetDefault("dedup.key_prefix", "relay:call:idem")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "emergency-call-relay")
	v.SetDefault("kafka.event_topic", "relay.call-events")

	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "emergency-call-relay")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.tracing_enabled", false)
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}
