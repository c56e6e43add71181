package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	API     APIConfig     `mapstructure:"api"`
	SSE     SSEConfig     `mapstructure:"sse"`
	Broker  BrokerConfig  `mapstructure:"broker"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Control ControlConfig `mapstructure:"control"`
}

// ServerConfig holds the local control API configuration
type ServerConfig struct {
	HTTPPort       int      `mapstructure:"http_port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	NodeId         uint16   `mapstructure:"node_id"`
}

// APIConfig holds the chat backend REST configuration
type APIConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Token        string        `mapstructure:"token"`
	Cookie       string        `mapstructure:"cookie"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// TimeZone is the IANA zone of backend timestamps sent without an offset
	TimeZone string `mapstructure:"time_zone"`
}

// Location loads TimeZone
func (c *APIConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.TimeZone)
}

// SSEConfig holds the server-sent event stream configuration
type SSEConfig struct {
	// Path is appended to api.base_url; {userId} is substituted
	Path          string        `mapstructure:"path"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	MaxLineSize   int           `mapstructure:"max_line_size"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// BrokerConfig holds the STOMP topic broker configuration
type BrokerConfig struct {
	URL              string        `mapstructure:"url"`
	Host             string        `mapstructure:"host"`
	Login            string        `mapstructure:"login"`
	Passcode         string        `mapstructure:"passcode"`
	HeartBeat        time.Duration `mapstructure:"heartbeat"`
	TopicPrefix      string        `mapstructure:"topic_prefix"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	WriteChannelSize int           `mapstructure:"write_channel_size"`
}

// SyncConfig holds reconciliation timings
type SyncConfig struct {
	RefreshInterval          time.Duration `mapstructure:"refresh_interval"`
	CloseRefreshDelay        time.Duration `mapstructure:"close_refresh_delay"`
	FirstMessageRefreshDelay time.Duration `mapstructure:"first_message_refresh_delay"`
	ReadGrace                time.Duration `mapstructure:"read_grace"`
	NotifyBuffer             int           `mapstructure:"notify_buffer"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ControlConfig holds control API auth configuration. An empty secret
// leaves the control API unauthenticated.
type ControlConfig struct {
	Secret string `mapstructure:"secret"`
}

// Global config instance
var GlobalConfig *Config

// Load loads configuration from file, then PAWCHAT_* environment overrides
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("pawchat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

// SetDefaults fills zero values
func (cfg *Config) SetDefaults() {
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8088
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Server.NodeId == 0 {
		cfg.Server.NodeId = 1
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 10 * time.Second
	}
	if cfg.API.DialTimeout == 0 {
		cfg.API.DialTimeout = 5 * time.Second
	}
	if cfg.API.TimeZone == "" {
		cfg.API.TimeZone = "UTC"
	}
	if cfg.API.WriteTimeout == 0 {
		cfg.API.WriteTimeout = 10 * time.Second
	}
	if cfg.SSE.Path == "" {
		cfg.SSE.Path = "/sse/subscribe/{userId}"
	}
	if cfg.SSE.DialTimeout == 0 {
		cfg.SSE.DialTimeout = 5 * time.Second
	}
	if cfg.SSE.MaxLineSize == 0 {
		cfg.SSE.MaxLineSize = 1 << 20
	}
	if cfg.SSE.ReconnectWait == 0 {
		cfg.SSE.ReconnectWait = 3 * time.Second
	}
	if cfg.Broker.HeartBeat == 0 {
		cfg.Broker.HeartBeat = 10 * time.Second
	}
	if cfg.Broker.TopicPrefix == "" {
		cfg.Broker.TopicPrefix = "/topic/"
	}
	if !strings.HasSuffix(cfg.Broker.TopicPrefix, "/") {
		cfg.Broker.TopicPrefix += "/"
	}
	if cfg.Broker.HandshakeTimeout == 0 {
		cfg.Broker.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Broker.WriteWait == 0 {
		cfg.Broker.WriteWait = 10 * time.Second
	}
	if cfg.Broker.PongWait == 0 {
		cfg.Broker.PongWait = 60 * time.Second
	}
	if cfg.Broker.PingPeriod == 0 {
		cfg.Broker.PingPeriod = 54 * time.Second
	}
	if cfg.Broker.MaxMessageSize == 0 {
		cfg.Broker.MaxMessageSize = 512 * 1024
	}
	if cfg.Broker.WriteChannelSize == 0 {
		cfg.Broker.WriteChannelSize = 256
	}
	if cfg.Sync.RefreshInterval == 0 {
		cfg.Sync.RefreshInterval = 60 * time.Second
	}
	if cfg.Sync.CloseRefreshDelay == 0 {
		cfg.Sync.CloseRefreshDelay = 300 * time.Millisecond
	}
	if cfg.Sync.FirstMessageRefreshDelay == 0 {
		cfg.Sync.FirstMessageRefreshDelay = 500 * time.Millisecond
	}
	if cfg.Sync.ReadGrace == 0 {
		cfg.Sync.ReadGrace = 5 * time.Second
	}
	if cfg.Sync.NotifyBuffer == 0 {
		cfg.Sync.NotifyBuffer = 64
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "127.0.0.1"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "pawchat:"
	}
	if cfg.Redis.SnapshotTTL == 0 {
		cfg.Redis.SnapshotTTL = 24 * time.Hour
	}
}

// Validate checks settings that have no sensible default
func (cfg *Config) Validate() error {
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if _, err := cfg.API.Location(); err != nil {
		return fmt.Errorf("api.time_zone is invalid: %w", err)
	}
	if !strings.Contains(cfg.SSE.Path, "{userId}") {
		return fmt.Errorf("sse.path must contain {userId}: %s", cfg.SSE.Path)
	}
	return nil
}
