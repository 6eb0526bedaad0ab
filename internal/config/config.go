// Package config provides YAML and environment configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/omochice/bsc-netlayer/internal/transport/ws"
)

// EnvPrefix prefixes every environment override, e.g. BSC_LOG_LEVEL=debug.
const EnvPrefix = "BSC"

// Config is the root application configuration.
type Config struct {
	Log         LogConfig       `mapstructure:"log"`
	Transport   TransportConfig `mapstructure:"transport"`
	TLS         TLSConfig       `mapstructure:"tls"`
	Connections []string        `mapstructure:"connections"`
	Client      ClientConfig    `mapstructure:"client"`
	Status      StatusConfig    `mapstructure:"status"`
	Server      ServerConfig    `mapstructure:"server"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TransportConfig tunes connection establishment.
type TransportConfig struct {
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	CloseTimeout     time.Duration `mapstructure:"close_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	KeepAlive        bool          `mapstructure:"keep_alive"`
	Subprotocol      string        `mapstructure:"subprotocol"`
	UserAgent        string        `mapstructure:"user_agent"`
	VerifyPeer       bool          `mapstructure:"verify_peer"`
	CAFile           string        `mapstructure:"ca_file"`
}

// TLSConfig names the client certificate used for wss connections.
type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// ClientConfig drives the demo client.
type ClientConfig struct {
	Message         string          `mapstructure:"message"`
	RecvBuffer      int             `mapstructure:"recv_buffer"`
	PollInterval    time.Duration   `mapstructure:"poll_interval"`
	PublishInterval time.Duration   `mapstructure:"publish_interval"`
	Codec           string          `mapstructure:"codec"`
	Reconnect       ReconnectConfig `mapstructure:"reconnect"`
}

// ReconnectConfig controls how the demo client re-establishes connections.
type ReconnectConfig struct {
	Attempts uint          `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

// StatusConfig controls the HTTP status API.
type StatusConfig struct {
	Listen string `mapstructure:"listen"`
}

// ServerConfig drives the test peer server.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	CertFile     string        `mapstructure:"cert_file"`
	KeyFile      string        `mapstructure:"key_file"`
	AllowPlain   bool          `mapstructure:"allow_plain"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/bsc-netlayer.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Transport: TransportConfig{
			ConnectTimeout:   30 * time.Second,
			HandshakeTimeout: 30 * time.Second,
			CloseTimeout:     5 * time.Second,
			Subprotocol:      "hub.bsc.bacnet.org",
			UserAgent:        "bsc-netlayer websocket-client",
		},
		Connections: []string{"ws://localhost:8080/"},
		Client: ClientConfig{
			Message:         "testing",
			RecvBuffer:      1024,
			PollInterval:    10 * time.Millisecond,
			PublishInterval: 0,
			Codec:           "cbor",
			Reconnect: ReconnectConfig{
				Attempts: 5,
				Delay:    time.Second,
				MaxDelay: 30 * time.Second,
			},
		},
		Status: StatusConfig{
			Listen: "",
		},
		Server: ServerConfig{
			Listen:       ":8080",
			TickInterval: time.Second,
		},
	}
}

// Load reads configuration from path (if non-empty), otherwise it searches
// common locations for bsc-netlayer.yaml. Environment variables override
// file values; `.` and `-` in keys become `_`.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path == "" {
		if envPath := os.Getenv(EnvPrefix + "_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("bsc-netlayer")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".bsc-netlayer"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WorkerConfig converts the transport section into a worker configuration.
func (c *Config) WorkerConfig() ws.Config {
	return ws.Config{
		ConnectTimeout:   c.Transport.ConnectTimeout,
		HandshakeTimeout: c.Transport.HandshakeTimeout,
		CloseTimeout:     c.Transport.CloseTimeout,
		IdleTimeout:      c.Transport.IdleTimeout,
		KeepAlive:        c.Transport.KeepAlive,
		Subprotocol:      c.Transport.Subprotocol,
		UserAgent:        c.Transport.UserAgent,
	}
}

// TLSOptions returns the key material for secure connections.
func (c *Config) TLSOptions() ws.TLSOptions {
	return ws.TLSOptions{
		CertFile:   c.TLS.CertFile,
		KeyFile:    c.TLS.KeyFile,
		CAFile:     c.Transport.CAFile,
		VerifyPeer: c.Transport.VerifyPeer,
	}
}

// setDefaults seeds viper so env-only configs work.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	v.SetDefault("transport.connect_timeout", cfg.Transport.ConnectTimeout)
	v.SetDefault("transport.handshake_timeout", cfg.Transport.HandshakeTimeout)
	v.SetDefault("transport.close_timeout", cfg.Transport.CloseTimeout)
	v.SetDefault("transport.idle_timeout", cfg.Transport.IdleTimeout)
	v.SetDefault("transport.keep_alive", cfg.Transport.KeepAlive)
	v.SetDefault("transport.subprotocol", cfg.Transport.Subprotocol)
	v.SetDefault("transport.user_agent", cfg.Transport.UserAgent)
	v.SetDefault("transport.verify_peer", cfg.Transport.VerifyPeer)
	v.SetDefault("transport.ca_file", cfg.Transport.CAFile)

	v.SetDefault("tls.cert_file", cfg.TLS.CertFile)
	v.SetDefault("tls.key_file", cfg.TLS.KeyFile)

	v.SetDefault("connections", cfg.Connections)

	v.SetDefault("client.message", cfg.Client.Message)
	v.SetDefault("client.recv_buffer", cfg.Client.RecvBuffer)
	v.SetDefault("client.poll_interval", cfg.Client.PollInterval)
	v.SetDefault("client.publish_interval", cfg.Client.PublishInterval)
	v.SetDefault("client.codec", cfg.Client.Codec)
	v.SetDefault("client.reconnect.attempts", cfg.Client.Reconnect.Attempts)
	v.SetDefault("client.reconnect.delay", cfg.Client.Reconnect.Delay)
	v.SetDefault("client.reconnect.max_delay", cfg.Client.Reconnect.MaxDelay)

	v.SetDefault("status.listen", cfg.Status.Listen)

	v.SetDefault("server.listen", cfg.Server.Listen)
	v.SetDefault("server.tick_interval", cfg.Server.TickInterval)
	v.SetDefault("server.cert_file", cfg.Server.CertFile)
	v.SetDefault("server.key_file", cfg.Server.KeyFile)
	v.SetDefault("server.allow_plain", cfg.Server.AllowPlain)
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return errors.New("tls.cert_file and tls.key_file must both be specified")
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return errors.New("server.cert_file and server.key_file must both be specified")
	}

	if c.Client.RecvBuffer <= 0 {
		return fmt.Errorf("invalid client.recv_buffer: %d", c.Client.RecvBuffer)
	}
	if c.Client.PollInterval <= 0 {
		return fmt.Errorf("invalid client.poll_interval: %s", c.Client.PollInterval)
	}
	switch strings.ToLower(c.Client.Codec) {
	case "cbor", "proto", "protobuf":
	default:
		return fmt.Errorf("invalid client.codec: %q", c.Client.Codec)
	}
	return nil
}
