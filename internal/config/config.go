package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// ServerConfig holds settings for the relay process.
type ServerConfig struct {
	WebPort         int
	WebSocketPort   int
	HtdocsDir       string
	DialTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	SendBuffer      int
	LogLevel        slog.Level
	Journal         JournalConfig
	Mirror          MirrorConfig
}

// ClientConfig holds settings for the terminal console.
type ClientConfig struct {
	ServerURL     string
	CommandPrefix rune
}

// JournalConfig captures bridge journal storage. An empty Path disables it.
// Tail is the number of recorded events logged when the relay starts.
type JournalConfig struct {
	Path string
	Tail int
}

// MirrorConfig captures the Redis broadcast tap. An empty Addr disables it.
type MirrorConfig struct {
	Addr    string
	Channel string
}

// Enabled reports whether the journal should be opened.
func (c JournalConfig) Enabled() bool { return strings.TrimSpace(c.Path) != "" }

// Enabled reports whether broadcasts should be mirrored.
func (c MirrorConfig) Enabled() bool { return strings.TrimSpace(c.Addr) != "" }

// LoadServerConfig builds the server configuration from environment variables with sensible defaults.
func LoadServerConfig() ServerConfig {
	return ServerConfig{
		WebPort:         envInt("WSBRIDGE_WEB_PORT", 8080),
		WebSocketPort:   envInt("WSBRIDGE_WS_PORT", 8081),
		HtdocsDir:       envOrDefault("WSBRIDGE_HTDOCS", "./htdocs"),
		DialTimeout:     envDuration("WSBRIDGE_DIAL_TIMEOUT", 10*time.Second),
		WriteTimeout:    envDuration("WSBRIDGE_WRITE_TIMEOUT", 10*time.Second),
		MaxMessageBytes: int64(envInt("WSBRIDGE_MAX_MESSAGE_BYTES", 1<<20)),
		SendBuffer:      envInt("WSBRIDGE_SEND_BUFFER", 256),
		LogLevel:        envLevel("WSBRIDGE_LOG_LEVEL", slog.LevelInfo),
		Journal: JournalConfig{
			Path: envOrDefault("WSBRIDGE_JOURNAL", ""),
			Tail: envInt("WSBRIDGE_JOURNAL_TAIL", 0),
		},
		Mirror: MirrorConfig{
			Addr:    envOrDefault("WSBRIDGE_REDIS_ADDR", ""),
			Channel: envOrDefault("WSBRIDGE_REDIS_CHANNEL", "wsbridge:broadcast"),
		},
	}
}

// ParseServerFlags overlays command line flags onto the environment defaults.
func ParseServerFlags(args []string) (ServerConfig, error) {
	cfg := LoadServerConfig()

	fs := pflag.NewFlagSet("wsbridge", pflag.ContinueOnError)
	fs.IntVar(&cfg.WebPort, "web-port", cfg.WebPort, "port for the static asset server")
	fs.IntVar(&cfg.WebSocketPort, "ws-port", cfg.WebSocketPort, "port for the WebSocket hub")
	fs.StringVarP(&cfg.HtdocsDir, "htdocs", "d", cfg.HtdocsDir, "directory served by the asset server")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "TCP connect timeout for ConnectTCP (0 disables)")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "per-frame TCP write timeout (0 disables)")
	fs.Int64Var(&cfg.MaxMessageBytes, "max-message-bytes", cfg.MaxMessageBytes, "largest accepted WebSocket message")
	fs.IntVar(&cfg.SendBuffer, "send-buffer", cfg.SendBuffer, "queued broadcasts per client before it is dropped")
	fs.StringVar(&cfg.Journal.Path, "journal", cfg.Journal.Path, "SQLite file recording bridge events (empty disables)")
	fs.IntVar(&cfg.Journal.Tail, "journal-tail", cfg.Journal.Tail, "log the N most recent journal events at startup")
	fs.StringVar(&cfg.Mirror.Addr, "redis-addr", cfg.Mirror.Addr, "Redis address receiving a copy of every broadcast (empty disables)")
	fs.StringVar(&cfg.Mirror.Channel, "redis-channel", cfg.Mirror.Channel, "Redis channel for mirrored broadcasts")
	level := fs.String("log-level", cfg.LogLevel.String(), "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(*level)); err != nil {
		return cfg, fmt.Errorf("log-level: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c ServerConfig) validate() error {
	if c.WebPort < 0 || c.WebPort > 65535 {
		return fmt.Errorf("web-port out of range: %d", c.WebPort)
	}
	if c.WebSocketPort < 0 || c.WebSocketPort > 65535 {
		return fmt.Errorf("ws-port out of range: %d", c.WebSocketPort)
	}
	if c.DialTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send-buffer must be positive: %d", c.SendBuffer)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max-message-bytes must be positive: %d", c.MaxMessageBytes)
	}
	if c.Journal.Tail < 0 {
		return fmt.Errorf("journal-tail must not be negative: %d", c.Journal.Tail)
	}
	return nil
}

// LoadClientConfig builds the client configuration from environment variables.
func LoadClientConfig() ClientConfig {
	prefix := envOrDefault("WSBRIDGE_COMMAND_PREFIX", "/")
	runes := []rune(prefix)
	commandPrefix := '/'
	if len(runes) > 0 {
		commandPrefix = runes[0]
	}
	return ClientConfig{
		ServerURL:     envOrDefault("WSBRIDGE_SERVER_URL", "ws://localhost:8081/"),
		CommandPrefix: commandPrefix,
	}
}

// ParseClientFlags overlays command line flags onto the client defaults.
func ParseClientFlags(args []string) (ClientConfig, error) {
	cfg := LoadClientConfig()

	fs := pflag.NewFlagSet("wsbridge-console", pflag.ContinueOnError)
	fs.StringVarP(&cfg.ServerURL, "server", "s", cfg.ServerURL, "WebSocket URL of the relay hub")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func envOrDefault(key, value string) string {
	if env, ok := os.LookupEnv(key); ok {
		return env
	}
	return value
}

func envDuration(key string, def time.Duration) time.Duration {
	if env, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(env); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(key string, def int) int {
	if env, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(env); err == nil {
			return parsed
		}
	}
	return def
}

func envLevel(key string, def slog.Level) slog.Level {
	if env, ok := os.LookupEnv(key); ok {
		var level slog.Level
		if err := level.UnmarshalText([]byte(env)); err == nil {
			return level
		}
	}
	return def
}
