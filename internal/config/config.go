package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Default configuration values (local development)
const (
	DefaultRelayURL     = "ws://localhost:8080/ws"
	DefaultDirectoryURL = "http://localhost:8080/api"
	DefaultSTUN         = "stun:stun.l.google.com:19302"
	DefaultMaxFileSize  = 256 * 1024 * 1024
	DefaultDotEnv       = ".env"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the client configuration.
type Config struct {
	// RelayURL selects the signaling relay. ws:// and wss:// use the websocket
	// relay, mqtt://, tcp:// and ssl:// use an MQTT broker.
	RelayURL string `env:"GHOSTLINK_RELAY_URL" env-default:"ws://localhost:8080/ws"`

	// DirectoryURL selects the session directory backend.
	DirectoryURL string `env:"GHOSTLINK_DIRECTORY_URL" env-default:"http://localhost:8080/api"`

	// ICE servers for WebRTC
	STUNServer string `env:"STUN_SERVER" env-default:"stun:stun.l.google.com:19302"`
	TURNServer string `env:"TURN_SERVER"`
	TURNUser   string `env:"TURN_USERNAME"`
	TURNPass   string `env:"TURN_PASSWORD"`
	ForceRelay bool   `env:"GHOSTLINK_FORCE_RELAY"`

	MaxFileSize int64 `env:"GHOSTLINK_MAX_FILE_SIZE" env-default:"268435456"`
}

// Options for loading config with CLI flag overrides
type Options struct {
	RelayURL     string
	DirectoryURL string
	STUNServer   string
	TURNServer   string
	TURNUser     string
	TURNPass     string
	ForceRelay   bool

	// EnvFile is loaded into the environment before reading it. Missing files are ignored.
	EnvFile string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables (optionally seeded from a .env file)
// 3. Struct tag defaults - lowest priority
func Load(opts Options) (*Config, error) {
	loadDotEnv(opts.EnvFile)

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	override(&cfg.RelayURL, opts.RelayURL)
	override(&cfg.DirectoryURL, opts.DirectoryURL)
	override(&cfg.STUNServer, opts.STUNServer)
	override(&cfg.TURNServer, opts.TURNServer)
	override(&cfg.TURNUser, opts.TURNUser)
	override(&cfg.TURNPass, opts.TURNPass)
	if opts.ForceRelay {
		cfg.ForceRelay = true
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for name, raw := range map[string]string{"relay url": c.RelayURL, "directory url": c.DirectoryURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("%w: %s %q", ErrInvalidConfig, name, raw)
		}
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("%w: max file size must be positive", ErrInvalidConfig)
	}
	return nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turn:"), "turns:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// ServerConfig holds the relay server configuration.
type ServerConfig struct {
	Addr           string   `yaml:"addr" env:"RELAY_ADDR" env-default:":8080"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-separator:"," env-default:"*"`

	// DirectoryURL backs the /api/rooms endpoints. Empty disables them.
	DirectoryURL string `yaml:"directory_url" env:"RELAY_DIRECTORY_URL" env-default:"memory://"`
}

// ServerOptions carries relay flag overrides.
type ServerOptions struct {
	ConfigPath   string
	Addr         string
	DirectoryURL string
	NoDirectory  bool
	EnvFile      string
}

// LoadServer reads the relay configuration from a YAML file when one is given,
// otherwise from the environment. Flags win over both.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	loadDotEnv(opts.EnvFile)

	var cfg ServerConfig
	var err error
	if opts.ConfigPath != "" {
		err = cleanenv.ReadConfig(opts.ConfigPath, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("read relay config: %w", err)
	}

	override(&cfg.Addr, opts.Addr)
	override(&cfg.DirectoryURL, opts.DirectoryURL)
	if opts.NoDirectory {
		cfg.DirectoryURL = ""
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: relay address is empty", ErrInvalidConfig)
	}
	return &cfg, nil
}

func loadDotEnv(path string) {
	if path == "" {
		path = DefaultDotEnv
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	// Existing environment variables take precedence over the file.
	_ = godotenv.Load(path)
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
