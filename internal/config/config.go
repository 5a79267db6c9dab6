package config

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr   = "127.0.0.1:8095"
	defaultPort         = 8095
	defaultDBPath       = "demil.db"
	defaultTickInterval = 16 * time.Millisecond
	defaultBacklog      = 64

	envListenAddr      = "DEMIL_LISTEN_ADDR"
	envDBPath          = "DEMIL_DB_PATH"
	envLogLevel        = "DEMIL_LOG_LEVEL"
	envWorkshopDir     = "DEMIL_WORKSHOP_DIR"
	envTickInterval    = "DEMIL_TICK_INTERVAL"
	envRateLimit       = "DEMIL_RATE_LIMIT"
	envRateBurst       = "DEMIL_RATE_BURST"
	envBacklog         = "DEMIL_BACKLOG"
	envIgnoredSteamIDs = "DEMIL_IGNORED_STEAM_IDS"
)

// Config holds application configuration.
type Config struct {
	ListenAddr string     `yaml:"listen_addr"`
	DBPath     string     `yaml:"db_path"`
	LogLevel   slog.Level `yaml:"-"`
	// WorkshopDir is the workshop content directory. Empty means discover it.
	WorkshopDir  string        `yaml:"workshop_dir"`
	TickInterval time.Duration `yaml:"tick_interval"`
	// RateLimit is the number of commands admitted per second. Zero disables
	// the limiter.
	RateLimit       float64  `yaml:"rate_limit"`
	RateBurst       int      `yaml:"rate_burst"`
	Backlog         int      `yaml:"backlog"`
	IgnoredSteamIDs []string `yaml:"ignored_steam_ids"`

	Host HostConfig `yaml:"host"`
}

// HostConfig configures the simulated host.
type HostConfig struct {
	Phase               string        `yaml:"phase"`
	MaxModules          int           `yaml:"max_modules"`
	MaxFrontFaceModules int           `yaml:"max_front_face_modules"`
	MultipleBombs       bool          `yaml:"multiple_bombs"`
	MaxBombs            int           `yaml:"max_bombs"`
	Modules             []string      `yaml:"modules"`
	Version             string        `yaml:"version"`
	HostVersion         string        `yaml:"host_version"`
	RunFrames           int           `yaml:"run_frames"`
	CommitDelay         time.Duration `yaml:"commit_delay"`
}

type fileConfig struct {
	Config   `yaml:",inline"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		ListenAddr:   defaultListenAddr,
		DBPath:       defaultDBPath,
		LogLevel:     slog.LevelInfo,
		TickInterval: defaultTickInterval,
		Backlog:      defaultBacklog,
		Host: HostConfig{
			Phase:               "setup",
			MaxModules:          11,
			MaxFrontFaceModules: 5,
			MaxBombs:            1,
			Version:             "1.0.0",
			RunFrames:           600,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and DEMIL_* environment variables, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		fc := fileConfig{Config: cfg}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg = fc.Config
		if fc.LogLevel != "" {
			cfg.LogLevel = parseLogLevel(fc.LogLevel)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envWorkshopDir); v != "" {
		cfg.WorkshopDir = v
	}
	if v := os.Getenv(envTickInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envTickInterval, err)
		}
		cfg.TickInterval = d
	}
	if v := os.Getenv(envRateLimit); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", envRateLimit, err)
		}
		cfg.RateLimit = f
	}
	if v := os.Getenv(envRateBurst); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envRateBurst, err)
		}
		cfg.RateBurst = n
	}
	if v := os.Getenv(envBacklog); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envBacklog, err)
		}
		cfg.Backlog = n
	}
	if v := os.Getenv(envIgnoredSteamIDs); v != "" {
		cfg.IgnoredSteamIDs = nil
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.IgnoredSteamIDs = append(cfg.IgnoredSteamIDs, id)
			}
		}
	}
	return nil
}

func (c Config) validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	if c.Backlog <= 0 {
		return fmt.Errorf("backlog must be positive, got %d", c.Backlog)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %g", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("rate burst must be positive when rate limit is set, got %d", c.RateBurst)
	}
	return nil
}

// Port returns the port of ListenAddr, used in generated command URLs.
func (c Config) Port() int {
	_, port, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return defaultPort
	}
	n, err := strconv.Atoi(port)
	if err != nil || n == 0 {
		return defaultPort
	}
	return n
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
