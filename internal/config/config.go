// config.go — Daemon configuration: file, PSAT_* environment and flags,
// merged through viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/brennhill/psat-core/internal/logging"
	"github.com/brennhill/psat-core/internal/state"
)

// EnvPrefix prefixes every environment override: PSAT_LISTEN,
// PSAT_LOG_LEVEL, PSAT_CHROME_CONTROL_URL, ...
const EnvPrefix = "PSAT"

// Keys.
const (
	KeyListen               = "listen"
	KeyPollInterval         = "poll_interval"
	KeyPendingTTL           = "pending_ttl"
	KeyPendingSweepInterval = "pending_sweep_interval"
	KeyPendingMaxPerTab     = "pending_max_per_tab"
	KeyTombstoneLimit       = "tombstone_limit"
	KeyIngestRate           = "ingest_rate"
	KeyIngestBurst          = "ingest_burst"
	KeyCookieDB             = "cookie_db"
	KeySettingsFile         = "settings_file"
	KeyLogLevel             = "log.level"
	KeyLogDevelopment       = "log.development"
	KeyLogToFile            = "log.to_file"
	KeyChromeControlURL     = "chrome.control_url"
	KeyChromeHeadless       = "chrome.headless"
)

// Config is the resolved daemon configuration.
type Config struct {
	Listen               string        `mapstructure:"listen"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	PendingTTL           time.Duration `mapstructure:"pending_ttl"`
	PendingSweepInterval time.Duration `mapstructure:"pending_sweep_interval"`
	PendingMaxPerTab     int           `mapstructure:"pending_max_per_tab"`
	TombstoneLimit       int           `mapstructure:"tombstone_limit"`
	IngestRate           float64       `mapstructure:"ingest_rate"`
	IngestBurst          int           `mapstructure:"ingest_burst"`
	CookieDB             string        `mapstructure:"cookie_db"`
	SettingsFile         string        `mapstructure:"settings_file"`

	Log    LogConfig    `mapstructure:"log"`
	Chrome ChromeConfig `mapstructure:"chrome"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	ToFile      bool   `mapstructure:"to_file"` // also write $STATE_DIR/logs/psat.jsonl
}

// ChromeConfig selects the browser for headless rich instrumentation.
type ChromeConfig struct {
	ControlURL string `mapstructure:"control_url"`
	Headless   bool   `mapstructure:"headless"`
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyListen, "127.0.0.1:7891")
	v.SetDefault(KeyPollInterval, time.Second)
	v.SetDefault(KeyPendingTTL, 30*time.Second)
	v.SetDefault(KeyPendingSweepInterval, 5*time.Second)
	v.SetDefault(KeyPendingMaxPerTab, 2048)
	v.SetDefault(KeyTombstoneLimit, 1024)
	v.SetDefault(KeyIngestRate, 2000.0)
	v.SetDefault(KeyIngestBurst, 4000)
	v.SetDefault(KeyCookieDB, "")
	v.SetDefault(KeySettingsFile, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogDevelopment, false)
	v.SetDefault(KeyLogToFile, false)
	v.SetDefault(KeyChromeControlURL, "")
	v.SetDefault(KeyChromeHeadless, true)
}

// Load reads configuration into v and decodes it. An explicit file must
// exist; without one the state directory's psat.yaml is used when present.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := file != ""
	if !explicit {
		def, err := state.ConfigFile()
		if err != nil {
			return Config{}, fmt.Errorf("config: resolve config file: %w", err)
		}
		file = def
	}
	v.SetConfigFile(file)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)
		if explicit || !missing {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the daemon cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Listen == "":
		return errors.New("config: listen address is empty")
	case c.PollInterval <= 0:
		return fmt.Errorf("config: poll_interval must be positive, got %s", c.PollInterval)
	case c.PendingTTL <= 0:
		return fmt.Errorf("config: pending_ttl must be positive, got %s", c.PendingTTL)
	case c.PendingSweepInterval <= 0:
		return fmt.Errorf("config: pending_sweep_interval must be positive, got %s", c.PendingSweepInterval)
	case c.PendingMaxPerTab <= 0:
		return fmt.Errorf("config: pending_max_per_tab must be positive, got %d", c.PendingMaxPerTab)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Logging returns the logger configuration, creating the logs directory
// when file output is on.
func (c Config) Logging() (logging.Config, error) {
	lc := logging.Config{Level: c.Log.Level, Development: c.Log.Development, OutputPaths: []string{"stderr"}}
	if !c.Log.ToFile {
		return lc, nil
	}
	dir, err := state.LogsDir()
	if err != nil {
		return lc, fmt.Errorf("config: logs dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return lc, fmt.Errorf("config: create logs dir: %w", err)
	}
	file, err := state.DefaultLogFile()
	if err != nil {
		return lc, fmt.Errorf("config: log file: %w", err)
	}
	lc.OutputPaths = append(lc.OutputPaths, file)
	return lc, nil
}
