// Package config loads service settings from defaults, an optional YAML file,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the service configuration.
type Config struct {
	Server  Server  `yaml:"server"`
	Log     Log     `yaml:"log"`
	Capture Capture `yaml:"capture"`
	Redis   Redis   `yaml:"redis"`
	Minio   Minio   `yaml:"minio"`

	// DataDir holds one directory per job under jobs/.
	DataDir string `yaml:"data_dir"`
	// Env is the deployment environment; "production" disables console logs.
	Env string `yaml:"env"`
}

// Server configures the HTTP listener.
type Server struct {
	Port        string        `yaml:"port"`
	PublicDir   string        `yaml:"public_dir"`
	LogUser     string        `yaml:"log_user"`
	LogPassword string        `yaml:"log_password"`
	ShutdownIn  time.Duration `yaml:"shutdown_timeout"`
}

// Log configures the daily log files.
type Log struct {
	Dir      string `yaml:"dir"`
	Level    string `yaml:"level"`
	MaxFiles int    `yaml:"max_files"`
}

// Capture configures the capture pipeline.
type Capture struct {
	ChromePath        string        `yaml:"chrome_path"`
	NoSandbox         bool          `yaml:"no_sandbox"`
	AutoDownload      bool          `yaml:"auto_download"`
	MaxSessions       int           `yaml:"max_sessions"`
	FetchConcurrency  int           `yaml:"fetch_concurrency"`
	ScrollDelay       time.Duration `yaml:"scroll_delay"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	NormalizedWidth   int           `yaml:"normalized_width"`
	PageOrder         bool          `yaml:"page_order"`
}

// Redis configures the shared job registry. An empty Addr keeps jobs in
// memory.
type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Minio configures the optional artifact mirror. An empty Endpoint disables
// it.
type Minio struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Port:       "3000",
			PublicDir:  "public",
			ShutdownIn: 15 * time.Second,
		},
		Log: Log{
			Dir:      "logs",
			Level:    "info",
			MaxFiles: 30,
		},
		Capture: Capture{
			MaxSessions:       2,
			FetchConcurrency:  4,
			ScrollDelay:       500 * time.Millisecond,
			SettleDelay:       2 * time.Second,
			NavigationTimeout: 60 * time.Second,
			NormalizedWidth:   2400,
		},
		Redis:   Redis{TTL: 24 * time.Hour},
		Minio:   Minio{Bucket: "viewcapture"},
		DataDir: "data",
		Env:     "development",
	}
}

// Load builds the configuration. yamlPath may be empty. envFiles are loaded
// into the process environment without overriding variables already set; a
// missing env file is not an error.
func Load(yamlPath string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing %s: %w", yamlPath, err)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &cfg.Server.Port)
	str("PUBLIC_DIR", &cfg.Server.PublicDir)
	str("LOG_USER", &cfg.Server.LogUser)
	str("LOG_PASSWORD", &cfg.Server.LogPassword)
	str("DATA_DIR", &cfg.DataDir)
	str("LOG_DIR", &cfg.Log.Dir)
	str("LOG_LEVEL", &cfg.Log.Level)
	num("LOG_MAX_FILES", &cfg.Log.MaxFiles)
	str("APP_ENV", &cfg.Env)

	str("CHROME_PATH", &cfg.Capture.ChromePath)
	flag("NO_SANDBOX", &cfg.Capture.NoSandbox)
	flag("AUTO_DOWNLOAD", &cfg.Capture.AutoDownload)
	num("MAX_SESSIONS", &cfg.Capture.MaxSessions)
	num("FETCH_CONCURRENCY", &cfg.Capture.FetchConcurrency)
	dur("SCROLL_DELAY", &cfg.Capture.ScrollDelay)
	dur("SETTLE_DELAY", &cfg.Capture.SettleDelay)
	dur("NAVIGATION_TIMEOUT", &cfg.Capture.NavigationTimeout)
	num("NORMALIZED_WIDTH", &cfg.Capture.NormalizedWidth)
	flag("PAGE_ORDER", &cfg.Capture.PageOrder)

	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	num("REDIS_DB", &cfg.Redis.DB)
	dur("REDIS_TTL", &cfg.Redis.TTL)

	str("MINIO_ENDPOINT", &cfg.Minio.Endpoint)
	str("MINIO_ACCESS_KEY", &cfg.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &cfg.Minio.SecretKey)
	str("MINIO_BUCKET", &cfg.Minio.Bucket)
	str("MINIO_REGION", &cfg.Minio.Region)
	flag("MINIO_USE_SSL", &cfg.Minio.UseSSL)

	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("750ms") and bare milliseconds ("750").
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if p, err := strconv.Atoi(c.Server.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %q", c.Server.Port))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.Log.Dir == "" {
		errs = append(errs, errors.New("log.dir must not be empty"))
	}
	if c.Log.MaxFiles < 1 {
		errs = append(errs, fmt.Errorf("log.max_files must be positive, got %d", c.Log.MaxFiles))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Capture.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("capture.max_sessions must be positive, got %d", c.Capture.MaxSessions))
	}
	if c.Capture.FetchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("capture.fetch_concurrency must be positive, got %d", c.Capture.FetchConcurrency))
	}
	if c.Capture.NormalizedWidth < 1 {
		errs = append(errs, fmt.Errorf("capture.normalized_width must be positive, got %d", c.Capture.NormalizedWidth))
	}
	if c.Capture.ScrollDelay < 0 || c.Capture.SettleDelay < 0 {
		errs = append(errs, errors.New("capture delays must not be negative"))
	}
	if (c.Server.LogUser == "") != (c.Server.LogPassword == "") {
		errs = append(errs, errors.New("log_user and log_password must be set together"))
	}
	if c.Minio.Endpoint != "" && c.Minio.Bucket == "" {
		errs = append(errs, errors.New("minio.bucket is required when minio.endpoint is set"))
	}
	return errors.Join(errs...)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	return l, nil
}

// Production reports whether the service runs in production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}
