package config

import "time"

// Config is the waflite service configuration.
type Config struct {
	ConfigVersion int           `yaml:"configVersion"`
	Server        ServerConfig  `yaml:"server"`
	Store         StoreConfig   `yaml:"store"`
	Guard         GuardConfig   `yaml:"guard"`
	Logging       LoggingConfig `yaml:"logging"`
	Metrics       MetricsConfig `yaml:"metrics"`

	baseDir string `yaml:"-"`
}

type ServerConfig struct {
	Listen            string        `yaml:"listen"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	TLS               TLSConfig     `yaml:"tls"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// StoreConfig locates the JSON rule store. With Cache set the compiled rule
// set is kept in memory and dropped on every write or file change.
type StoreConfig struct {
	Path  string `yaml:"path"`
	Cache bool   `yaml:"cache"`
}

// GuardConfig puts a reverse proxy in front of an upstream application and
// evaluates requests under the protected path prefixes.
type GuardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Upstream        string        `yaml:"upstream"`
	Protect         []string      `yaml:"protect"`
	BlockStatusCode int           `yaml:"blockStatusCode"`
	Timeout         time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	DecisionLog string `yaml:"decisionLog"`
	MaxSizeMB   int    `yaml:"maxSizeMB"`
	MaxBackups  int    `yaml:"maxBackups"`
	MaxAgeDays  int    `yaml:"maxAgeDays"`
	Compress    bool   `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

const (
	DefaultListen        = ":8080"
	DefaultMetricsListen = ":9090"
	DefaultStorePath     = "data/rules.json"
	DefaultBlockStatus   = 403
	DefaultGuardTimeout  = 30 * time.Second
	DefaultHeaderTimeout = 10 * time.Second
)

func (c *Config) BaseDir() string {
	return c.baseDir
}

func (c *Config) ResolvePath(path string) string {
	return c.resolvePath(path)
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = DefaultHeaderTimeout
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Guard.BlockStatusCode == 0 {
		c.Guard.BlockStatusCode = DefaultBlockStatus
	}
	if c.Guard.Timeout == 0 {
		c.Guard.Timeout = DefaultGuardTimeout
	}
	if c.Guard.Enabled && len(c.Guard.Protect) == 0 {
		c.Guard.Protect = []string{"/"}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 10
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}
}
