package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the top-level configuration structure.
type Config struct {
	Capture  CaptureConfig  `yaml:"capture"`
	Classify ClassifyConfig `yaml:"classify"`
	Session  SessionConfig  `yaml:"session"`
	API      APIConfig      `yaml:"api"`
	Output   OutputConfig   `yaml:"output"`
	Log      LogConfig      `yaml:"log"`
}

// CaptureConfig selects where SYN packets come from.
type CaptureConfig struct {
	Interface string `yaml:"interface"`  // live capture interface
	Read      string `yaml:"read"`       // pcap/pcapng file instead of a live interface
	Filter    string `yaml:"filter"`     // BPF expression
	ReplayPPS int    `yaml:"replay_pps"` // pace offline reads, 0 = as fast as possible
	// Ignore lists sources whose SYNs are dropped before fingerprinting:
	// addresses, CIDR networks or "first-last" ranges.
	Ignore []string `yaml:"ignore"`
}

// ClassifyConfig controls the matching engine.
type ClassifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Database string `yaml:"database"` // reference fingerprint database (JSON array)
	Top      int    `yaml:"top"`      // number of best guesses kept
}

// SessionConfig controls the fingerprint log and classification cache.
type SessionConfig struct {
	Fingerprints string `yaml:"fingerprints"` // fingerprint log path
	WriteAfter   int    `yaml:"write_after"`
	ClearAfter   int    `yaml:"clear_after"`
	Eviction     string `yaml:"eviction"` // "clear" or "lru"
}

// APIConfig enables the read-only HTTP API when Listen is set.
type APIConfig struct {
	Listen       string   `yaml:"listen"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// OutputConfig controls how results are reported.
type OutputConfig struct {
	Results string         `yaml:"results"` // JSONL results file
	CSV     string         `yaml:"csv"`     // CSV results file
	Stdout  bool           `yaml:"stdout"`  // Stream JSONL to stdout
	Webhook *WebhookOutput `yaml:"webhook"` // Webhook HTTP POST sink
	Verbose bool           `yaml:"verbose"` // Log every SYN with decoded fields
	Quiet   bool           `yaml:"quiet"`   // Silent mode
	NoTUI   bool           `yaml:"no_tui"`  // Disable TUI
}

// WebhookOutput configures the webhook output sink.
type WebhookOutput struct {
	URL        string            `yaml:"url"`
	BatchSize  int               `yaml:"batch_size"`
	Timeout    Duration          `yaml:"timeout"`
	MaxRetries int               `yaml:"max_retries"`
	Headers    map[string]string `yaml:"headers"`
}

// LogConfig configures logrus and, for file output, lumberjack rotation.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "text" or "json"
	File       string `yaml:"file"`   // empty = stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Duration wraps time.Duration for YAML unmarshalling from strings like "5s", "10m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Filter: "tcp port 80 or tcp port 443",
		},
		Classify: ClassifyConfig{
			Database: "database/combined.json",
			Top:      3,
		},
		Session: SessionConfig{
			Fingerprints: "fingerprints.json",
			WriteAfter:   40,
			ClearAfter:   3000,
			Eviction:     "clear",
		},
		API: APIConfig{
			ReadTimeout:  Duration{5 * time.Second},
			WriteTimeout: Duration{10 * time.Second},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadConfig reads a YAML configuration file from the specified path.
// Keys missing from the file keep their Default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}

	return cfg, nil
}

// Validate rejects values the sniffer cannot run with.
func (c *Config) Validate() error {
	switch c.Session.Eviction {
	case "", "clear", "lru":
	default:
		return errors.Errorf("session.eviction must be \"clear\" or \"lru\", got %q", c.Session.Eviction)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return errors.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}
	if c.Session.WriteAfter < 0 || c.Session.ClearAfter < 0 {
		return errors.New("session thresholds must not be negative")
	}
	if c.Capture.ReplayPPS < 0 {
		return errors.New("capture.replay_pps must not be negative")
	}
	if c.Capture.Interface != "" && c.Capture.Read != "" {
		return errors.New("capture.interface and capture.read are mutually exclusive")
	}
	return nil
}
