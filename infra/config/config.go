// Package config loads the rcd node configuration from TOML or YAML.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"rc/infra/codec"
	"rc/infra/logging"
)

var (
	ErrUnknownFormat = errors.New("config: unknown file format")
	ErrInvalid       = errors.New("config: invalid")
)

// Duration is a time.Duration written as a string ("250ms", "5s") in
// config files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

type Config struct {
	Node     string         `toml:"node" yaml:"node"`
	Log      LogConfig      `toml:"log" yaml:"log"`
	Tracker  TrackerConfig  `toml:"tracker" yaml:"tracker"`
	Reclaim  ReclaimConfig  `toml:"reclaim" yaml:"reclaim"`
	Store    StoreConfig    `toml:"store" yaml:"store"`
	Kafka    KafkaConfig    `toml:"kafka" yaml:"kafka"`
	GRPC     GRPCConfig     `toml:"grpc" yaml:"grpc"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`
	Registry RegistryConfig `toml:"registry" yaml:"registry"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

type TrackerConfig struct {
	// MaxLive caps live control blocks; 0 is unlimited.
	MaxLive int64 `toml:"max_live" yaml:"max_live"`
	// Ledger records block lifecycles in the store.
	Ledger bool `toml:"ledger" yaml:"ledger"`
}

type ReclaimConfig struct {
	Interval Duration `toml:"interval" yaml:"interval"`
	RingSize uint64   `toml:"ring_size" yaml:"ring_size"`
}

type StoreConfig struct {
	Dir  string `toml:"dir" yaml:"dir"`
	Sync bool   `toml:"sync" yaml:"sync"`
}

type KafkaConfig struct {
	Brokers       []string `toml:"brokers" yaml:"brokers"`
	EventsTopic   string   `toml:"events_topic" yaml:"events_topic"`
	StatsTopic    string   `toml:"stats_topic" yaml:"stats_topic"`
	StatsInterval Duration `toml:"stats_interval" yaml:"stats_interval"`
	Codec         string   `toml:"codec" yaml:"codec"`
}

// Enabled reports whether Kafka publishing is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type GRPCConfig struct {
	Addr           string   `toml:"addr" yaml:"addr"`
	HealthInterval Duration `toml:"health_interval" yaml:"health_interval"`
	// Targets are peers whose health rcd probe checks by default.
	Targets []string `toml:"targets" yaml:"targets"`
}

type MetricsConfig struct {
	// Addr serves /metrics; empty disables it.
	Addr string `toml:"addr" yaml:"addr"`
}

type RegistryConfig struct {
	// Linger keeps this many idle shared resources open per registry.
	Linger int `toml:"linger" yaml:"linger"`
}

// Default returns the configuration used for missing fields.
func Default() Config {
	return Config{
		Node: "rcd",
		Log:  LogConfig{Level: "info", Format: "console"},
		Reclaim: ReclaimConfig{
			Interval: Duration(100 * time.Millisecond),
			RingSize: 1024,
		},
		Store: StoreConfig{Dir: "./data/ledger"},
		Kafka: KafkaConfig{
			EventsTopic:   "rc.events",
			StatsTopic:    "rc.stats",
			StatsInterval: Duration(5 * time.Second),
			Codec:         "json",
		},
		GRPC: GRPCConfig{
			Addr:           ":50051",
			HealthInterval: Duration(time.Second),
		},
		Registry: RegistryConfig{Linger: 2},
	}
}

// Load reads path, picking the decoder by extension, on top of Default and
// validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config load failed (%s)", path)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return Config{}, errors.Wrapf(err, "config parse failed (%s)", path)
	}
	return cfg, nil
}

// Parse decodes data in the format named by ext (".toml", ".yaml", ".yml").
func Parse(data []byte, ext string) (Config, error) {
	cfg := Default()
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, errors.Wrapf(ErrUnknownFormat, "%q", ext)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Node) == "" {
		return invalid("node name is required")
	}
	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		return invalid("log.level %q unknown", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		return invalid("log.format %q unknown", cfg.Log.Format)
	}
	if cfg.Tracker.MaxLive < 0 {
		return invalid("tracker.max_live must not be negative")
	}
	if cfg.Reclaim.Interval <= 0 {
		return invalid("reclaim.interval must be positive")
	}
	if n := cfg.Reclaim.RingSize; n == 0 || n&(n-1) != 0 {
		return invalid("reclaim.ring_size %d is not a power of two", n)
	}
	if cfg.Tracker.Ledger && strings.TrimSpace(cfg.Store.Dir) == "" {
		return invalid("store.dir is required when tracker.ledger is on")
	}
	if cfg.Kafka.Enabled() {
		if cfg.Kafka.StatsInterval <= 0 {
			return invalid("kafka.stats_interval must be positive")
		}
		if cfg.Kafka.StatsTopic == "" && cfg.Kafka.EventsTopic == "" {
			return invalid("kafka needs stats_topic or events_topic")
		}
		if _, err := codec.ByName(cfg.Kafka.Codec); err != nil {
			return invalid("kafka.codec: %v", err)
		}
	}
	if strings.TrimSpace(cfg.GRPC.Addr) == "" {
		return invalid("grpc.addr is required")
	}
	if cfg.GRPC.HealthInterval <= 0 {
		return invalid("grpc.health_interval must be positive")
	}
	if cfg.Registry.Linger < 0 {
		return invalid("registry.linger must not be negative")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.Wrapf(ErrInvalid, format, args...)
}
