package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Queue    QueueConfig    `yaml:"queue"`
	Producer ProducerConfig `yaml:"producer"`
	Consumer ConsumerConfig `yaml:"consumer"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the debug HTTP surface settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	// Engine selects the HTTP engine for the debug surface:
	// "nethttp" (default) or "fasthttp".
	Engine string `yaml:"engine"`
}

// QueueConfig holds buffer queue tunables.
type QueueConfig struct {
	ConsumerName           string    `yaml:"consumer_name"`
	DefaultWidth           uint32    `yaml:"default_width"`
	DefaultHeight          uint32    `yaml:"default_height"`
	DefaultFormat          string    `yaml:"default_format"` // rgba8888 | rgbx8888 | rgb888 | rgb565
	DefaultMaxBufferCount  int       `yaml:"default_max_buffer_count"`
	MaxAcquiredBufferCount int       `yaml:"max_acquired_buffer_count"`
	BufferSizeLimit        SizeBytes `yaml:"buffer_size_limit"`
}

// ProducerConfig drives the synthetic producer loop.
type ProducerConfig struct {
	Width      uint32   `yaml:"width"`
	Height     uint32   `yaml:"height"`
	FrameRate  float64  `yaml:"frame_rate"`
	Async      bool     `yaml:"async"`
	Frames     int      `yaml:"frames"` // 0 = run until shutdown
	StatsEvery Duration `yaml:"stats_every"`
}

// ConsumerConfig drives the demo consumer loop.
type ConsumerConfig struct {
	// HoldTime simulates per-frame consumer work between acquire and
	// release.
	HoldTime Duration `yaml:"hold_time"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SizeBytes represents a number of bytes, unmarshaled from
// human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing
// from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
