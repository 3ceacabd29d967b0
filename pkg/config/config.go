package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"bufferqueue/pkg/gfx"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the merged view of flags, config file and
// environment the app runs with.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	Source string // "flags", "config", or "env"
}

// ParseConfigFlags parses command-line flags and returns them as a
// Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "debug HTTP listen address")
	cfgPtr := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addrPtr, Config: *cfgPtr, Set: set}
}

// ResolveConfigPath decides the config file path using the
// flag-provided value and BUFFERQ_CONFIG when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("BUFFERQ_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// Addr returns host:port for the debug HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// Format maps the configured default format name onto a gfx format.
// Unknown names fall back to RGBA8888.
func (q QueueConfig) Format() gfx.Format {
	switch strings.ToLower(strings.TrimSpace(q.DefaultFormat)) {
	case "", "rgba8888":
		return gfx.FormatRGBA8888
	case "rgbx8888":
		return gfx.FormatRGBX8888
	case "rgb888":
		return gfx.FormatRGB888
	case "rgb565":
		return gfx.FormatRGB565
	}
	return gfx.FormatRGBA8888
}

// Load reads and parses a yaml config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvOverrides applies environment overrides onto the provided cfg
// and reports whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false

	if v := os.Getenv("BUFFERQ_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("BUFFERQ_HTTP_ENGINE"); v != "" {
		envUsed = true
		cfg.Server.Engine = v
	}
	if v := os.Getenv("BUFFERQ_CONSUMER_NAME"); v != "" {
		envUsed = true
		cfg.Queue.ConsumerName = v
	}
	if v := os.Getenv("BUFFERQ_DEFAULT_FORMAT"); v != "" {
		envUsed = true
		cfg.Queue.DefaultFormat = v
	}
	if v := os.Getenv("BUFFERQ_DEFAULT_MAX_BUFFERS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Queue.DefaultMaxBufferCount = n
		}
	}
	if v := os.Getenv("BUFFERQ_MAX_ACQUIRED_BUFFERS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Queue.MaxAcquiredBufferCount = n
		}
	}
	if v := os.Getenv("BUFFERQ_FRAME_RATE"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Producer.FrameRate = f
		}
	}
	if v := os.Getenv("BUFFERQ_ASYNC"); v != "" {
		envUsed = true
		vl := strings.ToLower(strings.TrimSpace(v))
		cfg.Producer.Async = vl == "1" || vl == "true" || vl == "yes"
	}
	if v := os.Getenv("BUFFERQ_LOG_LEVEL"); v != "" {
		envUsed = true
		cfg.Logging.Level = v
	}
	return envUsed
}

// LoadEffective loads config from the given path and applies
// environment overrides. A missing file is not fatal: env and defaults
// still apply.
func LoadEffective(path string, flags Flags) (EffectiveConfigResult, error) {
	cfg, err := Load(path)
	source := "config"
	if err != nil {
		cfg = &Config{}
		source = "flags"
	}
	if LoadEnvOverrides(cfg) {
		source = "env"
	}

	addr := cfg.Addr()
	if flags.Set["addr"] {
		addr = flags.Addr
		source = "flags"
	}

	if err := Validate(cfg); err != nil {
		return EffectiveConfigResult{}, err
	}
	return EffectiveConfigResult{Config: cfg, Addr: addr, Source: source}, nil
}

// Validate rejects configurations the queue would refuse at runtime.
func Validate(cfg *Config) error {
	if n := cfg.Queue.DefaultMaxBufferCount; n < 0 || n > 32 {
		return fmt.Errorf("queue.default_max_buffer_count out of range: %d", n)
	}
	if n := cfg.Queue.MaxAcquiredBufferCount; n < 0 || n > 32 {
		return fmt.Errorf("queue.max_acquired_buffer_count out of range: %d", n)
	}
	if r := cfg.Producer.FrameRate; r < 0 {
		return fmt.Errorf("producer.frame_rate must be >= 0: %f", r)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Server.Engine)) {
	case "", "nethttp", "fasthttp":
	default:
		return fmt.Errorf("server.engine must be nethttp or fasthttp: %q", cfg.Server.Engine)
	}
	return nil
}
