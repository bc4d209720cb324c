// Package config loads the agent's YAML configuration and on-disk state.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath     = "PROBE_AGENT_CONFIG"
	DefaultConfigPath = "/etc/globalping/agent.yaml"

	// DefaultHTTPBodyCapBytes bounds how much of an HTTP response body a
	// measurement retains. Not specified by the source; chosen so a probe
	// can't be made to buffer an unbounded attacker-controlled response body.
	DefaultHTTPBodyCapBytes = 10 << 20

	// DefaultASNZone is Team Cymru's ASN-lookup DNS zone.
	DefaultASNZone = "origin.asn.cymru.com"
)

type Config struct {
	Agent AgentConfig `yaml:"agent"`
	Tools ToolsConfig `yaml:"tools"`
	DNS   DNSConfig   `yaml:"dns"`
	HTTP  HTTPConfig  `yaml:"http"`
	Run   RunConfig   `yaml:"run"`
}

type AgentConfig struct {
	Server  string   `yaml:"server"`
	DataDir string   `yaml:"data_dir"`
	Labels  []string `yaml:"labels"`
}

// ToolsConfig names the external binaries the measurement handlers invoke
// and the wall-clock caps applied to each (section 5).
type ToolsConfig struct {
	DigPath           string        `yaml:"dig_path"`
	PingPath          string        `yaml:"ping_path"`
	TraceroutePath    string        `yaml:"traceroute_path"`
	MTRPath           string        `yaml:"mtr_path"`
	UnbufferPath      string        `yaml:"unbuffer_path"`
	MTRTimeout        time.Duration `yaml:"mtr_timeout"`
	TracerouteTimeout time.Duration `yaml:"traceroute_timeout"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	DigTimeout        time.Duration `yaml:"dig_timeout"`

	// MTRSlowInterval widens MTR's inter-packet interval from the 0.5s
	// default to 1s. It is not a YAML field: WithDefaults sets it from
	// NODE_ENV=development, kept separate from MTRTimeout so a production
	// mtr_timeout of 30s can't accidentally trip it.
	MTRSlowInterval bool `yaml:"-"`
}

type DNSConfig struct {
	DefaultResolver string `yaml:"default_resolver"`
	ASNZone         string `yaml:"asn_zone"`
}

type HTTPConfig struct {
	BodyCapBytes int           `yaml:"body_cap_bytes"`
	Timeout      time.Duration `yaml:"timeout"`
}

type RunConfig struct {
	Workers int `yaml:"workers"`
}

func (c Config) toolsWithDefaults() ToolsConfig {
	t := c.Tools
	if t.DigPath == "" {
		t.DigPath = "dig"
	}
	if t.PingPath == "" {
		t.PingPath = "ping"
	}
	if t.TraceroutePath == "" {
		t.TraceroutePath = "traceroute"
	}
	if t.MTRPath == "" {
		t.MTRPath = "mtr"
	}
	if t.UnbufferPath == "" {
		t.UnbufferPath = "unbuffer"
	}
	if t.MTRTimeout <= 0 {
		t.MTRTimeout = 15 * time.Second
	}
	if t.TracerouteTimeout <= 0 {
		t.TracerouteTimeout = 15 * time.Second
	}
	if t.PingTimeout <= 0 {
		t.PingTimeout = 10 * time.Second
	}
	if t.DigTimeout <= 0 {
		t.DigTimeout = 5 * time.Second
	}
	return t
}

// WithDefaults returns a copy of cfg with every optional field filled in.
func (c Config) WithDefaults() Config {
	c.Tools = c.toolsWithDefaults()
	if c.DNS.ASNZone == "" {
		c.DNS.ASNZone = DefaultASNZone
	}
	if c.HTTP.BodyCapBytes <= 0 {
		c.HTTP.BodyCapBytes = DefaultHTTPBodyCapBytes
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = 15 * time.Second
	}
	// NODE_ENV=development widens MTR's inter-packet interval (section 6);
	// preserved as ambient runtime behavior carried over from the source agent.
	if os.Getenv("NODE_ENV") == "development" {
		c.Tools.MTRSlowInterval = true
	}
	return c
}

func Load(ctx context.Context, path string) (Config, error) {
	var cfg Config

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	return cfg.WithDefaults(), nil
}

func LoadFromEnv(ctx context.Context) (Config, error) {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	return Load(ctx, path)
}
