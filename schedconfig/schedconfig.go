// Package schedconfig loads the YAML configuration that bootstraps a
// scheduler instance: namespace/toolset visibility, channel capacities, the
// quiesce deadline, and which persistence backend to use.
package schedconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults match spec.md/SPEC_FULL.md §10's Open Question decisions.
const (
	DefaultQuiesceDeadline     = 30 * time.Second
	DefaultQuiescePollInterval = 10 * time.Millisecond
	DefaultMultiCapacity       = 100
)

// Backend selects a persistence.Bridge implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendMongo  Backend = "mongo"
	BackendRedis  Backend = "redis"
)

// Toolset groups tool names under a namespace, mirroring how a session's
// namespaces gate AvailableTools.
type Toolset struct {
	Namespace string   `yaml:"namespace"`
	Tools     []string `yaml:"tools"`
}

// Persistence selects and parameterizes the durable backend.
type Persistence struct {
	Backend Backend `yaml:"backend"`

	Mongo struct {
		URI        string `yaml:"uri"`
		Database   string `yaml:"database"`
		Collection string `yaml:"collection"`
	} `yaml:"mongo"`

	Redis struct {
		Addr      string        `yaml:"addr"`
		KeyPrefix string        `yaml:"key_prefix"`
		TTL       time.Duration `yaml:"ttl"`
	} `yaml:"redis"`
}

// Config is the full scheduler configuration document.
type Config struct {
	// QuiesceDeadline bounds logout's resolve-then-persist phase. Defaults
	// to DefaultQuiesceDeadline when zero.
	QuiesceDeadline time.Duration `yaml:"quiesce_deadline"`
	// QuiescePollInterval is the configured re-poll interval for quiescing.
	// Defaults to DefaultQuiescePollInterval when zero. scheduler.Options
	// has no matching field, so handlers built by scheduler.Service use
	// session.DefaultQuiescePollInterval regardless of this value.
	QuiescePollInterval time.Duration `yaml:"quiesce_poll_interval"`
	// MultiCapacity bounds a Multi channel's buffered chunk backlog.
	// Defaults to DefaultMultiCapacity when zero.
	MultiCapacity int `yaml:"multi_capacity"`
	// MaxConcurrentToolCalls feeds scheduler.Options.MaxConcurrentToolCalls:
	// at most this many tool-body starts per second across all sessions,
	// with a burst of the same size. Zero means unlimited.
	MaxConcurrentToolCalls int `yaml:"max_concurrent_tool_calls"`

	Toolsets    []Toolset   `yaml:"toolsets"`
	Persistence Persistence `yaml:"persistence"`
}

// Load reads and parses a Config from path, applying defaults to any
// zero-valued tunable.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("schedconfig: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a Config from raw YAML bytes, applying defaults.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("schedconfig: parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.QuiesceDeadline <= 0 {
		c.QuiesceDeadline = DefaultQuiesceDeadline
	}
	if c.QuiescePollInterval <= 0 {
		c.QuiescePollInterval = DefaultQuiescePollInterval
	}
	if c.MultiCapacity <= 0 {
		c.MultiCapacity = DefaultMultiCapacity
	}
	if c.Persistence.Backend == "" {
		c.Persistence.Backend = BackendMemory
	}
}

func (c *Config) validate() error {
	switch c.Persistence.Backend {
	case BackendMemory, BackendMongo, BackendRedis:
	default:
		return fmt.Errorf("schedconfig: unknown persistence backend %q", c.Persistence.Backend)
	}
	if c.Persistence.Backend == BackendMongo && c.Persistence.Mongo.URI == "" {
		return fmt.Errorf("schedconfig: persistence.mongo.uri is required for backend %q", BackendMongo)
	}
	if c.Persistence.Backend == BackendRedis && c.Persistence.Redis.Addr == "" {
		return fmt.Errorf("schedconfig: persistence.redis.addr is required for backend %q", BackendRedis)
	}
	seen := make(map[string]bool, len(c.Toolsets))
	for _, ts := range c.Toolsets {
		if ts.Namespace == "" {
			return fmt.Errorf("schedconfig: toolset with empty namespace")
		}
		if seen[ts.Namespace] {
			return fmt.Errorf("schedconfig: duplicate toolset namespace %q", ts.Namespace)
		}
		seen[ts.Namespace] = true
	}
	return nil
}

// ToolsForNamespaces returns the union of tool names visible to the given
// namespaces, in the order toolsets were declared.
func (c Config) ToolsForNamespaces(namespaces []string) []string {
	want := make(map[string]bool, len(namespaces))
	for _, ns := range namespaces {
		want[ns] = true
	}
	var tools []string
	for _, ts := range c.Toolsets {
		if want[ts.Namespace] {
			tools = append(tools, ts.Tools...)
		}
	}
	return tools
}
