// Package config loads the agent configuration document: global settings and
// the ordered table of agent definitions.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration document looked up when no path is given.
const DefaultFile = "agent_config.yaml"

// EnvPrefix prefixes environment overrides, e.g. AGENTCTL_SETTINGS_LOG_DIRECTORY.
const EnvPrefix = "AGENTCTL"

var (
	// ErrConfigCorrupt is returned when the document cannot be read or parsed.
	ErrConfigCorrupt = errors.New("config corrupt")
	// ErrAgentNotFound is returned by edits naming an agent missing from the document.
	ErrAgentNotFound = errors.New("agent not defined in config")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidName reports whether name is usable as an agent name. Names become file
// names under the log and pid directories.
func ValidName(name string) bool {
	return namePattern.MatchString(name) && !strings.Contains(name, "..")
}

// Settings are the global options shared by all agents.
type Settings struct {
	LogDirectory     string        `mapstructure:"log_directory"`
	PIDDirectory     string        `mapstructure:"pid_directory"`
	Interpreter      string        `mapstructure:"interpreter"`
	InterpreterArgs  []string      `mapstructure:"interpreter_args"`
	PythonPath       string        `mapstructure:"python_path"`
	Env              []string      `mapstructure:"env"`
	GracePeriod      time.Duration `mapstructure:"grace_period"`
	StopTimeout      time.Duration `mapstructure:"stop_timeout"`
	StopPollInterval time.Duration `mapstructure:"stop_poll_interval"`
	KillWait         time.Duration `mapstructure:"kill_wait"`
	RestartPause     time.Duration `mapstructure:"restart_pause"`
	BulkStartDelay   time.Duration `mapstructure:"bulk_start_delay"`
	HistoryDB        string        `mapstructure:"history_db"`
	Listen           string        `mapstructure:"listen"`
}

// Agent is one entry of the agent table.
type Agent struct {
	Name                 string `yaml:"-"`
	Script               string `yaml:"script"`
	Enabled              bool   `yaml:"enabled"`
	Description          string `yaml:"description,omitempty"`
	Warning              string `yaml:"warning,omitempty"`
	ShowInDashboard      bool   `yaml:"show_in_dashboard"`
	CheckIntervalMinutes int    `yaml:"check_interval_minutes,omitempty"`
}

// Config is a loaded document. It is treated as immutable once returned;
// reloading produces a new value.
type Config struct {
	// Path is the absolute document path; Root is its directory. Relative paths
	// in the document resolve against Root.
	Path     string
	Root     string
	Settings Settings
	Agents   []Agent
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("settings.log_directory", "logs")
	v.SetDefault("settings.pid_directory", ".pids")
	v.SetDefault("settings.interpreter", "python3")
	v.SetDefault("settings.interpreter_args", []string{"-u"})
	v.SetDefault("settings.python_path", ".")
	v.SetDefault("settings.env", []string{})
	v.SetDefault("settings.grace_period", 2*time.Second)
	v.SetDefault("settings.stop_timeout", 5*time.Second)
	v.SetDefault("settings.stop_poll_interval", 100*time.Millisecond)
	v.SetDefault("settings.kill_wait", 500*time.Millisecond)
	v.SetDefault("settings.restart_pause", time.Second)
	v.SetDefault("settings.bulk_start_delay", time.Second)
	v.SetDefault("settings.history_db", "")
	v.SetDefault("settings.listen", "127.0.0.1:8000")
}

// Load reads the document at path. Any failure wraps ErrConfigCorrupt.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, corrupt(path, err)
	}
	// #nosec G304 operator-supplied config path
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, corrupt(abs, err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, corrupt(abs, err)
	}
	var doc struct {
		Settings Settings `mapstructure:"settings"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return nil, corrupt(abs, err)
	}

	agents, err := parseAgents(raw)
	if err != nil {
		return nil, corrupt(abs, err)
	}
	cfg := &Config{Path: abs, Root: filepath.Dir(abs), Settings: doc.Settings, Agents: agents}
	if err := cfg.validate(); err != nil {
		return nil, corrupt(abs, err)
	}
	return cfg, nil
}

func corrupt(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrConfigCorrupt, path, err)
}

// parseAgents walks the YAML node tree so agents keep document order; a plain
// map decode would lose it.
func parseAgents(raw []byte) ([]Agent, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, err
	}
	table := agentsNode(&root)
	if table == nil || (table.Kind == yaml.ScalarNode && table.Tag == "!!null") {
		return nil, nil
	}
	if table.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: agents must be a mapping", table.Line)
	}
	seen := make(map[string]bool, len(table.Content)/2)
	out := make([]Agent, 0, len(table.Content)/2)
	for i := 0; i+1 < len(table.Content); i += 2 {
		key, val := table.Content[i], table.Content[i+1]
		name := key.Value
		if !ValidName(name) {
			return nil, fmt.Errorf("line %d: invalid agent name %q", key.Line, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("line %d: duplicate agent %q", key.Line, name)
		}
		seen[name] = true
		a := Agent{ShowInDashboard: true}
		if err := val.Decode(&a); err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}
		a.Name = name
		out = append(out, a)
	}
	return out, nil
}

// agentsNode returns the value node of the top-level "agents" key, or nil.
func agentsNode(root *yaml.Node) *yaml.Node {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil
	}
	return mappingValue(top, "agents")
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func (c *Config) validate() error {
	s := c.Settings
	if s.LogDirectory == "" || s.PIDDirectory == "" {
		return errors.New("log_directory and pid_directory must be set")
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"grace_period", s.GracePeriod},
		{"stop_timeout", s.StopTimeout},
		{"stop_poll_interval", s.StopPollInterval},
		{"kill_wait", s.KillWait},
		{"restart_pause", s.RestartPause},
		{"bulk_start_delay", s.BulkStartDelay},
	} {
		if d.v < 0 {
			return fmt.Errorf("%s must not be negative", d.name)
		}
	}
	if s.StopPollInterval == 0 {
		return errors.New("stop_poll_interval must be positive")
	}
	for _, a := range c.Agents {
		if strings.TrimSpace(a.Script) == "" {
			return fmt.Errorf("agent %s: script is required", a.Name)
		}
		if a.CheckIntervalMinutes < 0 {
			return fmt.Errorf("agent %s: check_interval_minutes must not be negative", a.Name)
		}
	}
	return nil
}

// Agent returns the definition for name.
func (c *Config) Agent(name string) (Agent, bool) {
	for _, a := range c.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return Agent{}, false
}

// Names returns agent names in document order.
func (c *Config) Names() []string {
	out := make([]string, len(c.Agents))
	for i, a := range c.Agents {
		out[i] = a.Name
	}
	return out
}

// Resolve makes p absolute relative to the document's directory.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// LogDir returns the absolute log directory.
func (c *Config) LogDir() string { return c.Resolve(c.Settings.LogDirectory) }

// PIDDir returns the absolute pid record directory.
func (c *Config) PIDDir() string { return c.Resolve(c.Settings.PIDDirectory) }

// HistoryPath returns the absolute history database path, or "" when disabled.
func (c *Config) HistoryPath() string { return c.Resolve(c.Settings.HistoryDB) }

// ScriptPath returns the absolute script path for a.
func (c *Config) ScriptPath(a Agent) string { return c.Resolve(a.Script) }
