package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SourceStatic = "static"
	SourceRemote = "remote"

	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config models techcomm.yml.
type Config struct {
	Community struct {
		Name string `yaml:"name"`
	} `yaml:"community"`
	Data    Data    `yaml:"data"`
	Roles   Roles   `yaml:"roles"`
	XP      XP      `yaml:"xp"`
	Profile Profile `yaml:"profile"`
	Server  Server  `yaml:"server"`
	Notify  Notify  `yaml:"notify"`
}

// Data selects and parameterises the storage backend.
type Data struct {
	Source  string        `yaml:"source"`
	Timeout time.Duration `yaml:"timeout"`
	Static  struct {
		Path    string `yaml:"path"`
		Scratch string `yaml:"scratch"`
	} `yaml:"static"`
	Remote struct {
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"remote"`
}

// Roles grants community-wide capabilities. Admins and organizers may
// approve, reject and close any event.
type Roles struct {
	Admins     []string `yaml:"admins"`
	Organizers []string `yaml:"organizers"`
}

// IsAdmin reports whether uid holds the administrator role.
func (r Roles) IsAdmin(uid string) bool {
	return listed(r.Admins, uid)
}

// IsOrganizer reports whether uid holds the community organizer role.
func (r Roles) IsOrganizer(uid string) bool {
	return listed(r.Organizers, uid)
}

func listed(list []string, uid string) bool {
	if uid == "" {
		return false
	}
	for _, v := range list {
		if v == uid {
			return true
		}
	}
	return false
}

type XP struct {
	Participation int           `yaml:"participation"`
	Organizer     int           `yaml:"organizer"`
	BestPerformer int           `yaml:"best_performer"`
	AutoAward     bool          `yaml:"auto_award"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type Profile struct {
	TTL          time.Duration `yaml:"ttl"`
	Size         int           `yaml:"size"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type Server struct {
	Addr           string   `yaml:"addr"`
	BasePath       string   `yaml:"base_path"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Notify lists webhooks that receive user notifications.
type Notify struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Severities     []string `yaml:"severities,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Active reports whether the webhook should receive deliveries.
func (w WebhookConfig) Active() bool {
	return strings.TrimSpace(w.URL) != "" && (w.Enabled == nil || *w.Enabled)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tc config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure. It fills zero
// values with defaults first.
func (c *Config) Validate() error {
	c.applyDefaults()
	switch c.Data.Source {
	case SourceStatic:
		if c.Data.Static.Path == "" {
			return fmt.Errorf("config.data.static.path is required")
		}
	case SourceRemote:
		switch c.Data.Remote.Driver {
		case DriverSQLite, DriverMongo:
		default:
			return fmt.Errorf("config.data.remote.driver must be %q or %q", DriverSQLite, DriverMongo)
		}
		if c.Data.Remote.Driver == DriverMongo && c.Data.Remote.Database == "" {
			return fmt.Errorf("config.data.remote.database is required for mongo")
		}
	default:
		return fmt.Errorf("config.data.source must be %q or %q, got %q", SourceStatic, SourceRemote, c.Data.Source)
	}
	if c.Data.Timeout < 0 {
		return fmt.Errorf("config.data.timeout must not be negative")
	}
	for _, a := range c.Roles.Admins {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("config.roles.admins contains empty uid")
		}
	}
	for _, o := range c.Roles.Organizers {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("config.roles.organizers contains empty uid")
		}
	}
	if c.XP.Participation < 0 || c.XP.Organizer < 0 || c.XP.BestPerformer < 0 {
		return fmt.Errorf("config.xp values must not be negative")
	}
	if c.XP.AutoAward && c.XP.SweepInterval < time.Second {
		return fmt.Errorf("config.xp.sweep_interval must be at least 1s")
	}
	if c.Profile.Size < 1 {
		return fmt.Errorf("config.profile.size must be positive")
	}
	for i, w := range c.Notify.Webhooks {
		if strings.TrimSpace(w.URL) == "" {
			return fmt.Errorf("config.notify.webhooks[%d].url is required", i)
		}
		for _, sev := range w.Severities {
			switch sev {
			case "success", "info", "warning", "error":
			default:
				return fmt.Errorf("config.notify.webhooks[%d] has unknown severity %q", i, sev)
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Data.Source == "" {
		c.Data.Source = SourceStatic
	}
	if c.Data.Timeout == 0 {
		c.Data.Timeout = 5 * time.Second
	}
	if c.Data.Static.Path == "" {
		c.Data.Static.Path = "data"
	}
	if c.Data.Remote.Driver == "" {
		c.Data.Remote.Driver = DriverSQLite
	}
	if c.Profile.TTL == 0 {
		c.Profile.TTL = time.Hour
	}
	if c.Profile.Size == 0 {
		c.Profile.Size = 4096
	}
	if c.Profile.FetchTimeout == 0 {
		c.Profile.FetchTimeout = 5 * time.Second
	}
	if c.XP.SweepInterval == 0 {
		c.XP.SweepInterval = 5 * time.Minute
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/v0"
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "techcomm.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(community string) string {
	return fmt.Sprintf(defaultTemplate, community)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault("techcomm"))).Decode(&cfg)
	cfg.applyDefaults()
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `community:
  name: %s

data:
  source: static
  timeout: 5s
  static:
    path: data
    scratch: .techcomm/scratch
  remote:
    driver: sqlite
    dsn: ""
    uri: ""
    database: techcomm

roles:
  admins: []
  organizers: []

xp:
  participation: 10
  organizer: 25
  best_performer: 20
  auto_award: false
  sweep_interval: 5m

profile:
  ttl: 1h
  size: 4096
  fetch_timeout: 5s

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  allowed_origins: []

notify:
  webhooks: []
`
