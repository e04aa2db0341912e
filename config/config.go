// Package config loads FactoryOps settings from an optional YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Agents      []AgentConfig     `yaml:"agents"`
	Members     []MemberConfig    `yaml:"members"`
	Store       StoreConfig       `yaml:"store"`
	Events      EventsConfig      `yaml:"events"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PipelineConfig struct {
	EventBuffer int           `yaml:"event_buffer"`
	StepTimeout time.Duration `yaml:"step_timeout"`
}

type ProvidersConfig struct {
	// Default is used by agents that do not name a provider.
	Default     string            `yaml:"default"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	AzureOpenAI AzureOpenAIConfig `yaml:"azure_openai"`
	Anthropic   AnthropicConfig   `yaml:"anthropic"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type AzureOpenAIConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	APIVersion string `yaml:"api_version"`
	Deployment string `yaml:"deployment"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// AgentConfig defines a managed agent hosted by this process.
type AgentConfig struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Provider     string   `yaml:"provider"`
	Model        string   `yaml:"model"`
	Instructions string   `yaml:"instructions"`
	Tools        []string `yaml:"tools"`
	MaxTurns     int      `yaml:"max_turns"`
	Temperature  *float64 `yaml:"temperature"`
}

// Member kinds.
const (
	KindManaged = "managed"
	KindPeer    = "peer"
)

// MemberConfig is one pipeline position. Peers are resolved from URL; managed
// members by Name.
type MemberConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	URL      string `yaml:"url"`
	Required *bool  `yaml:"required"`
}

// IsRequired reports whether a resolution failure of the member at index i
// aborts the run. Unless set explicitly, the first two members are required.
func (m MemberConfig) IsRequired(i int) bool {
	if m.Required != nil {
		return *m.Required
	}
	return i < 2
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type MaintenanceConfig struct {
	WindowCron     string        `yaml:"window_cron"`
	WindowDuration time.Duration `yaml:"window_duration"`
	HorizonDays    int           `yaml:"horizon_days"`
}

// Provider names.
const (
	ProviderOpenAI      = "openai"
	ProviderAzureOpenAI = "azure-openai"
	ProviderAnthropic   = "anthropic"
	ProviderMock        = "mock"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Pipeline: PipelineConfig{
			EventBuffer: 64,
			StepTimeout: 5 * time.Minute,
		},
		Providers: ProvidersConfig{
			AzureOpenAI: AzureOpenAIConfig{APIVersion: "2024-10-21"},
		},
		Agents:  defaultAgents(),
		Members: defaultMembers(),
		Store: StoreConfig{
			Path: "data/factoryops.db",
		},
		Events: EventsConfig{
			SubjectPrefix: "factoryops",
		},
		Maintenance: MaintenanceConfig{
			WindowCron:     "0 22 * * *",
			WindowDuration: 8 * time.Hour,
			HorizonDays:    14,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("FACTORYOPS_CONFIG")
	if path == "" {
		path = "factoryops.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			cfg.Server.Addr = ":" + v
		}
	}
	if v := os.Getenv("FACTORYOPS_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("FACTORYOPS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FACTORYOPS_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Providers.OpenAI.BaseURL = v
	}
	if v := os.Getenv("AZURE_OPENAI_ENDPOINT"); v != "" {
		cfg.Providers.AzureOpenAI.Endpoint = v
	}
	if v := os.Getenv("AZURE_OPENAI_API_KEY"); v != "" {
		cfg.Providers.AzureOpenAI.APIKey = v
	}
	if v := os.Getenv("AZURE_OPENAI_DEPLOYMENT_NAME"); v != "" {
		cfg.Providers.AzureOpenAI.Deployment = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv("MAINTENANCE_SCHEDULER_AGENT_URL"); v != "" {
		cfg.setMemberURL("MaintenanceSchedulerAgent", v)
	}
	if v := os.Getenv("PARTS_ORDERING_AGENT_URL"); v != "" {
		cfg.setMemberURL("PartsOrderingAgent", v)
	}
	if v := os.Getenv("FACTORYOPS_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("FACTORYOPS_NATS_URL"); v != "" {
		cfg.Events.NATSURL = v
	}
	if cfg.Providers.Default == "" {
		cfg.Providers.Default = detectProvider(cfg.Providers)
	}
}

func (c *Config) setMemberURL(name, url string) {
	for i := range c.Members {
		if strings.EqualFold(c.Members[i].Name, name) {
			c.Members[i].URL = url
			return
		}
	}
}

func detectProvider(p ProvidersConfig) string {
	switch {
	case p.AzureOpenAI.Endpoint != "" && p.AzureOpenAI.Deployment != "":
		return ProviderAzureOpenAI
	case p.OpenAI.APIKey != "":
		return ProviderOpenAI
	case p.Anthropic.APIKey != "":
		return ProviderAnthropic
	default:
		return ProviderMock
	}
}

// Agent returns the managed agent definition with the given name.
func (c *Config) Agent(name string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return AgentConfig{}, false
}

// Validate checks structural consistency.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.EventBuffer < 0 {
		errs = append(errs, errors.New("pipeline.event_buffer must not be negative"))
	}
	seen := map[string]bool{}
	for _, a := range c.Agents {
		key := strings.ToLower(a.Name)
		if a.Name == "" {
			errs = append(errs, errors.New("agents: name is required"))
		} else if seen[key] {
			errs = append(errs, fmt.Errorf("agents: duplicate name %q", a.Name))
		}
		seen[key] = true
		switch a.Provider {
		case "", ProviderOpenAI, ProviderAzureOpenAI, ProviderAnthropic, ProviderMock:
		default:
			errs = append(errs, fmt.Errorf("agents: %s: unknown provider %q", a.Name, a.Provider))
		}
	}
	if len(c.Members) == 0 {
		errs = append(errs, errors.New("members: at least one pipeline member is required"))
	}
	for i, m := range c.Members {
		switch m.Kind {
		case KindManaged:
			if m.Name == "" {
				errs = append(errs, fmt.Errorf("members[%d]: managed member needs a name", i))
			}
		case KindPeer:
			if m.Name == "" && m.URL == "" {
				errs = append(errs, fmt.Errorf("members[%d]: peer member needs a name or url", i))
			}
		default:
			errs = append(errs, fmt.Errorf("members[%d]: unknown kind %q", i, m.Kind))
		}
	}
	return errors.Join(errs...)
}
