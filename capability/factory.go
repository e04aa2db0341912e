package capability

import (
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/factoryops/config"
	"github.com/hupe1980/factoryops/logging"
	"github.com/hupe1980/factoryops/model"
	"github.com/hupe1980/factoryops/model/anthropic"
	"github.com/hupe1980/factoryops/model/openai"
	"github.com/hupe1980/factoryops/tool"
	"github.com/openai/openai-go/option"
)

// NewModel builds the model for a managed agent definition. Agents without a
// provider use the configured default.
func NewModel(p config.ProvidersConfig, ac config.AgentConfig) (model.Model, error) {
	provider := ac.Provider
	if provider == "" {
		provider = p.Default
	}

	switch provider {
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if ac.Model != "" {
				o.Model = ac.Model
			}
			if p.OpenAI.APIKey != "" {
				o.RequestOptions = append(o.RequestOptions, option.WithAPIKey(p.OpenAI.APIKey))
			}
			if p.OpenAI.BaseURL != "" {
				o.RequestOptions = append(o.RequestOptions, option.WithBaseURL(p.OpenAI.BaseURL))
			}
		}), nil
	case config.ProviderAzureOpenAI:
		az := p.AzureOpenAI
		deployment := az.Deployment
		if ac.Model != "" {
			deployment = ac.Model
		}
		if az.Endpoint == "" || deployment == "" {
			return nil, fmt.Errorf("agent %s: azure-openai needs an endpoint and a deployment", ac.Name)
		}
		return openai.NewAzureModel(az.Endpoint, az.APIKey, az.APIVersion, deployment), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = p.Anthropic.APIKey
			if ac.Model != "" {
				o.Model = anthropicsdk.Model(ac.Model)
			}
		}), nil
	case config.ProviderMock, "":
		name := ac.Model
		if name == "" {
			name = "mock-" + ac.Name
		}
		return model.NewMockModel(name, config.ProviderMock), nil
	default:
		return nil, fmt.Errorf("agent %s: unknown provider %q", ac.Name, provider)
	}
}

// NewManagedFromConfig builds a ManagedAgent from its definition, binding the
// named tools from tools.
func NewManagedFromConfig(p config.ProvidersConfig, ac config.AgentConfig, tools *tool.Set, logger logging.Logger) (*ManagedAgent, error) {
	llm, err := NewModel(p, ac)
	if err != nil {
		return nil, err
	}

	var bound []tool.Tool
	if len(ac.Tools) > 0 {
		if tools == nil {
			return nil, fmt.Errorf("agent %s: tools requested but none available", ac.Name)
		}
		if bound, err = tools.Select(ac.Tools...); err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.Name, err)
		}
	}

	return NewManagedAgent(ac.Name, llm, func(o *ManagedOptions) {
		if ac.Description != "" {
			o.Description = ac.Description
		}
		if ac.Instructions != "" {
			o.Instruction = NewInstructionFromText(ac.Instructions)
		}
		if ac.MaxTurns > 0 {
			o.MaxTurns = ac.MaxTurns
		}
		o.Temperature = ac.Temperature
		o.Tools = bound
		if logger != nil {
			o.Logger = logger
		}
	}), nil
}

// NewRegistryFromConfig registers a managed agent for every definition in cfg.
func NewRegistryFromConfig(cfg *config.Config, tools *tool.Set, logger logging.Logger) (*Registry, error) {
	r, _ := NewRegistry()
	for _, ac := range cfg.Agents {
		a, err := NewManagedFromConfig(cfg.Providers, ac, tools, logger)
		if err != nil {
			return nil, err
		}
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}
