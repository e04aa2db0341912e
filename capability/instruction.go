package capability

import (
	"context"

	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/internal/util"
)

// Provider supplies instruction text at run time.
type Provider interface {
	Instruction(ctx context.Context, info core.CapabilityInfo) (string, error)
}

// Func adapts an ordinary function to Provider.
type Func func(ctx context.Context, info core.CapabilityInfo) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context, info core.CapabilityInfo) (string, error) {
	return f(ctx, info)
}

// Instruction is either a static template or a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a text/template string.
// The template sees .Name, .ID and .Description of the agent.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, info core.CapabilityInfo) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a template string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(ctx context.Context, info core.CapabilityInfo) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ctx, info)
	}
	return util.RenderTemplate(i.text, map[string]any{
		"Name":        info.Name,
		"ID":          info.ID,
		"Description": info.Description,
	})
}
