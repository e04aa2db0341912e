// Package tool implements the function / tool calling subsystem that lets
// managed agents invoke structured capabilities (data access, computations,
// side-effects) with schema validated arguments and consistent error handling.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/factoryops/internal/util"
)

// Tool defines the interface for extending managed agents with external functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names (snake_case) and descriptions
//   - Define a JSON schema for parameters
//   - Return errors rather than panicking
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description provided to the model.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with arguments parsed from the model's JSON payload.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Set is an ordered, name-indexed collection of tools.
type Set struct {
	order []string
	tools map[string]Tool
}

// NewSet builds a Set; later tools with a duplicate name replace earlier ones.
func NewSet(tools ...Tool) *Set {
	s := &Set{tools: map[string]Tool{}}
	for _, t := range tools {
		s.Add(t)
	}
	return s
}

// Add registers t.
func (s *Set) Add(t Tool) {
	if _, ok := s.tools[t.Name()]; !ok {
		s.order = append(s.order, t.Name())
	}
	s.tools[t.Name()] = t
}

// Get returns the tool registered under name.
func (s *Set) Get(name string) (Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Select returns the named tools in the requested order.
func (s *Set) Select(names ...string) ([]Tool, error) {
	out := make([]Tool, 0, len(names))
	for _, n := range names {
		t, ok := s.tools[n]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", n)
		}
		out = append(out, t)
	}
	return out, nil
}

// Names returns tool names in registration order.
func (s *Set) Names() []string { return append([]string(nil), s.order...) }
