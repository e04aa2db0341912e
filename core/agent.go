package core

import "context"

// Kind identifies how a capability is invoked.
type Kind string

const (
	// KindManaged capabilities are resolved by name from a hosting registry.
	KindManaged Kind = "managed"
	// KindPeer capabilities are resolved from an agent card fetched over HTTP.
	KindPeer Kind = "peer"
)

// CapabilityInfo carries identifying details about a resolved capability.
type CapabilityInfo struct {
	Name        string
	ID          string
	Kind        Kind
	Description string
}

// Capability is one pipeline participant. The orchestrator treats it as an
// opaque reasoning unit: it receives text and emits Events until done.
//
// Run returns immediately. The events channel is closed once the capability
// has finished; the error channel carries at most one terminal error and is
// closed afterwards. Implementations must stop promptly when ctx is cancelled.
// Each call starts from fresh conversation state.
type Capability interface {
	Info() CapabilityInfo
	Run(ctx context.Context, input string) (<-chan Event, <-chan error)
}

// Resolver resolves a pipeline member descriptor (a name for managed agents,
// a base URL for peers) into a Capability. Failures are *ResolutionError.
type Resolver interface {
	Resolve(ctx context.Context, descriptor string) (Capability, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, descriptor string) (Capability, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, descriptor string) (Capability, error) {
	return f(ctx, descriptor)
}
