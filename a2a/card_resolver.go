package a2a

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/logging"
)

// CardResolverOptions configures a CardResolver.
type CardResolverOptions struct {
	HTTPClient *http.Client
	Logger     logging.Logger
}

// CardResolver resolves peer base URLs to RemoteAgents by fetching their
// agent cards.
type CardResolver struct {
	hc     *http.Client
	logger logging.Logger
}

var _ core.Resolver = (*CardResolver)(nil)

// NewCardResolver creates a CardResolver.
func NewCardResolver(optFns ...func(o *CardResolverOptions)) *CardResolver {
	opts := CardResolverOptions{
		HTTPClient: &http.Client{},
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &CardResolver{hc: opts.HTTPClient, logger: opts.Logger}
}

// Resolve fetches the agent card at baseURL and returns a capability that
// talks to the peer. Failures are *core.ResolutionError.
func (r *CardResolver) Resolve(ctx context.Context, baseURL string) (core.Capability, error) {
	card, err := r.GetAgentCard(ctx, baseURL)
	if err != nil {
		return nil, err
	}

	return NewRemoteAgent(*card, func(o *RemoteAgentOptions) {
		o.HTTPClient = r.hc
		o.Logger = r.logger
	}), nil
}

// GetAgentCard fetches the agent card published under baseURL, falling back
// to the legacy well-known path when the current one is missing.
func (r *CardResolver) GetAgentCard(ctx context.Context, baseURL string) (*AgentCard, error) {
	base := strings.TrimRight(baseURL, "/")

	card, status, err := r.fetch(ctx, base+AgentCardPath)
	if status == http.StatusNotFound {
		r.logger.Debug("a2a.card.legacy_path", "url", base)
		card, _, err = r.fetch(ctx, base+LegacyAgentCardPath)
	}
	if err != nil {
		return nil, core.NewResolutionError(reasonOf(err), baseURL, err)
	}

	if err := card.Validate(); err != nil {
		return nil, core.NewResolutionError(core.InvalidDescriptor, baseURL, err)
	}

	r.logger.Info("a2a.card.resolved", "url", base, "agent", card.Name, "streaming", card.Capabilities.Streaming)

	return card, nil
}

// descriptorError marks failures caused by the card itself rather than the
// transport.
type descriptorError struct{ err error }

func (e *descriptorError) Error() string { return e.err.Error() }
func (e *descriptorError) Unwrap() error { return e.err }

func reasonOf(err error) core.ResolutionReason {
	if _, ok := err.(*descriptorError); ok {
		return core.InvalidDescriptor
	}
	return core.Unreachable
}

func (r *CardResolver) fetch(ctx context.Context, targetURL string) (*AgentCard, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, http.NoBody)
	if err != nil {
		return nil, 0, &descriptorError{err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.hc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch agent card: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("fetch agent card from %s: status %d", targetURL, resp.StatusCode)
	}

	var card AgentCard
	dec := jsontext.NewDecoder(resp.Body)
	if err := json.UnmarshalDecode(dec, &card, json.DefaultOptionsV2()); err != nil {
		return nil, resp.StatusCode, &descriptorError{err: fmt.Errorf("decode agent card: %w", err)}
	}

	return &card, resp.StatusCode, nil
}
