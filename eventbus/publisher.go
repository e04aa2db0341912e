// Package eventbus mirrors the wire events of pipeline runs to NATS so other
// services can follow runs without holding an HTTP stream.
package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/logging"
	"github.com/hupe1980/factoryops/transcode"
)

const DefaultSubjectPrefix = "factoryops"

type Options struct {
	SubjectPrefix string
	Logger        logging.Logger
}

// Publisher publishes run events on `<prefix>.run.<runID>.<event>`.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger logging.Logger
}

// Connect dials the NATS server at url.
func Connect(url string, optFns ...func(o *Options)) (*Publisher, error) {
	opts := Options{
		SubjectPrefix: DefaultSubjectPrefix,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	conn, err := nats.Connect(url, nats.Name("factoryops"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	opts.Logger.Info("eventbus.connected", "url", conn.ConnectedUrl(), "prefix", opts.SubjectPrefix)

	return &Publisher{conn: conn, prefix: opts.SubjectPrefix, logger: opts.Logger}, nil
}

// PublishEvent publishes one wire event of a run.
func (p *Publisher) PublishEvent(runID string, ev transcode.Event) error {
	data, err := ev.Payload()
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Name, err)
	}
	return p.conn.Publish(SubjectRunEvent(p.prefix, runID, ev.Name), data)
}

// PublishResult publishes the aggregate response of a batch run.
func (p *Publisher) PublishResult(runID string, resp *core.WorkflowResponse) error {
	data, err := json.Marshal(transcode.NewResponse(resp))
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return p.conn.Publish(SubjectRunResult(p.prefix, runID), data)
}

// Subscribe delivers every message published for runID to handler.
func (p *Publisher) Subscribe(runID string, handler func(msg *nats.Msg)) (*nats.Subscription, error) {
	return p.conn.Subscribe(SubjectRunAll(p.prefix, runID), handler)
}

func (p *Publisher) Flush() error {
	return p.conn.Flush()
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("eventbus.drain_failed", "error", err)
		p.conn.Close()
	}
}
