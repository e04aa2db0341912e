package eventbus

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// RandomPort asks the embedded server to pick a free port.
const RandomPort = natsserver.RANDOM_PORT

// Embedded is an in-process NATS server, used by tests and by
// `serve --embedded-nats`.
type Embedded struct {
	server *natsserver.Server
}

// StartEmbedded starts a NATS server on port and waits until it accepts
// connections.
func StartEmbedded(port int) (*Embedded, error) {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready")
	}

	return &Embedded{server: ns}, nil
}

func (e *Embedded) ClientURL() string {
	return e.server.ClientURL()
}

func (e *Embedded) Close() {
	e.server.Shutdown()
	e.server.WaitForShutdown()
}
