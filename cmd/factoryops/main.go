package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hupe1980/factoryops"
	"github.com/hupe1980/factoryops/a2a"
	"github.com/hupe1980/factoryops/capability"
	"github.com/hupe1980/factoryops/config"
	"github.com/hupe1980/factoryops/eventbus"
	"github.com/hupe1980/factoryops/logging"
	"github.com/hupe1980/factoryops/server"
	"github.com/hupe1980/factoryops/store"
	"github.com/hupe1980/factoryops/tool"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("factoryops %s\n", factoryops.Version)
	case "serve":
		err = runServe(os.Args[2:])
	case "peer":
		err = runPeer(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "factoryops %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: factoryops <command> [flags]

Commands:
  serve      Start the workflow HTTP server
  peer       Host one managed agent as an A2A peer
  version    Print version
`)
}

// deps bundles what both serve and peer need.
type deps struct {
	cfg      *config.Config
	logger   *logging.StructuredLogger
	db       *store.Store
	registry *capability.Registry
}

func setup() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewSlogLogger(level, cfg.Log.Format, false)

	db, err := store.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info("store.initialized", "path", cfg.Store.Path)

	tools := tool.NewMaintenanceTools(db, func(o *tool.MaintenanceOptions) {
		o.Windows = tool.WindowPolicy{
			Cron:        cfg.Maintenance.WindowCron,
			Duration:    cfg.Maintenance.WindowDuration,
			HorizonDays: cfg.Maintenance.HorizonDays,
		}
	})

	reg, err := capability.NewRegistryFromConfig(cfg, tools, logger.WithComponent("agent"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init agents: %w", err)
	}
	logger.Info("agents.registered", "agents", strings.Join(reg.Names(), ","))

	return &deps{cfg: cfg, logger: logger, db: db, registry: reg}, nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	embeddedNATS := fs.Bool("embedded-nats", false, "start an in-process NATS server and mirror run events to it")
	natsPort := fs.Int("nats-port", eventbus.RandomPort, "port of the embedded NATS server")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := setup()
	if err != nil {
		return err
	}
	defer d.db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	natsURL := d.cfg.Events.NATSURL
	if *embeddedNATS {
		bus, err := eventbus.StartEmbedded(*natsPort)
		if err != nil {
			return fmt.Errorf("init nats: %w", err)
		}
		defer bus.Close()
		natsURL = bus.ClientURL()
		d.logger.Info("nats.started", "url", natsURL)
	}

	var mirror server.Mirror
	if natsURL != "" {
		pub, err := eventbus.Connect(natsURL, func(o *eventbus.Options) {
			o.SubjectPrefix = d.cfg.Events.SubjectPrefix
			o.Logger = d.logger.WithComponent("eventbus")
		})
		if err != nil {
			return err
		}
		defer pub.Close()
		mirror = pub
	}

	orch := factoryops.NewFromConfig(d.cfg, d.registry, d.logger.WithComponent("orchestrator"))

	srv := server.New(orch, func(o *server.Options) {
		o.Addr = d.cfg.Server.Addr
		o.AllowedOrigins = d.cfg.Server.AllowedOrigins
		o.ShutdownTimeout = d.cfg.Server.ShutdownTimeout
		o.Mirror = mirror
		o.Logger = d.logger.WithComponent("server")
	})

	d.logger.Info("factoryops.starting", "version", factoryops.Version, "members", len(d.cfg.Members))
	return srv.ListenAndServe(ctx)
}

func runPeer(args []string) error {
	fs := flag.NewFlagSet("peer", flag.ContinueOnError)
	agentName := fs.String("agent", "", "name of the managed agent to host")
	addr := fs.String("addr", ":9001", "listen address")
	publicURL := fs.String("url", "", "public base URL advertised in the agent card (default http://localhost<addr>/)")
	streaming := fs.Bool("streaming", true, "advertise message/stream support")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *agentName == "" {
		return errors.New("-agent is required")
	}

	d, err := setup()
	if err != nil {
		return err
	}
	defer d.db.Close()

	c, err := d.registry.Resolve(context.Background(), *agentName)
	if err != nil {
		return err
	}
	info := c.Info()

	url := *publicURL
	if url == "" {
		url = "http://localhost" + *addr + "/"
	}

	card := a2a.AgentCard{
		Name:               info.Name,
		Description:        info.Description,
		URL:                url,
		Version:            factoryops.Version,
		ProtocolVersion:    "0.3.0",
		Capabilities:       a2a.AgentCapabilities{Streaming: *streaming},
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
	}
	if ac, ok := d.cfg.Agent(info.Name); ok {
		for _, t := range ac.Tools {
			card.Skills = append(card.Skills, a2a.AgentSkill{ID: t, Name: t})
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr: *addr,
		Handler: a2a.NewServer(c, card, func(o *a2a.ServerOptions) {
			o.Logger = d.logger.WithComponent("a2a")
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("peer.listening", "agent", info.Name, "addr", *addr, "url", url)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
