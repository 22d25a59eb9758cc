// Package server runs one end of a frame channel: COMMS, the optional envelope journal,
// the channel itself and an HTTP health surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-metrics"

	"github.com/morezero/frame-channel/internal/config"
	"github.com/morezero/frame-channel/pkg/bootstrap"
	"github.com/morezero/frame-channel/pkg/channel"
	"github.com/morezero/frame-channel/pkg/commsutil"
	"github.com/morezero/frame-channel/pkg/db"
	"github.com/morezero/frame-channel/pkg/events"
	"github.com/morezero/frame-channel/pkg/transport"
)

const logPrefix = "server:server"

var errHandshakeTimeout = errors.New("server: no connect announcement before CHANNEL_HANDSHAKE_TIMEOUT")

// Server is the frame-channel orchestrator for one role.
type Server struct {
	cfg        *config.Config
	role       Role
	link       *link
	sink       *metrics.InmemSink
	checks     map[string]healthCheck
	httpServer *http.Server
}

// Run starts the endpoint for role, blocks until a shutdown signal, then cleans up.
func Run(role Role) error {
	if role != RoleFrame && role != RoleHost {
		return fmt.Errorf("%s - unknown role %q", logPrefix, role)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)
	slog.Info(fmt.Sprintf("%s - Starting frame-channel %s", logPrefix, role))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := &Server{cfg: cfg, role: role, link: &link{}, checks: make(map[string]healthCheck)}

	sink, m, err := newMetrics(cfg.COMMSName, cfg.MetricsInterval)
	if err != nil {
		return err
	}
	s.sink = sink

	// Step 1: COMMS, embedded when asked
	commsURL := cfg.COMMSURL
	if cfg.COMMSEmbedded {
		ns, err := commsutil.StartEmbedded("127.0.0.1", cfg.COMMSEmbeddedPort)
		if err != nil {
			return fmt.Errorf("%s - failed to start embedded COMMS: %w", logPrefix, err)
		}
		defer ns.Shutdown()
		commsURL = ns.ClientURL()
	}
	nc, err := commsutil.Connect(commsURL, fmt.Sprintf("%s-%s", cfg.COMMSName, role), nil)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	defer nc.Close()
	s.checks["comms"] = func(context.Context) error {
		if !nc.IsConnected() {
			return fmt.Errorf("connection %s", nc.Status())
		}
		return nil
	}

	frameSubject := commsutil.BuildInboxSubject(cfg.SubjectPrefix, cfg.FrameName)
	hostSubject := commsutil.BuildInboxSubject(cfg.SubjectPrefix, cfg.HostName)
	inbox := hostSubject
	if role == RoleFrame {
		inbox = frameSubject
	}

	natsT, err := transport.NewNATS(nc, inbox)
	if err != nil {
		return fmt.Errorf("%s - failed to open transport: %w", logPrefix, err)
	}
	defer natsT.Close()
	var t transport.Transport = natsT

	// Step 2: envelope journal
	if cfg.JournalEnabled() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		defer pool.Close()

		if cfg.RunMigrations {
			migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrations); err != nil {
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}

		journal, err := transport.NewJournal(natsT, db.NewRepository(pool), inbox, nil)
		if err != nil {
			return fmt.Errorf("%s - failed to start journal: %w", logPrefix, err)
		}
		defer journal.Close()
		t = journal
		s.checks["database"] = pool.Ping
		slog.Info(fmt.Sprintf("%s - Journaling envelopes for %s", logPrefix, inbox))
	}

	opts := &channel.Opts{
		MetricSink:   m,
		MetricLabels: []metrics.Label{{Name: "role", Value: string(role)}},
	}

	// Step 3: the channel
	switch role {
	case RoleFrame:
		publisher := events.NewCommsPublisher(nc, &events.CommsPublisherOpts{ConnectedSubject: cfg.ConnectedSubject})
		h, err := startFrame(ctx, frameParams{
			Transport:   t,
			HostSubject: hostSubject,
			Constraint:  cfg.ProtocolConstraint,
			Publisher:   publisher,
			Opts:        opts,
		}, s.link)
		if err != nil {
			return err
		}
		defer h.Stop()
		if cfg.HandshakeTimeout > 0 {
			go s.expireHandshake(ctx, h, cfg.HandshakeTimeout)
		}
		slog.Info(fmt.Sprintf("%s - Waiting for connect on %s", logPrefix, inbox))

	case RoleHost:
		initCfg, err := bootstrap.LoadInitConfig(cfg.InitFile)
		if err != nil {
			return fmt.Errorf("%s - failed to load init config: %w", logPrefix, err)
		}
		hp := hostParams{
			Transport:     t,
			FrameSubject:  frameSubject,
			HostSubject:   hostSubject,
			Init:          initCfg,
			Opts:          opts,
			RetryInterval: cfg.HealthCheckTimeout,
		}
		ch, frameID, err := startHost(hp)
		if err != nil {
			return err
		}
		defer ch.Close()
		sub, err := events.SubscribeConnected(nc, cfg.ConnectedSubject, frameID, func(e *events.ChannelConnectedEvent) {
			slog.Info(fmt.Sprintf("%s - Frame %s accepted protocol %s at %s", logPrefix, e.Source, e.Version, e.Timestamp))
		})
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()
		go func() {
			if err := announce(ctx, ch, frameID, hp, s.link); err != nil && ctx.Err() == nil {
				slog.Error(fmt.Sprintf("%s - %v", logPrefix, err))
			}
		}()
	}
	defer s.link.close()

	// Step 4: HTTP health server
	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	<-ctx.Done()
	slog.Info(fmt.Sprintf("%s - Shutting down %s", logPrefix, role))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HealthCheckTimeout)
	defer cancel()
	s.httpServer.Shutdown(shutdownCtx)

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// expireHandshake abandons the wait for connect after d.
func (s *Server) expireHandshake(ctx context.Context, h *channel.Handshake, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}
	stopped, err := h.Stop()
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to stop handshake: %v", logPrefix, err))
	}
	if !stopped {
		return
	}
	s.link.failed(errHandshakeTimeout)
	slog.Error(fmt.Sprintf("%s - %v", logPrefix, errHandshakeTimeout))
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}
