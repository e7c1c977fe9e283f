// Package server assembles the hub: record store, services, detection
// pipeline, background workers and the HTTP handler.
//
// Usage:
//
//	srv, err := server.New(ctx, cfg)
//	srv.Start(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/agentcontrol/hub/internal/api"
	"github.com/agentcontrol/hub/internal/api/handlers"
	"github.com/agentcontrol/hub/internal/chat"
	"github.com/agentcontrol/hub/internal/config"
	"github.com/agentcontrol/hub/internal/escalation"
	"github.com/agentcontrol/hub/internal/fanout"
	"github.com/agentcontrol/hub/internal/governance"
	"github.com/agentcontrol/hub/internal/ingest"
	"github.com/agentcontrol/hub/internal/judge"
	"github.com/agentcontrol/hub/internal/notify"
	"github.com/agentcontrol/hub/internal/risk"
	"github.com/agentcontrol/hub/internal/seed"
	"github.com/agentcontrol/hub/internal/sessions"
	"github.com/agentcontrol/hub/internal/sla"
	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/internal/telemetry"
	"github.com/agentcontrol/hub/internal/threat"
)

// Server holds the initialized hub.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	Store       store.Store
	Hub         *fanout.Hub
	Escalations *escalation.Manager
	Config      *config.Config

	watcher  *sla.Watcher
	notifier *notify.Notifier
	shutdown func(context.Context) error
}

// New initializes all components from cfg. Background workers do not run
// until Start is called.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		shutdown(ctx)
		return nil, err
	}

	hub := fanout.NewHub(fanout.DefaultQueueSize, fanout.DefaultMaxDrops)
	mgr := escalation.NewManager(dataStore, hub)

	threats := threat.NewService(dataStore)
	threats.OnCreated(mgr.OnThreatCreated)

	detectCfg := threat.DefaultConfig()
	detectCfg.DetectAnomaly = cfg.Detection.Anomaly
	detector := threat.NewDetector(threats, threat.DefaultRules(dataStore, detectCfg)...)

	sess := sessions.NewService(dataStore)
	scorer := risk.Scorer{Exclusive: cfg.Detection.ExclusiveScoring}
	recorder := ingest.NewRecorder(dataStore, sess, scorer, detector)

	h := &handlers.Handlers{
		Escalations: mgr,
		Chat:        chat.NewService(dataStore, hub),
		Sessions:    sess,
		Actions:     recorder,
		Threats:     threats,
		Judge:       judge.NewService(dataStore, mgr),
		Governance:  governance.NewAggregator(dataStore),
		Hub:         hub,
	}

	if cfg.SeedDemo {
		err := seed.Demo(ctx, seed.Services{
			Users:       dataStore,
			Sessions:    sess,
			Actions:     recorder,
			Threats:     threats,
			Escalations: mgr,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to seed demo data")
		}
	}

	log.Info().
		Str("store", cfg.Store.Kind).
		Bool("anomaly_detection", cfg.Detection.Anomaly).
		Bool("api_keys", len(cfg.Auth.APIKeys) > 0).
		Msg("Hub initialized")

	return &Server{
		Handler:     api.NewRouter(cfg, h),
		Store:       dataStore,
		Hub:         hub,
		Escalations: mgr,
		Config:      cfg,
		watcher:     sla.NewWatcher(dataStore, cfg.SLA.Interval, cfg.SLA.DueSoon),
		notifier: notify.New(hub, notify.Options{
			URLs:       cfg.Webhooks.URLs,
			Secret:     cfg.Webhooks.Secret,
			MaxElapsed: cfg.Webhooks.MaxElapsed,
		}),
		shutdown: shutdown,
	}, nil
}

// Start launches the SLA watcher and webhook notifier. They stop when ctx
// is cancelled.
func (s *Server) Start(ctx context.Context) {
	go s.watcher.Start(ctx)
	s.notifier.Start(ctx)
}

// Close flushes telemetry and closes the store.
func (s *Server) Close(ctx context.Context) error {
	return errors.Join(s.shutdown(ctx), s.Store.Close())
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Kind {
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrate postgres store: %w", err)
		}
		log.Info().Msg("PostgreSQL store initialized")
		return pg, nil
	default:
		s := store.NewMemoryStore(cfg.DataDir)
		log.Info().Str("data_dir", cfg.DataDir).Msg("In-memory store initialized")
		return s, nil
	}
}
