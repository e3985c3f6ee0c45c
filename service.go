package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	configpkg "rdpso/simulator/internal/config"
	grpcapi "rdpso/simulator/internal/grpc"
	httpapi "rdpso/simulator/internal/http"
	"rdpso/simulator/internal/logging"
	"rdpso/simulator/internal/networking"
	"rdpso/simulator/internal/replay"
	"rdpso/simulator/internal/report"
	"rdpso/simulator/internal/simulation"
	"rdpso/simulator/internal/simulator"
	"rdpso/simulator/internal/store"
)

const (
	shutdownTimeout     = 10 * time.Second
	replaySweepInterval = 5 * time.Minute
	readHeaderTimeout   = 5 * time.Second
	// convergenceWindow bounds the samples kept for the live convergence chart.
	convergenceWindow = 5000
)

// service owns every long-lived component of the simulation host.
type service struct {
	cfg     *configpkg.Config
	log     *logging.Logger
	started time.Time

	engine  *Engine
	hub     *Hub
	ticks   *simulation.TickMonitor
	loop    *simulation.Loop
	handler http.Handler
	grpc    *grpc.Server
	cleaner *replay.Cleaner
	store   *store.Store
}

// loadSimConfig resolves the simulation config and its seed. Without an
// explicit seed or config file the seed is derived from the clock.
func loadSimConfig(cfg *configpkg.Config, now func() time.Time) (simulator.SimConfig, error) {
	simCfg := simulator.DefaultSimConfig()
	if cfg.SimConfigPath != "" {
		loaded, err := simulator.LoadFile(cfg.SimConfigPath)
		if err != nil {
			return simulator.SimConfig{}, err
		}
		simCfg = loaded
	}
	switch {
	case cfg.SeedSet:
		simCfg.Seed = cfg.Seed
	case cfg.SimConfigPath == "":
		simCfg.Seed = uint64(now().UnixNano())
	}
	return simCfg, nil
}

func newService(cfg *configpkg.Config, logger *logging.Logger) (*service, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if logger == nil {
		logger = logging.L()
	}
	//1.- Build the simulator from its own config file and seed.
	simCfg, err := loadSimConfig(cfg, time.Now)
	if err != nil {
		return nil, fmt.Errorf("load simulation config: %w", err)
	}
	sim, err := simulator.New(simCfg)
	if err != nil {
		return nil, fmt.Errorf("build simulator: %w", err)
	}

	svc := &service{cfg: cfg, log: logger, started: time.Now(), ticks: simulation.NewTickMonitor()}

	//2.- Stand up the viewer hub with its bandwidth regulator.
	snapshots := networking.NewSnapshotMetrics()
	bandwidth := networking.NewBandwidthRegulator(float64(cfg.ViewerBytesPerSecond), nil)
	svc.hub = NewHub(HubOptions{
		Logger:         logger.With(logging.String("component", "hub")),
		Metrics:        snapshots,
		Bandwidth:      bandwidth,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxClients:     cfg.MaxClients,
		MaxPayload:     cfg.MaxPayloadBytes,
		PingInterval:   cfg.PingInterval,
	})

	//3.- Wire the engine to every snapshot sink that is configured.
	convergence := report.NewConvergence(fmt.Sprintf("%s %s", simCfg.Ctx.Strategy, simCfg.Ctx.Goal))
	convergence.SetLimit(convergenceWindow)
	engineOpts := []EngineOption{
		WithEngineLogger(logger.With(logging.String("component", "engine"))),
		WithPublisher(svc.hub),
		WithConvergence(convergence),
	}
	if cfg.StorePath != "" {
		st, err := store.Open(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		svc.store = st
		engineOpts = append(engineOpts, WithStore(st))
	}
	if cfg.ReplayDir != "" {
		engineOpts = append(engineOpts, WithReplayRoot(cfg.ReplayDir))
	}
	svc.engine, err = NewEngine(sim, engineOpts...)
	if err != nil {
		svc.store.Close()
		return nil, err
	}
	if cfg.ReplayDir != "" {
		svc.cleaner = replay.NewCleaner(cfg.ReplayDir, replay.RetentionPolicy{MaxRuns: cfg.ReplayMaxRuns, MaxAge: cfg.ReplayMaxAge}, logger.With(logging.String("component", "replay_cleaner")))
		svc.cleaner.Protect(svc.engine.ActiveReplayDir)
	}

	//4.- Drive the engine from the fixed-rate loop.
	svc.loop = simulation.NewLoop(cfg.TickHz, svc.engine.Tick,
		simulation.WithMonitor(svc.ticks),
		simulation.WithErrorHandler(func(err error) error {
			// A failed step stops the loop; the service then shuts down.
			return fmt.Errorf("simulation loop: %w", err)
		}),
	)

	//5.- Mount the HTTP surface and, when enabled, the gRPC service.
	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:       logger.With(logging.String("component", "http")),
		Readiness:    svc,
		Controller:   svc.engine,
		Ticks:        svc.ticks,
		Snapshots:    snapshots,
		Bandwidth:    bandwidth,
		ReplayFrames: svc.engine.ReplayFrames,
		Convergence:  convergence,
		AdminToken:   cfg.AdminToken,
		RateLimiter:  httpapi.NewTokenBucketLimiter(cfg.ResetRate, cfg.ResetBurst, nil),
	})
	mux := http.NewServeMux()
	handlers.Register(mux)
	mux.HandleFunc("GET /ws", svc.hub.ServeWS)
	svc.handler = logging.HTTPTraceMiddleware(logger)(mux)

	if cfg.GRPCAddress != "" {
		opts, err := configureGRPCSecurity(cfg, logger)
		if err != nil {
			svc.engine.Close(context.Background())
			svc.store.Close()
			return nil, err
		}
		svc.grpc = grpc.NewServer(opts...)
		grpcapi.Register(svc.grpc, grpcapi.NewService(svc.engine))
	}
	return svc, nil
}

// SnapshotClientCounts implements httpapi.ReadinessProvider.
func (s *service) SnapshotClientCounts() (int, int) { return s.hub.SnapshotClientCounts() }

// StartupError implements httpapi.ReadinessProvider.
func (s *service) StartupError() error { return nil }

// Uptime implements httpapi.ReadinessProvider.
func (s *service) Uptime() time.Duration { return time.Since(s.started) }

// run serves until ctx is cancelled or a component fails, then shuts everything down.
func (s *service) run(ctx context.Context) error {
	httpListener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	var grpcListener net.Listener
	if s.grpc != nil {
		grpcListener, err = net.Listen("tcp", s.cfg.GRPCAddress)
		if err != nil {
			httpListener.Close()
			return fmt.Errorf("listen grpc: %w", err)
		}
	}
	return s.serve(ctx, httpListener, grpcListener)
}

func (s *service) serve(ctx context.Context, httpListener, grpcListener net.Listener) error {
	tlsEnabled := s.cfg.TLSCertPath != ""
	grpcAddr := ""
	if grpcListener != nil {
		grpcAddr = grpcListener.Addr().String()
	}
	urls := advertisedEndpoints(httpListener.Addr().String(), grpcAddr, tlsEnabled)
	s.log.Info("simulation service listening",
		logging.String("http", urls.HTTP),
		logging.String("viewer", urls.Viewer),
		logging.String("grpc", urls.GRPC),
		logging.String("run_id", s.engine.RunID()),
		logging.Duration("tick_interval", s.loop.Interval()),
	)

	//1.- Run every component under one errgroup so the first failure stops the rest.
	server := &http.Server{Handler: s.handler, ReadHeaderTimeout: readHeaderTimeout}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.loop.Run(gctx) })
	g.Go(func() error {
		var err error
		if tlsEnabled {
			err = server.ServeTLS(httpListener, s.cfg.TLSCertPath, s.cfg.TLSKeyPath)
		} else {
			err = server.Serve(httpListener)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	if s.grpc != nil {
		g.Go(func() error { return s.grpc.Serve(grpcListener) })
	}
	if s.cleaner != nil {
		g.Go(func() error { return s.cleaner.Run(gctx, replaySweepInterval) })
	}
	//2.- Drain viewers and subscribers before the servers stop.
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.hub.Close()
		s.engine.CloseSubscribers()
		if s.grpc != nil {
			s.grpc.GracefulStop()
		}
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	s.close()
	return err
}

func (s *service) close() {
	if err := s.engine.Close(context.Background()); err != nil {
		s.log.Warn("close engine failed", logging.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.log.Warn("close store failed", logging.Error(err))
	}
}
