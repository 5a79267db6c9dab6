// Package service assembles the command service from its configuration: the
// request journal, the simulated host and its frame loop, the scheduler and
// the HTTP front.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tepel-chen/demil/internal/api"
	"github.com/tepel-chen/demil/internal/config"
	"github.com/tepel-chen/demil/internal/conn"
	"github.com/tepel-chen/demil/internal/engine"
	"github.com/tepel-chen/demil/internal/host"
	"github.com/tepel-chen/demil/internal/pack"
	"github.com/tepel-chen/demil/internal/store"
)

const seedTimeout = 5 * time.Second

// Service is a wired command service.
type Service struct {
	logger   *slog.Logger
	store    *store.SQLiteStore
	journal  *store.Journal
	sim      *host.Sim
	repo     *pack.Repository
	acceptor *conn.HTTPAcceptor
	engine   *engine.Engine
	server   *api.Server
	loop     *host.Loop

	closeOnce sync.Once
	closeErr  error
}

// New opens the database and builds every component. Close releases the
// database if Run is never called.
func New(cfg config.Config, logger *slog.Logger) (*Service, error) {
	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if len(cfg.IgnoredSteamIDs) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
		err := db.AddIgnored(ctx, cfg.IgnoredSteamIDs...)
		cancel()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("seed ignore list: %w", err)
		}
	}

	workshop := cfg.WorkshopDir
	if workshop == "" {
		workshop = pack.DefaultWorkshopDir()
	}
	if workshop == "" {
		logger.Warn("no workshop directory found, packages cannot be loaded")
	}

	sim := host.NewSim(host.SimConfig{
		MaxModules:          cfg.Host.MaxModules,
		MaxFrontFaceModules: cfg.Host.MaxFrontFaceModules,
		MultipleBombs:       cfg.Host.MultipleBombs,
		MaxBombs:            cfg.Host.MaxBombs,
		Modules:             cfg.Host.Modules,
		Version:             cfg.Host.Version,
		HostVersion:         cfg.Host.HostVersion,
		RunFrames:           cfg.Host.RunFrames,
		CommitDelay:         cfg.Host.CommitDelay,
	})
	if p := host.Phase(cfg.Host.Phase); p != "" && p != host.PhaseSetup {
		sim.SetPhase(p)
	}

	repo := pack.NewRepository(workshop, logger)
	journal := store.NewJournal(db, store.DefaultJournalBuffer, logger)
	writer := engine.NewResponseWriter(nil, journal, sim.Version, logger)
	acceptor := conn.NewHTTPAcceptor(cfg.Backlog, logger)

	cmds := api.NewCommands(api.CommandsConfig{
		Repo:    repo,
		Host:    sim,
		Store:   db,
		Port:    cfg.Port(),
		Ignored: cfg.IgnoredSteamIDs,
		Logger:  logger,
	})
	eng := engine.New(acceptor, api.NewRouter(cmds), writer, logger)

	server := api.NewServer(api.ServerConfig{
		Addr:      cfg.ListenAddr,
		Commands:  acceptor,
		Broker:    writer.Broker(),
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		Logger:    logger,
	})

	loop := host.NewLoop(cfg.TickInterval, logger)
	loop.OnFrame(sim.Frame)
	loop.OnFrame(eng.Tick)
	loop.OnShutdown(eng.Shutdown)
	loop.OnShutdown(acceptor.Close)
	loop.OnShutdown(journal.Close)

	logger.Info("service configured",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"workshop_dir", workshop,
		"tick_interval", cfg.TickInterval.String(),
		"backlog", cfg.Backlog,
	)

	return &Service{
		logger:   logger,
		store:    db,
		journal:  journal,
		sim:      sim,
		repo:     repo,
		acceptor: acceptor,
		engine:   eng,
		server:   server,
		loop:     loop,
	}, nil
}

// Run serves HTTP and drives the host loop until ctx is cancelled or either
// fails, then closes the database.
func (s *Service) Run(ctx context.Context) error {
	defer s.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.server.Run(gctx)
	})
	g.Go(func() error {
		return s.loop.Run(gctx)
	})
	return g.Wait()
}

// Close stops the journal and closes the database. It is safe to call more
// than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.journal.Close()
		s.closeErr = s.store.Close()
	})
	return s.closeErr
}

// Handler returns the HTTP handler of the service.
func (s *Service) Handler() http.Handler {
	return s.server.Router()
}

// Host returns the simulated host.
func (s *Service) Host() *host.Sim {
	return s.sim
}

// Store returns the request journal store.
func (s *Service) Store() store.Store {
	return s.store
}

// Journal returns the request journal.
func (s *Service) Journal() *store.Journal {
	return s.journal
}
