package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fantasta/go/internal/auction/coordinator"
	"github.com/mcdev12/fantasta/go/internal/auction/engine"
	"github.com/mcdev12/fantasta/go/internal/auction/gateway"
	"github.com/mcdev12/fantasta/go/internal/auction/replication"
	"github.com/mcdev12/fantasta/go/internal/auction/rpc"
	"github.com/mcdev12/fantasta/go/internal/auction/store"
	storedb "github.com/mcdev12/fantasta/go/internal/auction/store/db"
	"github.com/mcdev12/fantasta/go/internal/config"
)

type Services struct {
	Coordinator *coordinator.Coordinator
	RPC         *rpc.Service
	Connections *gateway.ConnectionManager

	// optional, nil when disabled
	Snapshots *store.SnapshotRepository
	Sales     *store.SalesLog
	Publisher *replication.Publisher
	Consumer  *replication.Consumer
	Authority *rpc.Client

	database *sql.DB
	pool     *pgxpool.Pool
	nc       *nats.Conn
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Storage → Engine → Coordinator → Transports
	s := &Services{}
	eng := engine.New(cfg.EngineOptions()...)
	role := cfg.Role()

	var version uint64
	var sinks []coordinator.EventSink
	if cfg.Database.Enabled {
		version = s.setupStore(ctx, cfg, eng, role)
		if s.Sales != nil {
			sinks = append(sinks, s.Sales)
		}
	}

	var forwarder coordinator.Forwarder
	if role == coordinator.RoleFollower {
		s.Authority = rpc.NewClient(&http.Client{Timeout: 10 * time.Second}, cfg.Server.AuthorityURL)
		forwarder = s.Authority
	}

	s.Coordinator = coordinator.New(ctx, eng, coordinator.Config{
		InstanceID:   cfg.Instance.ID,
		Role:         role,
		TickInterval: cfg.Auction.TickInterval,
		Forwarder:    forwarder,
		Sinks:        sinks,
		Version:      version,
	})

	if cfg.NATS.Enabled {
		if err := s.setupReplication(ctx, cfg); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.RPC = rpc.NewService(s.Coordinator)
	s.Connections = gateway.NewConnectionManager(s.Coordinator, gateway.DefaultConnectionConfig())
	return s, nil
}

// setupStore opens Postgres and restores the last snapshot. Any failure is
// logged and leaves the process running without persistence. It returns the
// version to seed the coordinator with.
func (s *Services) setupStore(ctx context.Context, cfg *config.Config, eng *engine.Engine, role coordinator.Role) uint64 {
	database, err := store.OpenDB(ctx, cfg.Database.Postgres)
	if err != nil {
		log.Error().Err(err).Msg("database unavailable, persistence disabled")
		return 0
	}
	if err := store.Migrate(ctx, database); err != nil {
		log.Error().Err(err).Msg("migration failed, persistence disabled")
		database.Close()
		return 0
	}
	s.database = database
	s.Snapshots = store.NewSnapshotRepository(storedb.New(database), cfg.Instance.AuctionID, cfg.Instance.ID)

	if cfg.Database.SalesLog {
		pool, err := store.OpenPool(ctx, cfg.Database.Postgres)
		if err != nil {
			log.Error().Err(err).Msg("sales log disabled")
		} else {
			s.pool = pool
			s.Sales = store.NewSalesLog(pool, cfg.Instance.AuctionID, cfg.Database.SalesBuffer)
		}
	}

	if !cfg.Database.Restore || role != coordinator.RoleAuthority {
		return 0
	}
	stored, err := s.Snapshots.Latest(ctx)
	switch {
	case errors.Is(err, store.ErrNoSnapshot):
		log.Info().Msg("no stored snapshot, starting fresh")
		return 0
	case err != nil:
		log.Error().Err(err).Msg("failed to load stored snapshot, starting fresh")
		return 0
	}
	if err := eng.Restore(stored.Snapshot); err != nil {
		log.Error().Err(err).Msg("stored snapshot rejected, starting fresh")
		return 0
	}

	log.Info().
		Uint64("version", stored.Version).
		Str("status", string(stored.Snapshot.Status)).
		Str("stored_by", stored.InstanceID).
		Msg("restored auction from stored snapshot")
	return stored.Version
}

func (s *Services) setupReplication(ctx context.Context, cfg *config.Config) error {
	jsCfg := cfg.JetStream()
	nc, js, err := replication.Connect(jsCfg)
	if err != nil {
		return err
	}
	s.nc = nc

	if err := replication.EnsureStream(ctx, js, jsCfg); err != nil {
		return fmt.Errorf("failed to ensure snapshot stream: %w", err)
	}

	s.Publisher = replication.NewPublisher(js, jsCfg, cfg.Instance.ID, nil)
	s.Consumer, err = replication.NewConsumer(ctx, js, jsCfg, cfg.Instance.ID, s.Coordinator)
	if err != nil {
		return fmt.Errorf("failed to create snapshot consumer: %w", err)
	}
	return nil
}

// Start launches the background workers that hang off the coordinator.
func (s *Services) Start(ctx context.Context) error {
	if s.Authority != nil {
		s.syncFromAuthority(ctx)
	}

	if s.Publisher != nil {
		go func() {
			if err := s.Publisher.Run(ctx, s.Coordinator); err != nil {
				log.Error().Err(err).Msg("snapshot publisher failed")
			}
		}()
	}
	if s.Consumer != nil {
		go func() {
			if err := s.Consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("snapshot consumer failed")
			}
		}()
	}

	if s.Snapshots != nil {
		go func() {
			if err := s.Snapshots.Run(ctx, s.Coordinator); err != nil {
				log.Error().Err(err).Msg("snapshot store failed")
			}
		}()
	}
	if s.Sales != nil {
		go s.Sales.Run(ctx)
	}

	go func() {
		if err := s.Connections.Start(ctx, "gateway"); err != nil {
			log.Error().Err(err).Msg("connection manager failed")
		}
	}()
	return nil
}

// syncFromAuthority seeds a follower with the authority's current state so it
// does not serve an empty auction until the first replicated snapshot.
func (s *Services) syncFromAuthority(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	remote, err := s.Authority.Snapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not fetch snapshot from authority")
		return
	}
	if err := s.Coordinator.ApplyRemote(ctx, remote); err != nil {
		log.Warn().Err(err).Msg("could not apply authority snapshot")
		return
	}
	log.Info().
		Str("authority_id", remote.InstanceID).
		Uint64("version", remote.Version).
		Msg("synced from authority")
}

// PersistenceEnabled reports whether every configured store is still writing.
func (s *Services) PersistenceEnabled() bool {
	if s.Snapshots == nil {
		return false
	}
	if s.Sales != nil && !s.Sales.Enabled() {
		return false
	}
	return s.Snapshots.Enabled()
}

func (s *Services) Close() {
	if s.Coordinator != nil {
		s.Coordinator.Stop()
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			log.Error().Err(err).Msg("failed to drain NATS connection")
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
}
