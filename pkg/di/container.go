package di

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/majo1520/IT-STOCK-sub001/cache"
	"github.com/majo1520/IT-STOCK-sub001/internal/config"
	"github.com/majo1520/IT-STOCK-sub001/internal/httpapi"
	"github.com/majo1520/IT-STOCK-sub001/invalidation"
	"github.com/majo1520/IT-STOCK-sub001/itemview"
	"github.com/majo1520/IT-STOCK-sub001/push"
	"github.com/majo1520/IT-STOCK-sub001/reconcile"
	"github.com/majo1520/IT-STOCK-sub001/store"
)

// Container wires the refresh and invalidation subsystem. It holds singleton
// instances of every component; in particular the push manager exists exactly
// once and is passed by reference to everything that broadcasts, there is no
// process-wide registry.
type Container struct {
	cfg config.Config
	db  *bun.DB
	log zerolog.Logger

	builder     *itemview.Builder
	coordinator *itemview.Coordinator
	manager     *push.Manager
	broadcaster *invalidation.Broadcaster
	items       *store.ItemService
	server      *httpapi.Server

	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
}

// New builds the full component graph on top of an opened database handle.
func New(cfg config.Config, db *bun.DB, logger zerolog.Logger) (*Container, error) {
	cacheService, err := cache.NewCacheService(cfg.Cache)
	if err != nil {
		return nil, err
	}

	builder := itemview.NewBuilder(db, logger)
	coordinator := itemview.NewCoordinator(builder, logger, cfg.RebuildTimeout)
	manager := push.NewManager(logger, cfg.HeartbeatInterval)
	broadcaster := invalidation.NewBroadcaster(manager, logger, cfg.EventQueueSize)
	items := store.NewItemService(db, coordinator, broadcaster, builder, logger)
	wsHandler := push.NewHandler(manager, logger, cfg.PushWriteTimeout)
	server := httpapi.NewServer(items, coordinator, broadcaster, manager, wsHandler, logger)

	return &Container{
		cfg:           cfg,
		db:            db,
		log:           logger,
		builder:       builder,
		coordinator:   coordinator,
		manager:       manager,
		broadcaster:   broadcaster,
		items:         items,
		server:        server,
		cacheService:  cacheService,
		keySerializer: cache.NewDefaultKeySerializer(),
	}, nil
}

// Start materializes the projection if needed and launches the background
// loops: event dispatch and the push channel heartbeat. They stop when ctx
// is cancelled.
func (c *Container) Start(ctx context.Context) error {
	if err := c.builder.Create(ctx); err != nil {
		return err
	}
	c.broadcaster.Start(ctx)
	c.manager.StartHeartbeat(ctx)
	return nil
}

// Handler returns the HTTP surface: API routes, admin refresh endpoint,
// push channel, health probe.
func (c *Container) Handler() http.Handler { return c.server }

// Items returns the mutation API.
func (c *Container) Items() *store.ItemService { return c.items }

// Coordinator returns the refresh coordinator.
func (c *Container) Coordinator() *itemview.Coordinator { return c.coordinator }

// PushManager returns the connection registry.
func (c *Container) PushManager() *push.Manager { return c.manager }

// Broadcaster returns the invalidation broadcaster.
func (c *Container) Broadcaster() *invalidation.Broadcaster { return c.broadcaster }

// NewReconciler builds a client-side reconciler reading canonical codes
// through this container's cache service. Each client process owns one.
func (c *Container) NewReconciler(source reconcile.CodeSource) *reconcile.Reconciler {
	return reconcile.NewReconciler(source, c.cacheService, c.keySerializer, c.log, c.cfg.ReconcileStartupDelay)
}
