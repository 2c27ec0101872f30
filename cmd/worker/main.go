package main

import (
	"context"
	"flag"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"renderworker/internal/adapters/storage/localfs"
	"renderworker/internal/config"
	"renderworker/internal/dispatch"
	"renderworker/internal/gles"
	"renderworker/internal/gles/native"
	"renderworker/internal/gles/soft"
	"renderworker/internal/httpapi"
	"renderworker/internal/identity"
	"renderworker/internal/pkg/errors"
	"renderworker/internal/pkg/logger"
	"renderworker/internal/pkg/shutdown"
	"renderworker/internal/repositories"
	"renderworker/internal/storage"
	"renderworker/internal/worker"
	"renderworker/internal/worker/archive"
)

func main() {
	resetIdentity := flag.Bool("reset-identity", false, "forget the persisted worker names and exit")
	flag.Parse()

	log := logger.NewDefault()

	cfg, err := config.Load(nil)
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}
	log.Info("starting render worker",
		"slots", cfg.Worker.Slots,
		"transport", cfg.Dispatch.Transport,
		"identity_store", cfg.Identity.Store,
		"storage", cfg.Storage.Provider,
		"graphics_device", cfg.Graphics.Device,
	)

	shutdownMgr := shutdown.NewManager(log, 30*time.Second)
	ctx := shutdownMgr.Context()

	// ---- POSTGRES (optional) ----
	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		log.Info("connecting to PostgreSQL")
		pool, err = repositories.Open(ctx, cfg.Database.URL)
		if err != nil {
			log.LogFatal("failed to connect to PostgreSQL", err)
		}
		shutdownMgr.RegisterSimple("postgres", pool.Close)
		if err := repositories.Migrate(ctx, pool); err != nil {
			log.LogFatal("failed to migrate database", err)
		}
		log.Info("PostgreSQL connected")
	}

	// ---- STORAGE ----
	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	if sp != nil {
		log.Info("storage provider initialized", "provider", sp.Provider())
	}

	// ---- IDENTITY ----
	store, err := identityStore(cfg, pool)
	if err != nil {
		log.LogFatal("failed to initialize identity store", err)
	}
	if *resetIdentity {
		if err := identity.Reset(ctx, store, cfg.Worker.Slots); err != nil {
			log.LogFatal("failed to reset worker identities", err)
		}
		log.Info("worker identities cleared", "slots", cfg.Worker.Slots)
		return
	}

	// ---- DISPATCH ----
	client, err := dispatchClient(cfg, shutdownMgr, log)
	if err != nil {
		log.LogFatal("failed to initialize dispatch client", err)
	}

	// ---- ARCHIVE ----
	var results archive.ResultStore
	if pool != nil {
		results = repositories.NewResultRepository(pool)
	}
	arch := archive.New(sp, results, log)

	// ---- WORKER ----
	workers := worker.NewPool(worker.Deps{
		Log:        log,
		Config:     cfg,
		Client:     client,
		Identities: store,
		Archive:    arch,
		OpenDevice: openDevice(cfg.Graphics),
	})
	shutdownMgr.RegisterSimple("worker", workers.Stop)

	// ---- STATUS API ----
	if cfg.HTTP.Addr != "" {
		deps := httpapi.Deps{Log: log, Slots: workers, SP: sp}
		if pool != nil {
			deps.DB = pool
			deps.Results = repositories.NewResultRepository(pool)
		}
		if p, ok := client.(dispatch.Pinger); ok {
			deps.Dispatch = p
		}

		server := &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      httpapi.NewRouter(deps),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		shutdownMgr.Register("http-server", func(ctx context.Context) error {
			log.Info("shutting down HTTP server")
			return server.Shutdown(ctx)
		})

		go func() {
			log.Info("HTTP server listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.LogFatal("HTTP server failed", err)
			}
		}()
	}

	go func() {
		if err := workers.Run(ctx); err != nil {
			log.LogError(ctx, "worker pool failed", err)
		}
		shutdownMgr.Trigger("worker slots exited")
	}()

	shutdownMgr.Wait(context.Background())
}

// openDevice returns the per-slot device constructor for g.Device. Each slot
// gets its own device so a lost context never takes down its neighbours.
func openDevice(g config.Graphics) func(slot int) (gles.Device, error) {
	if g.Device == config.DeviceSoft {
		return func(int) (gles.Device, error) {
			return soft.New(soft.Options{
				Vendor:       "renderworker",
				Renderer:     "soft rasterizer",
				Antialiasing: g.Antialiasing,
				StepBudget:   int64(g.StepBudget),
			}), nil
		}
	}
	return func(int) (gles.Device, error) {
		return native.New(native.Options{Antialiasing: g.Antialiasing})
	}
}

func identityStore(cfg config.Config, pool *pgxpool.Pool) (identity.Store, error) {
	switch cfg.Identity.Store {
	case config.IdentityMemory:
		return identity.NewMemoryStore(), nil
	case config.IdentityPostgres:
		if pool == nil {
			return nil, errors.Validationf("identity store %q needs DATABASE_URL", cfg.Identity.Store)
		}
		return identity.NewPostgresStore(repositories.NewIdentityRepository(pool)), nil
	default:
		return identity.NewObjectStore(localfs.New(cfg.Identity.StateDir)), nil
	}
}

func dispatchClient(cfg config.Config, shutdownMgr *shutdown.Manager, log *logger.Logger) (dispatch.Client, error) {
	switch cfg.Dispatch.Transport {
	case config.TransportRedis:
		log.Info("connecting to Redis", "addr", cfg.Dispatch.RedisAddr)
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Dispatch.RedisAddr})
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		return dispatch.NewRedisClient(rdb), nil
	case config.TransportHTTP:
		return dispatch.NewHTTPClient(cfg.Dispatch.URL, cfg.Dispatch.Timeout), nil
	default:
		return nil, errors.Validationf("unknown dispatch transport: %s", cfg.Dispatch.Transport)
	}
}
