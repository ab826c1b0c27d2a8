package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"crm-backend/internal/admin"
	"crm-backend/internal/auth"
	"crm-backend/internal/engine"
	"crm-backend/internal/instrument"
	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
	"crm-backend/internal/provider/memory"
	"crm-backend/internal/provider/rest"
	"crm-backend/internal/provider/sqldb"
	"crm-backend/internal/storage"
	"crm-backend/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

// backend is the base provider plus whatever has to be shut down with it.
type backend struct {
	provider provider.DataProvider
	db       *store.Store
	closers  []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, reg *metadata.Registry) (*backend, error) {
	log := logger.WithName("backend")
	switch cfg.Backend.Kind {
	case "", "memory":
		log.Info("using in-memory backend")
		return &backend{provider: memory.New(reg)}, nil

	case "sql":
		db, err := store.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.Bootstrap(ctx, reg.AllResources()); err != nil {
			db.Close()
			return nil, fmt.Errorf("bootstrap schema: %w", err)
		}
		if err := metadata.LoadRules(ctx, db.DB, reg, log); err != nil {
			log.Error(err, "failed to load stored rules")
		}
		log.Info("using sql backend", "driver", db.Dialect.Name())
		return &backend{provider: sqldb.New(db, reg, log), db: db, closers: []func(){db.Close}}, nil

	case "rest":
		p, err := rest.New(rest.Config{
			URL:        cfg.Backend.URL,
			APIKey:     cfg.Backend.APIKey,
			RateLimit:  cfg.Backend.RateLimit,
			RateBurst:  cfg.Backend.RateBurst,
			MaxRetries: cfg.Backend.MaxRetries,
			Timeout:    cfg.Backend.Timeout,
		}, reg, log)
		if err != nil {
			return nil, err
		}
		log.Info("using rest backend", "url", cfg.Backend.URL)
		return &backend{provider: p}, nil
	}
	return nil, fmt.Errorf("unknown backend kind %q", cfg.Backend.Kind)
}

func serve(ctx context.Context) error {
	reg := metadata.NewCRMRegistry()

	be, err := openBackend(ctx, reg)
	if err != nil {
		return err
	}
	defer be.Close()

	base := be.provider
	if _, err := provider.AsStorage(base); err != nil {
		base = provider.WithStorage(base, storage.NewLocalStorage(cfg.Storage.LocalPath, cfg.Storage.PublicURL))
	}

	var sink instrument.AuditSink = instrument.NoopSink{}
	var auditBuffer *instrument.AuditBuffer
	if cfg.Audit.Enabled {
		sink = instrument.LogSink{Log: logger.WithName("audit")}
		if be.db != nil {
			auditBuffer = instrument.NewAuditBuffer(be.db.DB, be.db.Dialect, logger.WithName("audit"), cfg.Audit.BufferSize, cfg.Audit.FlushIntervalMs)
			defer auditBuffer.Stop()
			sink = instrument.MultiSink{sink, auditBuffer}

			cleanup := instrument.NewCleanupScheduler(be.db.DB, be.db.Dialect, logger.WithName("audit"), cfg.Audit.RetentionDays, time.Hour)
			cleanup.Start()
			defer cleanup.Stop()
		}
	}

	resources, err := engine.NewResourceProvider(base, engine.HandlerOptions{
		Registry:           reg,
		Log:                logger.WithName("engine"),
		Audit:              sink,
		SensitiveResources: cfg.Audit.SensitiveResources,
	})
	if err != nil {
		return fmt.Errorf("compose handlers: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          engine.ErrorHandler(logger.WithName("http")),
		DisableStartupMessage: true,
		// Audit entries outlive the request, so params must not alias fasthttp buffers.
		Immutable: true,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "backend": cfg.Backend.Kind})
	})

	// Auth routes are public.
	auth.RegisterAuthRoutes(app, auth.NewAuthHandler(cfg.Auth))

	authMW := auth.AuthMiddleware(cfg.Auth.JWTSecret)

	if be.db != nil {
		admin.RegisterAdminRoutes(app, admin.NewHandler(be.db, reg, logger.WithName("admin")), authMW, auth.RequireAdmin())
	}

	if auditBuffer != nil {
		audit := instrument.NewAuditHandler(be.db.DB, be.db.Dialect)
		auditRoutes := app.Group("/api/_audit", authMW, auth.RequireAdmin())
		auditRoutes.Get("/", audit.List)
		auditRoutes.Get("/stats", audit.Stats)
	}

	if objects, err := provider.AsStorage(base); err == nil {
		engine.RegisterFileRoutes(app, engine.NewFileHandler(objects, cfg.Storage.MaxFileSize), authMW)
	}

	engine.RegisterDynamicRoutes(app, engine.NewHandler(resources, reg), authMW)

	errCh := make(chan error, 1)
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("starting server", "addr", addr)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	}
}
