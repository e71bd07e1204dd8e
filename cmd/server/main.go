package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"flowgate/internal/api"
	"flowgate/internal/auth"
	"flowgate/internal/config"
	"flowgate/internal/engine"
	"flowgate/internal/logging"
	"flowgate/internal/mcp"
	"flowgate/internal/repository"
	"flowgate/internal/services"
	"flowgate/internal/tls"
	"flowgate/pkg/models"
)

func main() {
	root := &cobra.Command{
		Use:   "flowgate",
		Short: "Workflow activation and review-gate orchestration service",
	}
	root.AddCommand(serveCmd(), sweepCmd(), seedCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

// app bundles everything the subcommands share.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	pool    *pgxpool.Pool
	store   *repository.PostgresStore
	sync    *services.SyncService
	reviews *services.ReviewService
	sweeper *services.Sweeper
	audit   *services.AuditService
}

func initApp(ctx context.Context) (*app, error) {
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration loading failed: %w", err)
	}
	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"engine_url", cfg.Engine.URL,
		"retention_days", cfg.Audit.RetentionDays,
	)

	pool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("database initialization failed: %w", err)
	}
	logger.Info("Database connected")

	store := repository.NewPostgresStore(pool, logger)

	client := engine.NewHTTPClient(cfg.Engine.URL, cfg.Engine.APIKey, cfg.EngineTimeout())

	auditSvc := services.NewAuditService(store, logger, cfg.Audit.RetentionDays)
	dispatcher := services.NewResumeDispatcher(client, auditSvc, logger)
	syncSvc := services.NewSyncService(store, client, auditSvc, logger)
	reviewSvc := services.NewReviewService(store, dispatcher, auditSvc, logger)
	sweeper := services.NewSweeper(store, auditSvc, logger, cfg.StaleExecutionAge())

	logger.Info("Service layer initialized")

	return &app{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		store:   store,
		sync:    syncSvc,
		reviews: reviewSvc,
		sweeper: sweeper,
		audit:   auditSvc,
	}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer a.pool.Close()

			// Initialize authentication
			authz, err := auth.New(ctx, a.cfg, a.store, a.logger)
			if err != nil {
				return fmt.Errorf("auth initialization failed: %w", err)
			}

			e := echo.New()
			e.HideBanner = true
			e.Use(middleware.Logger())
			e.Use(middleware.Recover())

			authed := echo.WrapMiddleware(authz.RequireAuth)

			apiServer := &api.Server{
				Sync:          a.sync,
				Reviews:       a.reviews,
				Sweeper:       a.sweeper,
				Audit:         a.audit,
				Logger:        a.logger,
				WebhookSecret: a.cfg.Webhook.Secret,
				CleanupSecret: a.cfg.Cleanup.Secret,
			}
			apiServer.RegisterRoutes(e, authed)
			a.logger.Info("REST API handlers mounted")

			// Mount MCP tools for AI workers, behind the same auth boundary
			mcpServer := mcp.NewServer(a.reviews)
			mcpHandlers := http.NewServeMux()
			mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
			e.Any("/mcp/*", echo.WrapHandler(mcpHandlers), authed)
			e.Any("/mcp", echo.WrapHandler(mcpHandlers), authed)
			a.logger.Info("MCP protocol handlers mounted")

			return runServer(a.cfg, a.logger, e)
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one cleanup sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer a.pool.Close()

			result, err := a.sweeper.Run(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("Sweep complete",
				"expired_reviews", result.ExpiredReviews,
				"failed_executions", result.FailedExecutions,
				"reaped_executions", result.ReapedExecutions,
			)
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the schema and a sample organization with a draft workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer a.pool.Close()

			if err := a.store.Migrate(ctx); err != nil {
				return err
			}
			a.logger.Info("Schema ready")

			domain := "localhost"
			org, err := a.store.GetOrganizationByDomain(ctx, domain)
			if err != nil {
				a.logger.Info("Creating default organization", "domain", domain)
				org = &models.Organization{Name: "Local Dev Org", Domain: domain}
				if err := a.store.CreateOrganization(ctx, org); err != nil {
					return err
				}
			} else {
				a.logger.Info("Found existing organization", "id", org.ID)
			}

			workflow := &models.Workflow{
				OrganizationID: org.ID,
				Name:           "Sample onboarding process",
				Status:         models.WorkflowStatusDraft,
				Steps: []models.Step{
					{Name: "New request received", Type: models.StepTypeTrigger, Position: 0},
					{
						Name:       "Draft response",
						Type:       models.StepTypeAction,
						Position:   1,
						Assignment: &models.Assignment{Kind: models.AssigneeAI, AssigneeID: "drafting-agent"},
						Requirements: &models.Requirements{
							AllowedActions: []string{"read_request", "write_draft"},
						},
					},
					{
						Name:       "Manager sign-off",
						Type:       models.StepTypeDecision,
						Position:   2,
						Assignment: &models.Assignment{Kind: models.AssigneeHuman, AssigneeID: "manager"},
					},
					{Name: "Done", Type: models.StepTypeEnd, Position: 3},
				},
			}
			if err := a.store.CreateWorkflow(ctx, workflow); err != nil {
				return err
			}
			a.logger.Info("Seeded sample workflow", "id", workflow.ID)
			return nil
		},
	}
}

func runServer(cfg *config.Config, logger *logging.Logger, e *echo.Echo) error {
	addr := ":8080"
	if cfg.TLS.Enable {
		addr = ":8443"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				serverErrors <- server.ListenAndServe()
				return
			}
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
				if len(cfg.TLS.Hostnames) > 0 {
					if err := tls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
						logger.Error("failed to generate self-signed cert", "error", err)
					}
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
	return nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
