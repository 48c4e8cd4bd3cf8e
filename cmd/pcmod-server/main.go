package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dr-abraham74/paracetamol-OD/internal/config"
	"github.com/dr-abraham74/paracetamol-OD/internal/domain/assessment"
	"github.com/dr-abraham74/paracetamol-OD/internal/platform/auth"
	"github.com/dr-abraham74/paracetamol-OD/internal/platform/db"
	"github.com/dr-abraham74/paracetamol-OD/internal/platform/middleware"
	"github.com/dr-abraham74/paracetamol-OD/internal/platform/telemetry"
)

const version = "0.1.0"

// metricsObserver feeds assessment outcomes into the metrics registry.
type metricsObserver struct {
	metrics *telemetry.Metrics
}

func (o *metricsObserver) DecisionMade(rec assessment.Recommendation) {
	o.metrics.IncDecision(string(rec))
}

func (o *metricsObserver) IndicationEvaluated(indicated bool) {
	o.metrics.IncIndication(indicated)
}

func (o *metricsObserver) ContinuationEvaluated(continued bool) {
	o.metrics.IncContinuation(continued)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "pcmod-server",
		Short: "Paracetamol overdose decision support",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(assessCmd())
	rootCmd.AddCommand(paramsCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the assessment API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func paramsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "Print the effective clinical parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			params := cfg.AssessmentParameters()
			if err := params.Validate(); err != nil {
				return err
			}
			renderParameters(cmd.OutOrStdout(), params)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL must be set to run migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	})

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// Session store: Postgres when configured, in-memory otherwise.
	var (
		store assessment.FlowStore
		pool  *pgxpool.Pool
	)
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		applied, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
		logger.Info().Int("applied", applied).Msg("database ready")

		store = assessment.NewPGFlowStoreFromPool(pool, cfg.SessionTTL())

		// Expired rows are filtered on read; this sweep keeps the table from
		// accumulating them.
		sweepCtx, sweepCancel := context.WithCancel(ctx)
		defer sweepCancel()
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-sweepCtx.Done():
					return
				case <-ticker.C:
					if err := store.Cleanup(sweepCtx); err != nil {
						logger.Error().Err(err).Msg("session sweep failed")
					}
				}
			}
		}()
	} else {
		logger.Warn().Msg("DATABASE_URL not set; sessions are in-memory and lost on restart")
		mem := assessment.NewMemoryFlowStore(cfg.SessionTTL())
		defer mem.Close()
		store = mem
	}

	// Clinical engine and service
	engine, err := assessment.NewEngine(cfg.AssessmentParameters())
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid clinical parameters")
	}
	svc := assessment.NewService(engine, store)

	metrics := telemetry.New(telemetry.Config{
		ServiceName:    "paracetamol-od",
		ServiceVersion: version,
		Environment:    cfg.Env,
	})
	svc.SetObserver(&metricsObserver{metrics: metrics})

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// API group: auth, then audit, then rate limiting. Health and metrics
	// stay outside so probes and scrapers need no credentials.
	apiV1 := e.Group("/api/v1")

	switch cfg.ResolvedAuthMode() {
	case "development":
		logger.Warn().Msg("development auth mode: every request runs as dev-clinician with the admin role")
		apiV1.Use(auth.DevAuthMiddleware())
	default:
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	apiV1.Use(middleware.Audit(logger))

	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	assessment.NewHandler(svc).RegisterRoutes(apiV1)

	// Probes and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool, pool))
	}
	e.GET("/metrics", metrics.Handler())

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
