package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medcare/medcare/internal/config"
	"github.com/medcare/medcare/internal/domain/identity"
	"github.com/medcare/medcare/internal/domain/notification"
	"github.com/medcare/medcare/internal/domain/scheduling"
	"github.com/medcare/medcare/internal/platform/auth"
	"github.com/medcare/medcare/internal/platform/db"
	"github.com/medcare/medcare/internal/platform/middleware"
	"github.com/medcare/medcare/internal/platform/websocket"
	"github.com/medcare/medcare/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "medcare-server",
		Short: "Clinic appointment scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func openMigrator(ctx context.Context) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(ctx, db.Options{
		URL:            cfg.DatabaseURL,
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: cfg.DBTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrations.FS), pool.Close, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open stores")
	}
	defer st.Close()

	hub := websocket.NewHub(logger)
	var publisher websocket.EventPublisher = hub
	if cfg.RedisURL != "" {
		client, err := websocket.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		relay := websocket.NewRedisRelay(hub, client, websocket.DefaultRelayChannel, logger)
		go func() {
			if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("redis relay stopped")
			}
		}()
		publisher = relay
		logger.Info().Msg("realtime events relayed through redis")
	}

	app, err := newApp(cfg, st, hub, publisher, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build application")
	}
	if cfg.IsDev() {
		// DevAuthMiddleware acts as auth.DevUserID when no headers are sent.
		if _, err := app.identity.SeedDevUser(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed development account")
		}
	}
	if st.memory {
		seeded, err := app.identity.SeedDemo(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to seed demo accounts")
		}
		for _, u := range seeded {
			logger.Info().Str("email", u.Email).Str("role", u.Role).Msg("seeded demo account")
		}
	}

	e := app.echo
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("demo", st.memory).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

type app struct {
	echo       *echo.Echo
	identity   *identity.Service
	scheduling *scheduling.Service
	rateLimit  middleware.RateLimitConfig
}

// newApp builds the services and the router. It performs no I/O.
func newApp(cfg *config.Config, st *stores, hub *websocket.Hub, publisher websocket.EventPublisher, logger zerolog.Logger) (*app, error) {
	grid, err := scheduling.NewSlotGrid(cfg.ClinicOpen, cfg.ClinicClose, cfg.SlotMinutes)
	if err != nil {
		return nil, fmt.Errorf("clinic hours: %w", err)
	}

	jwtCfg := auth.JWTConfig{Issuer: cfg.JWTIssuer, SigningKey: []byte(cfg.JWTSecret)}
	tokens := auth.NewTokenIssuer(jwtCfg, cfg.TokenTTL)

	identitySvc := identity.NewService(st.users, tokens, logger)
	notifySvc := notification.NewService(st.notifications, notification.NewTemplateEngine(), publisher, logger)
	schedSvc := scheduling.NewService(st.appointments, userDirectory{users: identitySvc}, notifySvc, grid, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	rateLimitCfg := rateLimitConfig(cfg)

	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	} else {
		authMW = auth.JWTMiddleware(jwtCfg)
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(st.pool))

	public := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg))
	apiV1 := e.Group("/api/v1", authMW, middleware.RateLimit(rateLimitCfg))

	identityHandler := identity.NewHandler(identitySvc)
	identityHandler.RegisterPublicRoutes(public)
	identityHandler.RegisterRoutes(apiV1)

	notification.NewHandler(notifySvc).RegisterRoutes(apiV1)
	scheduling.NewHandler(schedSvc).RegisterRoutes(apiV1)

	websocket.NewHandler(hub, cfg.CORSOrigins, logger).RegisterRoutes(e, authMW)

	return &app{echo: e, identity: identitySvc, scheduling: schedSvc, rateLimit: rateLimitCfg}, nil
}

// rateLimitConfig overlays the configured rate, burst and idle eviction on
// the defaults. Limiters are never kept forever.
func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	if cfg.RateLimitIdle > 0 {
		rl.IdleTTL = cfg.RateLimitIdle
	}
	return rl
}
