package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicore/intake/internal/config"
	"github.com/clinicore/intake/internal/domain/aifeedback"
	"github.com/clinicore/intake/internal/domain/assessment"
	"github.com/clinicore/intake/internal/domain/draft"
	"github.com/clinicore/intake/internal/domain/identity"
	"github.com/clinicore/intake/internal/domain/patient"
	"github.com/clinicore/intake/internal/platform/apperr"
	"github.com/clinicore/intake/internal/platform/auth"
	"github.com/clinicore/intake/internal/platform/cache"
	"github.com/clinicore/intake/internal/platform/db"
	"github.com/clinicore/intake/internal/platform/middleware"
	"github.com/clinicore/intake/internal/platform/triage"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "intake-server",
		Short: "Clinical intake and review API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the intake API server",
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
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
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			fullName, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")
			doctorFlag, _ := cmd.Flags().GetString("assigned-doctor")

			if email == "" || password == "" || fullName == "" || role == "" {
				return fmt.Errorf("--email, --password, --name and --role are required")
			}

			var assignedDoctorID *uuid.UUID
			if doctorFlag != "" {
				id, err := uuid.Parse(doctorFlag)
				if err != nil {
					return fmt.Errorf("--assigned-doctor must be a UUID")
				}
				assignedDoctorID = &id
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
			svc := identity.NewService(identity.NewRepo(pool), issuer)
			user, err := svc.CreateUser(ctx, email, password, fullName, role, assignedDoctorID)
			if err != nil {
				return err
			}

			fmt.Printf("Created %s %s (%s)\n", user.Role, user.Email, user.ID)
			return nil
		},
	}
	createCmd.Flags().String("email", "", "Login email")
	createCmd.Flags().String("password", "", "Initial password")
	createCmd.Flags().String("name", "", "Full name")
	createCmd.Flags().String("role", "", "assistant, doctor or master_doctor")
	createCmd.Flags().String("assigned-doctor", "", "Doctor id an assistant reports to")

	cmd.AddCommand(createCmd)
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Draft cache. Redis is preferred; an in-process map keeps development
	// working without one.
	var kv cache.KV
	redisKV, err := cache.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, drafts held in memory")
		kv = cache.NewMemoryKV()
	} else {
		defer redisKV.Close()
		kv = redisKV
	}

	// Triage AI client and its background sender.
	triageClient := triage.NewHTTPClient(cfg.TriageBaseURL, cfg.TriageTimeout, logger)
	notifier := triage.NewNotifier(logger)
	notifierCtx, stopNotifier := context.WithCancel(context.Background())
	go notifier.Start(notifierCtx)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)

	public := e.Group("/api")
	api := e.Group("/api")
	api.Use(auth.Middleware(issuer))

	// Identity domain
	identitySvc := identity.NewService(identity.NewRepo(pool), issuer)
	identityHandler := identity.NewHandler(identitySvc)
	identityHandler.RegisterPublicRoutes(public)
	identityHandler.RegisterRoutes(api)

	// Draft cache domain
	draftSvc := draft.NewService(kv, cfg.DraftTTL, logger)
	draftHandler := draft.NewHandler(draftSvc)
	draftHandler.RegisterRoutes(api)

	// Patient record domain
	patientRepo := patient.NewRepo(pool)
	patientSvc := patient.NewService(patientRepo, db.PoolRunner(pool), logger)
	patientSvc.SetDraftDiscarder(draftSvc)
	patientHandler := patient.NewHandler(patientSvc)
	patientHandler.RegisterRoutes(api)

	// Assessment log domain
	assessmentSvc := assessment.NewService(assessment.NewRepo(pool), patientSvc, db.PoolRunner(pool), logger)
	assessmentHandler := assessment.NewHandler(assessmentSvc)
	assessmentHandler.RegisterRoutes(api)

	// AI feedback loop
	feedbackSvc := aifeedback.NewService(
		aifeedback.NewRepo(pool), patientSvc, patientRepo,
		triageClient, notifier, db.PoolRunner(pool), logger,
	)
	feedbackHandler := aifeedback.NewHandler(feedbackSvc)
	feedbackHandler.RegisterRoutes(api)

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

	// Let the notifier flush queued training signals.
	stopNotifier()
	notifier.Wait()

	logger.Info().Msg("server stopped")
	return nil
}
