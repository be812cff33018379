package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicsched/scheduler/internal/config"
	"github.com/clinicsched/scheduler/internal/domain/holiday"
	"github.com/clinicsched/scheduler/internal/domain/identity"
	"github.com/clinicsched/scheduler/internal/domain/organization"
	"github.com/clinicsched/scheduler/internal/domain/scheduling"
	"github.com/clinicsched/scheduler/internal/platform/auth"
	"github.com/clinicsched/scheduler/internal/platform/db"
	"github.com/clinicsched/scheduler/internal/platform/logging"
	"github.com/clinicsched/scheduler/internal/platform/middleware"
	"github.com/clinicsched/scheduler/internal/platform/notification"
	"github.com/clinicsched/scheduler/internal/platform/validation"
	"github.com/clinicsched/scheduler/migrations"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "clinic-server",
		Short:        "Clinic scheduling API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(holidaysCmd())
	rootCmd.AddCommand(remindersCmd())
	return rootCmd
}

// runtimeDeps is the process state every subcommand starts from.
type runtimeDeps struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
	close  func()
}

func setup(ctx context.Context) (*runtimeDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		Console: cfg.IsDev(),
		File:    cfg.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	logger.Info().Msg("connected to database")

	return &runtimeDeps{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		close: func() {
			pool.Close()
			logCloser.Close()
		},
	}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()
			return runServer(rt)
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
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			count, err := db.NewMigrator(rt.pool, migrations.Files).Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			statuses, err := db.NewMigrator(rt.pool, migrations.Files).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd, statuses)
			return nil
		},
	})

	return cmd
}

func printMigrationStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func holidaysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holidays",
		Short: "Manage the public holiday calendar",
	}

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Generate and store a country's holidays for a year",
		RunE: func(cmd *cobra.Command, args []string) error {
			year, _ := cmd.Flags().GetInt("year")
			country, _ := cmd.Flags().GetString("country")

			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			if country == "" {
				country = rt.cfg.HolidayCountry
			}
			if year == 0 {
				year = time.Now().Year()
			}
			dataset, err := holiday.DefaultDataset()
			if err != nil {
				return err
			}
			svc := holiday.NewService(holiday.NewRepoPG(rt.pool), dataset, rt.logger)
			if !svc.Supports(country) {
				return fmt.Errorf("no holiday rules for country %q", country)
			}
			n, err := svc.EnsureYear(cmd.Context(), country, year)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d holiday(s) for %s %d.\n", n, country, year)
			return nil
		},
	}
	seed.Flags().Int("year", 0, "Calendar year (default: current year)")
	seed.Flags().String("country", "", "ISO 3166-1 alpha-2 country code (default: HOLIDAY_COUNTRY)")
	cmd.AddCommand(seed)

	return cmd
}

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Appointment reminder jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Send due reminders once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			app, err := newApp(rt.cfg, rt.pool, rt.logger)
			if err != nil {
				return err
			}
			sum, err := app.reminders.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "due=%d sent=%d deduplicated=%d failed=%d\n",
				sum.Due, sum.Sent, sum.Deduplicated, sum.Failed)
			return nil
		},
	})
	return cmd
}

func runServer(rt *runtimeDeps) error {
	cfg, logger := rt.cfg, rt.logger
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: unauthenticated requests are served as admin")
	}

	app, err := newApp(cfg, rt.pool, logger)
	if err != nil {
		return err
	}
	e := app.echo

	scheduler := cron.New(cron.WithLocation(app.loc))
	if _, err := app.reminders.Schedule(scheduler, cfg.ReminderCron, 10*time.Minute); err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()
	logger.Info().Str("spec", cfg.ReminderCron).Msg("reminder job scheduled")

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// app is the wired HTTP surface and the background jobs that share its
// services.
type app struct {
	echo      *echo.Echo
	reminders *notification.ReminderJob
	loc       *time.Location
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.ClinicLocation()
	if err != nil {
		return nil, err
	}
	dataset, err := holiday.DefaultDataset()
	if err != nil {
		return nil, fmt.Errorf("load holiday rules: %w", err)
	}

	holidaySvc := holiday.NewService(holiday.NewRepoPG(pool), dataset, logger)
	orgSvc := organization.NewService(organization.NewRepoPG(pool), holidaySvc, organization.Defaults{
		Timezone:       cfg.ClinicTimezone,
		HolidayCountry: cfg.HolidayCountry,
	}, logger)
	identitySvc := identity.NewService(identity.NewProviderRepoPG(pool), identity.NewPatientRepoPG(pool), orgSvc, logger)
	schedSvc := scheduling.NewService(
		scheduling.NewAppointmentRepoPG(pool),
		scheduling.NewAvailabilityRepoPG(pool),
		identity.NewDirectory(identitySvc),
		orgSvc,
		scheduling.NewProviderLockerPG(pool),
		logger,
	)

	sender := notification.LogSender{Logger: logger.With().Str("component", "notification").Logger()}
	notifier := notification.NewNotifier(sender, sender, nil, loc, logger)
	reminders := notification.NewReminderJob(schedSvc, notifier, cfg.ReminderLead(), loc, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(middleware.HeaderPolicy{HSTS: !cfg.IsDev()}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/health"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() && cfg.AuthIssuer == "" && cfg.AuthSigningKey == "" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))

	rateLimit := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		WritesOnly:        true,
	}
	if rateLimit.RequestsPerSecond <= 0 || rateLimit.BurstSize <= 0 {
		rateLimit = middleware.DefaultRateLimitConfig()
	}
	apiV1 := e.Group("/api/v1", middleware.RateLimit(rateLimit))

	organization.NewHandler(orgSvc).RegisterRoutes(apiV1)
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)
	holiday.NewHandler(holidaySvc, cfg.HolidayCountry).RegisterRoutes(apiV1)
	scheduling.NewHandler(schedSvc, notifier, scheduling.SlotDefaults{
		MaxResults: cfg.SlotSearchMaxResults,
		Days:       cfg.SlotSearchHorizonDays,
	}, logger).RegisterRoutes(apiV1)

	return &app{echo: e, reminders: reminders, loc: loc}, nil
}
