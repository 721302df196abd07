package main

import (
	"context"
	"encoding/json"
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

	"github.com/heartrisk/heartrisk/internal/config"
	"github.com/heartrisk/heartrisk/internal/domain/assessment"
	"github.com/heartrisk/heartrisk/internal/domain/reference"
	"github.com/heartrisk/heartrisk/internal/platform/auth"
	"github.com/heartrisk/heartrisk/internal/platform/db"
	"github.com/heartrisk/heartrisk/internal/platform/fhir"
	"github.com/heartrisk/heartrisk/internal/platform/middleware"
	"github.com/heartrisk/heartrisk/internal/platform/sandbox"
	"github.com/heartrisk/heartrisk/internal/platform/telemetry"
	"github.com/heartrisk/heartrisk/internal/platform/web"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "risk-server",
		Short: "Heart disease risk assessment API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(assessCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the risk assessment API server",
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

	newMigrator := func(ctx context.Context, dir string) (*db.Migrator, *pgxpool.Pool, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if !cfg.HistoryEnabled() {
			return nil, nil, fmt.Errorf("DATABASE_URL must be set to run migrations")
		}

		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, nil, err
		}
		return db.NewMigrator(pool, dir), pool, nil
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			migrator, pool, err := newMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer pool.Close()

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

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			migrator, pool, err := newMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
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

	// migrate down
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			migrator, pool, err := newMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := migrator.Down(ctx)
			if err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}

			fmt.Printf("Reverted %d migration(s).\n", count)
			return nil
		},
	}
	downCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(downCmd)

	return cmd
}

// assessCmd evaluates a single set of inputs from the command line without
// touching the network or the database. It always exits zero; an invalid
// input is reported as a normal result line so the command can be scripted.
func assessCmd() *cobra.Command {
	in := assessment.DefaultInput()
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Calculate a risk assessment from flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := assessment.NewService(nil)
			result, err := svc.Calculate(cmd.Context(), in)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "invalid input: %v\n", err)
				return nil
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Summary)
			fmt.Fprintf(out, "Risk level:     %s\n", result.RiskLevel)
			fmt.Fprintf(out, "Score:          %.2f\n", result.Score)
			fmt.Fprintf(out, "Recommendation: %s\n", result.Recommendation)
			if len(result.Factors) > 0 {
				fmt.Fprintln(out, "Contributing factors:")
				for _, f := range result.Factors {
					fmt.Fprintf(out, "  - %s (+%.2f)\n", f.Detail, f.Weight)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&in.Age, "age", in.Age, "Age in years (20-100)")
	cmd.Flags().StringVar(&in.Sex, "sex", in.Sex, "Sex: male or female")
	cmd.Flags().IntVar(&in.RestingBP, "resting-bp", in.RestingBP, "Resting blood pressure in mm Hg (80-200)")
	cmd.Flags().IntVar(&in.Cholesterol, "cholesterol", in.Cholesterol, "Serum cholesterol in mg/dl (100-600)")
	cmd.Flags().IntVar(&in.MaxHeartRate, "max-heart-rate", in.MaxHeartRate, "Maximum heart rate achieved (60-220)")
	cmd.Flags().Float64Var(&in.STDepression, "st-depression", in.STDepression, "ST depression induced by exercise (0-6)")
	cmd.Flags().IntVar(&in.ChestPainType, "chest-pain-type", in.ChestPainType, "Chest pain type: 0 typical, 1 atypical, 2 non-anginal, 3 asymptomatic")
	cmd.Flags().BoolVar(&in.FastingBloodSugar, "fasting-blood-sugar", in.FastingBloodSugar, "Fasting blood sugar over 120 mg/dl")
	cmd.Flags().BoolVar(&in.ExerciseAngina, "exercise-angina", in.ExerciseAngina, "Exercise induced angina")
	cmd.Flags().IntVar(&in.MajorVessels, "major-vessels", in.MajorVessels, "Major vessels colored by fluoroscopy (0-3)")
	cmd.Flags().IntVar(&in.Thalassemia, "thalassemia", in.Thalassemia, "Thalassemia: 0 normal, 1 fixed defect, 2 reversible defect")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")

	return cmd
}

func seedCmd() *cobra.Command {
	seedCfg := sandbox.DefaultSeedConfig()
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate synthetic assessments",
		Long: "Generate synthetic assessments with a realistic spread of risk levels.\n" +
			"With --dry-run the generated resources are written to stdout as NDJSON\n" +
			"instead of being stored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return sandbox.ExportNDJSON(cmd.OutOrStdout(), seedCfg)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.HistoryEnabled() {
				return fmt.Errorf("DATABASE_URL must be set to seed assessments (use --dry-run to print them instead)")
			}

			logger := newLogger(cfg)
			ctx := context.Background()
			pool, err := db.NewPool(ctx, db.PoolConfig{
				URL:      cfg.DatabaseURL,
				MaxConns: cfg.DBMaxConns,
				MinConns: cfg.DBMinConns,
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := assessment.NewService(assessment.NewRepoPG(pool))
			seeder := sandbox.NewSeeder(svc, pool, seedCfg, logger)

			result, err := seeder.Seed(ctx)
			if err != nil {
				return fmt.Errorf("seeding failed: %w", err)
			}

			fmt.Printf("Created %d assessment(s) in %s.\n", result.Created, result.Duration.Round(time.Millisecond))
			for _, level := range []string{assessment.RiskLow, assessment.RiskModerate, assessment.RiskHigh} {
				fmt.Printf("  %-8s %d\n", level, result.ByRisk[level])
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&seedCfg.Count, "count", seedCfg.Count, "Number of assessments to generate")
	cmd.Flags().Int64Var(&seedCfg.Seed, "seed", 0, "Random seed (0 uses the current time)")
	cmd.Flags().StringVar(&seedCfg.SubjectPrefix, "subject-prefix", seedCfg.SubjectPrefix, "Subject reference prefix")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print generated resources as NDJSON instead of storing them")

	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Telemetry
	tp := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceName:    "heartrisk",
		ServiceVersion: version,
		Environment:    cfg.Env,
	})

	// Database (optional: without it the server runs compute-only)
	serverCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()

	var pool *pgxpool.Pool
	if cfg.HistoryEnabled() {
		pool, err = db.NewPool(serverCtx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL not set: assessment history is disabled")
	}

	// Assessment service
	var repo assessment.Repository
	if pool != nil {
		repo = assessment.NewRepoPG(pool)
	}
	svc := assessment.NewService(repo)
	svc.SetMetrics(tp)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(time.Duration(cfg.RequestTimeoutSeconds) * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(tp.TracingMiddleware())
	e.Use(tp.MetricsMiddleware())

	// Auth middleware. The skipper keeps the UI, health, metrics, the FHIR
	// capability statement, and CDS discovery public in jwt mode.
	if cfg.AuthMode == config.AuthModeJWT {
		jwtCfg := auth.JWTConfig{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			JWKSURL:  cfg.JWTJWKSURL,
			Skipper:  auth.AuthSkipper,
		}
		if cfg.JWTSecret != "" {
			jwtCfg.SigningKey = []byte(cfg.JWTSecret)
		}
		e.Use(auth.JWTMiddleware(jwtCfg))
	} else {
		e.Use(auth.DevAuthMiddleware())
	}

	// API groups
	apiV1 := e.Group("/api/v1")
	fhirGroup := e.Group("/fhir")
	fhirGroup.Use(fhir.ContentType())

	// Rate limiting middleware
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	rateLimitCfg.RequestsPerMinute = cfg.RateLimitPerMin
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	fhirGroup.Use(middleware.RateLimit(rateLimitCfg))

	// Response cache + ETag for the read-only surfaces
	cacheStore := middleware.NewInMemoryCacheStore()
	cacheStore.StartCleanup(serverCtx, 10*time.Minute)
	cacheCfg := middleware.DefaultCacheConfig()

	// Assessment REST + FHIR routes
	assessmentHandler := assessment.NewHandler(svc)
	assessmentHandler.RegisterRoutes(apiV1, fhirGroup)

	// Reference catalogs (cached: the data never changes)
	refGroup := apiV1.Group("",
		middleware.ETagMiddleware(cacheCfg),
		middleware.ResponseCacheMiddleware(cacheStore, time.Hour))
	reference.NewHandler().RegisterRoutes(refGroup)

	// CapabilityStatement
	capBuilder := fhir.NewCapabilityBuilder(fhir.CapabilityConfig{
		ServerName:    "HeartRisk",
		ServerVersion: version,
		BaseURL:       cfg.BaseURL + "/fhir",
	})
	capBuilder.AddResource("RiskAssessment",
		[]string{"read", "search-type", "delete"},
		[]fhir.SearchParam{
			{Name: "date", Type: "date"},
			{Name: "probability", Type: "number"},
			{Name: "risk", Type: "token"},
			{Name: "status", Type: "token"},
			{Name: "subject", Type: "string"},
		})
	capBuilder.AddOperation("RiskAssessment", fhir.OperationCapability{
		Name:          "calculate",
		Definition:    cfg.BaseURL + "/fhir/OperationDefinition/RiskAssessment-calculate",
		Documentation: "Calculate a heart disease risk assessment without storing it",
	})

	metadataGroup := fhirGroup.Group("", middleware.ETagMiddleware(cacheCfg))
	fhir.NewCapabilityHandler(capBuilder).RegisterRoutes(metadataGroup)

	// CDS Hooks discovery + service endpoints
	hooks := fhir.NewCDSHooksHandler()
	assessment.RegisterCDS(hooks, svc, cfg.BaseURL, logger)
	hooks.RegisterRoutes(e)

	// Built-in UI
	if cfg.UIEnabled {
		web.NewHandler(svc, logger).RegisterRoutes(e)
	}

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"version": version,
			"history": cfg.HistoryEnabled(),
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Prometheus metrics
	e.GET("/metrics", tp.PrometheusHandler())

	// Pool gauges for /metrics
	if pool != nil {
		go func() {
			ticker := time.NewTicker(tp.MetricsInterval())
			defer ticker.Stop()
			for {
				select {
				case <-serverCtx.Done():
					return
				case <-ticker.C:
					stats := db.GetPoolStats(pool)
					hm := tp.HealthMetrics()
					hm.SetDBPoolActive(int64(stats.AcquiredConns))
					hm.SetDBPoolIdle(int64(stats.IdleConns))
					if _, total, err := svc.List(serverCtx, assessment.ListFilter{}, 1, 0); err == nil {
						hm.SetAssessmentsStored(int64(total))
					}
				}
			}
		}()
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.AuthMode).Bool("ui", cfg.UIEnabled).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopServer()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	if err := tp.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("telemetry shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
