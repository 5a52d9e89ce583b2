package main

import (
	"context"
	"errors"
	"fmt"
	"io"
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

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/cds"
	"github.com/clinic/clinic/internal/domain/formulary"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/medication"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/cache"
	"github.com/clinic/clinic/internal/platform/clock"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:           "clinic-server",
		Short:         "Clinic management API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(adminCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if dir == "" {
					dir = cfg.MigrationsDir
				}
				count, err := db.NewMigrator(pool, dir).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if dir == "" {
					dir = cfg.MigrationsDir
				}
				statuses, err := db.NewMigrator(pool, dir).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(os.Stdout, statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load medicaments, contraindications and interactions from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				return fmt.Errorf("--file is required")
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			seed, err := formulary.DecodeSeed(f)
			if err != nil {
				return err
			}

			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				logger := newLogger(cfg)
				store, closeStore, err := openCache(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer closeStore()
				clk, err := newClock(cfg)
				if err != nil {
					return err
				}

				svc := newFormularyService(pool, db.NewUnitOfWork(pool), store, cfg.ReferenceCacheTTL, clk)
				res, err := svc.LoadSeed(logger.WithContext(ctx), seed)
				if err != nil {
					return err
				}
				fmt.Printf("Created %d medicament(s), %d contraindication(s), %d interaction(s); %d link(s) in file.\n",
					res.Medicaments, res.Contraindications, res.Interactions, res.Links)
				return nil
			})
		},
	}
	cmd.Flags().String("file", "", "Seed file (YAML)")
	return cmd
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				clk, err := newClock(cfg)
				if err != nil {
					return err
				}
				svc := newIdentityService(pool, db.NewUnitOfWork(pool), jwtConfig(cfg), clk)
				a, err := svc.CreateAdmin(ctx, identity.Credentials{Email: email, Password: password})
				if err != nil {
					return err
				}
				fmt.Printf("Administrator %s created (id %s).\n", a.Email, a.ID)
				return nil
			})
		},
	}
	createCmd.Flags().String("email", "", "Login email")
	createCmd.Flags().String("password", "", "Login password (at least 8 characters)")

	cmd.AddCommand(createCmd)
	return cmd
}

// withPool loads the configuration, opens the pool and runs fn.
func withPool(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Hour,
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newClock(cfg *config.Config) (clock.Clock, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return clock.System{Loc: loc}, nil
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: []byte(cfg.JWTSecret),
		TTL:        cfg.JWTTTL,
		Skipper:    auth.AuthSkipper,
	}
}

// openCache returns Redis when REDIS_URL is set and an in-process store
// otherwise.
func openCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Store, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info().Msg("REDIS_URL not set, using in-process reference cache")
		return cache.NewMemoryStore(), func() {}, nil
	}
	store, err := cache.NewRedisStore(ctx, cfg.RedisURL, "clinic:")
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("connected to redis")
	return store, func() { store.Close() }, nil
}

func openPublisher(cfg *config.Config, logger zerolog.Logger) (events.Publisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info().Msg("KAFKA_BROKERS not set, domain events are discarded")
		return events.NopPublisher{}, func() {}
	}
	pub := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaPrescriptionTopic, logger)
	return pub, func() {
		if err := pub.Close(); err != nil {
			logger.Error().Err(err).Msg("close event publisher")
		}
	}
}

func newFormularyService(pool *pgxpool.Pool, uow db.UnitOfWork, store cache.Store, ttl time.Duration, clk clock.Clock) *formulary.Service {
	return formulary.NewService(
		formulary.NewMedicamentRepoPG(pool),
		formulary.NewContraindicationRepoPG(pool),
		formulary.NewCachedInteractionRepo(formulary.NewInteractionRepoPG(pool), store, ttl),
		formulary.NewLinkRepoPG(pool),
		formulary.NewPatientContraindicationRepoPG(pool),
		uow,
		clk,
	)
}

func newIdentityService(pool *pgxpool.Pool, uow db.UnitOfWork, jwtCfg auth.JWTConfig, clk clock.Clock) *identity.Service {
	return identity.NewService(
		identity.NewAccountRepoPG(pool),
		identity.NewPatientRepoPG(pool),
		identity.NewDoctorRepoPG(pool),
		identity.NewSpecializationRepoPG(pool),
		uow,
		auth.NewTokenIssuer(jwtCfg),
		clk,
	)
}

// deps are the long-lived resources the HTTP server is built from.
type deps struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	cache     cache.Store
	publisher events.Publisher
	clock     clock.Clock
	logger    zerolog.Logger
}

// newServer builds the echo instance with every route registered.
func newServer(d deps) *echo.Echo {
	cfg := d.cfg
	uow := db.NewUnitOfWork(d.pool)

	formularySvc := newFormularyService(d.pool, uow, d.cache, cfg.ReferenceCacheTTL, d.clock)
	medicationSvc := medication.NewService(medication.NewRepoPG(d.pool), d.clock)
	schedulingSvc := scheduling.NewService(
		scheduling.NewScheduleRepoPG(d.pool),
		scheduling.NewAppointmentRepoPG(d.pool),
		scheduling.NewBillingRepoPG(d.pool),
		uow,
		d.clock,
	)
	jwtCfg := jwtConfig(cfg)
	identitySvc := newIdentityService(d.pool, uow, jwtCfg, d.clock)

	evaluator := cds.NewEvaluator(formularySvc, medicationSvc)
	committer := cds.NewCommitter(evaluator, medicationSvc, schedulingSvc, uow, d.publisher, d.clock)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	readiness := []db.Dependency{db.PoolDependency(d.pool)}
	if p, ok := d.cache.(interface{ Ping(context.Context) error }); ok {
		readiness = append(readiness, db.Dependency{Name: "cache", Ping: p.Ping})
	}
	e.GET("/health/db", db.HealthHandler(readiness, func() *db.PoolStats { return db.GetPoolStats(d.pool) }))

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1 := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg))

	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(apiV1)
	formulary.NewHandler(formularySvc).RegisterRoutes(apiV1)
	medication.NewHandler(medicationSvc).RegisterRoutes(apiV1)
	cds.NewHandler(committer).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	clk, err := newClock(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	store, closeStore, err := openCache(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to redis")
		return err
	}
	defer closeStore()

	pub, closePub := openPublisher(cfg, logger)
	defer closePub()

	e := newServer(deps{cfg: cfg, pool: pool, cache: store, publisher: pub, clock: clk, logger: logger})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting clinic server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server stopped")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
