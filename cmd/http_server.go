package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/frahmantamala/access-management/api"
	"github.com/frahmantamala/access-management/internal"
	"github.com/frahmantamala/access-management/internal/auth"
	authPostgres "github.com/frahmantamala/access-management/internal/auth/postgres"
	"github.com/frahmantamala/access-management/internal/core/events"
	"github.com/frahmantamala/access-management/internal/core/store"
	"github.com/frahmantamala/access-management/internal/loginlog"
	loginlogPostgres "github.com/frahmantamala/access-management/internal/loginlog/postgres"
	"github.com/frahmantamala/access-management/internal/permission"
	permissionPostgres "github.com/frahmantamala/access-management/internal/permission/postgres"
	"github.com/frahmantamala/access-management/internal/role"
	rolePostgres "github.com/frahmantamala/access-management/internal/role/postgres"
	"github.com/frahmantamala/access-management/internal/session"
	sessionPostgres "github.com/frahmantamala/access-management/internal/session/postgres"
	"github.com/frahmantamala/access-management/internal/transport"
	"github.com/frahmantamala/access-management/internal/transport/metrics"
	"github.com/frahmantamala/access-management/internal/transport/middleware"
	"github.com/frahmantamala/access-management/internal/transport/rest"
	"github.com/frahmantamala/access-management/internal/user"
	userPostgres "github.com/frahmantamala/access-management/internal/user/postgres"
	"github.com/frahmantamala/access-management/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startHTTPServer(cmd.Context())
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Gorm   *gorm.DB
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		return err
	}
	defer func() {
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("Database close error", "error", err)
		}
	}()

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Logger.Info("Starting HTTP server", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		deps.Logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := internal.WithTimeout(context.Background(), deps.Config.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		deps.Logger.Error("Server stopped with error", "error", err)
		return err
	}

	deps.Logger.Info("Server stopped")
	return nil
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	spec, err := api.Load(ctx)
	if err != nil {
		return nil, err
	}
	lg.Info("OpenAPI document loaded", "paths", spec.Paths.Len())

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	routes, err := buildRoutes(config, db, gormDB, lg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, routes)

	return &Dependencies{
		Config: config,
		DB:     db,
		Gorm:   gormDB,
		Router: router,
		Logger: lg,
	}, nil
}

// buildRoutes wires repositories, services and handlers over one connection pool.
func buildRoutes(cfg *internal.Config, db *sqlx.DB, gormDB *gorm.DB, lg *slog.Logger) (rest.Routes, error) {
	proxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxyList())
	if err != nil {
		return rest.Routes{}, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	st := store.New(gormDB)
	bus := events.NewEventBus(lg)
	base := transport.NewBaseHandler(lg)

	var m *metrics.Metrics
	if cfg.Observability.Metrics.Enabled {
		m = metrics.New()
		m.Subscribe(bus, lg)
		m.Registerer().MustRegister(collectors.NewDBStatsCollector(db.DB, "access_management"))
	}

	sessions := session.NewManager(sessionPostgres.NewSessionRepository(gormDB), cfg.Security.SessionTTL)
	evaluator := permission.NewEvaluator(permissionPostgres.NewPermissionRepository(gormDB))
	audit := loginlog.NewService(loginlogPostgres.NewLoginLogRepository(gormDB))

	authService := auth.NewService(
		authPostgres.NewUnitOfWork(st),
		auth.NewBcryptHasher(cfg.Security.BCryptCost),
		sessions,
		audit,
		lg,
		auth.WithDefaultRole(cfg.Security.DefaultRole),
		auth.WithPublisher(bus),
	)
	userService := user.NewService(
		userPostgres.NewUnitOfWork(st, gormDB),
		userPostgres.NewDirectoryRepository(db),
		evaluator,
		sessions,
		bus,
		lg,
	)

	var denials auth.DenialRecorder
	if m != nil {
		denials = m
	}

	return rest.Routes{
		Logger:         lg,
		Base:           base,
		Health:         rest.NewHealthHandler(base, st),
		Auth:           auth.NewHandler(base, authService),
		Authenticator:  auth.NewAuthenticator(base, sessions, evaluator, denials),
		Users:          user.NewHandler(base, userService),
		LoginLogs:      loginlog.NewHandler(base, audit),
		Roles:          role.NewHandler(base, role.NewService(rolePostgres.NewRoleRepository(gormDB), lg)),
		Metrics:        m,
		MetricsPath:    cfg.Observability.Metrics.Path,
		OpenAPISpec:    api.Spec(),
		AllowedHosts:   cfg.Server.AllowedHostList(),
		Production:     cfg.IsProduction(),
		TrustedProxies: proxies,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx pool with GORM so both see the same connections.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Warn),
		TranslateError: true,
	})
}
