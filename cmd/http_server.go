package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/formulapm/access-management/internal"
	"github.com/formulapm/access-management/internal/approval"
	approvalpg "github.com/formulapm/access-management/internal/approval/postgres"
	"github.com/formulapm/access-management/internal/auth"
	authpg "github.com/formulapm/access-management/internal/auth/postgres"
	"github.com/formulapm/access-management/internal/authz"
	"github.com/formulapm/access-management/internal/core/events"
	"github.com/formulapm/access-management/internal/identity"
	identitypg "github.com/formulapm/access-management/internal/identity/postgres"
	"github.com/formulapm/access-management/internal/transport/rest"
	"github.com/formulapm/access-management/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	GormDB   *gorm.DB
	Router   *chi.Mux
	Resolver *authz.Resolver
	Handlers rest.Handlers
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.Resolver, deps.Handlers, deps.Config.Server.AllowedOrigins, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGormDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	ruleTable, err := authz.LoadRuleTable(config.Authz.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule table: %w", err)
	}

	limitTable, err := approval.LoadLimitTable(config.Authz.LimitsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load limit table: %w", err)
	}

	resolver := authz.NewResolver(ruleTable, lg)
	eventBus := events.NewEventBus(lg)

	// Operators watch escalations through logs; the subscriber keeps that
	// concern out of the approval service itself.
	eventBus.Subscribe(events.EventTypeApprovalEscalated, func(ctx context.Context, event events.Event) error {
		lg.Info("approval escalated", "event_id", event.EventID(), "payload", event.Payload())
		return nil
	})

	// auth
	tokenGen := auth.NewJWTTokenGenerator(
		config.Security.AccessTokenSecret,
		config.Security.RefreshTokenSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
	)
	authRepo := authpg.NewRepository(gormDB)
	authService := auth.NewService(authRepo, tokenGen, config.Security.BCryptCost)
	authHandler := auth.NewHandler(authService)

	// identity
	identityRepo := identitypg.NewIdentityRepository(gormDB)
	identityService := identity.NewService(identityRepo, eventBus, lg)
	identityHandler := identity.NewHandler(identityService)

	// approval
	approvalRepo := approvalpg.NewApprovalRepository(gormDB)
	approvalService := approval.NewService(approvalRepo, identityService, limitTable, eventBus, lg)
	approvalHandler := approval.NewHandler(approvalService)

	// authz introspection
	authzHandler := authz.NewHandler(resolver, func(r *http.Request) (authz.Identity, bool) {
		user, ok := auth.UserFromContext(r.Context())
		if !ok || user == nil {
			return authz.Identity{}, false
		}
		return user.Identity, true
	})

	return &Dependencies{
		Config:   config,
		Logger:   lg,
		DB:       db,
		GormDB:   gormDB,
		Router:   chi.NewRouter(),
		Resolver: resolver,
		Handlers: rest.Handlers{
			Auth:     authHandler,
			Authz:    authzHandler,
			Approval: approvalHandler,
			Identity: identityHandler,
		},
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
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

// initGormDB wraps the existing connection pool for the repositories.
func initGormDB(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
}
