package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/sortflow/backend/internal/api"
	"github.com/sortflow/backend/internal/cloud"
	"github.com/sortflow/backend/internal/config"
	"github.com/sortflow/backend/internal/remote"
	"github.com/sortflow/backend/internal/session"
	"github.com/sortflow/backend/internal/storage"
	"github.com/sortflow/backend/internal/web"
	"github.com/sortflow/backend/internal/workflow"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// backends holds the object store and function invoker selected by config.
type backends struct {
	store   storage.ObjectStore
	invoker remote.Invoker
	objects api.ObjectOpener // set only for the local store
}

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	configPath := filepath.Join(exeDir, "sortflow.config")
	if p := os.Getenv("SORTFLOW_CONFIG"); p != "" {
		configPath = p
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := log.New("server")
	logger.SetLevel(parseLogLevel(cfg.Advanced.LogLevel))

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		logger.Fatalf("failed to create directories: %v", err)
	}

	if cfg.Security.SigningSecret == "" {
		cfg.Security.SigningSecret = uuid.NewString()
		if cfg.Storage.Backend == config.StorageLocal {
			logger.Warn("no signing secret configured, download links will not survive a restart")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := newBackends(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to initialize backends: %v", err)
	}

	workflowCfg := cfg.WorkflowConfig()
	sessionMgr := session.NewManager(func() (*workflow.Controller, error) {
		return workflow.NewController(workflowCfg, b.store, b.invoker)
	}, cfg.Sessions.MaxSessions)

	// Start background session cleanup
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Sessions.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sessionMgr.CleanupOldSessions(time.Duration(cfg.Sessions.SessionTimeoutMinutes) * time.Minute)
			case <-ctx.Done():
				return
			}
		}
	}()

	// Check if running in embedded mode (frontend built into binary)
	embeddedMode := web.HasEmbeddedFiles()

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(parseLogLevel(cfg.Advanced.LogLevel))
	api.SetupMiddleware(e)

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/events") ||
				strings.HasPrefix(path, "/api/ws/") ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/events") ||
				strings.HasSuffix(path, "/submit") ||
				strings.HasPrefix(path, "/api/ws/") ||
				strings.HasPrefix(path, "/api/objects/") ||
				c.Request().Header.Get("Accept") == "text/event-stream"
		},
		ErrorMessage: "Request timeout",
	}))

	// Compression middleware
	if cfg.Advanced.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Advanced.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return c.Request().Header.Get("Accept") == "text/event-stream" ||
					strings.HasPrefix(c.Request().URL.Path, "/api/ws/")
			},
		}))
	}

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	handlers := api.NewHandlers(&api.Dependencies{
		Sessions:       sessionMgr,
		Objects:        b.objects,
		Version:        Version,
		StreamInterval: time.Duration(cfg.Advanced.StreamIntervalMs) * time.Millisecond,
	})
	api.RegisterRoutes(e, handlers)

	// Register embedded frontend if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warnf("failed to register static routes: %v", err)
		}
	}

	// Configure server with settings from config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, embeddedMode)

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	sessionMgr.CloseAll()
}

// newBackends builds the object store and invoker named in cfg.
func newBackends(ctx context.Context, cfg *config.AppConfig) (*backends, error) {
	b := &backends{}

	switch cfg.Storage.Backend {
	case config.StorageLocal:
		local, err := storage.NewLocalStore(cfg.Storage.ObjectsDirectory, cfg.GetPublicURL(),
			storage.NewLinkSigner(cfg.Security.SigningSecret))
		if err != nil {
			return nil, fmt.Errorf("local store: %w", err)
		}
		b.store = local
		b.objects = local
	case config.StorageS3:
		awsCfg, err := cloud.LoadAWSConfig(ctx, cfg.CloudOptions())
		if err != nil {
			return nil, err
		}
		b.store = storage.NewS3Store(awsCfg,
			storage.WithEndpoint(cfg.Storage.Endpoint),
			storage.WithForcePathStyle(cfg.Storage.ForcePathStyle))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	switch cfg.Function.Backend {
	case config.FunctionLocal:
		b.invoker = remote.NewLocalInvoker(b.store, remote.LocalConfig{
			InputBucket:  cfg.Storage.InputBucket,
			OutputBucket: cfg.Storage.OutputBucket,
			OutputKey:    workflow.FunctionOutputKey,
		})
	case config.FunctionLambda:
		awsCfg, err := cloud.LoadAWSConfig(ctx, cfg.CloudOptions())
		if err != nil {
			return nil, err
		}
		b.invoker = remote.NewLambdaInvoker(awsCfg)
	default:
		return nil, fmt.Errorf("unknown function backend %q", cfg.Function.Backend)
	}

	return b, nil
}

func parseLogLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

func printBanner(cfg *config.AppConfig, configPath string, embeddedMode bool) {
	mode := "API only"
	if embeddedMode {
		mode = "Embedded page"
	}
	backend := cfg.Storage.Backend + " / " + cfg.Function.Backend

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           SortFlow Server                                 ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("║  Backends:   %-45s║\n", backend)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embeddedMode {
		fmt.Printf("Open %s in your browser\n\n", cfg.GetPublicURL())
	}
}
