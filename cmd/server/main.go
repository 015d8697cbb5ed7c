// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/waveroom/waveroom/internal/api/identity"
	"github.com/waveroom/waveroom/internal/api/rest"
	"github.com/waveroom/waveroom/internal/api/ws"
	"github.com/waveroom/waveroom/internal/app/clock"
	"github.com/waveroom/waveroom/internal/app/hub"
	"github.com/waveroom/waveroom/internal/app/ratelimit"
	"github.com/waveroom/waveroom/internal/app/roomstate"
	"github.com/waveroom/waveroom/internal/infra/catalog"
	"github.com/waveroom/waveroom/internal/infra/config"
	"github.com/waveroom/waveroom/internal/infra/logger"
	"github.com/waveroom/waveroom/internal/infra/store"
)

var (
	app        = kingpin.New("waveroom-server", "waveroom listening room server")
	configPath = app.Flag("config", "Path to config file").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

const sweepInterval = 5 * time.Minute

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		zlog.Info().Msgf("Loading config from %s", *configPath)
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	limiterOpts, err := cfg.LimiterOptions()
	if err != nil {
		return fmt.Errorf("invalid limits config: %w", err)
	}

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer cat.Close()

	st := store.New()
	defer st.Close()

	rooms := roomstate.NewManager(cfg.RoomTTL())
	limiter := ratelimit.NewLimiter(st, limiterOpts)
	fanout := hub.New()
	clk := clock.New(rooms, fanout, cfg.SyncInterval())
	defer clk.StopAll()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), identity.Middleware(cfg.Auth.Tokens))

	ws.NewHandler(rooms, limiter, fanout, clk).Register(router)
	rest.NewHandler(cat, rooms, fanout, clk).Register(router)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Periodically drop rooms left behind by unclean disconnects.
	sweepStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepStop:
				return
			case <-ticker.C:
				for _, id := range rooms.Sweep() {
					clk.Stop(id)
				}
			}
		}
	}()
	defer close(sweepStop)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}
