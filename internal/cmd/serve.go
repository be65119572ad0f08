package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/anonymizer"
	"github.com/dativo-io/veil/internal/audit"
	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/server"
	"github.com/dativo-io/veil/internal/session"
)

var (
	serveAddr         string
	serveCORSOrigins  []string
	serveMaxBodyBytes int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the anonymization HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":5000", "HTTP listen address")
	serveCmd.Flags().StringSliceVar(&serveCORSOrigins, "cors-origin", []string{"*"}, "allowed CORS origins")
	serveCmd.Flags().Int64Var(&serveMaxBodyBytes, "max-body-bytes", 10<<20, "maximum request body size in bytes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	cfg.WarnIfDefaultKeys()

	cache := session.NewCache()
	if cfg.SessionTTL > 0 {
		sweeper, err := session.NewSweeper(cache, cfg.SessionTTL, cfg.SweepSchedule)
		if err != nil {
			return fmt.Errorf("session sweeper: %w", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	var (
		sink       anonymizer.EventSink
		auditStore *audit.Store
	)
	if cfg.AuditEnabled {
		auditStore, err = audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
		if err != nil {
			return fmt.Errorf("initializing audit store: %w", err)
		}
		defer auditStore.Close()
		sink = auditStore
	}

	svc, err := buildService(cfg, cache, sink)
	if err != nil {
		return err
	}

	if len(cfg.APIKeys) == 0 {
		log.Warn().Msg("VEIL_API_KEYS not set; API endpoints are unauthenticated. Set for production.")
	}

	opts := []server.Option{
		server.WithAPIKeys(cfg.APIKeys),
		server.WithCORSOrigins(serveCORSOrigins),
		server.WithMaxBodyBytes(serveMaxBodyBytes),
	}
	if cfg.RateLimit > 0 {
		rl := server.NewRateLimiter(cfg.RateLimit)
		evictor := cron.New()
		if err := rl.ScheduleSweep(evictor, cfg.SweepSchedule, server.DefaultClientIdle); err != nil {
			return err
		}
		evictor.Start()
		defer func() { <-evictor.Stop().Done() }()
		opts = append(opts, server.WithRateLimiter(rl))
	}
	if auditStore != nil {
		opts = append(opts, server.WithAuditStore(auditStore))
	}
	srv := server.NewServer(svc, opts...)

	httpServer := &http.Server{
		Addr:         serveAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", serveAddr).
		Str("detector", cfg.Detector).
		Str("cipher", cfg.CipherAlgorithm).
		Dur("session_ttl", cfg.SessionTTL).
		Bool("audit", cfg.AuditEnabled).
		Float64("rate_limit", cfg.RateLimit).
		Msg("veil_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Int("sessions", cache.Len()).Msg("server_stopped")
	return nil
}
