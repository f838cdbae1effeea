package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github/itish2003/docbot/controller"
	"github/itish2003/docbot/logging"
	"github/itish2003/docbot/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		log := logging.For("server")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		// Load or build the index before accepting traffic.
		manifest, err := a.rag.IndexStatus(ctx)
		if err != nil {
			return err
		}
		log.WithField("build_id", manifest.BuildID).WithField("chunks", manifest.ChunkCount).Info("index ready")

		if cfg.Watch.Enabled {
			watcher := services.NewContentWatcher(a.rag, a.credentials, a.content, cfg.Watch.Debounce)
			go func() {
				if err := watcher.Run(ctx); err != nil {
					log.WithError(err).Error("content watcher stopped")
				}
			}()
		}

		gin.SetMode(cfg.Server.Mode)
		router := controller.NewRouter(
			controller.NewRAGController(a.rag, cfg.Webhook.MaxBytes),
			a.credentials,
			controller.NewKeyRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		)
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.WithField("addr", cfg.Server.Addr).Info("docbot server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
