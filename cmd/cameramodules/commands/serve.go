package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cameramodules/internal/api"
	"cameramodules/internal/camera"
	"cameramodules/internal/logger"
	"cameramodules/internal/version"
)

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cfgManager.Get()
			if port == 0 {
				port = cfg.Web.Port
			}

			logger.Printf("Starting %s on port %d", version.Info(), port)

			wsHub := api.NewHub()
			go wsHub.Run()
			defer wsHub.Stop()

			svc, cleanup := newService(camera.WithEventSink(wsHub.Broadcast))
			defer cleanup()

			handler := api.NewHandler(cfgManager, svc, wsHub)
			handler.SetVersion(version.Version)

			mux := http.NewServeMux()
			handler.Routes(mux)

			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", port),
				Handler:      mux,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			logger.Printf("Server started at http://localhost:%d", port)

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			}

			logger.Printf("Shutting down...")
			svc.StopPreviews()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				logger.Error("Server shutdown error: %v", err)
			}

			logger.Printf("Server stopped")
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (default: web.port from config)")
	return cmd
}
