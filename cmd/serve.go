package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"nudfans-backend/db"
	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			gin.SetMode(gin.ReleaseMode)

			database, err := db.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			if autoMigrate {
				if err := db.Migrate(database); err != nil {
					return err
				}
			}

			in, err := newInfra(cfg)
			if err != nil {
				return err
			}
			defer in.cleanup()

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           newRouter(cfg, database, in),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, srv)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "run the database migrations before serving")
	return cmd
}

// run serves until ctx is canceled, then drains the in-flight requests.
func run(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		utils.Logger.WithFields(logrus.Fields{"addr": srv.Addr}).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	utils.LogInfo("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
