package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aretw0/authgate"
	httpAdapter "github.com/aretw0/authgate/pkg/adapters/http"
	"github.com/aretw0/authgate/pkg/ledger"
	"github.com/aretw0/authgate/pkg/observability"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only audit HTTP server",
	Long:  `Serves the audit ledger (export, tip, verification, entry lookup) and Prometheus metrics over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.HTTP.Addr
		}

		metrics := observability.NewMetrics()
		l, st, err := openLedger(cmd.Context(), cfg, ledger.WithHooks(metrics.Hooks()))
		if l == nil {
			return err
		}
		defer st.close()
		if err != nil {
			// Served anyway: /ledger/verify reports the violation.
			logger.Error("ledger failed verification", "err", err)
		}
		metrics.ChainLength.Set(float64(l.Len()))

		srv := &http.Server{
			Addr: addr,
			Handler: httpAdapter.NewHandler(l,
				httpAdapter.WithMetrics(metrics.Handler()),
				httpAdapter.WithVersion(strings.TrimSpace(authgate.Version)),
				httpAdapter.WithLogger(logger),
			),
			ReadHeaderTimeout: 5 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("audit server listening", "address", srv.Addr, "backend", cfg.Ledger.Backend)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown did not complete", "err", err)
				return srv.Close()
			}
			return nil
		}
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default http.addr from config)")
	rootCmd.AddCommand(serveCmd)
}
