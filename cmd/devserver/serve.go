package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dm-relay/handler"
	"dm-relay/internal/config"
	"dm-relay/internal/repository"
)

const landingText = "Instagram DM relay is running. Webhook: /webhook"

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook over HTTP with a SQLite session store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				cfg.Port = port
			}
			if err := cfg.ValidateLocal(); err != nil {
				return err
			}
			log, err := setupLogger(cfg)
			if err != nil {
				return err
			}

			dsn, err := repository.SQLiteDSNForFile(cfg.SQLitePath)
			if err != nil {
				return err
			}
			store, err := repository.NewSQLiteStore(dsn)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			svc, err := newConversationService(cfg, log, store)
			if err != nil {
				return err
			}
			h, err := handler.NewHandler(svc, cfg.VerifyToken,
				handler.WithLogger(log),
				handler.WithMaxParallel(cfg.MaxParallel),
			)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Port),
				Handler:           newMux(h),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return runServer(ctx, log, srv)
		},
	}

	cmd.Flags().Int("port", 0, "Listen port (overrides PORT).")
	return cmd
}

func newMux(webhook http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/webhook", webhook)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(landingText))
	})
	return mux
}

func runServer(ctx context.Context, log *slog.Logger, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("devserver listening", "addr", srv.Addr)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info("devserver shutting down")
	return srv.Shutdown(shutdownCtx)
}
