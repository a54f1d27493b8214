// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/s0up/xseed/internal/announce"
)

// newServeCommand builds the daemon subcommand: wire every component, start
// the background search loop and the announce/on-demand HTTP surface, and
// block until an OS signal requests shutdown (spec.md §6.3).
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the cross-seed daemon: scheduled searches, announce listener, and HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			r := chi.NewRouter()
			r.Use(middleware.Recoverer)
			announce.NewHandler(a.announce).Routes(r)
			r.Post("/search", a.onDemandSearchHandler)

			srv := &http.Server{Addr: a.cfg.HTTP.ListenAddr, Handler: r}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info().Str("addr", a.cfg.HTTP.ListenAddr).Msg("http surface listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			go a.pipe.Loop(ctx)

			select {
			case <-ctx.Done():
				a.log.Info().Msg("shutting down")
			case err := <-errCh:
				a.log.Error().Err(err).Msg("http server failed")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

// onDemandSearchHandler runs one immediate pipeline cycle, spec.md §6's
// "one endpoint accepts on-demand search ... requests".
func (a *app) onDemandSearchHandler(w http.ResponseWriter, r *http.Request) {
	result, err := a.runJob(r.Context(), "http")
	if err != nil {
		respondAppError(w, http.StatusConflict, err)
		return
	}
	respondAppJSON(w, http.StatusOK, result)
}
