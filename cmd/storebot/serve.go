package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanko-field/storebot/internal/di"
	"github.com/hanko-field/storebot/internal/handlers"
	"github.com/hanko-field/storebot/internal/platform/config"
	"github.com/hanko-field/storebot/internal/platform/observability"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(app *app) *cobra.Command {
	var withoutHTTP bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the admin HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), app, !withoutHTTP)
		},
	}
	cmd.Flags().BoolVar(&withoutHTTP, "no-http", false, "run only the bot poller")
	return cmd
}

func runServe(ctx context.Context, app *app, withHTTP bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, release, err := app.container(ctx, []string{"Telegram.Token"}, di.WithTelegram())
	if err != nil {
		return err
	}
	defer release()

	logger := app.logger
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer stop()
		logger.Info("bot polling started")
		return container.Bot.Run(groupCtx)
	})

	group.Go(func() error {
		container.RunIdempotencyCleanup(groupCtx)
		return nil
	})

	if withHTTP {
		server := newHTTPServer(container, logger)
		serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
		group.Go(func() error {
			serverLogger.Info("admin api listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				serverLogger.Error("graceful shutdown failed", zap.Error(err))
				return err
			}
			return nil
		})
	}

	err = group.Wait()
	logger.Info("storebot stopped")
	return err
}

func newHTTPServer(container *di.Container, logger *zap.Logger) *http.Server {
	cfg := container.Config
	projectID := traceProjectID(cfg)
	httpLogger := logger.Named("http")

	admin := handlers.NewAdminHandlers(handlers.AdminHandlersDeps{
		Broadcasts: container.Services.Broadcasts,
		Exports:    container.Services.Exports,
		Catalog:    container.Services.Catalog,
	})
	health := handlers.NewHealthHandlers(
		handlers.WithHealthVersion(Version),
		handlers.WithReadinessCheck("store", container.Ping),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithAdminMiddlewares(handlers.RequireAdminToken(cfg.Admin.APIToken)),
		handlers.WithAdminRoutes(admin.Routes),
	)

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func traceProjectID(cfg config.Config) string {
	if cfg.PubSub.ProjectID != "" {
		return cfg.PubSub.ProjectID
	}
	return cfg.Firestore.ProjectID
}
