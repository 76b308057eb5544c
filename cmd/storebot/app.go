package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hanko-field/storebot/internal/di"
	"github.com/hanko-field/storebot/internal/platform/config"
	"github.com/hanko-field/storebot/internal/platform/observability"
	"github.com/hanko-field/storebot/internal/platform/secrets"
)

// app carries the state shared by every subcommand.
type app struct {
	envFile string
	logger  *zap.Logger
}

func (a *app) initLogger() error {
	if a.logger != nil {
		return nil
	}
	logger, err := observability.NewLogger()
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	a.logger = logger.Named("storebot")
	return nil
}

func (a *app) syncLogger() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// container loads configuration, resolving secret references, and builds the dependency container.
// The returned release func closes both.
func (a *app) container(ctx context.Context, required []string, opts ...di.Option) (*di.Container, func(), error) {
	logger := a.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fetcher, err := a.newSecretFetcher(ctx, logger)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(ctx,
		config.WithEnvFile(a.envFile),
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(required...),
	)
	if err != nil {
		_ = fetcher.Close()
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			return nil, nil, fmt.Errorf("missing required secrets: %s", strings.Join(missing.Names(), ", "))
		}
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	container, err := di.NewContainer(ctx, cfg, logger, opts...)
	if err != nil {
		_ = fetcher.Close()
		return nil, nil, err
	}
	release := func() {
		if err := container.Close(context.Background()); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}
	return container, release, nil
}

// newSecretFetcher reads its own settings through the same lookup Load uses, before Load runs.
func (a *app) newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	lookup, err := config.Lookup(config.WithEnvFile(a.envFile))
	if err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	value := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	project := value("STOREBOT_SECRETS_PROJECT_ID")
	if project == "" {
		project = value("STOREBOT_FIRESTORE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
	}
	if path := value("STOREBOT_SECRETS_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	fetcher, err := secrets.NewFetcher(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise secret fetcher: %w", err)
	}
	return fetcher, nil
}
