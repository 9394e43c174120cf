package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/yairfalse/lwcomply/internal/aggregator"
	"github.com/yairfalse/lwcomply/internal/alerts"
	"github.com/yairfalse/lwcomply/internal/analyzer"
	"github.com/yairfalse/lwcomply/internal/awsinventory"
	"github.com/yairfalse/lwcomply/internal/cache"
	"github.com/yairfalse/lwcomply/internal/errors"
	"github.com/yairfalse/lwcomply/internal/inventory"
	"github.com/yairfalse/lwcomply/internal/lacework"
	"github.com/yairfalse/lwcomply/internal/logger"
	"github.com/yairfalse/lwcomply/internal/resolver"
	"github.com/yairfalse/lwcomply/internal/transport"
	"github.com/yairfalse/lwcomply/pkg/config"
	"github.com/yairfalse/lwcomply/pkg/types"
)

// Factory creates an App from configuration.
type Factory struct {
	// Logger overrides the configured logger when set.
	Logger logger.Logger

	// Platform and Inventory replace the remote collaborators when set.
	Platform  Platform
	Inventory inventory.Provider

	// Progress, when set, is told about every finished account.
	Progress aggregator.Progress

	// AllAlerts keeps alerts of every category, not just compliance.
	AllAlerts bool
}

// NewFactory creates a Factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create wires every component. window scopes inventory queries and cache
// keys. The returned App must be closed.
func (f *Factory) Create(ctx context.Context, cfg *config.Config, window types.DateRange) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError("", err.Error())
	}

	a := &App{Config: cfg, Logger: f.Logger}
	if a.Logger == nil {
		a.Logger = logger.New(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	}

	ttls, err := cache.NewTTLPolicy(cfg.Cache.TTLs)
	if err != nil {
		return nil, errors.ConfigurationError("cache.ttls", err.Error())
	}
	a.TTLs = ttls

	if err := f.createStore(a); err != nil {
		a.Close()
		return nil, err
	}

	a.Platform = f.Platform
	if a.Platform == nil {
		if a.Platform, err = f.createPlatform(a); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Inventory = f.Inventory
	if a.Inventory == nil {
		if a.Inventory, err = f.createInventory(ctx, a); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Fetcher = inventory.NewFetcher(a.Inventory, a.Store, inventory.Options{
		PageSize: cfg.Inventory.PageSize,
		MaxPages: cfg.Inventory.MaxPages,
		Provider: types.ProviderAWS,
		Window:   window,
		TTLs:     ttls,
	}, a.Logger)

	a.Analyzer = analyzer.New(a.Fetcher, a.Store, analyzer.Options{
		Namespace:            cfg.Tags.Namespace,
		NormalizeEnvironment: cfg.Tags.NormalizeEnvironment,
		Provider:             types.ProviderAWS,
		TTLs:                 ttls,
	}, a.Logger)

	defaults, err := resolver.ParseDefaults(cfg.Tags.OrgDefaults)
	if err != nil {
		a.Close()
		return nil, errors.ConfigurationError("tags.org_defaults", err.Error())
	}
	a.Resolver, err = resolver.New(resolver.Options{
		Namespace:   cfg.Tags.Namespace,
		Precedence:  resolver.Precedence(cfg.Tags.Precedence),
		OrgDefaults: defaults,
	})
	if err != nil {
		a.Close()
		return nil, errors.ConfigurationError("tags.precedence", err.Error())
	}

	a.Aggregator, err = aggregator.New(aggregator.Dependencies{
		Compliance:  a.Platform,
		Inventory:   a.Fetcher,
		Profiles:    a.Analyzer,
		Resolver:    a.Resolver,
		Directory:   a.Platform,
		Policies:    a.Platform,
		Definitions: a.Platform,
		Store:       a.Store,
		TTLs:        ttls,
		Provider:    types.ProviderAWS,
	}, a.Logger, f.aggregatorOptions()...)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Alerts = alerts.New(a.Platform, a.Platform, a.Store, alerts.Options{
		IncludeAll: f.AllAlerts,
		TTLs:       ttls,
	}, a.Logger)

	return a, nil
}

func (f *Factory) aggregatorOptions() []aggregator.Option {
	if f.Progress == nil {
		return nil
	}
	return []aggregator.Option{aggregator.WithProgress(f.Progress)}
}

func (f *Factory) createStore(a *App) error {
	store, closeStore, err := OpenStore(a.Config.Cache, a.Logger)
	if err != nil {
		return err
	}
	a.Store = store
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}
	return nil
}

// OpenStore opens the configured cache backend. The returned close function
// is nil when the backend holds no connection.
func OpenStore(cfg config.CacheConfig, log logger.Logger) (cache.Store, func() error, error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryStore(), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := cache.NewRedisStore(client, cache.RedisOptions{
			Prefix:  cfg.Redis.Prefix,
			LockTTL: cfg.Redis.LockTTL,
		}, log)
		return store, client.Close, nil
	default:
		store, err := cache.NewFileStore(cfg.Dir, log)
		if err != nil {
			return nil, nil, errors.ConfigurationError("cache.dir", err.Error())
		}
		return store, nil, nil
	}
}

func (f *Factory) rateLimited(a *App, next transport.Transport, provider errors.Provider) *transport.RateLimitedTransport {
	tc := a.Config.Transport
	return transport.NewRateLimited(next, transport.RetryConfig{
		BaseDelay:  tc.BaseDelay,
		MaxDelay:   tc.MaxDelay,
		MaxRetries: tc.MaxRetries,
		Jitter:     tc.Jitter,
	},
		transport.WithLogger(a.Logger.WithField("provider", string(provider))),
		transport.WithPacing(tc.RequestsPerSecond, tc.Burst),
		transport.WithProvider(provider),
	)
}

// apiClient builds the authenticated, rate-limited Lacework API client.
func (f *Factory) apiClient(a *App) (*lacework.APIClient, error) {
	lw := a.Config.Lacework
	if !a.Config.HasLaceworkCredentials() {
		return nil, errors.LaceworkCredentialsError(nil)
	}

	httpClient := transport.NewHTTPClient(lw.Timeout)
	baseURL := a.Config.LaceworkBaseURL()

	tokens := lacework.NewTokenSource(
		f.rateLimited(a, transport.NewHTTPTransport(httpClient, baseURL, nil), errors.ProviderLacework),
		lw.APIKey, lw.APISecret)

	api := transport.NewHTTPTransport(httpClient, baseURL, tokens)
	if lw.Subaccount != "" {
		api.SetHeader(lacework.SubaccountHeader(), lw.Subaccount)
	}
	return lacework.NewAPIClient(f.rateLimited(a, api, errors.ProviderLacework), a.Logger), nil
}

func (f *Factory) createPlatform(a *App) (Platform, error) {
	lw := a.Config.Lacework
	if lw.Mode != "cli" {
		client, err := f.apiClient(a)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	args := []string{"--noninteractive"}
	if lw.Account != "" {
		args = append(args, "--account", lw.Account)
	}
	if lw.Subaccount != "" {
		args = append(args, "--subaccount", lw.Subaccount)
	}
	if lw.APIKey != "" && lw.APISecret != "" {
		args = append(args, "--api_key", lw.APIKey, "--api_secret", lw.APISecret)
	}

	runner := transport.NewCLIRunner(lw.CLIPath)
	return lacework.NewCLIProvider(f.rateLimited(a, runner, errors.ProviderLacework), lw.CLIPath, a.Logger, args...), nil
}

func (f *Factory) createInventory(ctx context.Context, a *App) (inventory.Provider, error) {
	switch a.Config.Inventory.Source {
	case "aws":
		ac := a.Config.AWS
		clients, err := awsinventory.NewClients(ctx, awsinventory.ClientConfig{
			Region:     ac.Region,
			Profile:    ac.Profile,
			MaxRetries: ac.MaxRetries,
			Timeout:    ac.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return awsinventory.NewProvider(clients, f.rateLimited(a, nil, errors.ProviderAWS), a.Logger), nil
	default:
		if client, ok := a.Platform.(*lacework.APIClient); ok {
			return client, nil
		}
		client, err := f.apiClient(a)
		if err != nil {
			return nil, fmt.Errorf("lacework inventory needs API credentials even in cli mode: %w", err)
		}
		return client, nil
	}
}
