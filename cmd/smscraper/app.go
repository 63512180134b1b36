package main

import (
	"context"
	"fmt"
	"net/http"

	"smscraper/pkg/config"
	"smscraper/pkg/dispatch"
	"smscraper/pkg/logger"
	"smscraper/pkg/proxy"
	"smscraper/pkg/ratelimit"
	"smscraper/pkg/useragent"
)

// core bundles the wired request pipeline shared by the subcommands.
type core struct {
	cfg        *config.Config
	limiter    *ratelimit.Limiter
	pool       *proxy.Pool
	rotator    *useragent.Rotator
	dispatcher *dispatch.Dispatcher
	metrics    *dispatch.Metrics
}

// buildCore wires the limiter, identity rotator, optional proxy pool and
// dispatcher from the effective configuration.
func buildCore(ctx context.Context, cfg *config.Config, log logger.Logger) (*core, error) {
	limits := make(map[string]ratelimit.Config, len(cfg.RateLimits))
	for key, rl := range cfg.RateLimits {
		limits[key] = ratelimit.Config{
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			RequestsPerDay:    rl.RequestsPerDay,
			BurstLimit:        rl.BurstLimit,
			CooldownPeriod:    rl.CooldownPeriod,
			JitterFraction:    rl.JitterFraction,
		}
	}
	limiter, err := ratelimit.New(limits, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build rate limiter: %w", err)
	}

	rotator := useragent.NewRotator(cfg.UserAgent.RotationRequests, cfg.UserAgent.RotationInterval)

	var (
		pool     *proxy.Pool
		provider dispatch.ProxyProvider
	)
	if cfg.Proxy.Enabled {
		pool = newPool(cfg, log)
		if err := pool.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize proxy pool: %w", err)
		}
		provider = pool
	}

	metrics := dispatch.NewMetrics()
	dispatcher, err := dispatch.New(limiter, provider, rotator, dispatch.Options{
		MaxConcurrent:  int64(cfg.Dispatcher.MaxConcurrentRequests),
		MaxAttempts:    cfg.Dispatcher.MaxAttempts,
		RetryBaseDelay: cfg.Dispatcher.RetryBaseDelay,
		RetryMaxDelay:  cfg.Dispatcher.RetryMaxDelay,
		RequestTimeout: cfg.Dispatcher.RequestTimeout,
		Logger:         log,
		Metrics:        metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build dispatcher: %w", err)
	}

	return &core{
		cfg:        cfg,
		limiter:    limiter,
		pool:       pool,
		rotator:    rotator,
		dispatcher: dispatcher,
		metrics:    metrics,
	}, nil
}

// newPool builds an uninitialised proxy pool from configuration.
func newPool(cfg *config.Config, log logger.Logger) *proxy.Pool {
	client := &http.Client{}
	sources := []proxy.Source{
		proxy.NewGeonodeSource(client),
		proxy.NewFreeProxyListSource(client),
	}
	if len(cfg.Proxy.StaticProxies) > 0 {
		sources = append(sources, &proxy.StaticSource{Addresses: cfg.Proxy.StaticProxies})
	}

	return proxy.NewPool(proxy.Options{
		Sources:               sources,
		TestURLs:              cfg.Proxy.TestURLs,
		ValidationTimeout:     cfg.Proxy.ValidationTimeout,
		ValidationConcurrency: int64(cfg.Proxy.ValidationConcurrency),
		FailThreshold:         cfg.Proxy.FailThreshold,
		RotationInterval:      cfg.Proxy.RotationInterval,
		CacheFile:             cfg.Proxy.CacheFile,
		CacheMaxAge:           cfg.Proxy.CacheMaxAge,
		Logger:                log,
	})
}
