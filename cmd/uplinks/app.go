package main

import (
	"errors"

	"github.com/gustycube/uplinks/internal/cache"
	"github.com/gustycube/uplinks/internal/config"
	"github.com/gustycube/uplinks/internal/health"
	"github.com/gustycube/uplinks/internal/httpclient"
	"github.com/gustycube/uplinks/internal/iplookup"
	"github.com/gustycube/uplinks/internal/logging"
	"github.com/gustycube/uplinks/internal/registry"
	"github.com/gustycube/uplinks/internal/ripestat"
	"github.com/gustycube/uplinks/internal/uplinks"
)

// app holds the wired collaborators for one process
type app struct {
	builder *uplinks.Builder
	http    *httpclient.Client
	redis   *cache.Redis
	closers []func() error
}

func newApp(cfg *config.Config, log *logging.Logger) (*app, error) {
	a := &app{}

	var c cache.Cache = cache.Nop{}
	switch {
	case cfg.RedisAddr != "":
		rd, err := cache.NewRedis(cfg.RedisAddr, cfg.CacheTTL(), log)
		if err != nil {
			log.Warnw("redis cache unavailable, continuing without it", "addr", cfg.RedisAddr, "err", err)
			break
		}
		log.Infow("redis cache enabled", "addr", cfg.RedisAddr)
		a.redis = rd
		a.closers = append(a.closers, rd.Close)
		c = rd
	case cfg.CacheSize > 0:
		c = cache.NewMemory(cfg.CacheSize, cfg.CacheTTL())
	}

	hopts := httpclient.Options{
		UA:         cfg.UA,
		Timeout:    cfg.Timeout(),
		Retries:    cfg.Retries,
		RatePerSec: cfg.RatePerSec,
		RateBurst:  cfg.RateBurst,
		Log:        log,
	}
	if cfg.Breaker {
		hopts.Breakers = httpclient.NewBreakers(log)
	}
	a.http = httpclient.New(hopts)
	stat := ripestat.New(cfg.StatURL, a.http, c)
	reg := registry.New(cfg.RegistryURL, a.http, c)

	resolver, closeResolver, err := iplookup.New(iplookup.Options{
		Kind:      cfg.IPLookup,
		Stat:      stat,
		MMDBPath:  cfg.MMDBPath,
		DNSServer: cfg.DNSServer,
		Timeout:   cfg.Timeout(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeResolver)

	a.builder = uplinks.New(reg, stat, resolver, log)
	return a, nil
}

// healthHandler registers the checks that make sense for this wiring
func (a *app) healthHandler(log *logging.Logger) *health.Handler {
	h := health.NewHandler(log)
	h.SetMetadata("version", version)
	if set := a.http.Breakers(); set != nil {
		h.RegisterChecker("ripe", health.NewBreakerChecker(set))
	}
	if a.redis != nil {
		h.RegisterChecker("redis", health.NewRedisChecker(a.redis.Ping))
	} else {
		h.RegisterChecker("redis", health.NewRedisChecker(nil))
	}
	return h
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
