package svc

import (
	"log"

	"quotecore/internal/cache"
	"quotecore/internal/config"
	marketpkg "quotecore/pkg/market"
	"quotecore/pkg/market/dispatch"
	_ "quotecore/pkg/market/exchanges/binance"
	_ "quotecore/pkg/market/exchanges/eastmoney"
	"quotecore/pkg/symbol"
)

// ServiceContext wires the long-lived pieces every entry point shares: the
// normalizer, the provider registry, the fetch coordinator and the cache.
type ServiceContext struct {
	Config config.Config

	Normalizer *symbol.Normalizer
	Registry   *marketpkg.Registry
	Dispatcher *dispatch.Dispatcher
	Cache      *cache.Store
}

func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config:     c,
		Normalizer: symbol.NewNormalizer(c.SymbolOptions()),
	}

	if c.Market.Value == nil {
		log.Fatalf("market config missing: set market.file in the main config")
	}
	registry, err := c.Market.Value.BuildRegistry()
	if err != nil {
		log.Fatalf("failed to build market providers: %v", err)
	}
	svc.Registry = registry

	dispatchOpts := []dispatch.Option{
		dispatch.WithPolicy(dispatch.Policy{MaxRetries: c.Dispatch.MaxRetries}),
		dispatch.WithMaxInFlight(c.Dispatch.MaxInFlight),
		dispatch.WithDefaultTimeout(c.DefaultTimeout()),
	}
	for mkt, timeout := range c.MarketTimeouts() {
		dispatchOpts = append(dispatchOpts, dispatch.WithMarketTimeout(mkt, timeout))
	}
	svc.Dispatcher = dispatch.New(dispatchOpts...)

	store, err := cache.NewStore(cache.NewTTLSet(c.TTL))
	if err != nil {
		log.Fatalf("failed to build cache: %v", err)
	}
	svc.Cache = store

	return svc
}
