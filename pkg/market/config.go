package market

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"quotecore/pkg/confkit"
	"quotecore/pkg/symbol"
)

// Config describes the set of market data providers available to the
// application and which instrument markets each one serves.
type Config struct {
	Providers map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig represents configuration for a single provider.
type ProviderConfig struct {
	Type string `yaml:"type"`

	BaseURL     string `yaml:"base_url"`
	HistoryURL  string `yaml:"history_url"`
	FallbackURL string `yaml:"fallback_url"`

	// Markets lists the symbol markets routed to this provider,
	// e.g. [A_SH, A_SZ, INDEX].
	Markets []string `yaml:"markets"`

	TimeoutRaw     string        `yaml:"timeout"`
	Timeout        time.Duration `yaml:"-"`
	HTTPTimeoutRaw string        `yaml:"http_timeout"`
	HTTPTimeout    time.Duration `yaml:"-"`
}

// ProviderBuilder constructs a Provider from configuration.
type ProviderBuilder func(name string, cfg *ProviderConfig) (Provider, error)

var (
	providerRegistry   = make(map[string]ProviderBuilder)
	providerRegistryMu sync.RWMutex
)

// RegisterProvider registers a market provider constructor. Exchange
// packages call this from init; selecting a provider at a call site is then
// purely data driven.
func RegisterProvider(typeName string, builder ProviderBuilder) {
	providerRegistryMu.Lock()
	defer providerRegistryMu.Unlock()
	providerRegistry[strings.ToLower(strings.TrimSpace(typeName))] = builder
}

func lookupProviderBuilder(typeName string) (ProviderBuilder, bool) {
	providerRegistryMu.RLock()
	defer providerRegistryMu.RUnlock()
	builder, ok := providerRegistry[strings.ToLower(strings.TrimSpace(typeName))]
	return builder, ok
}

// LoadConfig reads provider configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open market config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read market config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal market config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig)
	}
	for name, provider := range c.Providers {
		if provider == nil {
			provider = &ProviderConfig{}
			c.Providers[name] = provider
		}
		provider.expandEnv()
		if err := provider.parseDurations(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProviderConfig) expandEnv() {
	p.Type = strings.TrimSpace(os.ExpandEnv(p.Type))
	p.BaseURL = strings.TrimSpace(os.ExpandEnv(p.BaseURL))
	p.HistoryURL = strings.TrimSpace(os.ExpandEnv(p.HistoryURL))
	p.FallbackURL = strings.TrimSpace(os.ExpandEnv(p.FallbackURL))
	p.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(p.TimeoutRaw))
	p.HTTPTimeoutRaw = strings.TrimSpace(os.ExpandEnv(p.HTTPTimeoutRaw))
}

func (p *ProviderConfig) parseDurations(name string) error {
	if p.TimeoutRaw != "" {
		d, err := time.ParseDuration(p.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("market provider %s: invalid timeout %q: %w", name, p.TimeoutRaw, err)
		}
		if d <= 0 {
			return fmt.Errorf("market provider %s: timeout must be positive, got %s", name, d)
		}
		p.Timeout = d
	}
	if p.HTTPTimeoutRaw != "" {
		d, err := time.ParseDuration(p.HTTPTimeoutRaw)
		if err != nil {
			return fmt.Errorf("market provider %s: invalid http_timeout %q: %w", name, p.HTTPTimeoutRaw, err)
		}
		if d <= 0 {
			return fmt.Errorf("market provider %s: http_timeout must be positive, got %s", name, d)
		}
		p.HTTPTimeout = d
	}
	return nil
}

// Validate ensures the configuration is structurally sound: every provider
// has a registered type and no two providers claim the same market.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("market config: providers cannot be empty")
	}
	claimed := make(map[symbol.Market]string)
	for name, provider := range c.Providers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("market config: provider name cannot be empty")
		}
		if err := provider.validate(name); err != nil {
			return err
		}
		for _, m := range provider.Markets {
			mkt, err := ParseMarket(m)
			if err != nil {
				return fmt.Errorf("market provider %s: %w", name, err)
			}
			if other, dup := claimed[mkt]; dup {
				return fmt.Errorf("market config: market %s claimed by both %s and %s", mkt, other, name)
			}
			claimed[mkt] = name
		}
	}
	return nil
}

func (p *ProviderConfig) validate(name string) error {
	if p == nil {
		return fmt.Errorf("market config: provider %s is nil", name)
	}
	if strings.TrimSpace(p.Type) == "" {
		return fmt.Errorf("market config: provider %s must specify type", name)
	}
	if _, ok := lookupProviderBuilder(p.Type); !ok {
		return fmt.Errorf("market config: provider %s has unsupported type %q", name, p.Type)
	}
	if len(p.Markets) == 0 {
		return fmt.Errorf("market config: provider %s must claim at least one market", name)
	}
	return nil
}

// ParseMarket maps a configuration token such as "A_SH" or "crypto" onto a
// symbol market.
func ParseMarket(raw string) (symbol.Market, error) {
	switch symbol.Market(strings.ToUpper(strings.TrimSpace(raw))) {
	case symbol.MarketASH:
		return symbol.MarketASH, nil
	case symbol.MarketASZ:
		return symbol.MarketASZ, nil
	case symbol.MarketHK:
		return symbol.MarketHK, nil
	case symbol.MarketUS:
		return symbol.MarketUS, nil
	case symbol.MarketIndex:
		return symbol.MarketIndex, nil
	case symbol.MarketCrypto:
		return symbol.MarketCrypto, nil
	default:
		return "", fmt.Errorf("unknown market %q", raw)
	}
}

// Registry routes instrument markets to built providers.
type Registry struct {
	byMarket map[symbol.Market]Provider
	byName   map[string]Provider
	names    map[symbol.Market]string
}

// BuildRegistry instantiates providers according to configuration and
// indexes them by the markets they claim.
func (c *Config) BuildRegistry() (*Registry, error) {
	reg := &Registry{
		byMarket: make(map[symbol.Market]Provider),
		byName:   make(map[string]Provider),
		names:    make(map[symbol.Market]string),
	}
	for name, providerCfg := range c.Providers {
		builder, ok := lookupProviderBuilder(providerCfg.Type)
		if !ok {
			return nil, fmt.Errorf("market provider %s: unsupported type %q", name, providerCfg.Type)
		}
		provider, err := builder(name, providerCfg)
		if err != nil {
			return nil, fmt.Errorf("market provider %s: %w", name, err)
		}
		reg.byName[name] = provider
		for _, m := range providerCfg.Markets {
			mkt, err := ParseMarket(m)
			if err != nil {
				return nil, fmt.Errorf("market provider %s: %w", name, err)
			}
			reg.byMarket[mkt] = provider
			reg.names[mkt] = name
		}
	}
	return reg, nil
}

// ForMarket returns the provider claiming the market, plus its config name.
func (r *Registry) ForMarket(m symbol.Market) (Provider, string, error) {
	p, ok := r.byMarket[m]
	if !ok {
		return nil, "", fmt.Errorf("%w: no provider configured for market %s", ErrDisabled, m)
	}
	return p, r.names[m], nil
}

// ByName returns a provider by its configured name.
func (r *Registry) ByName(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names lists all configured provider names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}

// Register inserts a provider directly, bypassing builders. Intended for
// tests that stub upstreams.
func (r *Registry) Register(name string, p Provider, markets ...symbol.Market) {
	if r.byMarket == nil {
		r.byMarket = make(map[symbol.Market]Provider)
	}
	if r.byName == nil {
		r.byName = make(map[string]Provider)
	}
	if r.names == nil {
		r.names = make(map[symbol.Market]string)
	}
	r.byName[name] = p
	for _, m := range markets {
		r.byMarket[m] = p
		r.names[m] = name
	}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byMarket: make(map[symbol.Market]Provider),
		byName:   make(map[string]Provider),
		names:    make(map[symbol.Market]string),
	}
}
