package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"quotecore/pkg/confkit"
	marketpkg "quotecore/pkg/market"
	"quotecore/pkg/symbol"
)

// CacheTTL holds cache lifetimes in seconds, bucketed by how fast the
// underlying data goes stale.
type CacheTTL struct {
	Quote    int `json:",default=60"`
	Intraday int `json:",default=60"`
	Daily    int `json:",default=300"`
	LongTerm int `json:",default=1800"`
	// Negative caches not-found results so repeated typos do not hammer
	// upstreams.
	Negative int `json:",default=15"`
}

// QueryConf sets history defaults and per-period record ceilings.
type QueryConf struct {
	DefaultPeriod string `json:",default=daily"`
	DefaultLimit  int    `json:",default=100"`
	// MaxRecords caps the number of bars a single query may request,
	// keyed by period name. Unlisted periods are uncapped.
	MaxRecords map[string]int `json:",optional"`
}

// DispatchConf controls upstream retry and concurrency behaviour.
type DispatchConf struct {
	MaxRetries     int `json:",default=2"`
	MaxInFlight    int `json:",default=3"`
	DefaultTimeout int `json:",default=10"` // seconds
	// MarketTimeouts overrides the per-attempt deadline for individual
	// markets, keyed by market name (A_SH, HK, US, CRYPTO, ...), seconds.
	MarketTimeouts map[string]int `json:",optional"`
}

// FeatureConf toggles optional markets and input correction.
type FeatureConf struct {
	AutoCorrect  bool `json:",default=true"`
	USStock      bool `json:",default=true"`
	HKStock      bool `json:",default=true"`
	Crypto       bool `json:",default=true"`
	PreferCrypto bool `json:",default=true"`
}

// CryptoConf scopes crypto symbol resolution.
type CryptoConf struct {
	DefaultVsCurrency     string   `json:",default=USDT"`
	SupportedVsCurrencies []string `json:",optional"`
	// Bases extends the built-in base-asset whitelist.
	Bases []string `json:",optional"`
}

type Config struct {
	// Env indicates the running environment: test | dev | prod.
	Env      string `json:",default=test"`
	TTL      CacheTTL
	Query    QueryConf
	Dispatch DispatchConf
	Features FeatureConf
	Crypto   CryptoConf

	// Market points at the provider routing file, etc/market.yaml by
	// convention.
	Market confkit.Section[marketpkg.Config] `json:",optional"`

	mainPath string
	baseDir  string
}

func (c *Config) IsTestEnv() bool {
	return c.Env == "test" || c.Env == ""
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	confkit.LoadDotenvOnce()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %s: %w", path, err)
	}

	cfg, err := confkit.LoadFile[Config](absPath, true)
	if err != nil {
		return nil, err
	}

	cfg.mainPath = absPath
	cfg.baseDir = confkit.BaseDir(absPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.hydrateSections(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "", "test", "dev", "prod":
		if strings.TrimSpace(c.Env) == "" {
			c.Env = "test"
		}
	default:
		return errors.New("config: env must be one of test|dev|prod")
	}
	if err := c.validateTTL(); err != nil {
		return err
	}
	if err := c.validateQuery(); err != nil {
		return err
	}
	return c.validateDispatch()
}

func (c *Config) validateTTL() error {
	for _, ttl := range []struct {
		name    string
		seconds int
	}{
		{"quote", c.TTL.Quote},
		{"intraday", c.TTL.Intraday},
		{"daily", c.TTL.Daily},
		{"longterm", c.TTL.LongTerm},
		{"negative", c.TTL.Negative},
	} {
		if ttl.seconds <= 0 {
			return fmt.Errorf("config: ttl.%s must be positive", ttl.name)
		}
	}
	return nil
}

func (c *Config) validateQuery() error {
	if _, err := marketpkg.ParsePeriod(c.Query.DefaultPeriod, marketpkg.PeriodDaily); err != nil {
		return fmt.Errorf("config: query.defaultperiod: %w", err)
	}
	if c.Query.DefaultLimit <= 0 {
		return errors.New("config: query.defaultlimit must be positive")
	}
	for name, limit := range c.Query.MaxRecords {
		if _, err := marketpkg.ParsePeriod(name, ""); err != nil {
			return fmt.Errorf("config: query.maxrecords: %w", err)
		}
		if limit <= 0 {
			return fmt.Errorf("config: query.maxrecords.%s must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateDispatch() error {
	if c.Dispatch.MaxRetries < 0 {
		return errors.New("config: dispatch.maxretries cannot be negative")
	}
	if c.Dispatch.MaxInFlight <= 0 {
		return errors.New("config: dispatch.maxinflight must be positive")
	}
	if c.Dispatch.DefaultTimeout <= 0 {
		return errors.New("config: dispatch.defaulttimeout must be positive")
	}
	for name, seconds := range c.Dispatch.MarketTimeouts {
		if _, err := marketpkg.ParseMarket(name); err != nil {
			return fmt.Errorf("config: dispatch.markettimeouts: %w", err)
		}
		if seconds <= 0 {
			return fmt.Errorf("config: dispatch.markettimeouts.%s must be positive", name)
		}
	}
	return nil
}

func (c *Config) hydrateSections() error {
	if err := c.Market.Hydrate(c.baseDir, marketpkg.LoadConfig); err != nil {
		return fmt.Errorf("load market config: %w", err)
	}
	return nil
}

func (c *Config) MainPath() string {
	return c.mainPath
}

func (c *Config) BaseDir() string {
	return c.baseDir
}

// DefaultPeriod returns the validated default series period.
func (c *Config) DefaultPeriod() marketpkg.Period {
	p, err := marketpkg.ParsePeriod(c.Query.DefaultPeriod, marketpkg.PeriodDaily)
	if err != nil {
		return marketpkg.PeriodDaily
	}
	return p
}

// MaxRecords returns the per-period record ceilings keyed by parsed period.
func (c *Config) MaxRecords() map[marketpkg.Period]int {
	out := make(map[marketpkg.Period]int, len(c.Query.MaxRecords))
	for name, limit := range c.Query.MaxRecords {
		p, err := marketpkg.ParsePeriod(name, "")
		if err != nil {
			continue
		}
		out[p] = limit
	}
	return out
}

// DefaultTimeout returns the per-attempt upstream deadline.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Dispatch.DefaultTimeout) * time.Second
}

// MarketTimeouts returns per-market deadline overrides keyed by parsed market.
func (c *Config) MarketTimeouts() map[symbol.Market]time.Duration {
	out := make(map[symbol.Market]time.Duration, len(c.Dispatch.MarketTimeouts))
	for name, seconds := range c.Dispatch.MarketTimeouts {
		m, err := marketpkg.ParseMarket(name)
		if err != nil {
			continue
		}
		out[m] = time.Duration(seconds) * time.Second
	}
	return out
}

// SymbolOptions assembles normalization options from the feature flags and
// crypto settings.
func (c *Config) SymbolOptions() symbol.Options {
	bases := symbol.DefaultCryptoBases
	if len(c.Crypto.Bases) > 0 {
		merged := make([]string, 0, len(bases)+len(c.Crypto.Bases))
		merged = append(merged, bases...)
		merged = append(merged, c.Crypto.Bases...)
		bases = merged
	}
	return symbol.Options{
		AutoCorrect:       c.Features.AutoCorrect,
		EnableUS:          c.Features.USStock,
		EnableHK:          c.Features.HKStock,
		EnableCrypto:      c.Features.Crypto,
		PreferCrypto:      c.Features.PreferCrypto,
		CryptoBases:       bases,
		DefaultVsCurrency: strings.ToUpper(strings.TrimSpace(c.Crypto.DefaultVsCurrency)),
	}
}

// SupportedVsCurrency reports whether vs is an accepted crypto quote
// currency. An empty supported list accepts only the default.
func (c *Config) SupportedVsCurrency(vs string) bool {
	vs = strings.ToUpper(strings.TrimSpace(vs))
	if vs == "" {
		return true
	}
	if len(c.Crypto.SupportedVsCurrencies) == 0 {
		return vs == strings.ToUpper(strings.TrimSpace(c.Crypto.DefaultVsCurrency))
	}
	for _, supported := range c.Crypto.SupportedVsCurrencies {
		if vs == strings.ToUpper(strings.TrimSpace(supported)) {
			return true
		}
	}
	return false
}
