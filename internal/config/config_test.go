package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	marketpkg "quotecore/pkg/market"
	"quotecore/pkg/symbol"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quotecore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "env: test\n"))
	require.NoError(t, err)

	require.True(t, cfg.IsTestEnv())
	require.Equal(t, 60, cfg.TTL.Quote)
	require.Equal(t, 300, cfg.TTL.Daily)
	require.Equal(t, 1800, cfg.TTL.LongTerm)
	require.Equal(t, 15, cfg.TTL.Negative)
	require.Equal(t, marketpkg.PeriodDaily, cfg.DefaultPeriod())
	require.Equal(t, 100, cfg.Query.DefaultLimit)
	require.Equal(t, 2, cfg.Dispatch.MaxRetries)
	require.Equal(t, 3, cfg.Dispatch.MaxInFlight)
	require.Equal(t, 10*time.Second, cfg.DefaultTimeout())
	require.True(t, cfg.Features.AutoCorrect)
	require.True(t, cfg.Features.Crypto)
	require.Equal(t, "USDT", cfg.Crypto.DefaultVsCurrency)
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
env: prod
ttl:
  quote: 30
  intraday: 45
  daily: 600
  longterm: 3600
  negative: 20
query:
  defaultperiod: weekly
  defaultlimit: 50
  maxrecords:
    daily: 500
    minutely: 240
dispatch:
  maxretries: 1
  maxinflight: 5
  defaulttimeout: 8
  markettimeouts:
    US: 20
    CRYPTO: 5
features:
  autocorrect: false
  usstock: false
crypto:
  defaultvscurrency: busd
  supportedvscurrencies: [BUSD, USDT]
  bases: [WIF]
`))
	require.NoError(t, err)

	require.False(t, cfg.IsTestEnv())
	require.Equal(t, marketpkg.PeriodWeekly, cfg.DefaultPeriod())
	require.Equal(t, map[marketpkg.Period]int{
		marketpkg.PeriodDaily:    500,
		marketpkg.PeriodMinutely: 240,
	}, cfg.MaxRecords())
	require.Equal(t, 8*time.Second, cfg.DefaultTimeout())
	require.Equal(t, map[symbol.Market]time.Duration{
		symbol.MarketUS:     20 * time.Second,
		symbol.MarketCrypto: 5 * time.Second,
	}, cfg.MarketTimeouts())

	opts := cfg.SymbolOptions()
	require.False(t, opts.AutoCorrect)
	require.False(t, opts.EnableUS)
	require.True(t, opts.EnableCrypto)
	require.Equal(t, "BUSD", opts.DefaultVsCurrency)
	require.Contains(t, opts.CryptoBases, "WIF")
	require.Contains(t, opts.CryptoBases, "BTC")
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	_, err := Load(writeConfig(t, "env: staging\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "env must be one of")
}

func TestLoadRejectsNonPositiveTTL(t *testing.T) {
	_, err := Load(writeConfig(t, "env: test\nttl:\n  quote: -1\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "ttl.quote")
}

func TestLoadRejectsUnknownPeriod(t *testing.T) {
	_, err := Load(writeConfig(t, "env: test\nquery:\n  defaultperiod: fortnightly\n"))
	require.Error(t, err)
}

func TestLoadRejectsUnknownMarketTimeout(t *testing.T) {
	_, err := Load(writeConfig(t, "env: test\ndispatch:\n  markettimeouts:\n    MOON: 5\n"))
	require.Error(t, err)
}

func TestSupportedVsCurrency(t *testing.T) {
	cfg, err := Load(writeConfig(t, "env: test\ncrypto:\n  supportedvscurrencies: [USDT, BUSD]\n"))
	require.NoError(t, err)

	require.True(t, cfg.SupportedVsCurrency(""))
	require.True(t, cfg.SupportedVsCurrency("usdt"))
	require.True(t, cfg.SupportedVsCurrency("BUSD"))
	require.False(t, cfg.SupportedVsCurrency("EUR"))

	cfg, err = Load(writeConfig(t, "env: test\n"))
	require.NoError(t, err)
	require.True(t, cfg.SupportedVsCurrency("USDT"))
	require.False(t, cfg.SupportedVsCurrency("BUSD"))
}
