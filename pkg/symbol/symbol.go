// Package symbol resolves raw user input into canonical instrument
// references. Correction rules mirror the formats users actually type:
// bare numeric codes, lowercase exchange prefixes, legacy suffixes such as
// .SS, and bare crypto base assets.
package symbol

import (
	"errors"
	"fmt"
	"strings"
)

// Market identifies the venue an instrument trades on.
type Market string

const (
	MarketASH    Market = "A_SH"
	MarketASZ    Market = "A_SZ"
	MarketHK     Market = "HK"
	MarketUS     Market = "US"
	MarketIndex  Market = "INDEX"
	MarketCrypto Market = "CRYPTO"
)

// ErrInvalidSymbol indicates input that cannot be resolved to an instrument.
var ErrInvalidSymbol = errors.New("symbol: invalid symbol")

// Ref is a canonical instrument reference. Construct via Normalize or New;
// treat values as immutable.
type Ref struct {
	Market Market
	// Code is the bare uppercase instrument code without market suffix,
	// e.g. "600000", "00700", "AAPL", "BTC".
	Code string
	// VsCurrency is the crypto quote currency, empty for non-crypto markets.
	VsCurrency string
}

// Canonical renders the market-qualified form used in cache keys and logs.
func (r Ref) Canonical() string {
	switch r.Market {
	case MarketIndex:
		if strings.HasPrefix(r.Code, "399") {
			return r.Code + ".SZ"
		}
		return r.Code + ".SH"
	case MarketASH:
		return r.Code + ".SH"
	case MarketASZ:
		return r.Code + ".SZ"
	case MarketHK:
		return r.Code + ".HK"
	case MarketUS:
		return r.Code + ".US"
	case MarketCrypto:
		return r.Code
	default:
		return r.Code
	}
}

// Pair renders the crypto trading pair, e.g. BTC + USDT -> BTCUSDT.
func (r Ref) Pair() string {
	if r.Market != MarketCrypto {
		return r.Code
	}
	return r.Code + r.VsCurrency
}

func (r Ref) String() string { return r.Canonical() }

// Options control normalization behaviour. The zero value accepts only
// exact canonical forms with every optional market disabled.
type Options struct {
	// AutoCorrect enables best-effort correction of non-canonical input.
	AutoCorrect  bool
	EnableUS     bool
	EnableHK     bool
	EnableCrypto bool
	// PreferCrypto resolves bare alphabetic input that matches a known
	// crypto base asset as crypto rather than a US ticker. Only consulted
	// when EnableCrypto is set.
	PreferCrypto bool
	// CryptoBases is the recognised base-asset whitelist (upper case).
	CryptoBases []string
	// DefaultVsCurrency is applied to crypto refs without an explicit
	// quote currency.
	DefaultVsCurrency string
}

// Normalizer maps raw symbol strings onto canonical Refs.
type Normalizer struct {
	opts  Options
	bases map[string]struct{}
}

// DefaultCryptoBases covers the majors the original bot recognised out of
// the box; deployments extend the list via configuration.
var DefaultCryptoBases = []string{
	"BTC", "ETH", "BNB", "SOL", "XRP", "ADA", "DOGE", "TRX", "DOT", "LINK",
	"LTC", "AVAX", "UNI", "ATOM", "FIL", "PEPE", "SHIB",
}

// NewNormalizer builds a Normalizer from the supplied options.
func NewNormalizer(opts Options) *Normalizer {
	if opts.DefaultVsCurrency == "" {
		opts.DefaultVsCurrency = "USDT"
	}
	bases := make(map[string]struct{}, len(opts.CryptoBases))
	for _, b := range opts.CryptoBases {
		b = strings.ToUpper(strings.TrimSpace(b))
		if b != "" {
			bases[b] = struct{}{}
		}
	}
	return &Normalizer{opts: opts, bases: bases}
}

// Normalize resolves raw input into a canonical Ref. corrected reports
// whether the canonical form differs from the (upper-cased) input.
func (n *Normalizer) Normalize(raw string) (Ref, bool, error) {
	input := strings.ToUpper(strings.TrimSpace(raw))
	if input == "" {
		return Ref{}, false, fmt.Errorf("%w: empty input", ErrInvalidSymbol)
	}

	if ref, ok := n.parseCanonical(input); ok {
		return ref, false, nil
	}
	if !n.opts.AutoCorrect {
		return Ref{}, false, fmt.Errorf("%w: %q is not a canonical code and auto correction is disabled", ErrInvalidSymbol, raw)
	}
	ref, ok := n.correct(input)
	if !ok {
		return Ref{}, false, fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return ref, true, nil
}

// parseCanonical accepts only exact canonical forms: NNNNNN.SH, NNNNNN.SZ,
// NNNNN.HK, ALPHA.US, and whitelisted bare crypto bases.
func (n *Normalizer) parseCanonical(input string) (Ref, bool) {
	if code, ok := strings.CutSuffix(input, ".SH"); ok && isDigits(code) && len(code) == 6 {
		return n.classifySH(code), true
	}
	if code, ok := strings.CutSuffix(input, ".SZ"); ok && isDigits(code) && len(code) == 6 {
		return n.classifySZ(code), true
	}
	if code, ok := strings.CutSuffix(input, ".HK"); ok && isDigits(code) && len(code) == 5 {
		return Ref{Market: MarketHK, Code: code}, true
	}
	if code, ok := strings.CutSuffix(input, ".US"); ok && isAlpha(code) && len(code) >= 1 && len(code) <= 5 {
		return Ref{Market: MarketUS, Code: code}, true
	}
	if n.opts.EnableCrypto && n.isCryptoBase(input) && n.opts.PreferCrypto {
		return Ref{Market: MarketCrypto, Code: input, VsCurrency: n.opts.DefaultVsCurrency}, true
	}
	return Ref{}, false
}

func (n *Normalizer) correct(input string) (Ref, bool) {
	// Bare 6-digit code: A-share, exchange inferred from the prefix.
	if isDigits(input) && len(input) == 6 {
		return n.classifyBareAShare(input), true
	}

	// Bare 1-5 digit code: Hong Kong, zero padded to 5 digits.
	if isDigits(input) && len(input) <= 5 {
		return Ref{Market: MarketHK, Code: zeroPad(input, 5)}, true
	}

	// sh600000 / sz000001 and sh.600000 / sz.000001.
	for _, prefix := range []string{"SH", "SZ"} {
		rest, ok := strings.CutPrefix(input, prefix)
		if !ok {
			continue
		}
		rest = strings.TrimPrefix(rest, ".")
		if isDigits(rest) && len(rest) == 6 {
			if prefix == "SH" {
				return n.classifySH(rest), true
			}
			return n.classifySZ(rest), true
		}
	}

	// Legacy A-share suffixes: 600000.SS, 600000.SHA, 000001.SZE, ...
	if code, suffix, ok := splitSuffix(input); ok && isDigits(code) && len(code) == 6 {
		switch {
		case suffix == "SS" || strings.HasPrefix(suffix, "SH"):
			return n.classifySH(code), true
		case strings.HasPrefix(suffix, "SZ"):
			return n.classifySZ(code), true
		}
	}

	// HK variants: HK700, 700.HK (short codes are zero padded to 5 digits).
	if rest, ok := strings.CutPrefix(input, "HK"); ok && isDigits(rest) && len(rest) >= 1 && len(rest) <= 5 {
		return Ref{Market: MarketHK, Code: zeroPad(rest, 5)}, true
	}
	if code, suffix, ok := splitSuffix(input); ok && suffix == "HK" && isDigits(code) && len(code) >= 1 && len(code) <= 5 {
		return Ref{Market: MarketHK, Code: zeroPad(code, 5)}, true
	}

	// US variants: US.AAPL and bare tickers.
	if rest, ok := strings.CutPrefix(input, "US."); ok && isAlpha(rest) && len(rest) >= 1 && len(rest) <= 5 {
		return Ref{Market: MarketUS, Code: rest}, true
	}
	if isAlpha(input) && len(input) >= 1 && len(input) <= 5 {
		// Deliberate tie-break for bare alphabetic input: a whitelisted
		// crypto base wins only when crypto is enabled and preferred.
		if n.opts.EnableCrypto && n.opts.PreferCrypto && n.isCryptoBase(input) {
			return Ref{Market: MarketCrypto, Code: input, VsCurrency: n.opts.DefaultVsCurrency}, true
		}
		if n.opts.EnableCrypto && n.isCryptoBase(input) && !n.opts.EnableUS {
			return Ref{Market: MarketCrypto, Code: input, VsCurrency: n.opts.DefaultVsCurrency}, true
		}
		return Ref{Market: MarketUS, Code: input}, true
	}

	return Ref{}, false
}

// classifySH distinguishes Shanghai equities from SSE index codes.
func (n *Normalizer) classifySH(code string) Ref {
	if strings.HasPrefix(code, "000") {
		return Ref{Market: MarketIndex, Code: code}
	}
	return Ref{Market: MarketASH, Code: code}
}

// classifySZ distinguishes Shenzhen equities from SZSE index codes.
func (n *Normalizer) classifySZ(code string) Ref {
	if strings.HasPrefix(code, "399") {
		return Ref{Market: MarketIndex, Code: code}
	}
	return Ref{Market: MarketASZ, Code: code}
}

// classifyBareAShare applies the documented prefix rules: codes starting
// 5/6/9 or 11 list in Shanghai, everything else in Shenzhen.
func (n *Normalizer) classifyBareAShare(code string) Ref {
	switch code[0] {
	case '5', '6', '9':
		return n.classifySH(code)
	}
	if strings.HasPrefix(code, "11") {
		return n.classifySH(code)
	}
	return n.classifySZ(code)
}

func (n *Normalizer) isCryptoBase(code string) bool {
	_, ok := n.bases[code]
	return ok
}

func splitSuffix(input string) (code, suffix string, ok bool) {
	idx := strings.LastIndexByte(input, '.')
	if idx <= 0 || idx == len(input)-1 {
		return "", "", false
	}
	return input[:idx], input[idx+1:], true
}

func zeroPad(code string, width int) string {
	for len(code) < width {
		code = "0" + code
	}
	return code
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
