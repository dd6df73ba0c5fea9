package indicators

// MACDSeries bundles the MACD output columns.
type MACDSeries struct {
	DIF  []float64
	DEA  []float64
	Hist []float64
}

// KDJSeries bundles the stochastic oscillator columns.
type KDJSeries struct {
	K []float64
	D []float64
	J []float64
}

// Set is the full overlay bundle computed for one series. Every slice is
// aligned index-for-index with the input bars.
type Set struct {
	MA    map[int][]float64
	VolMA map[int][]float64
	MACD  MACDSeries
	KDJ   KDJSeries
	RSI   map[int][]float64
	ATR   []float64
}

// SetConfig selects which overlays ComputeSet produces.
type SetConfig struct {
	MAPeriods    []int
	VolMAPeriods []int
	KDJPeriod    int
	KDJKSmooth   int
	KDJDSmooth   int
	RSIPeriods   []int
	ATRPeriod    int
}

// DefaultSetConfig matches the overlays the original charts drew.
func DefaultSetConfig() SetConfig {
	return SetConfig{
		MAPeriods:    []int{5, 10, 20},
		VolMAPeriods: []int{5, 10},
		KDJPeriod:    9,
		KDJKSmooth:   3,
		KDJDSmooth:   3,
		RSIPeriods:   []int{6, 12, 24},
		ATRPeriod:    14,
	}
}

// ComputeSet derives the full overlay bundle for the supplied bars.
func ComputeSet(klines []Kline, cfg SetConfig) *Set {
	closes := make([]float64, len(klines))
	volumes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
		volumes[i] = k.Volume
	}

	set := &Set{
		MA:    make(map[int][]float64, len(cfg.MAPeriods)),
		VolMA: make(map[int][]float64, len(cfg.VolMAPeriods)),
		RSI:   make(map[int][]float64, len(cfg.RSIPeriods)),
	}
	for _, p := range cfg.MAPeriods {
		set.MA[p] = SMA(closes, p)
	}
	for _, p := range cfg.VolMAPeriods {
		set.VolMA[p] = SMA(volumes, p)
	}

	dif, dea, hist := MACD(closes)
	set.MACD = MACDSeries{DIF: dif, DEA: dea, Hist: hist}

	period := cfg.KDJPeriod
	if period <= 0 {
		period = 9
	}
	k, d, j := KDJ(klines, period, cfg.KDJKSmooth, cfg.KDJDSmooth)
	set.KDJ = KDJSeries{K: k, D: d, J: j}

	for _, p := range cfg.RSIPeriods {
		set.RSI[p] = RSI(closes, p)
	}
	if cfg.ATRPeriod > 0 {
		set.ATR = ATR(klines, cfg.ATRPeriod)
	}
	return set
}
