// Package indicators contains pure technical-indicator math over ordered
// price series (oldest first). Absent values are NaN, never zero: outputs
// stay aligned index-for-index with their input so overlays can be matched
// to bar timestamps unambiguously.
package indicators

import "math"

// Kline represents OHLCV input for bar-based calculations.
type Kline struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Absent reports whether an indicator value is absent (warm-up window).
func Absent(v float64) bool { return math.IsNaN(v) }

// SMA produces the simple moving average over trailing period values.
// Indices before period-1 are absent.
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) == 0 {
		return []float64{}
	}
	result := make([]float64, len(values))
	for i := range result {
		result[i] = math.NaN()
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			result[i] = sum / float64(period)
		}
	}
	return result
}

// EMA produces the exponential moving average for the supplied prices,
// seeded by the simple average of the first period values.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) == 0 {
		return []float64{}
	}
	result := make([]float64, len(prices))
	for i := range result {
		result[i] = math.NaN()
	}
	if len(prices) < period {
		return result
	}
	multiplier := 2.0 / float64(period+1)

	start := -1
	var seed float64
	for i := period - 1; i < len(prices); i++ {
		windowValid := true
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(prices[j]) {
				windowValid = false
				break
			}
			sum += prices[j]
		}
		if windowValid {
			start = i
			seed = sum / float64(period)
			break
		}
	}
	if start == -1 {
		return result
	}
	result[start] = seed

	for i := start + 1; i < len(prices); i++ {
		if math.IsNaN(prices[i]) {
			result[i] = result[i-1]
			continue
		}
		prev := result[i-1]
		if math.IsNaN(prev) {
			prev = seed
		}
		result[i] = (prices[i]-prev)*multiplier + prev
	}
	return result
}

// MACD returns DIF, DEA and histogram series computed with the standard
// 12/26/9 windows. Histogram is 2x(DIF-DEA), the charting convention the
// rest of the system renders.
func MACD(prices []float64) (dif, dea, hist []float64) {
	return MACDWith(prices, 12, 26, 9)
}

// MACDWith computes MACD with explicit fast/slow/signal windows.
func MACDWith(prices []float64, fast, slow, signal int) (dif, dea, hist []float64) {
	if len(prices) == 0 {
		return []float64{}, []float64{}, []float64{}
	}
	emaFast := EMA(prices, fast)
	emaSlow := EMA(prices, slow)

	dif = make([]float64, len(prices))
	for i := range prices {
		if math.IsNaN(emaFast[i]) || math.IsNaN(emaSlow[i]) {
			dif[i] = math.NaN()
		} else {
			dif[i] = emaFast[i] - emaSlow[i]
		}
	}

	dea = EMA(dif, signal)
	hist = make([]float64, len(prices))
	for i := range hist {
		if math.IsNaN(dif[i]) || math.IsNaN(dea[i]) {
			hist[i] = math.NaN()
		} else {
			hist[i] = 2 * (dif[i] - dea[i])
		}
	}
	return dif, dea, hist
}

// KDJ computes the stochastic oscillator over the supplied bars. RSV uses an
// expanding window until period bars exist, so values are defined from the
// first bar. A flat window (high == low) yields the neutral RSV of 50
// instead of dividing by zero. K and D smooth with (2*prev+cur)/3, seeded
// at the neutral 50; J = 3K - 2D.
func KDJ(klines []Kline, period, kSmooth, dSmooth int) (k, d, j []float64) {
	n := len(klines)
	k = make([]float64, n)
	d = make([]float64, n)
	j = make([]float64, n)
	if n == 0 || period <= 0 {
		return k, d, j
	}
	if kSmooth <= 0 {
		kSmooth = 3
	}
	if dSmooth <= 0 {
		dSmooth = 3
	}

	prevK, prevD := 50.0, 50.0
	for i := range klines {
		lo, hi := klines[i].Low, klines[i].High
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		for w := start; w < i; w++ {
			if klines[w].Low < lo {
				lo = klines[w].Low
			}
			if klines[w].High > hi {
				hi = klines[w].High
			}
		}

		rsv := 50.0
		if hi > lo {
			rsv = (klines[i].Close - lo) / (hi - lo) * 100
		}

		k[i] = (float64(kSmooth-1)*prevK + rsv) / float64(kSmooth)
		d[i] = (float64(dSmooth-1)*prevD + k[i]) / float64(dSmooth)
		j[i] = 3*k[i] - 2*d[i]
		prevK, prevD = k[i], d[i]
	}
	return k, d, j
}

// RSI computes the Relative Strength Index across the supplied prices.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) == 0 {
		return []float64{}
	}
	rsi := make([]float64, len(prices))
	for i := range rsi {
		rsi[i] = math.NaN()
	}
	if len(prices) <= period {
		return rsi
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum -= change
		}
	}

	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	rsi[period] = computeRSI(avgGain, avgLoss)

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain := math.Max(change, 0)
		loss := math.Max(-change, 0)

		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)

		rsi[i] = computeRSI(avgGain, avgLoss)
	}
	return rsi
}

// ATR computes the Average True Range across the Kline series.
func ATR(klines []Kline, period int) []float64 {
	if period <= 0 || len(klines) == 0 {
		return []float64{}
	}
	tr := make([]float64, len(klines))
	for i := range klines {
		if i == 0 {
			tr[i] = klines[i].High - klines[i].Low
			continue
		}
		highLow := klines[i].High - klines[i].Low
		highClose := math.Abs(klines[i].High - klines[i-1].Close)
		lowClose := math.Abs(klines[i].Low - klines[i-1].Close)
		tr[i] = math.Max(highLow, math.Max(highClose, lowClose))
	}
	return EMA(tr, period)
}

func computeRSI(avgGain, avgLoss float64) float64 {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50.0
	case avgLoss == 0:
		return 100.0
	case avgGain == 0:
		return 0.0
	default:
		rs := avgGain / avgLoss
		return 100.0 - (100.0 / (1.0 + rs))
	}
}
