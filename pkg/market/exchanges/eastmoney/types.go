package eastmoney

// quoteResponse is the push2 stock/get envelope. Data is null for unknown
// secids. fltt=2 makes the numeric fields floats instead of scaled ints.
type quoteResponse struct {
	Data *quoteData `json:"data"`
}

type quoteData struct {
	Price     float64 `json:"f43"`
	High      float64 `json:"f44"`
	Low       float64 `json:"f45"`
	Open      float64 `json:"f46"`
	Volume    float64 `json:"f47"`
	Amount    float64 `json:"f48"`
	Code      string  `json:"f57"`
	Name      string  `json:"f58"`
	PrevClose float64 `json:"f60"`
	Change    float64 `json:"f169"`
	ChangePct float64 `json:"f170"`
}

// klineResponse is the push2his kline/get envelope. Each kline row is a
// comma-joined string: date,open,close,high,low,volume,amount.
type klineResponse struct {
	Data *klineData `json:"data"`
}

type klineData struct {
	Code   string   `json:"code"`
	Name   string   `json:"name"`
	Klines []string `json:"klines"`
}

// sinaKline is one row of the Sina kline JSON service used as the history
// fallback source.
type sinaKline struct {
	Day    string `json:"day"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}
