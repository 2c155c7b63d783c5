package upbit

import "encoding/json"

// tickerResponse is one entry of the Upbit /v1/ticker response. Numeric
// price fields are decoded as json.Number so they can be converted to
// decimal without a float64 round trip.
type tickerResponse struct {
	Market           string      `json:"market"` // e.g. "KRW-BTC"
	TradePrice       json.Number `json:"trade_price"`
	Change           string      `json:"change"` // "RISE", "EVEN", "FALL"
	SignedChangeRate json.Number `json:"signed_change_rate"`
	TradeTimestamp   int64       `json:"trade_timestamp"` // unix millis
	Timestamp        int64       `json:"timestamp"`
}

// errorResponse is the Upbit API error envelope.
type errorResponse struct {
	Error struct {
		Name    any    `json:"name"` // string or numeric code depending on endpoint
		Message string `json:"message"`
	} `json:"error"`
}
