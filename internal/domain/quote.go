package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Quote is a single ticker observation for one market code.
// Prices are decimal end to end; they are never routed through float64.
type Quote struct {
	Code           string          // market code, e.g. "KRW-BTC"
	TradePrice     decimal.Decimal // last trade price in KRW
	Change         string          // "RISE", "FALL" or "EVEN"
	ChangeRate     decimal.Decimal // signed rate vs previous close
	TradeTimestamp int64           // exchange trade time, unix millis
}

// Valid reports whether the quote carries a usable trade price.
func (q Quote) Valid() bool {
	return q.Code != "" && q.TradePrice.IsPositive()
}

// QuoteSource fetches the latest quotes for a batch of market codes.
// Implementations may return fewer quotes than codes requested; missing or
// invalid entries are simply absent from the result.
type QuoteSource interface {
	Quotes(ctx context.Context, codes []string) ([]Quote, error)
}
