package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/sjlee-dev/coinrush/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// latest quote lives at key "quote:{code}". Prices are stored as decimal
// strings, never as floats.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func quoteKey(code string) string {
	return "quote:" + code
}

// SetQuote stores the latest quote for a market code.
func (pc *PriceCache) SetQuote(ctx context.Context, q domain.Quote) error {
	fields := map[string]interface{}{
		"trade_price": q.TradePrice.String(),
		"change":      q.Change,
		"change_rate": q.ChangeRate.String(),
		"trade_ts":    strconv.FormatInt(q.TradeTimestamp, 10),
	}
	if err := pc.rdb.HSet(ctx, quoteKey(q.Code), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Code, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for a market code. It returns
// domain.ErrNotFound when no quote has been cached yet.
func (pc *PriceCache) GetQuote(ctx context.Context, code string) (domain.Quote, error) {
	vals, err := pc.rdb.HGetAll(ctx, quoteKey(code)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", code, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}
	q, err := quoteFromHash(code, vals)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", code, err)
	}
	return q, nil
}

// GetQuotes retrieves the latest quotes for multiple codes using a pipeline.
// Codes with no cached quote are silently omitted from the result map.
func (pc *PriceCache) GetQuotes(ctx context.Context, codes []string) (map[string]domain.Quote, error) {
	if len(codes) == 0 {
		return map[string]domain.Quote{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(codes))
	for _, code := range codes {
		cmds[code] = pipe.HGetAll(ctx, quoteKey(code))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	result := make(map[string]domain.Quote, len(codes))
	for code, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		q, err := quoteFromHash(code, vals)
		if err != nil {
			continue
		}
		result[code] = q
	}
	return result, nil
}

func quoteFromHash(code string, vals map[string]string) (domain.Quote, error) {
	priceStr, ok := vals["trade_price"]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse trade_price %q: %w", priceStr, err)
	}

	rate := decimal.Zero
	if s := vals["change_rate"]; s != "" {
		if r, err := decimal.NewFromString(s); err == nil {
			rate = r
		}
	}

	var ts int64
	if s := vals["trade_ts"]; s != "" {
		ts, _ = strconv.ParseInt(s, 10, 64)
	}

	return domain.Quote{
		Code:           code,
		TradePrice:     price,
		Change:         vals["change"],
		ChangeRate:     rate,
		TradeTimestamp: ts,
	}, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
