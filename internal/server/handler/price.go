package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sjlee-dev/coinrush/internal/domain"
)

// PriceReader is the slice of the price cache the price endpoints need.
type PriceReader interface {
	GetQuote(ctx context.Context, code string) (domain.Quote, error)
	GetQuotes(ctx context.Context, codes []string) (map[string]domain.Quote, error)
}

// PriceHandler serves the latest cached quotes. The cache is refreshed on
// every scheduler tick, so these are the same prices live sessions see.
type PriceHandler struct {
	prices PriceReader
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler over the given price reader.
func NewPriceHandler(prices PriceReader, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		prices: prices,
		logger: logHandler(logger, "price"),
	}
}

// priceQuote is the JSON shape of one cached quote.
type priceQuote struct {
	Code           string          `json:"code"`
	TradePrice     decimal.Decimal `json:"trade_price"`
	Change         string          `json:"change"`
	ChangeRate     decimal.Decimal `json:"change_rate"`
	TradeTimestamp int64           `json:"trade_timestamp"`
}

func toPriceQuote(q domain.Quote) priceQuote {
	return priceQuote{
		Code:           q.Code,
		TradePrice:     q.TradePrice,
		Change:         q.Change,
		ChangeRate:     q.ChangeRate,
		TradeTimestamp: q.TradeTimestamp,
	}
}

// GetPrices returns the latest cached quotes for a comma-separated list of
// market codes, in request order. Codes with no cached quote yet are omitted.
// GET /api/prices?codes=KRW-BTC,KRW-ETH
func (h *PriceHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("codes")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing codes parameter")
		return
	}

	var codes []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	if len(codes) == 0 {
		writeError(w, http.StatusBadRequest, "missing codes parameter")
		return
	}

	quotes, err := h.prices.GetQuotes(r.Context(), codes)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get prices failed",
			slog.String("codes", raw),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load prices")
		return
	}

	out := make([]priceQuote, 0, len(quotes))
	for _, code := range codes {
		if q, ok := quotes[code]; ok {
			out = append(out, toPriceQuote(q))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotes": out})
}

// GetPrice returns the latest cached quote for one market code.
// GET /api/prices/{code}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	code := pathParam(r, "code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing market code")
		return
	}

	q, err := h.prices.GetQuote(r.Context(), code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no cached quote for "+code)
			return
		}
		h.logger.ErrorContext(r.Context(), "get price failed",
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load price")
		return
	}

	writeJSON(w, http.StatusOK, toPriceQuote(q))
}
