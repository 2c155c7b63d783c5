package domain

import "context"

// PriceCache provides fast access to the latest quote per market code.
type PriceCache interface {
	SetQuote(ctx context.Context, q Quote) error
	GetQuote(ctx context.Context, code string) (Quote, error)
	GetQuotes(ctx context.Context, codes []string) (map[string]Quote, error)
}

// RankCache keeps a sorted leaderboard in front of the score store.
type RankCache interface {
	Record(ctx context.Context, entry RankEntry) error
	Top(ctx context.Context, n int) ([]RankEntry, error)
	Invalidate(ctx context.Context) error
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for game events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
