package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sjlee-dev/coinrush/internal/domain"
)

type fakeScoreStream struct {
	msgs []domain.StreamMessage
	err  error

	lastAfter string
	lastCount int
}

func (f *fakeScoreStream) ReadScoreStream(_ context.Context, afterID string, count int) ([]domain.StreamMessage, error) {
	f.lastAfter = afterID
	f.lastCount = count
	return f.msgs, f.err
}

func TestGetScoreStreamHandler(t *testing.T) {
	stream := &fakeScoreStream{msgs: []domain.StreamMessage{
		{ID: "1700000000000-0", Payload: []byte(`{"session_id":"s1","final_balance":"1600000000"}`)},
		{ID: "1700000000001-0", Payload: []byte(`{"session_id":"s2","final_balance":"900000000"}`)},
	}}
	h := NewStreamHandler(stream, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/scores/stream?after=1699999999999-0&limit=50", nil)
	rec := httptest.NewRecorder()
	h.GetScoreStream(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if stream.lastAfter != "1699999999999-0" || stream.lastCount != 50 {
		t.Errorf("forwarded after = %q, count = %d", stream.lastAfter, stream.lastCount)
	}

	var resp struct {
		Entries []struct {
			ID     string `json:"id"`
			Report struct {
				SessionID    string `json:"session_id"`
				FinalBalance string `json:"final_balance"`
			} `json:"report"`
		} `json:"entries"`
		LastID string `json:"last_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("entries = %+v", resp.Entries)
	}
	if resp.Entries[0].Report.SessionID != "s1" || resp.Entries[0].Report.FinalBalance != "1600000000" {
		t.Errorf("first entry = %+v", resp.Entries[0])
	}
	if resp.LastID != "1700000000001-0" {
		t.Errorf("last_id = %q", resp.LastID)
	}
}

func TestGetScoreStreamHandlerDefaults(t *testing.T) {
	stream := &fakeScoreStream{}
	h := NewStreamHandler(stream, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/scores/stream?limit=100000", nil)
	rec := httptest.NewRecorder()
	h.GetScoreStream(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if stream.lastAfter != "0" {
		t.Errorf("after = %q, want 0", stream.lastAfter)
	}
	// Out-of-range limits fall back to the default page size.
	if stream.lastCount != defaultStreamLimit {
		t.Errorf("count = %d, want %d", stream.lastCount, defaultStreamLimit)
	}

	var resp struct {
		Entries []json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Entries == nil || len(resp.Entries) != 0 {
		t.Errorf("entries = %v, want empty array", resp.Entries)
	}
}
