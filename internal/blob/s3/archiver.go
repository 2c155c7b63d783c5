package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/sjlee-dev/coinrush/internal/domain"
)

// SessionArchiver implements domain.SessionArchiver: it serialises the full
// tick history of a finished session to JSONL and uploads one object per
// session, partitioned by finish date.
type SessionArchiver struct {
	writer domain.BlobWriter
}

// NewSessionArchiver creates a new SessionArchiver over the given writer.
func NewSessionArchiver(writer domain.BlobWriter) *SessionArchiver {
	return &SessionArchiver{writer: writer}
}

// ArchiveSession uploads the session's tick history followed by a final line
// holding the score report, and returns the object path. An empty history is
// still archived; the report line alone records the outcome.
func (a *SessionArchiver) ArchiveSession(ctx context.Context, report domain.ScoreReport, history []domain.TickSnapshot) (string, error) {
	buf, err := marshalJSONL(history)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive session %s: %w", report.SessionID, err)
	}

	reportLine, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive session %s marshal report: %w", report.SessionID, err)
	}
	buf = append(buf, reportLine...)
	buf = append(buf, '\n')

	path := sessionPath(report)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive session %s upload: %w", report.SessionID, err)
	}
	return path, nil
}

// sessionPath builds the S3 key for a finished session, partitioned by the
// finish date:
//
//	sessions/2026/03/01/6f1c9c2e-....jsonl
func sessionPath(report domain.ScoreReport) string {
	return fmt.Sprintf("sessions/%s/%s.jsonl",
		report.FinishedAt.UTC().Format("2006/01/02"), report.SessionID)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.SessionArchiver = (*SessionArchiver)(nil)
