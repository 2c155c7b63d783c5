package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sjlee-dev/coinrush/internal/domain"
)

type fakeBlobReader struct {
	objects map[string][]byte
}

func (f *fakeBlobReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := f.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobReader) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, data := range f.objects {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(data))})
		}
	}
	return infos, nil
}

func (f *fakeBlobReader) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.objects[path]
	return ok, nil
}

func newArchiveMux(blobs domain.BlobReader) *http.ServeMux {
	h := NewArchiveHandler(blobs, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/archives", h.ListArchives)
	mux.HandleFunc("GET /api/archives/{path...}", h.GetArchive)
	return mux
}

func TestGetArchiveHandlerStreams(t *testing.T) {
	blobs := &fakeBlobReader{objects: map[string][]byte{
		"sessions/2026/08/30/s1.jsonl": []byte("{\"tick\":1}\n{\"tick\":2}\n"),
	}}
	mux := newArchiveMux(blobs)

	req := httptest.NewRequest(http.MethodGet, "/api/archives/sessions/2026/08/30/s1.jsonl", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}
	if rec.Body.String() != "{\"tick\":1}\n{\"tick\":2}\n" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHeadArchiveHandler(t *testing.T) {
	blobs := &fakeBlobReader{objects: map[string][]byte{
		"sessions/2026/08/30/s1.jsonl": []byte("{\"tick\":1}\n"),
	}}
	mux := newArchiveMux(blobs)

	// The GET route also serves HEAD; it probes for existence without a body.
	req := httptest.NewRequest(http.MethodHead, "/api/archives/sessions/2026/08/30/s1.jsonl", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD returned a body: %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodHead, "/api/archives/sessions/2026/08/30/missing.jsonl", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("missing object status = %d, want 404", rec.Code)
	}
}

func TestGetArchiveHandlerNotFound(t *testing.T) {
	mux := newArchiveMux(&fakeBlobReader{})

	req := httptest.NewRequest(http.MethodGet, "/api/archives/sessions/2026/08/30/nope.jsonl", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
