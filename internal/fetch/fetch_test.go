package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func testClient() *Client {
	return NewClient(5*time.Second, 3, "caselake-test")
}

func TestOpen_Success(t *testing.T) {
	payload := bytes.Repeat([]byte("opinion,"), 128)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	s, err := testClient().Open(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}
	if s.Offset() != int64(len(payload)) {
		t.Errorf("offset=%d, want %d", s.Offset(), len(payload))
	}
}

func TestOpen_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s, err := testClient().Open(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Open failed after retries: %v", err)
	}
	defer s.Close()

	got, _ := io.ReadAll(s)
	if string(got) != "ok" {
		t.Errorf("got %q", got)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestOpen_PermanentClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := testClient().Open(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("4xx should not be retried, got %d attempts", calls)
	}
}

func TestStream_ResumesWithRange(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 2048)
	cut := 512
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Accept-Ranges", "bytes")
		if n == 1 {
			// Advertise the full length but send a truncated body.
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			w.WriteHeader(http.StatusOK)
			w.Write(payload[:cut])
			return
		}
		rangeHdr := r.Header.Get("Range")
		if rangeHdr != fmt.Sprintf("bytes=%d-", cut) {
			t.Errorf("unexpected Range header: %q", rangeHdr)
		}
		w.Header().Set("Content-Range",
			fmt.Sprintf("bytes %d-%d/%d", cut, len(payload)-1, len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[cut:])
	}))
	defer srv.Close()

	s, err := testClient().Open(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("resumed payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 requests, got %d", calls)
	}
}

func TestStream_RestartWithoutRangeSupport(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), 1024)
	cut := 256
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if r.Header.Get("Range") != "" {
			t.Error("client sent Range to a server without range support")
		}
		if n == 1 {
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			w.WriteHeader(http.StatusOK)
			w.Write(payload[:cut])
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	s, err := testClient().Open(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("restarted payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestOpen_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := testClient().Open(ctx, srv.URL); err == nil {
		t.Fatal("expected error with cancelled context")
	}
}
