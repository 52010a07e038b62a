package engagement

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
)

var _ BookmarkCounter = (*HatenaClient)(nil)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestHatenaClient_Counts_MissingURLIsZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urls := r.URL.Query()["url"]
		if len(urls) != 2 {
			t.Errorf("URLパラメータ数 = %d, want 2", len(urls))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"https://example.com/a": 42})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewHatenaClient(server.Client(), newTestLogger(&buf))
	c.endpoint = server.URL

	counts, err := c.Counts(context.Background(), []string{"https://example.com/a", "https://example.com/b"})
	if err != nil {
		t.Fatalf("Counts がエラーを返した: %v", err)
	}
	if counts["https://example.com/a"] != 42 {
		t.Errorf("a = %d, want 42", counts["https://example.com/a"])
	}
	if v, ok := counts["https://example.com/b"]; !ok || v != 0 {
		t.Errorf("b = %d (present=%v), want 0", v, ok)
	}
}

func TestHatenaClient_Counts_SplitsIntoBatches(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		urls := r.URL.Query()["url"]
		if len(urls) > maxURLsPerRequest {
			t.Errorf("1リクエストのURL数 = %d, want <= %d", len(urls), maxURLsPerRequest)
		}
		resp := make(map[string]int, len(urls))
		for _, u := range urls {
			resp[u] = 1
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewHatenaClient(server.Client(), newTestLogger(&buf))
	c.endpoint = server.URL

	urls := make([]string, 120)
	for i := range urls {
		urls[i] = "https://example.com/" + strconv.Itoa(i)
	}

	counts, err := c.Counts(context.Background(), urls)
	if err != nil {
		t.Fatalf("Counts がエラーを返した: %v", err)
	}
	if len(counts) != 120 {
		t.Errorf("len(counts) = %d, want 120", len(counts))
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("リクエスト数 = %d, want 3", got)
	}
}

func TestHatenaClient_Counts_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewHatenaClient(server.Client(), newTestLogger(&buf))
	c.endpoint = server.URL

	if _, err := c.Counts(context.Background(), []string{"https://example.com/a"}); err == nil {
		t.Fatal("503 の場合はエラーを返すべき")
	}
	if !bytes.Contains(buf.Bytes(), []byte("はてなブックマークAPIがエラーステータスを返しました")) {
		t.Error("エラーステータスのログが出力されるべき")
	}
}

func TestHatenaClient_Counts_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewHatenaClient(server.Client(), newTestLogger(&buf))
	c.endpoint = server.URL

	if _, err := c.Counts(context.Background(), []string{"https://example.com/a"}); err == nil {
		t.Fatal("不正なJSONの場合はエラーを返すべき")
	}
}

func TestHatenaClient_Counts_Empty(t *testing.T) {
	var buf bytes.Buffer
	c := NewHatenaClient(http.DefaultClient, newTestLogger(&buf))
	c.endpoint = "http://127.0.0.1:1"

	counts, err := c.Counts(context.Background(), nil)
	if err != nil {
		t.Fatalf("空リストでエラーを返すべきではない: %v", err)
	}
	if len(counts) != 0 {
		t.Errorf("len(counts) = %d, want 0", len(counts))
	}
}
