package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected bearer test-key, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type application/json, got %q", r.Header.Get("Content-Type"))
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected model test-model, got %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected system message first, got %+v", req.Messages)
		}
		if req.Messages[1].Content != "hello" {
			t.Errorf("unexpected user message: %+v", req.Messages[1])
		}
		if req.Stream {
			t.Error("blocking complete must not set stream")
		}

		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"choices":[{"message":{"content":"world"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model", server.URL)
	result, err := c.Complete(context.Background(), "you are a test", []Message{{Role: "user", Content: "hello"}}, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "world" {
		t.Errorf("expected world, got %q", result)
	}
}

func TestComplete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"type":"rate_limit","message":"slow down"}}`)
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model", server.URL)
	_, err := c.Complete(context.Background(), "", []Message{{Role: "user", Content: "hi"}}, 10)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestStreamComplete_Deltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if !req.Stream {
			t.Error("expected stream request")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"I hear\"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\" that\"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":null}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model", server.URL)
	s, err := c.StreamComplete(context.Background(), "system", []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	var got string
	for {
		delta, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		got += delta
	}
	if got != "I hear that" {
		t.Errorf("expected accumulated deltas, got %q", got)
	}
}

func TestBuildHistory_MemoryWindow(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	history := []HistoryMessage{
		{Sender: "user", Text: "too old", CreatedAt: now.AddDate(0, 0, -20)},
		{Sender: "user", Text: "in window", CreatedAt: now.AddDate(0, 0, -3)},
		{Sender: "ai", Text: "reply", CreatedAt: now.AddDate(0, 0, -3)},
	}

	messages := BuildHistory(history, 14*24*time.Hour, now)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages in window, got %d", len(messages))
	}
	if messages[0].Role != "user" || messages[0].Content != "in window" {
		t.Errorf("unexpected first message: %+v", messages[0])
	}
	if messages[1].Role != "assistant" {
		t.Errorf("expected ai mapped to assistant, got %q", messages[1].Role)
	}
}

func TestBuildHistory_Empty(t *testing.T) {
	if got := BuildHistory(nil, 14*24*time.Hour, time.Now()); got != nil {
		t.Errorf("expected nil for empty history, got %v", got)
	}
}
