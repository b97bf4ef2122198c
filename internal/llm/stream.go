package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/avoquity/gentlee-safespace-sub000/internal/stream"
)

// CompletionStream is a live streaming completion. Recv yields text deltas
// until io.EOF; Close aborts the in-flight request, so a caller tearing down
// mid-stream does not leak the connection.
type CompletionStream struct {
	body   io.ReadCloser
	dec    *stream.Decoder
	cancel context.CancelFunc
}

type chunkResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamComplete opens a streaming chat completion. The returned stream must
// be closed by the caller.
func (c *Client) StreamComplete(ctx context.Context, system string, messages []Message) (*CompletionStream, error) {
	body, err := json.Marshal(request{
		Model:    c.model,
		Messages: withSystem(system, messages),
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("api call: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, apiError(resp.StatusCode, respBody)
	}

	return &CompletionStream{
		body:   resp.Body,
		dec:    stream.NewDecoder(resp.Body),
		cancel: cancel,
	}, nil
}

// Recv returns the next non-empty text delta, or io.EOF when the provider
// signals completion.
func (s *CompletionStream) Recv() (string, error) {
	for {
		data, err := s.dec.Next()
		if err != nil {
			return "", err
		}
		if bytes.Equal(bytes.TrimSpace(data), []byte("[DONE]")) {
			return "", io.EOF
		}

		var chunk chunkResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			return "", fmt.Errorf("unmarshal chunk: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
		if chunk.Choices[0].FinishReason != "" {
			return "", io.EOF
		}
	}
}

func (s *CompletionStream) Close() {
	s.cancel()
	s.body.Close()
}
