package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/avoquity/gentlee-safespace-sub000/internal/chat"
	"github.com/avoquity/gentlee-safespace-sub000/internal/llm"
	"github.com/avoquity/gentlee-safespace-sub000/internal/stream"
)

type completionRequest struct {
	UserMessage string `json:"userMessage"`
	ChatID      string `json:"chatId,omitempty"`
	UserID      string `json:"userId"`
}

// handleChatCompletion runs one conversation turn and streams the reply as
// server-sent events: data: {"chunk":…, "fullResponse":…} frames while text
// arrives, then a done frame carrying the persisted message identity, or a
// data: {"error":…} frame on failure.
func (s *Server) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emit := func(ev stream.Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		w.Write([]byte("data: "))
		w.Write(payload)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	result, err := s.turns.Run(r.Context(), userID, req.UserMessage, emit)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			emit(stream.Event{Error: "message text is empty"})
		case errors.Is(err, chat.ErrMessageLimit):
			emit(stream.Event{Error: "message limit reached for this month"})
		default:
			s.logger.Error("chat completion turn failed", "user_id", userID, "error", err)
			emit(stream.Event{Error: "something went wrong saving your conversation"})
		}
		return
	}

	emit(stream.Event{
		Done:         true,
		FullResponse: result.AIMessage.Text,
		MessageID:    result.AIMessage.ID,
		ChatID:       result.Chat.ID.String(),
	})
}

type summarizeRequest struct {
	ChatID   string `json:"chatId,omitempty"`
	Messages []struct {
		Sender string `json:"sender"`
		Text   string `json:"text"`
	} `json:"messages"`
}

// handleSummarize generates a summary for the supplied messages and, when a
// chat id is given, persists it on the conversation.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}

	history := make([]llm.HistoryMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		history = append(history, llm.HistoryMessage{Sender: m.Sender, Text: m.Text})
	}

	summary, err := s.summarizer.Summarize(r.Context(), history)
	if err != nil {
		s.logger.Error("summarize failed", "error", err)
		writeError(w, http.StatusBadGateway, "summary generation failed")
		return
	}

	if req.ChatID != "" {
		if chatID, err := uuid.Parse(req.ChatID); err == nil {
			if err := s.store.SetChatSummary(r.Context(), chatID, summary); err != nil {
				s.logger.Warn("failed to persist summary", "chat_id", chatID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}
