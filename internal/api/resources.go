package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avoquity/gentlee-safespace-sub000/internal/chat"
	"github.com/avoquity/gentlee-safespace-sub000/internal/settings"
	"github.com/avoquity/gentlee-safespace-sub000/internal/store"
)

func queryUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(r.URL.Query().Get(name))
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUUID(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	chats, err := s.store.ListChats(r.Context(), userID)
	if err != nil {
		s.logger.Error("listing chats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list chats")
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

// todayChat reports the chat for the caller's current local day, if one
// exists. It never creates; creation belongs to the first message of the day.
func (s *Server) todayChat(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUUID(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	found, err := s.store.FindChatInRange(r.Context(), userID, start, start.Add(24*time.Hour))
	if err != nil {
		s.logger.Error("today chat lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not resolve today's chat")
		return
	}
	if found == nil {
		writeError(w, http.StatusNotFound, "no chat for today")
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	chatID, err := pathUUID(r, "chatID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	messages, err := s.store.ListMessages(r.Context(), chatID)
	if err != nil {
		s.logger.Error("listing messages failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

type postMessageRequest struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// postMessage appends a message to a chat directly, outside the completion
// flow. Clients use it to record user messages when no AI reply is wanted.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	chatID, err := pathUUID(r, "chatID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Sender != chat.SenderUser && req.Sender != chat.SenderAI {
		writeError(w, http.StatusBadRequest, "sender must be user or ai")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	msg, err := s.store.InsertMessage(r.Context(), chatID, req.Sender, req.Text, time.Now())
	if err != nil {
		s.logger.Error("inserting message failed", "chat_id", chatID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not store message")
		return
	}
	if s.bus != nil {
		if err := s.bus.Publish("safespace.message.stored", map[string]any{
			"message_id": msg.ID,
			"chat_id":    chatID.String(),
			"sender":     msg.Sender,
		}); err != nil {
			s.logger.Warn("failed to publish message event", "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, msg)
}

type highlightRequest struct {
	MessageID uuid.UUID `json:"messageId"`
	UserID    uuid.UUID `json:"userId"`
	Start     int       `json:"startIndex"`
	End       int       `json:"endIndex"`
}

func (s *Server) createHighlight(w http.ResponseWriter, r *http.Request) {
	var req highlightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.MessageID == uuid.Nil || req.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "messageId and userId are required")
		return
	}
	if !store.ValidRange(req.Start, req.End) {
		writeError(w, http.StatusBadRequest, "endIndex must be greater than startIndex")
		return
	}

	h, err := s.store.CreateHighlight(r.Context(), req.MessageID, req.UserID, req.Start, req.End)
	if err != nil {
		s.logger.Error("creating highlight failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create highlight")
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) deleteHighlight(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "highlightID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid highlight id")
		return
	}
	userID, err := queryUUID(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	if err := s.store.DeleteHighlight(r.Context(), id, userID); err != nil {
		writeError(w, http.StatusNotFound, "highlight not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) listHighlights(w http.ResponseWriter, r *http.Request) {
	messageID, err := pathUUID(r, "messageID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	highlights, err := s.store.ListHighlights(r.Context(), messageID)
	if err != nil {
		s.logger.Error("listing highlights failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list highlights")
		return
	}
	writeJSON(w, http.StatusOK, highlights)
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	prefs, err := s.settings.Load(r.Context(), userID)
	if err != nil {
		s.logger.Error("loading settings failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load settings")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var incoming settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	updated, err := s.settings.Update(r.Context(), userID, func(cur *settings.Settings) {
		*cur = incoming
	})
	if err != nil {
		s.logger.Error("saving settings failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not save settings")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
