package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"opsdash/internal/assistant"
)

const (
	msgMessageRequired = "Message is required"
	msgChatFailed      = "Failed to generate chat response"
	msgNotConfigured   = "Assistant is not configured: set GEMINI_API_KEY or ANTHROPIC_API_KEY"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Answer string `json:"answer"`
}

// handleChat uses the bare {error} envelope the chat page expects rather
// than the record endpoints' {success,error}.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgMessageRequired})
		return
	}
	if s.opts.Assistant == nil {
		s.opts.Metrics.AssistantResult("not_configured")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": msgNotConfigured})
		return
	}

	answer, err := s.opts.Assistant.Answer(r.Context(), req.Message)
	switch {
	case err == nil:
		s.opts.Metrics.AssistantResult("answered")
		writeJSON(w, http.StatusOK, chatResponse{Answer: answer})
	case errors.Is(err, assistant.ErrEmptyQuestion):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgMessageRequired})
	case errors.Is(err, assistant.ErrNotConfigured):
		s.opts.Metrics.AssistantResult("not_configured")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": msgNotConfigured})
	default:
		s.opts.Metrics.AssistantResult("failed")
		s.log.Error("chat failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msgChatFailed})
	}
}
