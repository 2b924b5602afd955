package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"docuchat_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// sseEvent is the envelope written on the stream. Deltas use type "chunk",
// the terminal marker uses type "done", failures use type "error".
type sseEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Code    string `json:"code,omitempty"`
}

func writeSSE(c *gin.Context, flusher http.Flusher, event sseEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := c.Writer.WriteString("data: " + string(payload) + "\n\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// streamMessageHandler opens the server-sent-events stream for a previously
// created stream session. EventSource cannot set headers, so the bearer
// token arrives as a query parameter and is checked against the session's
// fingerprint inside the service.
func streamMessageHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		chatID, err := uuid.Parse(c.Param("chatId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid chatId"})
			return
		}
		authToken := strings.TrimPrefix(c.Query("token"), "Bearer ")

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")
		c.Writer.WriteHeader(http.StatusOK)
		flusher.Flush()

		err = chatService.OpenStream(c.Request.Context(), chatID, authToken, func(delta string) error {
			return writeSSE(c, flusher, sseEvent{Type: "chunk", Content: delta})
		})
		if err != nil {
			if c.Request.Context().Err() != nil {
				// Client is gone; nothing left to write.
				return
			}
			code := "STREAM_ERROR"
			if errors.Is(err, services.ErrStreamSessionNotFound) {
				code = "SESSION_NOT_FOUND"
			}
			log.Error().Err(err).Str("chatId", chatID.String()).Msg("Stream failed")
			_ = writeSSE(c, flusher, sseEvent{Type: "error", Code: code, Content: err.Error()})
			return
		}

		_ = writeSSE(c, flusher, sseEvent{Type: "done"})
	}
}
