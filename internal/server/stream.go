package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"

	"github.com/stupiduntilnot/interviewcoach/internal/llm"
	"github.com/stupiduntilnot/interviewcoach/internal/sse"
)

type messageRequest struct {
	Message string `json:"message" binding:"required"`
}

// postMessage opens the reply stream first so upstream failures can still be
// reported with a proper status, then relays deltas as chat-completion chunks.
func (h *handler) postMessage(c *gin.Context, id string) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}

	turn, err := h.chat.Begin(c.Request.Context(), id, req.Message)
	if err != nil {
		status, msg := errorStatus(err)
		log.Printf("[server] begin turn id=%s status=%d: %v", id, status, err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	defer turn.Close()

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	var sent string
	reply, err := turn.Stream(func(content string) {
		delta := strings.TrimPrefix(content, sent)
		sent = content
		if delta == "" {
			return
		}
		if werr := writeFrame(w, chunkFrame(delta)); werr != nil {
			log.Printf("[server] write frame id=%s: %v", id, werr)
		}
	})
	if err != nil {
		log.Printf("[server] stream id=%s chars=%d: %v", id, len(reply.Content), err)
		if c.Request.Context().Err() != nil {
			return
		}
		errFrame, _ := json.Marshal(gin.H{"error": gin.H{"message": llm.UserMessage(err)}})
		_ = writeFrame(w, string(errFrame))
	}
	_ = writeFrame(w, sse.Sentinel)
}

func chunkFrame(delta string) string {
	chunk := openai.ChatCompletionStreamResponse{
		Object: "chat.completion.chunk",
		Choices: []openai.ChatCompletionStreamChoice{{
			Index: 0,
			Delta: openai.ChatCompletionStreamChoiceDelta{Content: delta},
		}},
	}
	data, _ := json.Marshal(chunk)
	return string(data)
}

func writeFrame(w gin.ResponseWriter, payload string) error {
	if _, err := fmt.Fprintf(w, "%s%s\n\n", sse.DataPrefix, payload); err != nil {
		return err
	}
	w.Flush()
	return nil
}
