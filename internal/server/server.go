// Package server exposes the interview coach over HTTP.
package server

import (
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stupiduntilnot/interviewcoach/internal/chat"
	"github.com/stupiduntilnot/interviewcoach/internal/control"
	"github.com/stupiduntilnot/interviewcoach/internal/conversation"
	"github.com/stupiduntilnot/interviewcoach/internal/llm"
)

// Options configures the router.
type Options struct {
	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string
	// AccessLog enables gin's request logger.
	AccessLog bool
}

type handler struct {
	chat *chat.Service
}

// NewRouter builds the gin engine serving the coach API.
func NewRouter(svc *chat.Service, opts Options) *gin.Engine {
	r := gin.New()
	if opts.AccessLog {
		r.Use(gin.LoggerWithWriter(os.Stdout))
	}
	r.Use(gin.Recovery())
	r.Use(cors(opts.AllowedOrigins))

	h := &handler{chat: svc}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/conversations")
	api.POST("", h.createConversation)
	api.GET("/:id", h.withID(h.getConversation))
	api.DELETE("/:id", h.withID(h.deleteConversation))
	api.POST("/:id/messages", h.withID(h.postMessage))
	api.POST("/:id/feedback", h.withID(h.feedback))
	return r
}

func cors(origins []string) gin.HandlerFunc {
	allowAll := len(origins) == 0
	allowed := map[string]bool{}
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (h *handler) withID(next func(c *gin.Context, id string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := uuid.Parse(id); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
			return
		}
		next(c, id)
	}
}

func (h *handler) createConversation(c *gin.Context) {
	c.JSON(http.StatusCreated, gin.H{"id": uuid.NewString()})
}

func (h *handler) getConversation(c *gin.Context, id string) {
	msgs, err := h.chat.History(c.Request.Context(), id)
	if err != nil {
		log.Printf("[server] load history id=%s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation"})
		return
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "messages": msgs})
}

func (h *handler) deleteConversation(c *gin.Context, id string) {
	if err := h.chat.Reset(c.Request.Context(), id); err != nil {
		status, msg := errorStatus(err)
		log.Printf("[server] reset id=%s: %v", id, err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) feedback(c *gin.Context, id string) {
	completion, err := h.chat.Feedback(c.Request.Context(), id)
	if err != nil {
		status, msg := errorStatus(err)
		log.Printf("[server] feedback id=%s status=%d: %v", id, status, err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": completion.Content})
}

// errorStatus maps a service error to an HTTP status and a message safe to
// show to the candidate.
func errorStatus(err error) (int, string) {
	var limitErr *control.LimitError
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, "Message is required"
	case errors.As(err, &limitErr):
		return http.StatusBadRequest, limitErr.Error()
	case errors.Is(err, chat.ErrNoTranscript):
		return http.StatusBadRequest, "Answer at least one question before asking for feedback"
	case errors.Is(err, chat.ErrTurnInProgress):
		return http.StatusConflict, "A reply is already being generated for this conversation"
	case errors.Is(err, chat.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "The interviewer is temporarily unavailable, please try again shortly."
	case errors.Is(err, llm.ErrRateLimited):
		return http.StatusTooManyRequests, llm.UserMessage(err)
	case errors.Is(err, llm.ErrCreditsExhausted):
		return http.StatusPaymentRequired, llm.UserMessage(err)
	}
	return http.StatusBadGateway, llm.UserMessage(err)
}
