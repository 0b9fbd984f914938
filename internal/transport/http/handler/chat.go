package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"policymitr/internal/app"
	"policymitr/internal/transport/http/middleware"
	"policymitr/internal/transport/http/response"
)

const maxHistoryLimit = 200

type ChatHandler struct {
	chatService *app.ChatService
}

type AskRequest struct {
	Question string `json:"question" binding:"required,max=4000"`
	PolicyID string `json:"policy_id" binding:"max=36"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) Ask(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.Ask(c.Request.Context(), app.AskInput{
		UserID:   userID,
		PolicyID: req.PolicyID,
		Question: req.Question,
	})
	if err != nil {
		writeChatError(c, err)
		return
	}
	response.OK(c, result)
}

// Stream answers over server-sent events: one data event per chunk, then a
// "sources" event and a "done" event carrying the full answer.
func (h *ChatHandler) Stream(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}
	write := func(event, data string) error {
		start()
		frame := "data: " + sanitizeSSE(data) + "\n\n"
		if event != "" {
			frame = "event: " + event + "\n" + frame
		}
		if _, err := c.Writer.Write([]byte(frame)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	result, err := h.chatService.Stream(c.Request.Context(), app.AskInput{
		UserID:   userID,
		PolicyID: req.PolicyID,
		Question: req.Question,
	}, func(chunk string) error {
		return write("", chunk)
	})
	if err != nil {
		if !started {
			writeChatError(c, err)
			return
		}
		_ = write("error", "stream failed")
		return
	}

	meta, err := json.Marshal(gin.H{
		"sources":        result.Sources,
		"retrieval_path": result.RetrievalPath,
		"generator":      result.Generator,
		"offline":        result.Offline,
		"persisted":      result.Persisted,
	})
	if err == nil {
		_ = write("sources", string(meta))
	}
	_ = write("done", result.Answer)
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 || parsed > maxHistoryLimit {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest,
				fmt.Sprintf("limit must be between 0 and %d", maxHistoryLimit))
			return
		}
		limit = parsed
	}

	history, err := h.chatService.History(c.Request.Context(), userID, strings.TrimSpace(c.Query("policy_id")), limit)
	if err != nil {
		writeChatError(c, err)
		return
	}
	response.OK(c, history)
}

func writeChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrQuestionEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeQuestionEmpty, err.Error())
	case errors.Is(err, app.ErrPolicyNotFound):
		response.Error(c, http.StatusNotFound, response.CodePolicyNotFound, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "chat request failed")
	}
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	return middleware.UserID(c)
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
