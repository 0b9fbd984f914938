package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"policymitr/internal/app"
	"policymitr/internal/transport/http/response"
)

type PolicyHandler struct {
	policyService *app.PolicyService
	maxBytes      int64
}

type CreatePolicyRequest struct {
	Title    string `json:"title" binding:"max=256"`
	Text     string `json:"text" binding:"required"`
	Language string `json:"language" binding:"max=16"`
}

type ComparePoliciesRequest struct {
	FirstID  string `json:"first_id" binding:"required"`
	SecondID string `json:"second_id" binding:"required"`
}

func NewPolicyHandler(policyService *app.PolicyService, maxBytes int64) *PolicyHandler {
	return &PolicyHandler{policyService: policyService, maxBytes: maxBytes}
}

// Upload accepts a multipart form with "file" and an optional "title".
func (h *PolicyHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > h.maxBytes {
		writePolicyError(c, app.ErrFileTooLarge, h.maxBytes)
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	if int64(len(data)) > h.maxBytes {
		writePolicyError(c, app.ErrFileTooLarge, h.maxBytes)
		return
	}

	result, err := h.policyService.Upload(c.Request.Context(), app.UploadInput{
		UserID:      userID,
		Title:       strings.TrimSpace(c.PostForm("title")),
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		writePolicyError(c, err, h.maxBytes)
		return
	}
	response.OK(c, result)
}

func (h *PolicyHandler) CreateFromText(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.policyService.CreateFromText(c.Request.Context(), app.CreatePolicyInput{
		UserID:   userID,
		Title:    req.Title,
		Text:     req.Text,
		Language: req.Language,
	})
	if err != nil {
		writePolicyError(c, err, h.maxBytes)
		return
	}
	response.OK(c, result)
}

func (h *PolicyHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	policies, err := h.policyService.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list policies failed")
		return
	}
	response.OK(c, policies)
}

func (h *PolicyHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	policy, err := h.policyService.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writePolicyError(c, err, h.maxBytes)
		return
	}
	response.OK(c, policy)
}

func (h *PolicyHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	policyID := c.Param("id")
	if err := h.policyService.Delete(c.Request.Context(), userID, policyID); err != nil {
		writePolicyError(c, err, h.maxBytes)
		return
	}
	response.OK(c, gin.H{"deleted_policy_id": policyID})
}

func (h *PolicyHandler) ToggleBookmark(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	policyID := c.Param("id")
	bookmarked, err := h.policyService.ToggleBookmark(c.Request.Context(), userID, policyID)
	if err != nil {
		writePolicyError(c, err, h.maxBytes)
		return
	}
	response.OK(c, gin.H{"policy_id": policyID, "is_bookmarked": bookmarked})
}

func (h *PolicyHandler) Compare(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req ComparePoliciesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.policyService.Compare(c.Request.Context(), userID, req.FirstID, req.SecondID)
	if err != nil {
		writePolicyError(c, err, h.maxBytes)
		return
	}
	response.OK(c, result)
}

func (h *PolicyHandler) Recommendations(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	policyID := c.Param("id")
	list, err := h.policyService.Recommend(c.Request.Context(), userID, policyID)
	if err != nil {
		writePolicyError(c, err, h.maxBytes)
		return
	}
	response.OK(c, gin.H{"policy_id": policyID, "recommendations": list})
}

func writePolicyError(c *gin.Context, err error, maxBytes int64) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrPolicyNotFound):
		response.Error(c, http.StatusNotFound, response.CodePolicyNotFound, err.Error())
	case errors.Is(err, app.ErrFileTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge,
			fmt.Sprintf("file too large (max %d bytes)", maxBytes))
	case errors.Is(err, app.ErrUnsupportedContent):
		response.Error(c, http.StatusUnsupportedMediaType, response.CodeUnsupportedMedia, err.Error())
	case errors.Is(err, app.ErrNoText):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeNoText, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "policy request failed")
	}
}
