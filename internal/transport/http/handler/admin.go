package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"policymitr/internal/app"
	"policymitr/internal/transport/http/response"
)

type AdminHandler struct {
	adminService *app.AdminService
}

func NewAdminHandler(adminService *app.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

func (h *AdminHandler) Analytics(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	stats, err := h.adminService.Analytics(c.Request.Context(), userID)
	if err != nil {
		writeAdminError(c, err)
		return
	}
	response.OK(c, stats)
}

func (h *AdminHandler) Users(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	users, err := h.adminService.Users(c.Request.Context(), userID)
	if err != nil {
		writeAdminError(c, err)
		return
	}
	response.OK(c, users)
}

func (h *AdminHandler) Activity(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	feed, err := h.adminService.Activity(c.Request.Context(), userID)
	if err != nil {
		writeAdminError(c, err)
		return
	}
	response.OK(c, feed)
}

func writeAdminError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrForbidden):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
	case errors.Is(err, app.ErrUserNotFound):
		response.Error(c, http.StatusNotFound, response.CodeUserNotFound, err.Error())
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "admin request failed")
	}
}
