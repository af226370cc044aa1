package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/pkg/response"
)

type accessService interface {
	ListGrants(ctx context.Context, access *models.AccessContext, courseID string) ([]models.Permission, error)
	Grant(ctx context.Context, access *models.AccessContext, courseID, userID string, level models.PermissionLevel) (*models.Permission, error)
	Revoke(ctx context.Context, access *models.AccessContext, courseID, userID string) error
}

// GrantPermissionRequest grants a per-course level to a user.
type GrantPermissionRequest struct {
	UserID string                 `json:"user_id" binding:"required"`
	Level  models.PermissionLevel `json:"level" binding:"required"`
}

// PermissionHandler administers per-course grants.
type PermissionHandler struct {
	access accessService
}

// NewPermissionHandler constructs PermissionHandler.
func NewPermissionHandler(access accessService) *PermissionHandler {
	return &PermissionHandler{access: access}
}

// List godoc
// @Summary List course permissions
// @Tags Permissions
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/permissions [get]
func (h *PermissionHandler) List(c *gin.Context) {
	perms, err := h.access.ListGrants(c.Request.Context(), accessFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, perms, nil)
}

// Grant godoc
// @Summary Grant a course permission
// @Tags Permissions
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body GrantPermissionRequest true "Grant"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/permissions [post]
func (h *PermissionHandler) Grant(c *gin.Context) {
	var req GrantPermissionRequest
	if !bindJSON(c, &req) {
		return
	}
	perm, err := h.access.Grant(c.Request.Context(), accessFromContext(c), c.Param("id"), req.UserID, req.Level)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, perm, nil)
}

// Revoke godoc
// @Summary Revoke a course permission
// @Tags Permissions
// @Param id path string true "Course ID"
// @Param userId path string true "User ID"
// @Success 204
// @Router /courses/{id}/permissions/{userId} [delete]
func (h *PermissionHandler) Revoke(c *gin.Context) {
	if err := h.access.Revoke(c.Request.Context(), accessFromContext(c), c.Param("id"), c.Param("userId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
