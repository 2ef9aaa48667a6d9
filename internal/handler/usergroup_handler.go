package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geokey/geokey-api/internal/models"
	"github.com/geokey/geokey-api/internal/service"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
	"github.com/geokey/geokey-api/pkg/response"
)

// UserGroupHandler exposes user group endpoints. Group management is an
// admin concern.
type UserGroupHandler struct {
	projects *service.ProjectService
	groups   *service.UserGroupService
}

// NewUserGroupHandler constructs handler.
func NewUserGroupHandler(projects *service.ProjectService, groups *service.UserGroupService) *UserGroupHandler {
	return &UserGroupHandler{projects: projects, groups: groups}
}

func (h *UserGroupHandler) requireAdmin(c *gin.Context) *models.ProjectContext {
	pc, err := h.projects.ResolveContext(c.Request.Context(), c.Param("id"), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return nil
	}
	if pc.Role != models.RoleAdmin {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only project admins may manage user groups"))
		return nil
	}
	return pc
}

// List godoc
// @Summary List user groups
// @Tags User Groups
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/groups [get]
func (h *UserGroupHandler) List(c *gin.Context) {
	pc := h.requireAdmin(c)
	if pc == nil {
		return
	}
	groups, err := h.groups.List(c.Request.Context(), pc.Project.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// Get godoc
// @Summary Get user group
// @Tags User Groups
// @Produce json
// @Param id path string true "Project ID"
// @Param groupId path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/{id}/groups/{groupId} [get]
func (h *UserGroupHandler) Get(c *gin.Context) {
	pc := h.requireAdmin(c)
	if pc == nil {
		return
	}
	group, err := h.groups.Get(c.Request.Context(), pc.Project.ID, c.Param("groupId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Create godoc
// @Summary Create user group
// @Description Creates a group with role flags and an optional per-category filter map
// @Tags User Groups
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body service.UserGroupRequest true "Group payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /projects/{id}/groups [post]
func (h *UserGroupHandler) Create(c *gin.Context) {
	pc := h.requireAdmin(c)
	if pc == nil {
		return
	}
	var req service.UserGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid user group payload"))
		return
	}
	group, err := h.groups.Create(c.Request.Context(), pc.Project.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// Update godoc
// @Summary Update user group
// @Tags User Groups
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param groupId path string true "Group ID"
// @Param payload body service.UserGroupRequest true "Group payload"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/groups/{groupId} [put]
func (h *UserGroupHandler) Update(c *gin.Context) {
	pc := h.requireAdmin(c)
	if pc == nil {
		return
	}
	var req service.UserGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid user group payload"))
		return
	}
	group, err := h.groups.Update(c.Request.Context(), pc.Project.ID, c.Param("groupId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Delete godoc
// @Summary Delete user group
// @Tags User Groups
// @Param id path string true "Project ID"
// @Param groupId path string true "Group ID"
// @Success 204 {object} response.Envelope
// @Router /projects/{id}/groups/{groupId} [delete]
func (h *UserGroupHandler) Delete(c *gin.Context) {
	pc := h.requireAdmin(c)
	if pc == nil {
		return
	}
	if err := h.groups.Delete(c.Request.Context(), pc.Project.ID, c.Param("groupId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddMember godoc
// @Summary Add group member
// @Tags User Groups
// @Accept json
// @Param id path string true "Project ID"
// @Param groupId path string true "Group ID"
// @Param payload body map[string]string true "User id"
// @Success 204 {object} response.Envelope
// @Router /projects/{id}/groups/{groupId}/members [post]
func (h *UserGroupHandler) AddMember(c *gin.Context) {
	pc := h.requireAdmin(c)
	if pc == nil {
		return
	}
	var payload struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "user_id required"))
		return
	}
	if err := h.groups.AddMember(c.Request.Context(), pc.Project.ID, c.Param("groupId"), payload.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveMember godoc
// @Summary Remove group member
// @Tags User Groups
// @Param id path string true "Project ID"
// @Param groupId path string true "Group ID"
// @Param userId path string true "User ID"
// @Success 204 {object} response.Envelope
// @Router /projects/{id}/groups/{groupId}/members/{userId} [delete]
func (h *UserGroupHandler) RemoveMember(c *gin.Context) {
	pc := h.requireAdmin(c)
	if pc == nil {
		return
	}
	if err := h.groups.RemoveMember(c.Request.Context(), pc.Project.ID, c.Param("groupId"), c.Param("userId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
