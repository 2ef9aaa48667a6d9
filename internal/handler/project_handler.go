package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geokey/geokey-api/internal/service"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
	"github.com/geokey/geokey-api/pkg/response"
)

// ProjectHandler exposes project management endpoints.
type ProjectHandler struct {
	projects *service.ProjectService
	reindex  *service.ReindexService
}

// NewProjectHandler constructs handler.
func NewProjectHandler(projects *service.ProjectService, reindex *service.ReindexService) *ProjectHandler {
	return &ProjectHandler{projects: projects, reindex: reindex}
}

// List godoc
// @Summary List visible projects
// @Tags Projects
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /projects [get]
func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.projects.List(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, projects, nil)
}

// Get godoc
// @Summary Get project with the caller's role
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/{id} [get]
func (h *ProjectHandler) Get(c *gin.Context) {
	pc, err := h.projects.ResolveContext(c.Request.Context(), c.Param("id"), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"project": pc.Project, "role": pc.Role}, nil)
}

// Create godoc
// @Summary Create project
// @Tags Projects
// @Accept json
// @Produce json
// @Param payload body service.ProjectRequest true "Project payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /projects [post]
func (h *ProjectHandler) Create(c *gin.Context) {
	var req service.ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid project payload"))
		return
	}
	project, err := h.projects.Create(c.Request.Context(), userIDFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, project)
}

// Update godoc
// @Summary Update project
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body service.ProjectRequest true "Project payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id} [put]
func (h *ProjectHandler) Update(c *gin.Context) {
	var req service.ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid project payload"))
		return
	}
	project, err := h.projects.Update(c.Request.Context(), c.Param("id"), userIDFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, project, nil)
}

// Delete godoc
// @Summary Delete project
// @Tags Projects
// @Param id path string true "Project ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id} [delete]
func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.projects.Delete(c.Request.Context(), c.Param("id"), userIDFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListAdmins godoc
// @Summary List project admins
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/admins [get]
func (h *ProjectHandler) ListAdmins(c *gin.Context) {
	admins, err := h.projects.ListAdmins(c.Request.Context(), c.Param("id"), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, admins, nil)
}

// AddAdmin godoc
// @Summary Grant admin rights
// @Tags Projects
// @Accept json
// @Param id path string true "Project ID"
// @Param payload body map[string]string true "User id"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/admins [post]
func (h *ProjectHandler) AddAdmin(c *gin.Context) {
	var payload struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "user_id required"))
		return
	}
	if err := h.projects.AddAdmin(c.Request.Context(), c.Param("id"), userIDFromContext(c), payload.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveAdmin godoc
// @Summary Revoke admin rights
// @Tags Projects
// @Param id path string true "Project ID"
// @Param userId path string true "User ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/admins/{userId} [delete]
func (h *ProjectHandler) RemoveAdmin(c *gin.Context) {
	if err := h.projects.RemoveAdmin(c.Request.Context(), c.Param("id"), userIDFromContext(c), c.Param("userId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reindex godoc
// @Summary Rebuild derived observation columns
// @Description Queues a background reindex of display strings, expiry timestamps and the search index
// @Tags Projects
// @Param id path string true "Project ID"
// @Success 202 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/reindex [post]
func (h *ProjectHandler) Reindex(c *gin.Context) {
	pc, err := h.projects.ResolveContext(c.Request.Context(), c.Param("id"), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.reindex.Enqueue(pc); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"message": "reindex queued"}, nil)
}
