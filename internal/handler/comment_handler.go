package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geokey/geokey-api/internal/models"
	"github.com/geokey/geokey-api/internal/service"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
	"github.com/geokey/geokey-api/pkg/response"
)

// CommentHandler exposes observation comment endpoints.
type CommentHandler struct {
	projects *service.ProjectService
	comments *service.CommentService
}

// NewCommentHandler constructs handler.
func NewCommentHandler(projects *service.ProjectService, comments *service.CommentService) *CommentHandler {
	return &CommentHandler{projects: projects, comments: comments}
}

func (h *CommentHandler) resolve(c *gin.Context) (*models.ProjectContext, bool) {
	pc, err := h.projects.ResolveContext(c.Request.Context(), c.Param("id"), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return pc, true
}

// List godoc
// @Summary List observation comments
// @Tags Comments
// @Produce json
// @Param id path string true "Project ID"
// @Param observationId path string true "Observation ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/observations/{observationId}/comments [get]
func (h *CommentHandler) List(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	comments, err := h.comments.List(c.Request.Context(), pc, userIDFromContext(c), c.Param("observationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comments, nil)
}

// Create godoc
// @Summary Post comment
// @Description Posts a comment or single-level reply. With flag_review set an active observation moves into moderation.
// @Tags Comments
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param observationId path string true "Observation ID"
// @Param payload body service.CommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /projects/{id}/observations/{observationId}/comments [post]
func (h *CommentHandler) Create(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	var req service.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid comment payload"))
		return
	}
	comment, err := h.comments.Create(c.Request.Context(), pc, userIDFromContext(c), c.Param("observationId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// Delete godoc
// @Summary Delete comment
// @Tags Comments
// @Param id path string true "Project ID"
// @Param observationId path string true "Observation ID"
// @Param commentId path string true "Comment ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/observations/{observationId}/comments/{commentId} [delete]
func (h *CommentHandler) Delete(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	if err := h.comments.Delete(c.Request.Context(), pc, userIDFromContext(c), c.Param("observationId"), c.Param("commentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Resolve godoc
// @Summary Resolve review flag
// @Description Closes an open review flag; the observation returns to active once no open flags remain
// @Tags Comments
// @Param id path string true "Project ID"
// @Param observationId path string true "Observation ID"
// @Param commentId path string true "Comment ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/observations/{observationId}/comments/{commentId}/resolve [post]
func (h *CommentHandler) Resolve(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	if err := h.comments.Resolve(c.Request.Context(), pc, userIDFromContext(c), c.Param("observationId"), c.Param("commentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
