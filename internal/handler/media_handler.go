package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geokey/geokey-api/internal/models"
	"github.com/geokey/geokey-api/internal/service"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
	"github.com/geokey/geokey-api/pkg/response"
)

// MediaHandler exposes observation media endpoints.
type MediaHandler struct {
	projects *service.ProjectService
	media    *service.MediaService
}

// NewMediaHandler constructs handler.
func NewMediaHandler(projects *service.ProjectService, media *service.MediaService) *MediaHandler {
	return &MediaHandler{projects: projects, media: media}
}

func (h *MediaHandler) resolve(c *gin.Context) (*models.ProjectContext, bool) {
	pc, err := h.projects.ResolveContext(c.Request.Context(), c.Param("id"), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return pc, true
}

// List godoc
// @Summary List observation media
// @Tags Media
// @Produce json
// @Param id path string true "Project ID"
// @Param observationId path string true "Observation ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/observations/{observationId}/media [get]
func (h *MediaHandler) List(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	files, err := h.media.List(c.Request.Context(), pc, userIDFromContext(c), c.Param("observationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, files, nil)
}

// Attach godoc
// @Summary Attach media reference
// @Description Records a media reference on the observation. Blobs live in external storage.
// @Tags Media
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param observationId path string true "Observation ID"
// @Param payload body service.MediaRequest true "Media payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /projects/{id}/observations/{observationId}/media [post]
func (h *MediaHandler) Attach(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	var req service.MediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid media payload"))
		return
	}
	media, err := h.media.Attach(c.Request.Context(), pc, userIDFromContext(c), c.Param("observationId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, media)
}

// Detach godoc
// @Summary Remove media reference
// @Tags Media
// @Param id path string true "Project ID"
// @Param observationId path string true "Observation ID"
// @Param mediaId path string true "Media ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/observations/{observationId}/media/{mediaId} [delete]
func (h *MediaHandler) Detach(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	if err := h.media.Detach(c.Request.Context(), pc, userIDFromContext(c), c.Param("observationId"), c.Param("mediaId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
