package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geokey/geokey-api/internal/models"
	"github.com/geokey/geokey-api/internal/service"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
	"github.com/geokey/geokey-api/pkg/response"
)

// ObservationHandler exposes the observation lifecycle endpoints.
type ObservationHandler struct {
	projects     *service.ProjectService
	observations *service.ObservationService
	metrics      *service.MetricsService
}

// NewObservationHandler constructs handler.
func NewObservationHandler(projects *service.ProjectService, observations *service.ObservationService, metrics *service.MetricsService) *ObservationHandler {
	return &ObservationHandler{projects: projects, observations: observations, metrics: metrics}
}

func (h *ObservationHandler) resolve(c *gin.Context) (*models.ProjectContext, bool) {
	pc, err := h.projects.ResolveContext(c.Request.Context(), c.Param("id"), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return pc, true
}

// Search godoc
// @Summary Search observations
// @Description Lists the observations inside the caller's visibility scope
// @Tags Observations
// @Produce json
// @Param id path string true "Project ID"
// @Param category_id query string false "Restrict to a category"
// @Param subset_id query string false "Apply a stored subset filter"
// @Param search query string false "Free-text search"
// @Param page query integer false "Page"
// @Param page_size query integer false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/observations [get]
func (h *ObservationHandler) Search(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	opts := service.SearchOptions{
		CategoryID: c.Query("category_id"),
		SubsetID:   c.Query("subset_id"),
		Search:     c.Query("search"),
	}
	page, pageSize := paginationParams(c)

	start := time.Now()
	observations, total, err := h.observations.Search(c.Request.Context(), pc, userIDFromContext(c), opts, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.ObserveSearch(time.Since(start))

	pagination := &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, observations, pagination)
}

// Get godoc
// @Summary Get observation
// @Tags Observations
// @Produce json
// @Param id path string true "Project ID"
// @Param observationId path string true "Observation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/{id}/observations/{observationId} [get]
func (h *ObservationHandler) Get(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	obs, err := h.observations.Get(c.Request.Context(), pc, userIDFromContext(c), c.Param("observationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, obs, nil)
}

// Create godoc
// @Summary Submit observation
// @Description Validates the properties against the category schema and stores the observation in the category's default status. Drafts skip validation.
// @Tags Observations
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body service.CreateObservationRequest true "Observation payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /projects/{id}/observations [post]
func (h *ObservationHandler) Create(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	var req service.CreateObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid observation payload"))
		return
	}
	obs, err := h.observations.Create(c.Request.Context(), pc, userIDFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordObservationWrite("created")
	response.Created(c, obs)
}

// Update godoc
// @Summary Update observation
// @Description Merges the submitted properties over the stored bag and revalidates the result
// @Tags Observations
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param observationId path string true "Observation ID"
// @Param payload body service.UpdateObservationRequest true "Partial update"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /projects/{id}/observations/{observationId} [patch]
func (h *ObservationHandler) Update(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	var req service.UpdateObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid observation payload"))
		return
	}
	obs, err := h.observations.Update(c.Request.Context(), pc, userIDFromContext(c), c.Param("observationId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordObservationWrite("updated")
	response.JSON(c, http.StatusOK, obs, nil)
}

// Submit godoc
// @Summary Submit a draft
// @Description Validates the draft and moves it into the category's default status
// @Tags Observations
// @Produce json
// @Param id path string true "Project ID"
// @Param observationId path string true "Observation ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /projects/{id}/observations/{observationId}/submit [post]
func (h *ObservationHandler) Submit(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	obs, err := h.observations.Submit(c.Request.Context(), pc, userIDFromContext(c), c.Param("observationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordObservationWrite("updated")
	response.JSON(c, http.StatusOK, obs, nil)
}

// Moderate godoc
// @Summary Moderate observation
// @Description Approves a pending or flagged observation, or flags an active one for review
// @Tags Observations
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param observationId path string true "Observation ID"
// @Param payload body map[string]string true "Target status and optional comment"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/observations/{observationId}/status [put]
func (h *ObservationHandler) Moderate(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	var payload struct {
		Status  models.ObservationStatus `json:"status" binding:"required"`
		Comment string                   `json:"comment"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "status required"))
		return
	}
	obs, err := h.observations.Moderate(c.Request.Context(), pc, userIDFromContext(c), c.Param("observationId"), payload.Status, payload.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordObservationWrite("moderated")
	response.JSON(c, http.StatusOK, obs, nil)
}

// Delete godoc
// @Summary Delete observation
// @Tags Observations
// @Param id path string true "Project ID"
// @Param observationId path string true "Observation ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/observations/{observationId} [delete]
func (h *ObservationHandler) Delete(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	if err := h.observations.Delete(c.Request.Context(), pc, userIDFromContext(c), c.Param("observationId")); err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordObservationWrite("deleted")
	response.NoContent(c)
}

// Versions godoc
// @Summary Observation version history
// @Tags Observations
// @Produce json
// @Param id path string true "Project ID"
// @Param observationId path string true "Observation ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/observations/{observationId}/versions [get]
func (h *ObservationHandler) Versions(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	versions, err := h.observations.Versions(c.Request.Context(), pc, userIDFromContext(c), c.Param("observationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, nil)
}
