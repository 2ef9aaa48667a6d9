package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geokey/geokey-api/internal/models"
	"github.com/geokey/geokey-api/internal/service"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
	"github.com/geokey/geokey-api/pkg/response"
)

// SubsetHandler exposes subset endpoints. Reading is open to anyone with a
// role; changes are admin-only.
type SubsetHandler struct {
	projects *service.ProjectService
	subsets  *service.SubsetService
}

// NewSubsetHandler constructs handler.
func NewSubsetHandler(projects *service.ProjectService, subsets *service.SubsetService) *SubsetHandler {
	return &SubsetHandler{projects: projects, subsets: subsets}
}

func (h *SubsetHandler) resolve(c *gin.Context, adminOnly bool) *models.ProjectContext {
	pc, err := h.projects.ResolveContext(c.Request.Context(), c.Param("id"), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return nil
	}
	if pc.Role == models.RoleNone {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "you have no access to this project"))
		return nil
	}
	if adminOnly && pc.Role != models.RoleAdmin {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only project admins may manage subsets"))
		return nil
	}
	return pc
}

// List godoc
// @Summary List subsets
// @Tags Subsets
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/subsets [get]
func (h *SubsetHandler) List(c *gin.Context) {
	pc := h.resolve(c, false)
	if pc == nil {
		return
	}
	subsets, err := h.subsets.List(c.Request.Context(), pc.Project.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subsets, nil)
}

// Get godoc
// @Summary Get subset
// @Tags Subsets
// @Produce json
// @Param id path string true "Project ID"
// @Param subsetId path string true "Subset ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/{id}/subsets/{subsetId} [get]
func (h *SubsetHandler) Get(c *gin.Context) {
	pc := h.resolve(c, false)
	if pc == nil {
		return
	}
	subset, err := h.subsets.Get(c.Request.Context(), pc.Project.ID, c.Param("subsetId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subset, nil)
}

// Create godoc
// @Summary Create subset
// @Tags Subsets
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body service.SubsetRequest true "Subset payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /projects/{id}/subsets [post]
func (h *SubsetHandler) Create(c *gin.Context) {
	pc := h.resolve(c, true)
	if pc == nil {
		return
	}
	var req service.SubsetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid subset payload"))
		return
	}
	subset, err := h.subsets.Create(c.Request.Context(), pc.Project.ID, userIDFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subset)
}

// Update godoc
// @Summary Update subset
// @Tags Subsets
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param subsetId path string true "Subset ID"
// @Param payload body service.SubsetRequest true "Subset payload"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/subsets/{subsetId} [put]
func (h *SubsetHandler) Update(c *gin.Context) {
	pc := h.resolve(c, true)
	if pc == nil {
		return
	}
	var req service.SubsetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid subset payload"))
		return
	}
	subset, err := h.subsets.Update(c.Request.Context(), pc.Project.ID, c.Param("subsetId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subset, nil)
}

// Delete godoc
// @Summary Delete subset
// @Tags Subsets
// @Param id path string true "Project ID"
// @Param subsetId path string true "Subset ID"
// @Success 204 {object} response.Envelope
// @Router /projects/{id}/subsets/{subsetId} [delete]
func (h *SubsetHandler) Delete(c *gin.Context) {
	pc := h.resolve(c, true)
	if pc == nil {
		return
	}
	if err := h.subsets.Delete(c.Request.Context(), pc.Project.ID, c.Param("subsetId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
