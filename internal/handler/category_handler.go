package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/geokey/geokey-api/internal/models"
	"github.com/geokey/geokey-api/internal/service"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
	"github.com/geokey/geokey-api/pkg/response"
)

// CategoryHandler exposes category schema endpoints. Schema changes are
// restricted to project admins.
type CategoryHandler struct {
	projects   *service.ProjectService
	categories *service.CategoryService
}

// NewCategoryHandler constructs handler.
func NewCategoryHandler(projects *service.ProjectService, categories *service.CategoryService) *CategoryHandler {
	return &CategoryHandler{projects: projects, categories: categories}
}

// requireAdmin resolves the project context and rejects non-admins. A nil
// return means the error response was already written.
func (h *CategoryHandler) requireAdmin(c *gin.Context) *models.ProjectContext {
	pc, err := h.projects.ResolveContext(c.Request.Context(), c.Param("id"), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return nil
	}
	if pc.Role != models.RoleAdmin {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only project admins may change category schemas"))
		return nil
	}
	return pc
}

// List godoc
// @Summary List project categories
// @Tags Categories
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/categories [get]
func (h *CategoryHandler) List(c *gin.Context) {
	pc, err := h.projects.ResolveContext(c.Request.Context(), c.Param("id"), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if pc.Role == models.RoleNone {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "you have no access to this project"))
		return
	}
	categories, err := h.categories.ListByProject(c.Request.Context(), pc.Project.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if pc.Role != models.RoleAdmin {
		for i := range categories {
			categories[i] = *categories[i].TrimInactive()
		}
	}
	response.JSON(c, http.StatusOK, categories, nil)
}

// Get godoc
// @Summary Get category schema
// @Tags Categories
// @Produce json
// @Param id path string true "Project ID"
// @Param categoryId path string true "Category ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/{id}/categories/{categoryId} [get]
func (h *CategoryHandler) Get(c *gin.Context) {
	pc, err := h.projects.ResolveContext(c.Request.Context(), c.Param("id"), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if pc.Role == models.RoleNone {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "you have no access to this project"))
		return
	}
	category, err := h.categories.Get(c.Request.Context(), c.Param("categoryId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if category.ProjectID != pc.Project.ID {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "category not found"))
		return
	}
	if pc.Role != models.RoleAdmin {
		category = category.TrimInactive()
	}
	response.JSON(c, http.StatusOK, category, nil)
}

// Create godoc
// @Summary Create category
// @Tags Categories
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body service.CategoryRequest true "Category payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/categories [post]
func (h *CategoryHandler) Create(c *gin.Context) {
	pc := h.requireAdmin(c)
	if pc == nil {
		return
	}
	var req service.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid category payload"))
		return
	}
	category, err := h.categories.Create(c.Request.Context(), pc.Project.ID, userIDFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, category)
}

// Update godoc
// @Summary Update category
// @Tags Categories
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param categoryId path string true "Category ID"
// @Param payload body service.CategoryRequest true "Category payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/categories/{categoryId} [put]
func (h *CategoryHandler) Update(c *gin.Context) {
	if pc := h.requireAdmin(c); pc == nil {
		return
	}
	var req service.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid category payload"))
		return
	}
	category, err := h.categories.Update(c.Request.Context(), c.Param("categoryId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, category, nil)
}

// Delete godoc
// @Summary Delete category
// @Description Soft-deletes the category, its fields and observations, and strips it from stored filters
// @Tags Categories
// @Param id path string true "Project ID"
// @Param categoryId path string true "Category ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/categories/{categoryId} [delete]
func (h *CategoryHandler) Delete(c *gin.Context) {
	pc := h.requireAdmin(c)
	if pc == nil {
		return
	}
	if err := h.categories.Delete(c.Request.Context(), pc.Project.ID, c.Param("categoryId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddField godoc
// @Summary Add field to category
// @Tags Categories
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param categoryId path string true "Category ID"
// @Param payload body service.FieldRequest true "Field payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projects/{id}/categories/{categoryId}/fields [post]
func (h *CategoryHandler) AddField(c *gin.Context) {
	if pc := h.requireAdmin(c); pc == nil {
		return
	}
	var req service.FieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid field payload"))
		return
	}
	field, err := h.categories.AddField(c.Request.Context(), c.Param("categoryId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, field)
}

// UpdateField godoc
// @Summary Update field
// @Description Updates a field's metadata and constraints. Key and type are immutable.
// @Tags Categories
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param categoryId path string true "Category ID"
// @Param fieldId path string true "Field ID"
// @Param payload body service.FieldRequest true "Field payload"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/categories/{categoryId}/fields/{fieldId} [put]
func (h *CategoryHandler) UpdateField(c *gin.Context) {
	if pc := h.requireAdmin(c); pc == nil {
		return
	}
	var req service.FieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid field payload"))
		return
	}
	field, err := h.categories.UpdateField(c.Request.Context(), c.Param("categoryId"), c.Param("fieldId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, field, nil)
}

// DeleteField godoc
// @Summary Delete field
// @Description Soft-deletes the field, detaches it from display/expiry selection and strips its key from filter maps
// @Tags Categories
// @Param id path string true "Project ID"
// @Param categoryId path string true "Category ID"
// @Param fieldId path string true "Field ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/categories/{categoryId}/fields/{fieldId} [delete]
func (h *CategoryHandler) DeleteField(c *gin.Context) {
	pc := h.requireAdmin(c)
	if pc == nil {
		return
	}
	if err := h.categories.DeleteField(c.Request.Context(), pc.Project.ID, c.Param("categoryId"), c.Param("fieldId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ReorderFields godoc
// @Summary Reorder category fields
// @Tags Categories
// @Accept json
// @Param id path string true "Project ID"
// @Param categoryId path string true "Category ID"
// @Param payload body map[string][]string true "Ordered field ids"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /projects/{id}/categories/{categoryId}/fields/order [put]
func (h *CategoryHandler) ReorderFields(c *gin.Context) {
	if pc := h.requireAdmin(c); pc == nil {
		return
	}
	var payload struct {
		FieldIDs []string `json:"field_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "field_ids required"))
		return
	}
	if err := h.categories.ReorderFields(c.Request.Context(), c.Param("categoryId"), payload.FieldIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddLookupValue godoc
// @Summary Add lookup value
// @Tags Categories
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param categoryId path string true "Category ID"
// @Param fieldId path string true "Field ID"
// @Param payload body map[string]string true "Value name"
// @Success 201 {object} response.Envelope
// @Router /projects/{id}/categories/{categoryId}/fields/{fieldId}/values [post]
func (h *CategoryHandler) AddLookupValue(c *gin.Context) {
	if pc := h.requireAdmin(c); pc == nil {
		return
	}
	var payload struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "name required"))
		return
	}
	value, err := h.categories.AddLookupValue(c.Request.Context(), c.Param("categoryId"), c.Param("fieldId"), payload.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, value)
}

// RenameLookupValue godoc
// @Summary Rename lookup value
// @Description Changes the display name. Observations store the numeric id, so the rename propagates everywhere.
// @Tags Categories
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param categoryId path string true "Category ID"
// @Param fieldId path string true "Field ID"
// @Param valueId path integer true "Value ID"
// @Param payload body map[string]string true "New name"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/categories/{categoryId}/fields/{fieldId}/values/{valueId} [put]
func (h *CategoryHandler) RenameLookupValue(c *gin.Context) {
	if pc := h.requireAdmin(c); pc == nil {
		return
	}
	valueID, err := strconv.ParseInt(c.Param("valueId"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "valueId must be an integer"))
		return
	}
	var payload struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "name required"))
		return
	}
	value, err := h.categories.RenameLookupValue(c.Request.Context(), c.Param("categoryId"), c.Param("fieldId"), valueID, payload.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, value, nil)
}

// RemoveLookupValue godoc
// @Summary Retire lookup value
// @Description Deactivates the value. Stored observations keep resolving it.
// @Tags Categories
// @Param id path string true "Project ID"
// @Param categoryId path string true "Category ID"
// @Param fieldId path string true "Field ID"
// @Param valueId path integer true "Value ID"
// @Success 204 {object} response.Envelope
// @Router /projects/{id}/categories/{categoryId}/fields/{fieldId}/values/{valueId} [delete]
func (h *CategoryHandler) RemoveLookupValue(c *gin.Context) {
	if pc := h.requireAdmin(c); pc == nil {
		return
	}
	valueID, err := strconv.ParseInt(c.Param("valueId"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "valueId must be an integer"))
		return
	}
	if err := h.categories.RemoveLookupValue(c.Request.Context(), c.Param("categoryId"), c.Param("fieldId"), valueID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
