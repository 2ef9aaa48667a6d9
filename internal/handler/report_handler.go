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

// ReportHandler exposes async report endpoints.
type ReportHandler struct {
	projects *service.ProjectService
	reports  *service.ReportService
}

// NewReportHandler constructs handler.
func NewReportHandler(projects *service.ProjectService, reports *service.ReportService) *ReportHandler {
	return &ReportHandler{projects: projects, reports: reports}
}

func (h *ReportHandler) resolve(c *gin.Context) (*models.ProjectContext, bool) {
	if h.reports == nil {
		response.Error(c, appErrors.ErrReportsDisabled)
		return nil, false
	}
	pc, err := h.projects.ResolveContext(c.Request.Context(), c.Param("id"), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return pc, true
}

// Request godoc
// @Summary Request project summary report
// @Description Queues asynchronous PDF generation; poll the report until completed
// @Tags Reports
// @Produce json
// @Param id path string true "Project ID"
// @Success 202 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/reports [post]
func (h *ReportHandler) Request(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	report, err := h.reports.Request(c.Request.Context(), pc, userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, report, nil)
}

// List godoc
// @Summary List project reports
// @Tags Reports
// @Produce json
// @Param id path string true "Project ID"
// @Param limit query integer false "Max rows"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	reports, err := h.reports.List(c.Request.Context(), pc, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, nil)
}

// Get godoc
// @Summary Get report
// @Description Returns the report with a signed download link when completed
// @Tags Reports
// @Produce json
// @Param id path string true "Project ID"
// @Param reportId path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/{id}/reports/{reportId} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	pc, ok := h.resolve(c)
	if !ok {
		return
	}
	report, err := h.reports.Get(c.Request.Context(), pc, c.Param("reportId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Download godoc
// @Summary Download report file
// @Description Streams the PDF for a valid signed token. No session required.
// @Tags Reports
// @Produce application/pdf
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /reports/download/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	if h.reports == nil {
		response.Error(c, appErrors.ErrReportsDisabled)
		return
	}
	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", `attachment; filename="report.pdf"`)
	if err := h.reports.Download(c.Request.Context(), c.Param("token"), c.Writer); err != nil {
		response.Error(c, err)
		return
	}
}
