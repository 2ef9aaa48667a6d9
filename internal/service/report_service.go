package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/geokey/geokey-api/internal/models"
	"github.com/geokey/geokey-api/internal/repository"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
	"github.com/geokey/geokey-api/pkg/export"
	"github.com/geokey/geokey-api/pkg/jobs"
)

type reportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id string) (*models.Report, error)
	ListByProject(ctx context.Context, projectID string, limit int) ([]models.Report, error)
	Update(ctx context.Context, id string, params repository.UpdateReportParams) error
}

type reportObservationRepository interface {
	IterateByProject(ctx context.Context, projectID string, batchSize int, fn func([]models.Observation) error) error
}

type reportCategoryService interface {
	ListByProject(ctx context.Context, projectID string) ([]models.Category, error)
}

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
	Copy(filename string, w io.Writer) error
}

type reportSigner interface {
	Generate(reportID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (reportID, relPath string, expiresAt time.Time, err error)
}

// ReportConfig tunes the report worker pool.
type ReportConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
	BaseURL           string
}

// ReportService generates project summary PDFs asynchronously and serves
// them through signed download links.
type ReportService struct {
	reports      reportRepository
	observations reportObservationRepository
	categories   reportCategoryService
	exporter     *export.PDFExporter
	storage      reportStorage
	signer       reportSigner
	queue        *jobs.Queue
	config       ReportConfig
	logger       *zap.Logger
}

// NewReportService constructs a ReportService with its own worker queue.
// Call Start before requesting reports and Stop on shutdown.
func NewReportService(reports reportRepository, observations reportObservationRepository, categories reportCategoryService, exporter *export.PDFExporter, storage reportStorage, signer reportSigner, config ReportConfig, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReportService{
		reports:      reports,
		observations: observations,
		categories:   categories,
		exporter:     exporter,
		storage:      storage,
		signer:       signer,
		config:       config,
		logger:       logger,
	}
	s.queue = jobs.NewQueue("reports", s.process, jobs.QueueConfig{
		Workers:    config.WorkerConcurrency,
		MaxRetries: config.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the report workers.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the report workers.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// Request queues a new report for the project. Moderating roles only.
func (s *ReportService) Request(ctx context.Context, pc *models.ProjectContext, userID string) (*models.Report, error) {
	if !pc.Role.CanModerate() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators may generate reports")
	}

	report := &models.Report{
		ProjectID:   pc.Project.ID,
		RequestedBy: userID,
		Status:      models.ReportPending,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report")
	}

	job := jobs.Job{ID: uuid.NewString(), Type: "project_summary", Payload: report.ID}
	if err := s.queue.Enqueue(job); err != nil {
		failed := models.ReportFailed
		msg := err.Error()
		if updateErr := s.reports.Update(ctx, report.ID, repository.UpdateReportParams{Status: &failed, Error: &msg}); updateErr != nil {
			s.logger.Error("failed to mark report as failed", zap.String("report_id", report.ID), zap.Error(updateErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue report")
	}
	return report, nil
}

// Get returns a report with a signed download link when completed.
func (s *ReportService) Get(ctx context.Context, pc *models.ProjectContext, reportID string) (*models.Report, error) {
	if !pc.Role.CanModerate() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators may read reports")
	}
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	if report.ProjectID != pc.Project.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
	}
	s.attachDownloadURL(report)
	return report, nil
}

// List returns the project's reports, newest first.
func (s *ReportService) List(ctx context.Context, pc *models.ProjectContext, limit int) ([]models.Report, error) {
	if !pc.Role.CanModerate() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators may read reports")
	}
	reports, err := s.reports.ListByProject(ctx, pc.Project.ID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}
	for i := range reports {
		s.attachDownloadURL(&reports[i])
	}
	return reports, nil
}

// Download validates a signed token and streams the report file.
func (s *ReportService) Download(ctx context.Context, token string, w io.Writer) error {
	reportID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return appErrors.Clone(appErrors.ErrNotFound, "report not found")
	}
	if report.Status != models.ReportCompleted || report.FilePath == nil || *report.FilePath != relPath {
		return appErrors.Clone(appErrors.ErrNotFound, "report file not available")
	}
	if err := s.storage.Copy(relPath, w); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stream report")
	}
	return nil
}

func (s *ReportService) attachDownloadURL(report *models.Report) {
	if report.Status != models.ReportCompleted || report.FilePath == nil {
		return
	}
	token, _, err := s.signer.Generate(report.ID, *report.FilePath)
	if err != nil {
		s.logger.Warn("failed to sign report download", zap.String("report_id", report.ID), zap.Error(err))
		return
	}
	url := s.config.BaseURL + "/reports/download/" + token
	report.DownloadURL = &url
}

func (s *ReportService) process(ctx context.Context, job jobs.Job) error {
	reportID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("report job payload is not a report id")
	}

	running := models.ReportRunning
	if err := s.reports.Update(ctx, reportID, repository.UpdateReportParams{Status: &running}); err != nil {
		return err
	}

	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return err
	}

	data, err := s.buildSummary(ctx, report.ProjectID)
	if err != nil {
		return s.fail(ctx, reportID, err)
	}
	payload, err := s.exporter.Render(data, "Project Observation Summary")
	if err != nil {
		return s.fail(ctx, reportID, err)
	}

	filename := fmt.Sprintf("%s/%s.pdf", report.ProjectID, reportID)
	if _, err := s.storage.Save(filename, payload); err != nil {
		return s.fail(ctx, reportID, err)
	}

	completed := models.ReportCompleted
	now := time.Now().UTC()
	if err := s.reports.Update(ctx, reportID, repository.UpdateReportParams{
		Status:      &completed,
		FilePath:    &filename,
		CompletedAt: &now,
	}); err != nil {
		return err
	}
	s.logger.Info("report generated", zap.String("report_id", reportID), zap.String("file", filename))
	return nil
}

func (s *ReportService) fail(ctx context.Context, reportID string, cause error) error {
	failed := models.ReportFailed
	msg := cause.Error()
	if err := s.reports.Update(ctx, reportID, repository.UpdateReportParams{Status: &failed, Error: &msg}); err != nil {
		s.logger.Error("failed to mark report as failed", zap.String("report_id", reportID), zap.Error(err))
	}
	return cause
}

// buildSummary aggregates per-category observation counts by status.
func (s *ReportService) buildSummary(ctx context.Context, projectID string) (export.Dataset, error) {
	categories, err := s.categories.ListByProject(ctx, projectID)
	if err != nil {
		return export.Dataset{}, err
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	type tally struct{ total, active, pending, review int }
	tallies := make(map[string]*tally)
	err = s.observations.IterateByProject(ctx, projectID, 0, func(batch []models.Observation) error {
		for _, obs := range batch {
			t := tallies[obs.CategoryID]
			if t == nil {
				t = &tally{}
				tallies[obs.CategoryID] = t
			}
			t.total++
			switch obs.Status {
			case models.ObservationActive:
				t.active++
			case models.ObservationPending:
				t.pending++
			case models.ObservationReview:
				t.review++
			}
		}
		return nil
	})
	if err != nil {
		return export.Dataset{}, err
	}

	data := export.Dataset{Headers: []string{"Category", "Total", "Active", "Pending", "Review"}}
	for _, c := range categories {
		t := tallies[c.ID]
		if t == nil {
			t = &tally{}
		}
		data.Rows = append(data.Rows, map[string]string{
			"Category": names[c.ID],
			"Total":    strconv.Itoa(t.total),
			"Active":   strconv.Itoa(t.active),
			"Pending":  strconv.Itoa(t.pending),
			"Review":   strconv.Itoa(t.review),
		})
	}
	return data, nil
}
