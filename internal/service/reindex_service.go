package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/geokey/geokey-api/internal/models"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
	"github.com/geokey/geokey-api/pkg/jobs"
)

type reindexObservationRepository interface {
	IterateByProject(ctx context.Context, projectID string, batchSize int, fn func([]models.Observation) error) error
	UpdateDerived(ctx context.Context, obs *models.Observation) error
}

type reindexCategoryService interface {
	ListByProject(ctx context.Context, projectID string) ([]models.Category, error)
}

// ReindexConfig tunes the reindex worker pool.
type ReindexConfig struct {
	Workers   int
	BatchSize int
}

// ReindexService rebuilds the derived observation columns of a project after
// schema changes: display strings, expiry timestamps and the search index.
type ReindexService struct {
	observations reindexObservationRepository
	categories   reindexCategoryService
	queue        *jobs.Queue
	config       ReindexConfig
	logger       *zap.Logger
}

// NewReindexService constructs a ReindexService with its own worker queue.
func NewReindexService(observations reindexObservationRepository, categories reindexCategoryService, config ReindexConfig, logger *zap.Logger) *ReindexService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReindexService{
		observations: observations,
		categories:   categories,
		config:       config,
		logger:       logger,
	}
	s.queue = jobs.NewQueue("reindex", s.process, jobs.QueueConfig{
		Workers: config.Workers,
		Logger:  logger,
	})
	return s
}

// Start launches the reindex workers.
func (s *ReindexService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the reindex workers.
func (s *ReindexService) Stop() {
	s.queue.Stop()
}

// Enqueue schedules a full reindex of the project. Admins only.
func (s *ReindexService) Enqueue(pc *models.ProjectContext) error {
	if pc.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only project admins may trigger a reindex")
	}
	job := jobs.Job{ID: uuid.NewString(), Type: "reindex_project", Payload: pc.Project.ID}
	if err := s.queue.Enqueue(job); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue reindex")
	}
	return nil
}

func (s *ReindexService) process(ctx context.Context, job jobs.Job) error {
	projectID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("reindex job payload is not a project id")
	}

	categories, err := s.categories.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	byID := make(map[string]*models.Category, len(categories))
	for i := range categories {
		byID[categories[i].ID] = &categories[i]
	}

	var updated int
	err = s.observations.IterateByProject(ctx, projectID, s.config.BatchSize, func(batch []models.Observation) error {
		for i := range batch {
			obs := &batch[i]
			category, ok := byID[obs.CategoryID]
			if !ok {
				continue
			}
			ComputeDerived(category, obs)
			if err := s.observations.UpdateDerived(ctx, obs); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("project reindexed", zap.String("project_id", projectID), zap.Int("observations", updated))
	return nil
}
