package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/geokey/geokey-api/internal/models"
	"github.com/geokey/geokey-api/internal/query"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
)

type visibilityCategoryService interface {
	ListByProject(ctx context.Context, projectID string) ([]models.Category, error)
	CompileQuery(category *models.Category, rule models.Rule) (query.Node, error)
}

type visibilitySubsetRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subset, error)
}

// VisibilityService resolves what a user may see in a project into a single
// store predicate combining role, status scope, group filters, subsets and
// free-text search.
type VisibilityService struct {
	categories visibilityCategoryService
	subsets    visibilitySubsetRepository
	logger     *zap.Logger
}

// NewVisibilityService constructs a VisibilityService.
func NewVisibilityService(categories visibilityCategoryService, subsets visibilitySubsetRepository, logger *zap.Logger) *VisibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisibilityService{categories: categories, subsets: subsets, logger: logger}
}

// SearchOptions narrows a resolved scope further.
type SearchOptions struct {
	CategoryID string
	SubsetID   string
	Search     string
}

// Resolve derives the observation predicate for the given project context.
// The caller must have a role in the project; RoleNone is rejected.
//
// The scope is the conjunction of the role's status gate, the union of the
// user's group filters, the optional subset and the search tokens. Drafts
// are only ever visible to their creator.
func (s *VisibilityService) Resolve(ctx context.Context, pc *models.ProjectContext, userID string, opts SearchOptions) (query.Node, error) {
	if pc.Role == models.RoleNone {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you have no access to this project")
	}

	scope := query.And{query.ProjectIs{ID: pc.Project.ID}}

	scope = append(scope, statusGate(pc.Role, userID))

	groupNode, err := s.groupScope(ctx, pc)
	if err != nil {
		return nil, err
	}
	if groupNode != nil {
		scope = append(scope, groupNode)
	}

	if opts.CategoryID != "" {
		scope = append(scope, query.CategoryIs{ID: opts.CategoryID})
	}

	if opts.SubsetID != "" {
		subset, err := s.subsets.FindByID(ctx, opts.SubsetID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "subset not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subset")
		}
		if subset.ProjectID != pc.Project.ID {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subset not found")
		}
		subsetNode, err := s.compileFilterMap(ctx, pc.Project.ID, subset.Filters)
		if err != nil {
			return nil, err
		}
		if subsetNode != nil {
			scope = append(scope, subsetNode)
		}
	}

	if tokens := TokenizeSearch(opts.Search); len(tokens) > 0 {
		scope = append(scope, query.SearchTokens(tokens))
	}

	return scope, nil
}

// CanSee reports whether a single observation falls inside the user's role
// and status scope. Used on detail reads where no query runs.
func (s *VisibilityService) CanSee(pc *models.ProjectContext, userID string, obs *models.Observation) bool {
	if pc.Role == models.RoleNone || obs.Status == models.ObservationDeleted {
		return false
	}
	if obs.Status == models.ObservationDraft {
		return obs.CreatorID == userID && userID != ""
	}
	switch pc.Role {
	case models.RoleAdmin, models.RoleModerator:
		return true
	case models.RoleContributor:
		return obs.Status == models.ObservationActive || obs.CreatorID == userID
	default:
		return obs.Status == models.ObservationActive
	}
}

// statusGate limits statuses by role. Moderating roles see everything under
// moderation; contributors additionally see their own pending and flagged
// work; viewers see only active observations.
func statusGate(role models.ProjectRole, userID string) query.Node {
	ownDrafts := query.And{
		query.StatusIn{string(models.ObservationDraft)},
		query.CreatorIs{ID: userID},
	}

	switch role {
	case models.RoleAdmin, models.RoleModerator:
		moderated := query.StatusIn{
			string(models.ObservationActive),
			string(models.ObservationPending),
			string(models.ObservationReview),
		}
		if userID == "" {
			return moderated
		}
		return query.Or{moderated, ownDrafts}
	case models.RoleContributor:
		own := query.And{
			query.StatusIn{
				string(models.ObservationDraft),
				string(models.ObservationPending),
				string(models.ObservationReview),
			},
			query.CreatorIs{ID: userID},
		}
		return query.Or{query.StatusIn{string(models.ObservationActive)}, own}
	default:
		return query.StatusIn{string(models.ObservationActive)}
	}
}

// groupScope unions the filter maps of the user's groups. A group without a
// filter map grants the full project, short-circuiting the union. Admins and
// users outside any group are not scoped.
func (s *VisibilityService) groupScope(ctx context.Context, pc *models.ProjectContext) (query.Node, error) {
	if pc.Role == models.RoleAdmin || len(pc.Groups) == 0 {
		return nil, nil
	}

	union := query.Or{}
	for _, g := range pc.Groups {
		if g.Filters == nil {
			return nil, nil
		}
		node, err := s.compileFilterMap(ctx, pc.Project.ID, g.Filters)
		if err != nil {
			return nil, err
		}
		if node != nil {
			union = append(union, node)
		}
	}
	if len(union) == 0 {
		return query.Nothing{}, nil
	}
	return union, nil
}

// compileFilterMap lowers a stored filter map into a predicate. A nil map
// means unrestricted (nil node); an empty map matches nothing; category keys
// that no longer resolve are skipped.
func (s *VisibilityService) compileFilterMap(ctx context.Context, projectID string, filters models.FilterMap) (query.Node, error) {
	if filters == nil {
		return nil, nil
	}
	if len(filters) == 0 {
		return query.Nothing{}, nil
	}

	categories, err := s.categories.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Category, len(categories))
	for i := range categories {
		byID[categories[i].ID] = &categories[i]
	}

	disjunction := query.Or{}
	for categoryID, rule := range filters {
		category, ok := byID[categoryID]
		if !ok {
			s.logger.Debug("skipping filter for unknown category",
				zap.String("project_id", projectID), zap.String("category_id", categoryID))
			continue
		}
		node, err := s.categories.CompileQuery(category, rule)
		if err != nil {
			return nil, err
		}
		disjunction = append(disjunction, node)
	}
	if len(disjunction) == 0 {
		return query.Nothing{}, nil
	}
	return disjunction, nil
}
