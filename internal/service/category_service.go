package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/geokey/geokey-api/internal/fieldtype"
	"github.com/geokey/geokey-api/internal/models"
	"github.com/geokey/geokey-api/internal/query"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
)

type categoryRepository interface {
	FindByID(ctx context.Context, id string) (*models.Category, error)
	ListByProject(ctx context.Context, projectID string) ([]models.Category, error)
	Create(ctx context.Context, category *models.Category) error
	Update(ctx context.Context, category *models.Category) error
	ReorderFields(ctx context.Context, categoryID string, ids []string) error
	SoftDelete(ctx context.Context, projectID, categoryID string) error
	CreateField(ctx context.Context, field *models.Field) error
	UpdateField(ctx context.Context, field *models.Field) error
	SoftDeleteField(ctx context.Context, projectID, categoryID, fieldID, fieldKey string) error
	FieldKeyExists(ctx context.Context, categoryID, key string) (bool, error)
	CreateLookupValue(ctx context.Context, value *models.LookupValue) error
	RenameLookupValue(ctx context.Context, fieldID string, id int64, name string) error
	DeactivateLookupValue(ctx context.Context, fieldID string, id int64) error
}

type schemaCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CategoryService manages category schemas: categories, fields, lookup
// values, ordering and filter compilation.
type CategoryService struct {
	repo      categoryRepository
	cache     schemaCache
	cacheTTL  time.Duration
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCategoryService constructs a CategoryService. The cache may be nil.
func NewCategoryService(repo categoryRepository, cache schemaCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CategoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &CategoryService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// WithMetrics attaches schema cache instrumentation.
func (s *CategoryService) WithMetrics(m *MetricsService) *CategoryService {
	s.metrics = m
	return s
}

func schemaCacheKey(categoryID string) string {
	return "schema:category:" + categoryID
}

// CategoryRequest is the create/update payload.
type CategoryRequest struct {
	Name           string                    `json:"name" validate:"required,max=200"`
	Description    string                    `json:"description"`
	DefaultStatus  *models.ObservationStatus `json:"default_status"`
	DisplayFieldID *string                   `json:"display_field_id"`
	ExpiryFieldID  *string                   `json:"expiry_field_id"`
	Colour         string                    `json:"colour"`
	Symbol         *string                   `json:"symbol"`
}

// FieldRequest is the field create/update payload.
type FieldRequest struct {
	Name        string           `json:"name" validate:"required,max=200"`
	Key         string           `json:"key" validate:"omitempty,max=100"`
	Description string           `json:"description"`
	Required    bool             `json:"required"`
	Type        models.FieldType `json:"type"`
	MaxLength   *int             `json:"max_length"`
	MinVal      *float64         `json:"min_val"`
	MaxVal      *float64         `json:"max_val"`
	Textarea    bool             `json:"textarea"`
}

// Get returns a category schema, served from cache when possible.
func (s *CategoryService) Get(ctx context.Context, categoryID string) (*models.Category, error) {
	if s.cache != nil {
		var cached models.Category
		if err := s.cache.Get(ctx, schemaCacheKey(categoryID), &cached); err == nil {
			s.metrics.RecordSchemaCacheLookup(true)
			return &cached, nil
		}
		s.metrics.RecordSchemaCacheLookup(false)
	}

	category, err := s.repo.FindByID(ctx, categoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, schemaCacheKey(categoryID), category, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache category schema", zap.String("category_id", categoryID), zap.Error(err))
		}
	}
	return category, nil
}

// ListByProject returns the project's categories in their configured order.
func (s *CategoryService) ListByProject(ctx context.Context, projectID string) ([]models.Category, error) {
	categories, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	return categories, nil
}

// Create registers a new category in the project.
func (s *CategoryService) Create(ctx context.Context, projectID, userID string, req CategoryRequest) (*models.Category, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category payload")
	}

	category := &models.Category{
		ProjectID:   projectID,
		Name:        req.Name,
		Description: req.Description,
		Colour:      req.Colour,
		Symbol:      req.Symbol,
		CreatorID:   userID,
	}
	if req.DefaultStatus != nil {
		if *req.DefaultStatus != models.ObservationActive && *req.DefaultStatus != models.ObservationPending {
			return nil, appErrors.Clone(appErrors.ErrValidation, "default status must be active or pending")
		}
		category.DefaultStatus = *req.DefaultStatus
	}
	if err := s.repo.Create(ctx, category); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create category")
	}
	return category, nil
}

// Update modifies a category. The display field must belong to the category
// and the expiry field must be a temporal variant.
func (s *CategoryService) Update(ctx context.Context, categoryID string, req CategoryRequest) (*models.Category, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category payload")
	}

	category, err := s.Get(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	if req.DisplayFieldID != nil {
		if category.FieldByID(*req.DisplayFieldID) == nil {
			return nil, appErrors.Clone(appErrors.ErrUnknownField, "display field does not belong to this category")
		}
	}
	if req.ExpiryFieldID != nil {
		field := category.FieldByID(*req.ExpiryFieldID)
		if field == nil {
			return nil, appErrors.Clone(appErrors.ErrUnknownField, "expiry field does not belong to this category")
		}
		if !field.Type.IsTemporal() {
			return nil, appErrors.Clone(appErrors.ErrInvalidExpiryType, "")
		}
	}

	category.Name = req.Name
	category.Description = req.Description
	category.DisplayFieldID = req.DisplayFieldID
	category.ExpiryFieldID = req.ExpiryFieldID
	category.Colour = req.Colour
	category.Symbol = req.Symbol
	if req.DefaultStatus != nil {
		if *req.DefaultStatus != models.ObservationActive && *req.DefaultStatus != models.ObservationPending {
			return nil, appErrors.Clone(appErrors.ErrValidation, "default status must be active or pending")
		}
		category.DefaultStatus = *req.DefaultStatus
	}

	if err := s.repo.Update(ctx, category); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update category")
	}
	s.invalidate(ctx, categoryID)
	return category, nil
}

// Delete soft-deletes a category, its fields and observations, and strips the
// category from every group and subset filter map in the project.
func (s *CategoryService) Delete(ctx context.Context, projectID, categoryID string) error {
	if _, err := s.Get(ctx, categoryID); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, projectID, categoryID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete category")
	}
	s.invalidate(ctx, categoryID)
	return nil
}

// AddField appends a field to the category. The key defaults to a slug of
// the name and must be unique within the category.
func (s *CategoryService) AddField(ctx context.Context, categoryID string, req FieldRequest) (*models.Field, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid field payload")
	}
	if !knownFieldType(req.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown field type %q", req.Type))
	}

	if _, err := s.Get(ctx, categoryID); err != nil {
		return nil, err
	}

	key := req.Key
	if key == "" {
		key = slugify(req.Name)
	}
	taken, err := s.repo.FieldKeyExists(ctx, categoryID, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check field key")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("field key %q is already in use", key))
	}

	field := &models.Field{
		CategoryID:  categoryID,
		Name:        req.Name,
		Key:         key,
		Description: req.Description,
		Required:    req.Required,
		Type:        req.Type,
		MaxLength:   req.MaxLength,
		MinVal:      req.MinVal,
		MaxVal:      req.MaxVal,
		Textarea:    req.Textarea,
	}
	if err := s.repo.CreateField(ctx, field); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create field")
	}
	s.invalidate(ctx, categoryID)
	return field, nil
}

// UpdateField modifies a field. Key and type are immutable.
func (s *CategoryService) UpdateField(ctx context.Context, categoryID, fieldID string, req FieldRequest) (*models.Field, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid field payload")
	}
	category, err := s.Get(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	field := category.FieldByID(fieldID)
	if field == nil {
		return nil, appErrors.Clone(appErrors.ErrUnknownField, "")
	}

	field.Name = req.Name
	field.Description = req.Description
	field.Required = req.Required
	field.MaxLength = req.MaxLength
	field.MinVal = req.MinVal
	field.MaxVal = req.MaxVal
	field.Textarea = req.Textarea
	if err := s.repo.UpdateField(ctx, field); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update field")
	}
	s.invalidate(ctx, categoryID)
	return field, nil
}

// DeleteField soft-deletes a field. The field stops being the category's
// display or expiry field and its key is stripped from every group and subset
// filter map in the project. Stored observation properties keep the key so
// history stays readable.
func (s *CategoryService) DeleteField(ctx context.Context, projectID, categoryID, fieldID string) error {
	category, err := s.Get(ctx, categoryID)
	if err != nil {
		return err
	}
	field := category.FieldByID(fieldID)
	if field == nil {
		return appErrors.Clone(appErrors.ErrUnknownField, "")
	}
	if err := s.repo.SoftDeleteField(ctx, projectID, categoryID, fieldID, field.Key); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete field")
	}
	s.invalidate(ctx, categoryID)
	return nil
}

// ReorderFields persists a new field ordering. The id list must be a
// permutation of the category's current fields.
func (s *CategoryService) ReorderFields(ctx context.Context, categoryID string, ids []string) error {
	category, err := s.Get(ctx, categoryID)
	if err != nil {
		return err
	}
	if len(ids) != len(category.Fields) {
		listed := make(map[string]bool, len(ids))
		for _, id := range ids {
			listed[id] = true
		}
		var missing []string
		for i := range category.Fields {
			if !listed[category.Fields[i].ID] {
				missing = append(missing, category.Fields[i].ID)
			}
		}
		if len(missing) > 0 {
			return appErrors.Clone(appErrors.ErrUnknownField,
				fmt.Sprintf("field order must list every field exactly once; missing %s", strings.Join(missing, ", ")))
		}
		return appErrors.Clone(appErrors.ErrValidation, "field order contains duplicates")
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if category.FieldByID(id) == nil {
			return appErrors.Clone(appErrors.ErrUnknownField, fmt.Sprintf("field %s does not belong to this category", id))
		}
		if seen[id] {
			return appErrors.Clone(appErrors.ErrValidation, "field order contains duplicates")
		}
		seen[id] = true
	}

	if err := s.repo.ReorderFields(ctx, categoryID, ids); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reorder fields")
	}
	s.invalidate(ctx, categoryID)
	return nil
}

// AddLookupValue appends an admissible value to a lookup field.
func (s *CategoryService) AddLookupValue(ctx context.Context, categoryID, fieldID, name string) (*models.LookupValue, error) {
	category, err := s.Get(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	field := category.FieldByID(fieldID)
	if field == nil {
		return nil, appErrors.Clone(appErrors.ErrUnknownField, "")
	}
	if !field.Type.IsLookup() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "field does not carry lookup values")
	}

	value := &models.LookupValue{FieldID: fieldID, Name: name}
	if err := s.repo.CreateLookupValue(ctx, value); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lookup value")
	}
	s.invalidate(ctx, categoryID)
	return value, nil
}

// RenameLookupValue changes a value's display name. Observations store the
// numeric id, so renames propagate without touching stored rows.
func (s *CategoryService) RenameLookupValue(ctx context.Context, categoryID, fieldID string, valueID int64, name string) (*models.LookupValue, error) {
	category, err := s.Get(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	field := category.FieldByID(fieldID)
	if field == nil {
		return nil, appErrors.Clone(appErrors.ErrUnknownField, "")
	}
	value := field.LookupValueByID(valueID)
	if value == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lookup value not found")
	}
	if err := s.repo.RenameLookupValue(ctx, fieldID, valueID, name); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rename lookup value")
	}
	value.Name = name
	s.invalidate(ctx, categoryID)
	return value, nil
}

// RemoveLookupValue retires a lookup value. Stored observations keep
// resolving it; new submissions are validated against the full value set.
func (s *CategoryService) RemoveLookupValue(ctx context.Context, categoryID, fieldID string, valueID int64) error {
	category, err := s.Get(ctx, categoryID)
	if err != nil {
		return err
	}
	field := category.FieldByID(fieldID)
	if field == nil {
		return appErrors.Clone(appErrors.ErrUnknownField, "")
	}
	if err := s.repo.DeactivateLookupValue(ctx, fieldID, valueID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove lookup value")
	}
	s.invalidate(ctx, categoryID)
	return nil
}

// CompileQuery translates a rule for this category into a store predicate.
// Reserved keys min_date and max_date bound created_at; other keys address
// fields by key. Keys that no longer resolve to a field are skipped so stale
// rules degrade instead of failing.
func (s *CategoryService) CompileQuery(category *models.Category, rule models.Rule) (query.Node, error) {
	node := query.And{query.CategoryIs{ID: category.ID}}

	var created query.CreatedBetween
	if raw, ok := rule["min_date"]; ok && raw != nil {
		ts, err := parseRuleDate(raw)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "min_date is not a valid timestamp")
		}
		created.Min = &ts
	}
	if raw, ok := rule["max_date"]; ok && raw != nil {
		ts, err := parseRuleDate(raw)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "max_date is not a valid timestamp")
		}
		created.Max = &ts
	}
	if created.Min != nil || created.Max != nil {
		node = append(node, created)
	}

	for key, fieldRule := range rule {
		if key == "min_date" || key == "max_date" {
			continue
		}
		field := category.FieldByKey(key)
		if field == nil {
			s.logger.Debug("skipping rule for unknown field",
				zap.String("category_id", category.ID), zap.String("key", key))
			continue
		}
		predicate, err := fieldtype.CompileFilter(field, fieldRule)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		node = append(node, predicate)
	}
	return node, nil
}

// ValidateFilters checks a filter map against the project's category schemas
// before it is stored on a group or subset.
func (s *CategoryService) ValidateFilters(ctx context.Context, projectID string, filters models.FilterMap) error {
	if filters == nil {
		return nil
	}
	categories, err := s.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	byID := make(map[string]*models.Category, len(categories))
	for i := range categories {
		byID[categories[i].ID] = &categories[i]
	}

	for categoryID, rule := range filters {
		category, ok := byID[categoryID]
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("category %s does not belong to this project", categoryID))
		}
		if _, err := s.CompileQuery(category, rule); err != nil {
			return err
		}
	}
	return nil
}

func (s *CategoryService) invalidate(ctx context.Context, categoryID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, schemaCacheKey(categoryID)); err != nil {
		s.logger.Warn("failed to invalidate category schema cache",
			zap.String("category_id", categoryID), zap.Error(err))
	}
}

func knownFieldType(t models.FieldType) bool {
	for _, known := range models.KnownFieldTypes {
		if t == known {
			return true
		}
	}
	return false
}

// slugify turns a field name into a lowercase underscore key.
func slugify(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ' || r == '-' || r == '_':
			if len(out) > 0 && out[len(out)-1] != '_' {
				out = append(out, '_')
			}
		}
	}
	return strings.TrimSuffix(string(out), "_")
}

var ruleDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseRuleDate(raw interface{}) (time.Time, error) {
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("not a timestamp string")
	}
	for _, layout := range ruleDateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
