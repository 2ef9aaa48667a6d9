package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geokey/geokey-api/internal/models"
	"github.com/geokey/geokey-api/internal/query"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
)

func errNoRows() error { return sql.ErrNoRows }

type mockCategoryRepo struct {
	categories    map[string]*models.Category
	byProject     map[string][]models.Category
	reordered     []string
	deleted       []string
	deletedFields []string
	keyTaken      bool
}

func (m *mockCategoryRepo) FindByID(_ context.Context, id string) (*models.Category, error) {
	if c, ok := m.categories[id]; ok {
		return c, nil
	}
	return nil, errNoRows()
}

func (m *mockCategoryRepo) ListByProject(_ context.Context, projectID string) ([]models.Category, error) {
	return m.byProject[projectID], nil
}

func (m *mockCategoryRepo) Create(_ context.Context, category *models.Category) error {
	category.ID = "cat-new"
	return nil
}

func (m *mockCategoryRepo) Update(_ context.Context, _ *models.Category) error { return nil }

func (m *mockCategoryRepo) ReorderFields(_ context.Context, _ string, ids []string) error {
	m.reordered = ids
	return nil
}

func (m *mockCategoryRepo) SoftDelete(_ context.Context, _, categoryID string) error {
	m.deleted = append(m.deleted, categoryID)
	return nil
}

func (m *mockCategoryRepo) CreateField(_ context.Context, field *models.Field) error {
	field.ID = "field-new"
	return nil
}

func (m *mockCategoryRepo) UpdateField(_ context.Context, _ *models.Field) error { return nil }

func (m *mockCategoryRepo) SoftDeleteField(_ context.Context, _, _, fieldID, _ string) error {
	m.deletedFields = append(m.deletedFields, fieldID)
	return nil
}

func (m *mockCategoryRepo) FieldKeyExists(_ context.Context, _, _ string) (bool, error) {
	return m.keyTaken, nil
}

func (m *mockCategoryRepo) CreateLookupValue(_ context.Context, value *models.LookupValue) error {
	value.ID = 99
	return nil
}

func (m *mockCategoryRepo) RenameLookupValue(_ context.Context, _ string, _ int64, _ string) error {
	return nil
}

func (m *mockCategoryRepo) DeactivateLookupValue(_ context.Context, _ string, _ int64) error {
	return nil
}

func wildlifeCategory() *models.Category {
	displayID := "field-name"
	return &models.Category{
		ID:             "cat-1",
		ProjectID:      "project-1",
		Name:           "Wildlife Sighting",
		Status:         models.StatusActive,
		DefaultStatus:  models.ObservationPending,
		DisplayFieldID: &displayID,
		Fields: []models.Field{
			{ID: "field-name", CategoryID: "cat-1", Name: "Name", Key: "name", Required: true,
				Status: models.StatusActive, Type: models.FieldText, Order: 0},
			{ID: "field-count", CategoryID: "cat-1", Name: "Count", Key: "count",
				Status: models.StatusActive, Type: models.FieldNumeric, Order: 1},
			{ID: "field-seen", CategoryID: "cat-1", Name: "Seen At", Key: "seen_at",
				Status: models.StatusActive, Type: models.FieldDate, Order: 2},
			{ID: "field-species", CategoryID: "cat-1", Name: "Species", Key: "species",
				Status: models.StatusActive, Type: models.FieldSingleLookup, Order: 3,
				LookupValues: []models.LookupValue{
					{ID: 1, FieldID: "field-species", Name: "Gecko", Status: models.StatusActive},
					{ID: 2, FieldID: "field-species", Name: "Newt", Status: models.StatusActive},
				}},
		},
	}
}

func newCategoryService(repo *mockCategoryRepo) *CategoryService {
	return NewCategoryService(repo, nil, 0, nil, zap.NewNop())
}

func TestCompileQueryComposesPredicates(t *testing.T) {
	svc := newCategoryService(&mockCategoryRepo{})
	category := wildlifeCategory()

	rule := models.Rule{
		"min_date": "2014-01-01",
		"name":     "blah",
		"count":    map[string]interface{}{"min_val": 20.0},
	}
	node, err := svc.CompileQuery(category, rule)
	require.NoError(t, err)

	sql, args := query.Lower(node, 0)
	assert.Contains(t, sql, "category_id = $")
	assert.Contains(t, sql, "created_at >= $")
	assert.Contains(t, sql, "ILIKE")
	assert.Contains(t, sql, "::double precision >= $")
	assert.Contains(t, args, "%blah%")
	assert.Contains(t, args, 20.0)
}

func TestCompileQuerySkipsUnknownFieldKeys(t *testing.T) {
	svc := newCategoryService(&mockCategoryRepo{})
	category := wildlifeCategory()

	node, err := svc.CompileQuery(category, models.Rule{"ghost": "value"})
	require.NoError(t, err)

	sql, _ := query.Lower(node, 0)
	assert.Equal(t, "((category_id = $1))", sql)
}

func TestCompileQueryRejectsBadRuleShape(t *testing.T) {
	svc := newCategoryService(&mockCategoryRepo{})
	category := wildlifeCategory()

	_, err := svc.CompileQuery(category, models.Rule{"count": "not a range"})
	require.Error(t, err)
}

func TestUpdateRejectsNonTemporalExpiryField(t *testing.T) {
	repo := &mockCategoryRepo{categories: map[string]*models.Category{"cat-1": wildlifeCategory()}}
	svc := newCategoryService(repo)

	expiry := "field-name"
	_, err := svc.Update(context.Background(), "cat-1", CategoryRequest{
		Name:          "Wildlife Sighting",
		ExpiryFieldID: &expiry,
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidExpiryType.Code, appErr.Code)
}

func TestUpdateAcceptsTemporalExpiryField(t *testing.T) {
	repo := &mockCategoryRepo{categories: map[string]*models.Category{"cat-1": wildlifeCategory()}}
	svc := newCategoryService(repo)

	expiry := "field-seen"
	category, err := svc.Update(context.Background(), "cat-1", CategoryRequest{
		Name:          "Wildlife Sighting",
		ExpiryFieldID: &expiry,
	})
	require.NoError(t, err)
	require.NotNil(t, category.ExpiryFieldID)
	assert.Equal(t, "field-seen", *category.ExpiryFieldID)
}

func TestReorderFieldsRequiresPermutation(t *testing.T) {
	repo := &mockCategoryRepo{categories: map[string]*models.Category{"cat-1": wildlifeCategory()}}
	svc := newCategoryService(repo)

	err := svc.ReorderFields(context.Background(), "cat-1", []string{"field-name"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnknownField.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "field-count")

	err = svc.ReorderFields(context.Background(), "cat-1",
		[]string{"field-species", "field-name", "field-ghost", "field-count"})
	require.Error(t, err)

	err = svc.ReorderFields(context.Background(), "cat-1",
		[]string{"field-species", "field-seen", "field-name", "field-count"})
	require.NoError(t, err)
	assert.Equal(t, []string{"field-species", "field-seen", "field-name", "field-count"}, repo.reordered)
}

func TestDeleteFieldRejectsForeignField(t *testing.T) {
	repo := &mockCategoryRepo{categories: map[string]*models.Category{"cat-1": wildlifeCategory()}}
	svc := newCategoryService(repo)

	err := svc.DeleteField(context.Background(), "project-1", "cat-1", "field-ghost")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnknownField.Code, appErr.Code)
	assert.Empty(t, repo.deletedFields)
}

func TestDeleteFieldSoftDeletes(t *testing.T) {
	repo := &mockCategoryRepo{categories: map[string]*models.Category{"cat-1": wildlifeCategory()}}
	svc := newCategoryService(repo)

	err := svc.DeleteField(context.Background(), "project-1", "cat-1", "field-count")
	require.NoError(t, err)
	assert.Equal(t, []string{"field-count"}, repo.deletedFields)
}

func TestRenameLookupValue(t *testing.T) {
	repo := &mockCategoryRepo{categories: map[string]*models.Category{"cat-1": wildlifeCategory()}}
	svc := newCategoryService(repo)

	value, err := svc.RenameLookupValue(context.Background(), "cat-1", "field-species", 2, "Smooth Newt")
	require.NoError(t, err)
	assert.Equal(t, "Smooth Newt", value.Name)

	_, err = svc.RenameLookupValue(context.Background(), "cat-1", "field-species", 42, "Ghost")
	require.Error(t, err)
}

func TestValidateFiltersRejectsForeignCategory(t *testing.T) {
	repo := &mockCategoryRepo{byProject: map[string][]models.Category{
		"project-1": {*wildlifeCategory()},
	}}
	svc := newCategoryService(repo)

	err := svc.ValidateFilters(context.Background(), "project-1", models.FilterMap{
		"cat-other": {"name": "x"},
	})
	require.Error(t, err)

	err = svc.ValidateFilters(context.Background(), "project-1", models.FilterMap{
		"cat-1": {"name": "x"},
	})
	require.NoError(t, err)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "seen_at", slugify("Seen At"))
	assert.Equal(t, "speed_kmh", slugify("  Speed-KMH  "))
}
