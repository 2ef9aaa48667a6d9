package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geokey/geokey-api/internal/models"
)

func TestComputeDerivedDisplayString(t *testing.T) {
	category := wildlifeCategory()
	obs := &models.Observation{Properties: models.PropertyBag{"name": "Gecko"}}

	ComputeDerived(category, obs)
	require.NotNil(t, obs.DisplayFieldString)
	assert.Equal(t, "name:Gecko", *obs.DisplayFieldString)

	obs.Properties = models.PropertyBag{"count": 3.0}
	ComputeDerived(category, obs)
	require.NotNil(t, obs.DisplayFieldString)
	assert.Equal(t, "name:None", *obs.DisplayFieldString)
}

func TestComputeDerivedLookupDisplayRendersRawID(t *testing.T) {
	category := wildlifeCategory()
	display := "field-species"
	category.DisplayFieldID = &display
	obs := &models.Observation{Properties: models.PropertyBag{"species": 2.0}}

	ComputeDerived(category, obs)
	require.NotNil(t, obs.DisplayFieldString)
	assert.Equal(t, "species:2", *obs.DisplayFieldString)

	obs.Properties["species"] = 42.0
	ComputeDerived(category, obs)
	require.NotNil(t, obs.DisplayFieldString)
	assert.Equal(t, "species:42", *obs.DisplayFieldString)
}

func TestComputeDerivedWithoutDisplayField(t *testing.T) {
	category := wildlifeCategory()
	category.DisplayFieldID = nil
	obs := &models.Observation{Properties: models.PropertyBag{"name": "Gecko"}}

	ComputeDerived(category, obs)
	assert.Nil(t, obs.DisplayFieldString)
}

func TestComputeDerivedSearchIndexFollowsFieldOrder(t *testing.T) {
	category := wildlifeCategory()
	obs := &models.Observation{Properties: models.PropertyBag{
		"species": 2.0,
		"name":    "Pond dweller",
		"count":   12.0,
	}}

	ComputeDerived(category, obs)
	assert.Equal(t, "Pond dweller, 12, Newt", obs.SearchIndex)
}

func TestComputeDerivedExpiryTimestamp(t *testing.T) {
	category := wildlifeCategory()
	expiry := "field-seen"
	category.ExpiryFieldID = &expiry

	obs := &models.Observation{Properties: models.PropertyBag{
		"name":    "Gecko",
		"seen_at": "2014-09-21",
	}}
	ComputeDerived(category, obs)
	require.NotNil(t, obs.ExpiryField)
	assert.Equal(t, time.Date(2014, 9, 21, 0, 0, 0, 0, time.UTC), obs.ExpiryField.UTC())

	obs.Properties["seen_at"] = "not a date"
	ComputeDerived(category, obs)
	assert.Nil(t, obs.ExpiryField)
}

func TestTokenizeSearch(t *testing.T) {
	assert.Equal(t, []string{"gecko", "wall"}, TokenizeSearch("gecko, wall"))
	assert.Equal(t, []string{"a", "b", "c"}, TokenizeSearch("a\tb\nc"))
	assert.Empty(t, TokenizeSearch("  ,, -- ,  "))
	assert.Empty(t, TokenizeSearch(""))
}
