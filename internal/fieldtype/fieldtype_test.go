package fieldtype

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geokey/geokey-api/internal/models"
)

func textField(required bool) *models.Field {
	return &models.Field{
		Name: "Text", Key: "text", Type: models.FieldText,
		Required: required, Status: models.StatusActive,
	}
}

func numericField(min, max *float64) *models.Field {
	return &models.Field{
		Name: "Number", Key: "number", Type: models.FieldNumeric,
		Status: models.StatusActive, MinVal: min, MaxVal: max,
	}
}

func lookupField(t models.FieldType) *models.Field {
	return &models.Field{
		Name: "Choice", Key: "choice", Type: t, Status: models.StatusActive,
		LookupValues: []models.LookupValue{
			{ID: 1, Name: "Gecko", Status: models.StatusActive},
			{ID: 2, Name: "Newt", Status: models.StatusActive},
			{ID: 5, Name: "Frog", Status: models.StatusInactive},
		},
	}
}

func kindOf(t *testing.T, err error) string {
	t.Helper()
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	return inputErr.Kind
}

func TestValidateRequired(t *testing.T) {
	f := textField(true)
	assert.Equal(t, KindRequiredMissing, kindOf(t, ValidateInput(f, nil)))
	assert.Equal(t, KindRequiredMissing, kindOf(t, ValidateInput(f, "")))
	assert.NoError(t, ValidateInput(f, "something"))

	// inactive fields never fail the required check
	f.Status = models.StatusInactive
	assert.NoError(t, ValidateInput(f, nil))

	// optional fields accept absence
	assert.NoError(t, ValidateInput(textField(false), nil))
}

func TestValidateTextMaxLength(t *testing.T) {
	f := textField(false)
	maxLen := 5
	f.MaxLength = &maxLen

	assert.NoError(t, ValidateInput(f, "12345"))
	assert.Equal(t, KindTooLong, kindOf(t, ValidateInput(f, "123456")))
}

func TestValidateNumeric(t *testing.T) {
	f := numericField(nil, nil)

	assert.NoError(t, ValidateInput(f, 12.0))
	assert.NoError(t, ValidateInput(f, "12"))
	assert.NoError(t, ValidateInput(f, "1.5"))
	assert.Equal(t, KindNotANumber, kindOf(t, ValidateInput(f, "twelve")))
	assert.Equal(t, KindNotANumber, kindOf(t, ValidateInput(f, true)))

	// empty string behaves like null
	assert.NoError(t, ValidateInput(f, ""))
}

func TestValidateNumericBounds(t *testing.T) {
	min, max := 10.0, 20.0
	f := numericField(&min, &max)

	assert.NoError(t, ValidateInput(f, 10.0))
	assert.NoError(t, ValidateInput(f, 20.0))
	assert.Equal(t, KindOutOfRange, kindOf(t, ValidateInput(f, 9.999999)))
	assert.Equal(t, KindOutOfRange, kindOf(t, ValidateInput(f, 20.000001)))

	onlyMin := numericField(&min, nil)
	assert.NoError(t, ValidateInput(onlyMin, 1000.0))
	assert.Equal(t, KindOutOfRange, kindOf(t, ValidateInput(onlyMin, 9.0)))
}

func TestValidateDate(t *testing.T) {
	f := &models.Field{Name: "Day", Key: "day", Type: models.FieldDate, Status: models.StatusActive}

	assert.NoError(t, ValidateInput(f, "2014-09-21"))
	assert.Equal(t, KindInvalidDate, kindOf(t, ValidateInput(f, "21/09/2014")))
	assert.Equal(t, KindInvalidDate, kindOf(t, ValidateInput(f, "not a date")))
}

func TestValidateDateTime(t *testing.T) {
	f := &models.Field{Name: "When", Key: "when", Type: models.FieldDateTime, Status: models.StatusActive}

	assert.NoError(t, ValidateInput(f, "2014-09-21T15:23:00Z"))
	assert.NoError(t, ValidateInput(f, "2014-09-21 15:23"))
	assert.NoError(t, ValidateInput(f, "2014-09-21"))
	assert.Equal(t, KindInvalidDateTime, kindOf(t, ValidateInput(f, "yesterday")))
}

func TestValidateTime(t *testing.T) {
	f := &models.Field{Name: "At", Key: "at", Type: models.FieldTime, Status: models.StatusActive}

	assert.NoError(t, ValidateInput(f, "09:30"))
	assert.NoError(t, ValidateInput(f, "23:59"))
	assert.Equal(t, KindInvalidTime, kindOf(t, ValidateInput(f, "24:00")))
	assert.Equal(t, KindInvalidTime, kindOf(t, ValidateInput(f, "9:30")))
	assert.Equal(t, KindInvalidTime, kindOf(t, ValidateInput(f, "09:30:00")))
}

func TestValidateSingleLookup(t *testing.T) {
	f := lookupField(models.FieldSingleLookup)

	assert.NoError(t, ValidateInput(f, 1.0))
	assert.NoError(t, ValidateInput(f, "2"))
	// inactive values stay valid so history keeps resolving
	assert.NoError(t, ValidateInput(f, 5.0))
	assert.Equal(t, KindNotAnAcceptedValue, kindOf(t, ValidateInput(f, 77.0)))
	assert.Equal(t, KindNotAnAcceptedValue, kindOf(t, ValidateInput(f, "gecko")))
}

func TestValidateMultipleLookup(t *testing.T) {
	f := lookupField(models.FieldMultipleLookup)

	assert.NoError(t, ValidateInput(f, []interface{}{1.0, 2.0}))
	assert.NoError(t, ValidateInput(f, "[1,2]"))
	assert.Equal(t, KindNotAnAcceptedValue, kindOf(t, ValidateInput(f, []interface{}{1.0, 77.0})))
	assert.Equal(t, KindNotAnAcceptedValue, kindOf(t, ValidateInput(f, "not json")))
}

func TestParseTimestamp(t *testing.T) {
	day := &models.Field{Key: "day", Type: models.FieldDate}
	ts, err := ParseTimestamp(day, "2014-09-21")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2014, 9, 21, 0, 0, 0, 0, time.UTC), ts)

	when := &models.Field{Key: "when", Type: models.FieldDateTime}
	ts, err = ParseTimestamp(when, "2014-09-21 15:23")
	require.NoError(t, err)
	assert.Equal(t, 15, ts.Hour())

	_, err = ParseTimestamp(&models.Field{Key: "t", Type: models.FieldText}, "x")
	assert.Error(t, err)
}

func TestSearchContribution(t *testing.T) {
	single := lookupField(models.FieldSingleLookup)
	text, ok := SearchContribution(single, 1.0)
	require.True(t, ok)
	assert.Equal(t, "Gecko", text)

	_, ok = SearchContribution(single, 77.0)
	assert.False(t, ok)

	multi := lookupField(models.FieldMultipleLookup)
	text, ok = SearchContribution(multi, []interface{}{1.0, 2.0})
	require.True(t, ok)
	assert.Equal(t, "Gecko, Newt", text)

	text, ok = SearchContribution(textField(false), "hello")
	require.True(t, ok)
	assert.Equal(t, "hello", text)

	text, ok = SearchContribution(numericField(nil, nil), 12.0)
	require.True(t, ok)
	assert.Equal(t, "12", text)

	_, ok = SearchContribution(textField(false), nil)
	assert.False(t, ok)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "12", Stringify(12.0))
	assert.Equal(t, "12.5", Stringify(12.5))
	assert.Equal(t, "abc", Stringify("abc"))
	assert.Equal(t, "", Stringify(nil))
}
