// Package fieldtype implements the closed set of field variants a category is
// built from. Each variant knows how to validate a submitted value, how to
// compile a filter rule into a store predicate, and what it contributes to
// the observation search index.
package fieldtype

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/geokey/geokey-api/internal/models"
)

// Validation error kinds.
const (
	KindRequiredMissing    = "required_missing"
	KindNotANumber         = "not_a_number"
	KindInvalidDate        = "invalid_date"
	KindInvalidDateTime    = "invalid_datetime"
	KindInvalidTime        = "invalid_time"
	KindNotAnAcceptedValue = "not_an_accepted_value"
	KindOutOfRange         = "out_of_range"
	KindTooLong            = "too_long"
)

// InputError reports a single invalid field value.
type InputError struct {
	FieldName string
	Kind      string
	Detail    string
}

func (e *InputError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("field %q: %s (%s)", e.FieldName, e.Kind, e.Detail)
	}
	return fmt.Sprintf("field %q: %s", e.FieldName, e.Kind)
}

var timePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// accepted ISO-8601 layouts, most specific first
var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ValidateRequired fails when the field is active and required and the value
// is missing. Emptiness is variant-specific: zero-length strings count as
// missing for text and temporal fields, nil counts for everything.
func ValidateRequired(f *models.Field, value interface{}) error {
	if f.Status != models.StatusActive || !f.Required {
		return nil
	}
	if isEmpty(value) {
		return &InputError{FieldName: f.Name, Kind: KindRequiredMissing}
	}
	return nil
}

// ValidateInput runs the required check and then the variant validation of
// the non-null value.
func ValidateInput(f *models.Field, value interface{}) error {
	if err := ValidateRequired(f, value); err != nil {
		return err
	}
	if isEmpty(value) {
		return nil
	}

	switch f.Type {
	case models.FieldText:
		return validateText(f, value)
	case models.FieldNumeric:
		return validateNumeric(f, value)
	case models.FieldDate:
		if _, err := parseDate(value); err != nil {
			return &InputError{FieldName: f.Name, Kind: KindInvalidDate}
		}
		return nil
	case models.FieldDateTime:
		if _, err := parseDateTime(value); err != nil {
			return &InputError{FieldName: f.Name, Kind: KindInvalidDateTime}
		}
		return nil
	case models.FieldTime:
		s, ok := value.(string)
		if !ok || !timePattern.MatchString(s) {
			return &InputError{FieldName: f.Name, Kind: KindInvalidTime}
		}
		return nil
	case models.FieldSingleLookup:
		return validateSingleLookup(f, value)
	case models.FieldMultipleLookup:
		return validateMultipleLookup(f, value)
	default:
		return fmt.Errorf("unknown field type %q", f.Type)
	}
}

func validateText(f *models.Field, value interface{}) error {
	s := Stringify(value)
	if f.MaxLength != nil && len(s) > *f.MaxLength {
		return &InputError{
			FieldName: f.Name,
			Kind:      KindTooLong,
			Detail:    fmt.Sprintf("maximum length is %d", *f.MaxLength),
		}
	}
	return nil
}

func validateNumeric(f *models.Field, value interface{}) error {
	v, err := coerceNumber(value)
	if err != nil {
		return &InputError{FieldName: f.Name, Kind: KindNotANumber}
	}
	if f.MinVal != nil && v < *f.MinVal {
		return &InputError{
			FieldName: f.Name,
			Kind:      KindOutOfRange,
			Detail:    fmt.Sprintf("must be at least %v", *f.MinVal),
		}
	}
	if f.MaxVal != nil && v > *f.MaxVal {
		return &InputError{
			FieldName: f.Name,
			Kind:      KindOutOfRange,
			Detail:    fmt.Sprintf("must be at most %v", *f.MaxVal),
		}
	}
	return nil
}

func validateSingleLookup(f *models.Field, value interface{}) error {
	id, err := coerceID(value)
	if err != nil || !f.HasLookupValue(id) {
		return &InputError{FieldName: f.Name, Kind: KindNotAnAcceptedValue}
	}
	return nil
}

func validateMultipleLookup(f *models.Field, value interface{}) error {
	ids, err := coerceIDList(value)
	if err != nil {
		return &InputError{FieldName: f.Name, Kind: KindNotAnAcceptedValue}
	}
	for _, id := range ids {
		if !f.HasLookupValue(id) {
			return &InputError{FieldName: f.Name, Kind: KindNotAnAcceptedValue}
		}
	}
	return nil
}

// ParseTimestamp interprets a Date or DateTime property value as a timestamp,
// used to maintain the derived expiry column.
func ParseTimestamp(f *models.Field, value interface{}) (time.Time, error) {
	switch f.Type {
	case models.FieldDate:
		return parseDate(value)
	case models.FieldDateTime:
		return parseDateTime(value)
	default:
		return time.Time{}, fmt.Errorf("field type %q has no timestamp", f.Type)
	}
}

func parseDate(value interface{}) (time.Time, error) {
	s, ok := value.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("not a date string")
	}
	return time.Parse("2006-01-02", strings.TrimSpace(s))
}

func parseDateTime(value interface{}) (time.Time, error) {
	s, ok := value.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("not a datetime string")
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable datetime %q", s)
}

func isEmpty(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return len(s) == 0
	}
	return false
}

// Stringify renders a scalar property value the way it appears in derived
// strings. Whole floats lose their decimal point, matching integer input.
func Stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// coerceNumber converts a submitted value to float64. Strings convert per
// their shape: with a decimal point as float, without as integer.
func coerceNumber(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		if strings.Contains(v, ".") {
			return strconv.ParseFloat(v, 64)
		}
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return float64(i), nil
	default:
		return 0, fmt.Errorf("not a number: %T", value)
	}
}

func coerceID(value interface{}) (int64, error) {
	switch v := value.(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("not an integer id")
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	default:
		return 0, fmt.Errorf("not an id: %T", value)
	}
}

// coerceIDList accepts an id array or its JSON-encoded string form.
func coerceIDList(value interface{}) ([]int64, error) {
	if s, ok := value.(string); ok {
		var decoded []interface{}
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, err
		}
		value = decoded
	}

	switch v := value.(type) {
	case []interface{}:
		ids := make([]int64, 0, len(v))
		for _, item := range v {
			id, err := coerceID(item)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	case []int64:
		return v, nil
	default:
		return nil, fmt.Errorf("not an id list: %T", value)
	}
}
