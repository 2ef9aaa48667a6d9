package fieldtype

import (
	"fmt"

	"github.com/geokey/geokey-api/internal/models"
	"github.com/geokey/geokey-api/internal/query"
)

// CompileFilter translates a per-field rule from a filter map into a store
// predicate on properties[key]. The rule shape is variant-specific:
// a bare string for text, {min_val, max_val} for numeric and temporal
// variants, and an id list for lookups.
func CompileFilter(f *models.Field, rule interface{}) (query.Node, error) {
	switch f.Type {
	case models.FieldText:
		term, ok := rule.(string)
		if !ok {
			return nil, fmt.Errorf("field %q: text rule must be a string", f.Key)
		}
		return query.TextContains{Key: f.Key, Term: term}, nil

	case models.FieldNumeric:
		min, max, err := numberBounds(rule)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		return query.NumberRange{Key: f.Key, Min: min, Max: max}, nil

	case models.FieldDate:
		min, max, err := stringBounds(rule)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		return query.DateRange{Key: f.Key, Min: min, Max: max}, nil

	case models.FieldDateTime:
		min, max, err := stringBounds(rule)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		return query.DateRange{Key: f.Key, WithTime: true, Min: min, Max: max}, nil

	case models.FieldTime:
		min, max, err := stringBounds(rule)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		return query.TimeRange{Key: f.Key, Min: min, Max: max}, nil

	case models.FieldSingleLookup:
		ids, err := coerceIDList(rule)
		if err != nil {
			return nil, fmt.Errorf("field %q: lookup rule must be an id list", f.Key)
		}
		return query.SingleLookupIn{Key: f.Key, IDs: ids}, nil

	case models.FieldMultipleLookup:
		ids, err := coerceIDList(rule)
		if err != nil {
			return nil, fmt.Errorf("field %q: lookup rule must be an id list", f.Key)
		}
		return query.MultipleLookupOverlaps{Key: f.Key, IDs: ids}, nil

	default:
		return nil, fmt.Errorf("field %q: unknown field type %q", f.Key, f.Type)
	}
}

func numberBounds(rule interface{}) (*float64, *float64, error) {
	bounds, ok := rule.(map[string]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("range rule must be an object")
	}
	var min, max *float64
	if raw, exists := bounds["min_val"]; exists && raw != nil {
		v, err := coerceNumber(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("min_val is not a number")
		}
		min = &v
	}
	if raw, exists := bounds["max_val"]; exists && raw != nil {
		v, err := coerceNumber(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("max_val is not a number")
		}
		max = &v
	}
	return min, max, nil
}

func stringBounds(rule interface{}) (*string, *string, error) {
	bounds, ok := rule.(map[string]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("range rule must be an object")
	}
	var min, max *string
	if raw, exists := bounds["min_val"]; exists && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, nil, fmt.Errorf("min_val is not a string")
		}
		min = &s
	}
	if raw, exists := bounds["max_val"]; exists && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, nil, fmt.Errorf("max_val is not a string")
		}
		max = &s
	}
	return min, max, nil
}
