package service

import (
	"strings"
	"time"

	"github.com/geokey/geokey-api/internal/fieldtype"
	"github.com/geokey/geokey-api/internal/models"
)

// ComputeDerived refreshes the denormalized observation columns from the
// current property bag and category schema: the display string, the expiry
// timestamp and the search index. Called on every accepted write and by the
// reindex job after schema changes.
func ComputeDerived(category *models.Category, obs *models.Observation) {
	obs.DisplayFieldString = displayFieldString(category, obs.Properties)
	obs.ExpiryField = expiryTimestamp(category, obs.Properties)
	obs.SearchIndex = searchIndex(category, obs.Properties)
}

// displayFieldString renders "key:value" for the configured display field.
// The value is the raw stored scalar, so a lookup display field renders the
// value id, not the name. An absent value renders the literal "None" so list
// views stay aligned.
func displayFieldString(category *models.Category, properties models.PropertyBag) *string {
	field := category.DisplayField()
	if field == nil {
		return nil
	}
	rendered := "None"
	if value, ok := properties[field.Key]; ok && value != nil {
		if text := fieldtype.Stringify(value); text != "" {
			rendered = text
		}
	}
	s := field.Key + ":" + rendered
	return &s
}

// expiryTimestamp parses the expiry field's value into a timestamp, or nil
// when unset or unparseable.
func expiryTimestamp(category *models.Category, properties models.PropertyBag) *time.Time {
	field := category.ExpiryField()
	if field == nil {
		return nil
	}
	value, ok := properties[field.Key]
	if !ok || value == nil {
		return nil
	}
	ts, err := fieldtype.ParseTimestamp(field, value)
	if err != nil {
		return nil
	}
	return &ts
}

// searchIndex joins each field's search contribution in field order. Lookup
// values contribute their display names.
func searchIndex(category *models.Category, properties models.PropertyBag) string {
	var parts []string
	for i := range category.Fields {
		field := &category.Fields[i]
		value, ok := properties[field.Key]
		if !ok || value == nil {
			continue
		}
		if text, ok := fieldtype.SearchContribution(field, value); ok {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, ", ")
}

// TokenizeSearch splits a free-text search query into index tokens. Splitting
// happens on whitespace and commas; tokens without a letter or digit are
// dropped so punctuation never matches everything.
func TokenizeSearch(q string) []string {
	raw := strings.FieldsFunc(q, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ','
	})
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if !strings.ContainsFunc(t, isAlphanumeric) {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
