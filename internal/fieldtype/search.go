package fieldtype

import (
	"strings"

	"github.com/geokey/geokey-api/internal/models"
)

// SearchContribution returns the text a property value adds to the
// observation search index. Lookup values contribute their names, not their
// ids, so searches work on what users see. The bool reports whether the
// value produced a contribution at all.
func SearchContribution(f *models.Field, value interface{}) (string, bool) {
	if value == nil {
		return "", false
	}

	switch f.Type {
	case models.FieldSingleLookup:
		id, err := coerceID(value)
		if err != nil {
			return "", false
		}
		name, ok := f.LookupValueName(id)
		return name, ok

	case models.FieldMultipleLookup:
		ids, err := coerceIDList(value)
		if err != nil {
			return "", false
		}
		names := make([]string, 0, len(ids))
		for _, id := range ids {
			if name, ok := f.LookupValueName(id); ok {
				names = append(names, name)
			}
		}
		if len(names) == 0 {
			return "", false
		}
		return strings.Join(names, ", "), true

	default:
		s := Stringify(value)
		return s, len(s) > 0
	}
}
