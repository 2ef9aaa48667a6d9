package service

import (
	"errors"
	"strings"

	"github.com/geokey/geokey-api/internal/fieldtype"
	"github.com/geokey/geokey-api/internal/models"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
)

// ValidateProperties checks a property bag against the category schema.
// Every invalid field is collected so the client sees all problems at once.
// Keys that resolve to no field are ignored: observations written before a
// field was removed keep the old key in their bag, and the schema must be
// able to evolve without invalidating that history.
func ValidateProperties(category *models.Category, properties models.PropertyBag) error {
	var failures []*fieldtype.InputError

	for i := range category.Fields {
		field := &category.Fields[i]
		if field.Status != models.StatusActive {
			continue
		}
		if err := fieldtype.ValidateInput(field, properties[field.Key]); err != nil {
			var inputErr *fieldtype.InputError
			if errors.As(err, &inputErr) {
				failures = append(failures, inputErr)
				continue
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "field validation failed")
		}
	}

	if len(failures) == 0 {
		return nil
	}

	messages := make([]string, len(failures))
	allMissing := true
	for i, f := range failures {
		messages[i] = f.Error()
		if f.Kind != fieldtype.KindRequiredMissing {
			allMissing = false
		}
	}
	base := appErrors.ErrInvalidInput
	if allMissing {
		base = appErrors.ErrRequiredMissing
	}
	return appErrors.Clone(base, strings.Join(messages, "; "))
}
