// Package validation checks incoming sync records using the validator/v10 library.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tickitapp/tickit-sync/internal/domain"
	domainerrors "github.com/tickitapp/tickit-sync/internal/errors"
)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator that knows the sync record enums.
func New() *Validator {
	// Required on time.Time must reject the zero value.
	v := validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		p, ok := fl.Field().Interface().(domain.Priority)
		return ok && p.Valid()
	})
	_ = v.RegisterValidation("record_type", func(fl validator.FieldLevel) bool {
		r, ok := fl.Field().Interface().(domain.RecordType)
		return ok && r.Valid()
	})

	return &Validator{v: v}
}

// Validate validates a struct and returns a MalformedRecord domain error.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err, "")
	}
	return nil
}

// ValidateChanges validates every record of a batch. All problems are
// reported together, keyed as changes[i].field.
func (v *Validator) ValidateChanges(changes domain.Changes) error {
	fieldErrors := make(map[string]string)

	for i, c := range changes {
		prefix := fmt.Sprintf("changes[%d]", i)
		if c == nil {
			fieldErrors[prefix] = "is required"
			continue
		}

		err := v.v.Struct(c)
		if err == nil {
			continue
		}
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return domainerrors.MalformedRecordf("%s: %v", prefix, err)
		}
		for _, e := range validationErrs {
			fieldErrors[prefix+"."+fieldPath(e)] = v.friendlyMessage(e)
		}
	}

	if len(fieldErrors) > 0 {
		return domainerrors.MalformedRecordWithDetails("malformed record in batch", fieldErrors)
	}
	return nil
}

// formatError converts validator errors to domain errors.
func (v *Validator) formatError(err error, prefix string) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return domainerrors.MalformedRecord(err.Error())
	}

	fieldErrors := make(map[string]string)
	for _, e := range validationErrs {
		fieldErrors[prefix+fieldPath(e)] = v.friendlyMessage(e)
	}

	return domainerrors.MalformedRecordWithDetails("validation failed", fieldErrors)
}

// fieldPath drops the leading struct name from the namespace, leaving
// "tag_ids[1]" rather than "Task.tag_ids[1]".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return e.Field()
}

func (v *Validator) friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "priority":
		return "must be one of: low medium high urgent"
	case "record_type":
		return "must be one of: task list tag task_tag"
	case "oneof":
		return "must be one of: " + e.Param()
	case "uuid":
		return "must be a valid UUID"
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	default:
		return "is invalid"
	}
}
