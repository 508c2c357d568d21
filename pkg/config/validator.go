package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"sitewatch/pkg/models"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func documentValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their document names.
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
			value := strings.ToLower(fl.Field().String())
			return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
		})
	})
	return validate
}

// Validate checks the document: unique non-empty ids, absolute http(s) urls, thresholds
// in [0,1], positive viewports and bounded delays.
func Validate(doc *models.SitesDocument) error {
	if doc == nil {
		return &ValidationError{Problems: []string{"document is empty"}}
	}

	err := documentValidator().Struct(doc)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return fmt.Errorf("sites document validation error: %w", err)
	}

	problems := make([]string, 0, len(errs))
	for _, fieldErr := range errs {
		field := strings.TrimPrefix(fieldErr.Namespace(), "SitesDocument.")
		msg := fmt.Sprintf("'%s' failed rule '%s'", field, fieldErr.Tag())
		if fieldErr.Param() != "" {
			msg += fmt.Sprintf(" (expected: %s)", fieldErr.Param())
		}
		if fieldErr.Value() != nil && fieldErr.Value() != "" {
			msg += fmt.Sprintf(", actual: '%v'", fieldErr.Value())
		}
		problems = append(problems, msg)
	}

	return &ValidationError{Problems: problems}
}
