package validators

import (
	"reflect"
	"strings"
	"time"

	"medibook/cmd/internal/domain/entity"

	"github.com/go-playground/validator/v10"
)

// New returns a validator with the custom tags registered and JSON field
// names used in error messages.
func New() *validator.Validate {
	validate := validator.New()
	Register(validate)
	return validate
}

func Register(validate *validator.Validate) {
	validate.RegisterTagNameFunc(jsonName)
	_ = validate.RegisterValidation("iso8601", IsIso8601)
	_ = validate.RegisterValidation("treatment", IsTreatment)
	_ = validate.RegisterValidation("role", IsRole)
	_ = validate.RegisterValidation("notblank", NotBlank)
}

func jsonName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

// IsIso8601 accepts RFC 3339 timestamps, with or without fractional seconds.
func IsIso8601(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.RFC3339Nano, fl.Field().String())
	return err == nil
}

// IsTreatment checks membership in the clinic's treatment list. The built-in
// oneof tag splits on spaces, which the treatment names contain.
func IsTreatment(fl validator.FieldLevel) bool {
	return entity.Treatment(fl.Field().String()).IsValid()
}

func IsRole(fl validator.FieldLevel) bool {
	return entity.Role(fl.Field().String()).IsValid()
}

func NotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
