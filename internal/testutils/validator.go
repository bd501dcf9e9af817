package testutils

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewTestValidator returns a validator that reports fields by their JSON
// names, so tests can assert on the names stored with a contest.
func NewTestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
