package utils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs `validate` tags on an input struct. Model-layer inputs
// share gin's validator semantics without needing an HTTP request.
func ValidateStruct(input any) error {
	return validate.Struct(input)
}
