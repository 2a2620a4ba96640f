// utils/validate.go
package utils

import (
	"github.com/go-playground/validator/v10"
)

// Validate is the shared validator for request bodies.
var Validate = validator.New(validator.WithRequiredStructEnabled())
