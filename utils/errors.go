package utils

import (
	"github.com/pkg/errors"
)

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError(expected interface{}, actual interface{}) error {
	return errors.Errorf("expected %T but got %T", expected, actual)
}

// NewModelNotFoundError is used when no constructor is registered for a model.
func NewModelNotFoundError(kind, model string) error {
	return errors.Errorf("unknown %s model %q", kind, model)
}

// NewConfigValidationError returns an error specifying there's an issue with the config at path.
func NewConfigValidationError(path string, err error) error {
	return errors.Wrapf(err, "error validating %q", path)
}

// NewConfigValidationFieldRequiredError returns an error specifying field is required in the
// config at path.
func NewConfigValidationFieldRequiredError(path, field string) error {
	return NewConfigValidationError(path, errors.Errorf("%q is required", field))
}
