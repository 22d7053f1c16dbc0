package archive

import "errors"

var (
	ErrValidation      = errors.New("archive: invalid request")
	ErrNotFound        = errors.New("archive: not found")
	ErrStorage         = errors.New("archive: storage failure")
	ErrCorruptMetadata = errors.New("archive: corrupt metadata")
)

// ValidationError carries a message meant for the person who submitted the
// request. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}
