package validation

import "errors"

var (
	ErrNoFiles         = errors.New("no files submitted")
	ErrTooManyFiles    = errors.New("too many files in submission")
	ErrFileTooLarge    = errors.New("file size exceeds limit")
	ErrInvalidFileType = errors.New("unsupported file type")
)

func IsValidationError(err error) bool {
	return errors.Is(err, ErrNoFiles) ||
		errors.Is(err, ErrTooManyFiles) ||
		errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrInvalidFileType)
}
