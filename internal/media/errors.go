package media

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPath is the parent of every directory validation failure.
	ErrInvalidPath          = errors.New("invalid directory")
	ErrInvalidRootDirectory = fmt.Errorf("%w: invalid root directory", ErrInvalidPath)
	ErrExceedsMaxNesting    = fmt.Errorf("%w: too deep, exceeds allowed_folder_nest", ErrInvalidPath)

	ErrUnauthorized         = errors.New("unauthorized")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrFileTooLarge         = errors.New("file too large")
	ErrEmptyFile            = errors.New("empty file")
	ErrInvalidFilename      = errors.New("invalid filename")
	ErrInvalidFolderName    = errors.New("invalid folder name")
	ErrNoFreeName           = errors.New("no free file name")
)

// UnauthorizedError is returned when a principal is missing or lacks every
// role required for the target root.
type UnauthorizedError struct {
	Directory     string
	Root          string
	RequiredRoles []string
}

func (e *UnauthorizedError) Error() string {
	if len(e.RequiredRoles) == 0 {
		return "authentication required"
	}
	return fmt.Sprintf("permission denied for %q: requires one of %s", e.Directory, strings.Join(e.RequiredRoles, ", "))
}

// Anonymous reports whether the request carried no principal at all.
func (e *UnauthorizedError) Anonymous() bool {
	return len(e.RequiredRoles) == 0
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }
