package visit

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("appointment was modified concurrently")
	ErrForbidden       = errors.New("access to this doctor's data is not allowed")
	ErrInvalidInput    = errors.New("invalid appointment")
)
