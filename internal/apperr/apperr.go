package apperr

import "errors"

// Sentinel errors shared by the domain packages. Wrap them with
// fmt.Errorf("...: %w", apperr.ErrNotFound) so httpx can pick a status.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvalid      = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
)
