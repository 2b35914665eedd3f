package portal

import "errors"

var (
	ErrNotFound      = errors.New("portal: not found")
	ErrInvalidInput  = errors.New("portal: invalid input")
	ErrUnauthorized  = errors.New("portal: unauthorized")
	ErrForbidden     = errors.New("portal: forbidden")
	ErrLimitExceeded = errors.New("portal: download limit exceeded")
)
