package admin

import (
	"errors"
)

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrInvalidStatus  = errors.New("invalid reservation status")
)
