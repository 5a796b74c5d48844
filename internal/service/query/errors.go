package query

import (
	"errors"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidStatus       = errors.New("invalid reservation status")
)
