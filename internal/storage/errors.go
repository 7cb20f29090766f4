package storage

import "errors"

// ErrNoSnapshot is returned when no tick snapshot has been recorded yet.
var ErrNoSnapshot = errors.New("no snapshot recorded")
