package store

import "errors"

// ErrNotFound is returned when a view-state key or cache entry does not exist
// (or, for cache entries, has already expired).
var ErrNotFound = errors.New("not found")
