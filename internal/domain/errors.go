package domain

import "errors"

// ErrInvalidRequest indicates that an analysis request contains invalid data.
var ErrInvalidRequest = errors.New("invalid analysis request")

// ErrInvalidFrame indicates that a frame carries neither or both of the
// inline payload and the media handle.
var ErrInvalidFrame = errors.New("frame must carry exactly one of inline data or media handle")
