package types

import "errors"

// Domain errors for type validation
var (
	// Search result errors
	ErrInvalidRank  = errors.New("rank must be >= 1")
	ErrInvalidScore = errors.New("score out of range")
	ErrMissingPath  = errors.New("path is required")
	ErrEmptyContent = errors.New("content cannot be empty")
)
