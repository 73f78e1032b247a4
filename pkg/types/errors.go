package types

import "errors"

// Domain errors for type validation
var (
	ErrInvalidChunkID        = errors.New("invalid chunk ID")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between -1 and 1")
	ErrMissingFilePath       = errors.New("file path is required")
	ErrEmptyContent          = errors.New("content cannot be empty")
)
