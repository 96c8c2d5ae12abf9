package chat

import "errors"

var (
	// ErrSchemaUnavailable marks turns answered without generation because the
	// catalog could not be read.
	ErrSchemaUnavailable = errors.New("schema unavailable")
	// ErrGeneration marks a failed model call at either stage.
	ErrGeneration = errors.New("generation failed")
	// ErrQuery marks generated SQL that failed to execute. The turn still
	// produces an answer from the error text.
	ErrQuery = errors.New("query failed")

	ErrEmptyQuestion = errors.New("question is required")
	ErrClosed        = errors.New("chat controller is closed")
)
