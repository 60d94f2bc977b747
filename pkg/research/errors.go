package research

import "errors"

var (
	// ErrProviderUnavailable marks a retrieval or completion call that failed or timed out.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrSchemaValidation marks completion output that did not decode into the expected shape.
	ErrSchemaValidation = errors.New("schema validation failed")
	// ErrMalformedInput marks an empty or absent topic.
	ErrMalformedInput = errors.New("malformed input")
)
