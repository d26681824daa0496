package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig         = errors.New("invalid config")
	ErrValidation            = errors.New("validation error")
	ErrEmbeddingUnavailable  = errors.New("embedding unavailable")
	ErrGenerationUnavailable = errors.New("generation unavailable")
	ErrDocumentNotFound      = errors.New("document not found")
	ErrAlreadyIngested       = errors.New("source already ingested")
	ErrTemporary             = errors.New("temporary failure")

	ErrIndex              = errors.New("index error")
	ErrDuplicateSegment   = fmt.Errorf("%w: duplicate segment", ErrIndex)
	ErrDimensionMismatch  = fmt.Errorf("%w: dimension mismatch", ErrIndex)
	ErrPersistenceFailure = fmt.Errorf("%w: persistence failure", ErrIndex)
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
