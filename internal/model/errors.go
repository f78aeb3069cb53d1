package model

import (
	"errors"
	"fmt"
)

// InvalidInputError is the only error that crosses the engine boundary.
// It is reported to the caller and never retried.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// IsInvalidInput reports whether err is (or wraps) an InvalidInputError
func IsInvalidInput(err error) bool {
	var target *InvalidInputError
	return errors.As(err, &target)
}

// Internal signals. Both are recovered inside the pipeline.
var (
	// ErrGenerativeUnavailable covers a missing, failing, slow or misbehaving generative backend
	ErrGenerativeUnavailable = errors.New("generative corrector unavailable")

	// ErrRankingDegraded means the knowledge store had nothing to rank
	ErrRankingDegraded = errors.New("ranking degraded: knowledge store empty")
)
