package services

import (
	"errors"
	"fmt"
)

var (
	ErrBatchNotFound       = errors.New("upload batch not found")
	ErrEmptyUpload         = errors.New("upload contains no product rows")
	ErrTooManyRows         = errors.New("upload exceeds the maximum number of rows")
	ErrStagingLimitReached = errors.New("too many uploads are waiting for review")
	ErrSKUExhausted        = errors.New("could not find an unused SKU")

	// ErrStateViolation is wrapped by every batch precondition failure
	ErrStateViolation        = errors.New("batch state violation")
	ErrBatchAlreadyCompleted = fmt.Errorf("%w: batch has already been committed", ErrStateViolation)
	ErrBatchCancelled        = fmt.Errorf("%w: batch has been cancelled", ErrStateViolation)
	ErrCommitInProgress      = fmt.Errorf("%w: batch is being committed", ErrStateViolation)
	ErrValidationIncomplete  = fmt.Errorf("%w: batch has rows awaiting validation", ErrStateViolation)
)
