package service

import (
	"errors"
	"fmt"

	"github.com/jask/ledgerkeep/internal/database/repository"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrRecurringNotFound  = errors.New("recurring series not found")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrNothingToRestore   = errors.New("no snapshot to restore")
)

// ImportBatchError reports a failed commit batch. Batches before Batch stay committed.
type ImportBatchError struct {
	Batch     int
	Committed int
	Err       error
}

func (e *ImportBatchError) Error() string {
	return fmt.Sprintf("import batch %d failed after %d rows committed: %v", e.Batch, e.Committed, e.Err)
}

func (e *ImportBatchError) Unwrap() error { return e.Err }

// RestoreError reports a failed restore. The database is left as it was before the call.
type RestoreError struct {
	Stage string
	Err   error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore failed during %s: %v", e.Stage, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
