package syncer

import "errors"

var (
	// ErrIntegrationInactive is returned when RunSync is called for an
	// integration whose active flag is off.
	ErrIntegrationInactive = errors.New("integration is not active")

	// ErrSyncAlreadyRunning is returned when another sync holds the
	// integration's in_progress slot.
	ErrSyncAlreadyRunning = errors.New("sync already in progress for integration")

	// ErrSyncCancelled is returned when the run's context was cancelled or
	// its wall-clock budget expired. The integration's status is still moved
	// to error before this is returned; it never stays in_progress.
	ErrSyncCancelled = errors.New("sync cancelled")
)
