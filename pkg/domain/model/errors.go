package model

import "github.com/m-mizutani/goerr/v2"

// Job state machine sentinel errors. Repository implementations return these
// so callers can distinguish contract violations from infrastructure failures.
var (
	// ErrJobAlreadyClaimed is returned when claiming a job that another
	// worker already holds (first-claim-wins).
	ErrJobAlreadyClaimed = goerr.New("job already claimed")

	// ErrJobInvalidTransition is returned when a terminal write targets a job
	// that is not currently processing (duplicate terminal writes included).
	ErrJobInvalidTransition = goerr.New("invalid job status transition")

	// ErrInvalidJobPayload is returned when a job payload is malformed for
	// its kind. This is a permanent failure: the job must not be retried.
	ErrInvalidJobPayload = goerr.New("invalid job payload")
)

// TagTransient marks dependency failures that are expected to succeed on
// retry (network hiccups, temporarily unavailable collaborators). The
// dispatcher retries pipeline errors carrying this tag a bounded number of
// times before failing the job; untagged errors fail immediately.
var TagTransient = goerr.NewTag("transient")
