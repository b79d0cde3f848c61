package domain

import "errors"

var (
	// ErrPlaybookNotFound indicates no playbook exists for the id.
	ErrPlaybookNotFound = errors.New("playbook not found")

	// ErrUserPlaybookNotFound indicates the user has no membership row
	// for the playbook.
	ErrUserPlaybookNotFound = errors.New("user playbook not found")

	// ErrStorageUnavailable indicates the active backend could not be
	// reached. Reads recover via cached results; writes surface it so the
	// caller can retry or queue.
	ErrStorageUnavailable = errors.New("playbook storage unavailable")
)
