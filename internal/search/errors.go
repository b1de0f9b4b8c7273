package search

import "errors"

var (
	// ErrInvalidInput means a required input is missing or malformed.
	ErrInvalidInput = errors.New("please fill in all fields")
	// ErrSearchInProgress is returned while another search is running.
	ErrSearchInProgress = errors.New("search already in progress")
	// ErrNoMatch means no ladder step produced an accepted candidate.
	ErrNoMatch = errors.New("no suitable match found")
	// ErrNoResult means there is no current result.
	ErrNoResult = errors.New("no current result")
	// ErrHistoryNotFound means no history entry has the requested id.
	ErrHistoryNotFound = errors.New("history entry not found")
)
