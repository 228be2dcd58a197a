package feed

import "fmt"

// FetchError covers transport failures, non-2xx responses and an open breaker.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch feed %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch feed %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means the payload is not a JSON array of fund records.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse feed: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError means the payload decoded but breaks a record invariant.
type ValidationError struct {
	Index  int
	ID     string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("validate feed: record %d (id %s): %s", e.Index, e.ID, e.Reason)
	}
	return fmt.Sprintf("validate feed: record %d: %s", e.Index, e.Reason)
}
