package znuny

import "fmt"

// AuthError indicates a session could not be obtained: missing credentials,
// transport failure, or the backend rejecting the login. Fatal to a run.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("znuny: authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// WriteError indicates the backend rejected a ticket update. Fatal and
// surfaced to the caller.
type WriteError struct {
	TicketID int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("znuny: update ticket %d failed: %v", e.TicketID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// RequestError indicates a backend read failed (transport or non-2xx).
type RequestError struct {
	Op     string
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("znuny: %s returned status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("znuny: %s failed: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }
