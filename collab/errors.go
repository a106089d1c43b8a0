package collab

import "errors"

// Closed error taxonomy for the collaboration core. Every error reported to
// a client maps onto exactly one of these; none of them are broadcast to
// other room members and none of them terminate the connection.
var (
	ErrForbidden      = errors.New("insufficient permissions")
	ErrNotFound       = errors.New("resource not found")
	ErrFileLocked     = errors.New("file is locked by another user")
	ErrStaleOperation = errors.New("parent operation is no longer in the log")
	ErrMalformedEvent = errors.New("malformed event")
	ErrInternal       = errors.New("internal error")
)

// ErrorKind returns the wire-level kind string for an error from the core.
// Unknown errors are reported as InternalError.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrFileLocked):
		return "FileLocked"
	case errors.Is(err, ErrStaleOperation):
		return "StaleOperation"
	case errors.Is(err, ErrMalformedEvent):
		return "MalformedEvent"
	default:
		return "InternalError"
	}
}
