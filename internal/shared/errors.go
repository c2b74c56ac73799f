package shared

import "errors"

var (
	// ErrNotFound is returned by repositories when no row matches.
	ErrNotFound = errors.New("shared: not found")
	// ErrInvalidCredentials covers unknown users, wrong passwords and disabled accounts alike.
	ErrInvalidCredentials = errors.New("shared: invalid credentials")
	// ErrSessionMissing means the request carries no loaded session.
	ErrSessionMissing = errors.New("shared: session missing")
	// ErrCSRFTokenMissing means no token was submitted or none was issued.
	ErrCSRFTokenMissing = errors.New("shared: csrf token missing")
	// ErrCSRFTokenMismatch means the token differs from the issued one or belongs to another session.
	ErrCSRFTokenMismatch = errors.New("shared: csrf token mismatch")
)
