// Package api provides the remote file-service client and its error types.
package api

import (
	"errors"
	"strings"
)

// Sentinel errors distinguishing the failure classes callers care about.
// Wrap with fmt.Errorf("...: %w", err) so errors.Is keeps working.
var (
	// ErrConnection indicates the remote service was unreachable or the
	// request failed in transit. Transient; reported, never auto-retried
	// above the HTTP retry layer.
	ErrConnection = errors.New("remote service unreachable")

	// ErrAuth indicates the remote service rejected the credentials.
	ErrAuth = errors.New("credentials rejected")

	// ErrNotFound indicates the requested path does not exist remotely.
	ErrNotFound = errors.New("path not found")

	// ErrNotConfigured indicates no usable credentials exist for a session.
	ErrNotConfigured = errors.New("connection not configured")

	// ErrAlreadyExists indicates the destination entry already exists.
	ErrAlreadyExists = errors.New("entry already exists")
)

// IsAuthError checks whether an error indicates rejected credentials.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuth) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{"unauthorized", "invalid token", "password is incorrect"} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// IsConnectionError checks whether an error indicates a transient
// network-level failure rather than a remote rejection.
func IsConnectionError(err error) bool {
	return err != nil && errors.Is(err, ErrConnection)
}

// IsNotFound checks whether an error indicates a missing remote path.
// The remote service reports misses inconsistently (HTTP 404 vs. an error
// envelope), so the message is also inspected.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "not found") || strings.Contains(errStr, "object not exist")
}

// IsAlreadyExists checks whether an error indicates a duplicate entry.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAlreadyExists) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "already exists") || strings.Contains(errStr, "duplicate")
}
