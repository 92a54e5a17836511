package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrServerOffline indicates the bookstore server is unreachable
	ErrServerOffline = errors.New("bookstore server is unreachable")

	// ErrUnauthorized indicates the server rejected the session's credentials
	ErrUnauthorized = errors.New("session is not authorized")
)
