package credstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for classified misses. Use errors.Is to check.
var (
	// ErrConfigurationMissing means the settings record does not exist. It is
	// fatal: settings are never legitimately absent.
	ErrConfigurationMissing = errors.New("credstore: settings not found")
	// ErrCredentialsMissing means the user has not completed setup.
	ErrCredentialsMissing = errors.New("credstore: credentials not found")
	// ErrTokenMissing means no token is stored; the caller should perform a
	// password grant.
	ErrTokenMissing = errors.New("credstore: token not found")
	// ErrNoUserID means the session has no user id to key records by.
	ErrNoUserID = errors.New("credstore: session has no user id")
)

// PersistenceError reports a failed store read or write. A failed write
// means the cached and persisted state have diverged.
type PersistenceError struct {
	Op  string // "get", "put", "update", "query"
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("credstore: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
