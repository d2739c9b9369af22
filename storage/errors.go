package storage

import "errors"

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")

	// ErrNotDocument rejects payloads that are not JSON documents; the
	// archive only stores segment files and verifying keys.
	ErrNotDocument = errors.New("storage: payload is not a json document")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
