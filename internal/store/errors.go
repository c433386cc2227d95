package store

import (
	domainerrors "github.com/tickitapp/tickit-sync/internal/errors"
)

// ErrNotFound is returned by Tx getters when no record has the given key.
var ErrNotFound = domainerrors.NotFound("record not found")

// IOError wraps a backend failure as a StoreIO domain error.
// Errors that already carry a domain code are returned unchanged.
func IOError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domainerrors.Error
	if domainerrors.As(err, &de) {
		return err
	}
	return domainerrors.StoreIOf(err, "store: %s", op)
}
