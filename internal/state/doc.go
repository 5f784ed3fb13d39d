// Package state holds the StateStore backends and their shared helpers.
//
// Backends live in subpackages (memory, sqlite, postgres, gcs). Each keeps
// exactly one record per target identity and wraps failures with
// stock.ErrStoreUnavailable so the checker can abort a single write without
// disturbing prior state.
package state

import (
	"fmt"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

// Unavailable wraps err so errors.Is(err, stock.ErrStoreUnavailable) holds.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, stock.ErrStoreUnavailable, err)
}
