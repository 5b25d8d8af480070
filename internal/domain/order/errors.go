package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// ErrEmptyCart is returned when a checkout finds nothing to purchase.
var ErrEmptyCart = errors.New("cart is empty")

// ValidationError reports checkout input that was rejected before any storage
// access.
type ValidationError struct {
	// Missing lists required fields by their request names.
	Missing []string
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) == 0 {
		return e.Reason
	}
	var list string
	switch n := len(e.Missing); n {
	case 1:
		return e.Missing[0] + " is required"
	case 2:
		list = e.Missing[0] + " and " + e.Missing[1]
	default:
		list = strings.Join(e.Missing[:n-1], ", ") + ", and " + e.Missing[n-1]
	}
	return list + " are required"
}

// TransactionError wraps a storage failure inside the checkout unit of work.
// Nothing written during the failed attempt is visible.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("checkout %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
