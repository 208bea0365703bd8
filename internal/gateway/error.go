package gateway

import (
	"errors"
	"fmt"
)

// Error is a classified gateway failure. Transient failures (network
// errors, timeouts, throttling, 5xx) are retry-eligible; everything
// else closes the recipient on the first attempt.
type Error struct {
	StatusCode int
	Detail     string
	Transient  bool
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway: status %d: %s", e.StatusCode, e.Detail)
	}
	return "gateway: " + e.Detail
}

// IsTransient reports whether err is a retry-eligible gateway failure.
// Unclassified errors are treated as permanent.
func IsTransient(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Transient
	}
	return false
}
