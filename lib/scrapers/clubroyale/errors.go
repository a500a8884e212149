package clubroyale

import (
	"errors"
	"fmt"
)

// step-fatal errors
var (
	// the session blob is missing, unparseable, or expired. raised
	// before any network call is made.
	ErrAuth = errors.New("missing or expired session")
	// the upstream returned a non-success status or an unparseable body
	ErrNetwork = errors.New("upstream request failed")
	// a 403 from the api means the token no longer works, the
	// upstream does not distinguish throttling from expiry
	ErrRateLimit = errors.New("request forbidden, session has likely expired")
)

// item-level error, logged and skipped, never aborts a batch
var ErrParse = errors.New("failed to extract required fields")

func authErrorf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrAuth)...)
}

func networkErrorf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNetwork)...)
}
