package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrSiteNotFound is returned by a site provider when no definition exists for a name.
var ErrSiteNotFound = errors.New("site not found")

// ErrInvalidSite is returned when a fetched site definition is malformed.
var ErrInvalidSite = errors.New("invalid site definition")

// ErrTransport wraps failures of the site provider (network, decoding, ...).
var ErrTransport = errors.New("site transport failed")

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("site load timed out")

// ErrKeyNotFound is returned by a session store when a key has never been set.
var ErrKeyNotFound = errors.New("session key not found")

// ErrStorageUnavailable wraps session backend failures. It is logged, never surfaced to the host.
var ErrStorageUnavailable = errors.New("session storage unavailable")

// ErrReservedExperiment is returned for experiment ids that collide with session bookkeeping keys.
var ErrReservedExperiment = errors.New("experiment id is reserved")

// TimeoutError reports that the site fetch did not resolve before the configured deadline.
type TimeoutError struct {
	Site     string
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for site %q @ %d ms", e.Site, e.Duration.Milliseconds())
}

// Is makes errors.Is(err, ErrTimeout) hold for any *TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
