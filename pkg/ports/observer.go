package ports

import "time"

// LoadObserver is implemented by sinks that also track site load latency.
// outcome is one of "ready", "timeout" or "error".
type LoadObserver interface {
	ObserveLoad(site, outcome string, d time.Duration)
}
