package domain

import "time"

// Well-known metric names.
const (
	EventExposures   = "exposures"
	EventConversions = "conversions"
)

// Snapshot is the immutable view of a bandit context at a point in time.
// It is what sinks, host callbacks and HTTP responses receive.
type Snapshot struct {
	SessionID string  `json:"session_id"`
	Site      Site    `json:"site"`
	Variant   Variant `json:"variant"`
	Ready     bool    `json:"ready"`
}

// Experiment is a shortcut for Site.Experiment.
func (s Snapshot) Experiment() Experiment {
	return s.Site.Experiment
}

// MetricEvent is a single exposure/conversion signal queued for analysis.
type MetricEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	Site       string    `json:"site"`
	Experiment string    `json:"experiment"`
	Variant    string    `json:"variant"`
	Name       string    `json:"name"`
	Value      float64   `json:"value"`
}

// NewMetricEvent builds an event from a snapshot, with a value of 1.
func NewMetricEvent(snap Snapshot, name string, at time.Time) MetricEvent {
	return MetricEvent{
		Timestamp:  at,
		SessionID:  snap.SessionID,
		Site:       snap.Site.Name,
		Experiment: snap.Site.Experiment.ID,
		Variant:    snap.Variant.Name,
		Name:       name,
		Value:      1,
	}
}
