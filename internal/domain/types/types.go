// Package types holds read-model shapes shared between the service
// layer and the HTTP API.
package types

// IntakeAck reports how a submitted progress event was handled.
type IntakeAck struct {
	// EventID echoes or assigns the event's identifier.
	EventID string `json:"event_id"`
	// Accepted is false when the intake queue rejected the event.
	Accepted bool `json:"accepted"`
	// Duplicate marks a replay of an already-accepted event.
	Duplicate bool `json:"duplicate"`
}

// ProgressView is the current standing of one pledge.
type ProgressView struct {
	PledgeID        string  `json:"pledge_id"`
	Achieved        float64 `json:"achieved"`
	Raw             float64 `json:"raw"`
	CompletionRatio float64 `json:"completion_ratio"`
	Label           string  `json:"label"`
}
