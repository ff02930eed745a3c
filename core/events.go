package core

import "time"

// EventKind groups progress events for the UI
type EventKind string

const (
	EventCombo     EventKind = "combo"
	EventTest      EventKind = "test"
	EventPhase     EventKind = "phase"
	EventLoading   EventKind = "loading"
	EventExclusion EventKind = "exclusion"
	EventDistill   EventKind = "distill"
)

// EventStatus is the state carried by a progress event
type EventStatus string

const (
	StatusRunning   EventStatus = "running"
	StatusCompleted EventStatus = "completed"
	StatusCancelled EventStatus = "cancelled"
	StatusError     EventStatus = "error"
	StatusTimeout   EventStatus = "timeout"

	StatusLoading  EventStatus = "loading"
	StatusLoaded   EventStatus = "loaded"
	StatusFailed   EventStatus = "failed"
	StatusExcluded EventStatus = "excluded"
)

// ProgressEvent is a fire-and-forget progress notification
type ProgressEvent struct {
	Kind          EventKind   `json:"kind"`
	RunID         string      `json:"run_id,omitempty"`
	MainModel     string      `json:"main_model,omitempty"`
	ExecutorModel string      `json:"executor_model,omitempty"`
	Test          string      `json:"test,omitempty"`
	Phase         string      `json:"phase,omitempty"`
	Index         int         `json:"index"`
	Total         int         `json:"total"`
	Status        EventStatus `json:"status"`
	Score         *int        `json:"score,omitempty"`
	Message       string      `json:"message,omitempty"`
	Time          time.Time   `json:"time"`
}
