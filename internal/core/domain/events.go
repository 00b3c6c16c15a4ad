package domain

import "time"

// EventKind tags the shape of a progress event. The payload fields used per
// kind are fixed: log events carry Message (and Scene when a scene worker
// produced the line), progress events carry Stage plus Current/Total,
// connected and keepalive carry nothing beyond the envelope.
type EventKind string

const (
	EventLog       EventKind = "log"
	EventProgress  EventKind = "progress"
	EventConnected EventKind = "connected"
	EventKeepalive EventKind = "keepalive"
)

// Event is one message on a job's progress channel. Events are transient:
// delivered at most once to whatever transport is subscribed, never replayed.
type Event struct {
	Kind    EventKind `json:"type"`
	JobID   string    `json:"job_id"`
	Stage   string    `json:"stage,omitempty"`
	Scene   int       `json:"scene,omitempty"` // 1-based; 0 means job-level
	Current int       `json:"current,omitempty"`
	Total   int       `json:"total,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// LogEvent builds a job-level log event.
func LogEvent(jobID, message string) Event {
	return Event{Kind: EventLog, JobID: jobID, Message: message, At: time.Now().UTC()}
}

// SceneLogEvent builds a log event tagged with the owning scene (1-based).
func SceneLogEvent(jobID string, scene int, message string) Event {
	return Event{Kind: EventLog, JobID: jobID, Scene: scene, Message: message, At: time.Now().UTC()}
}

// ProgressEvent builds a stage progress event with scene counters.
func ProgressEvent(jobID, stage string, current, total int) Event {
	return Event{Kind: EventProgress, JobID: jobID, Stage: stage, Current: current, Total: total, At: time.Now().UTC()}
}
