package domain

import "time"

// QualityTier selects which model backs the LLM calls for a job.
type QualityTier string

const (
	TierFast    QualityTier = "fast"
	TierQuality QualityTier = "quality"
)

// JobStatus is the lifecycle state of a ConceptJob.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusSplitting JobStatus = "splitting"
	StatusRendering JobStatus = "rendering"
	StatusStitching JobStatus = "stitching"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// CanTransition reports whether a job may move from one status to another.
// Terminal statuses never transition; failed is reachable from any
// non-terminal status so the orchestrator can always force a terminal state.
func CanTransition(from, to JobStatus) bool {
	if from == StatusCompleted || from == StatusFailed {
		return false
	}
	if to == StatusFailed {
		return from == StatusQueued || from == StatusSplitting ||
			from == StatusRendering || from == StatusStitching
	}
	switch from {
	case StatusQueued:
		return to == StatusSplitting
	case StatusSplitting:
		return to == StatusRendering
	case StatusRendering:
		return to == StatusStitching
	case StatusStitching:
		return to == StatusCompleted
	}
	return false
}

// IsTerminal reports whether a status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ConceptJob represents one video-generation request for a (paper, concept)
// pair. It is owned by the orchestrator for its lifetime and persisted on
// creation and on every status transition.
type ConceptJob struct {
	ID                 string         `json:"job_id"`
	PaperID            string         `json:"paper_id"`
	ConceptID          string         `json:"concept_id"`
	ConceptName        string         `json:"concept_name"`
	ConceptDescription string         `json:"concept_description"`
	UserID             string         `json:"user_id"`
	Tier               QualityTier    `json:"quality_tier"`
	Status             JobStatus      `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	VideoURL           string         `json:"video_url,omitempty"`
	Outcomes           []SceneOutcome `json:"scenes,omitempty"`
	Error              string         `json:"error,omitempty"`
}

// SceneSpec is one planned scene, produced once by the splitter and never
// mutated afterward. Index defines the final ordering regardless of which
// scene finishes rendering first.
type SceneSpec struct {
	Index        int    `json:"index"`
	Description  string `json:"description"`
	DurationHint string `json:"duration_hint,omitempty"`
}

// RenderAttempt is one try at turning a SceneSpec into rendered media.
// Attempts are ephemeral; only the final attempt's outcome survives the loop.
type RenderAttempt struct {
	Number    int
	Code      string
	Succeeded bool
	Error     string
	Elapsed   time.Duration
}

// SceneOutcome is the durable result of a scene's attempt loop. Exactly one
// outcome exists per SceneSpec, in spec order. Skipped scenes keep a caption
// so they stay documented in the scene guide.
type SceneOutcome struct {
	Index        int    `json:"index"`
	Rendered     bool   `json:"rendered"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	Caption      string `json:"caption"`
	Attempts     int    `json:"attempts"`
}

// SceneCaption is one entry of the scene guide shipped with a finished video.
type SceneCaption struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Rendered bool   `json:"rendered"`
}

// VideoRecord is the persisted artifact reference for a completed job.
type VideoRecord struct {
	JobID     string         `json:"job_id"`
	PaperID   string         `json:"paper_id"`
	ConceptID string         `json:"concept_id"`
	VideoURL  string         `json:"video_url"`
	Captions  []SceneCaption `json:"captions"`
	CreatedAt time.Time      `json:"created_at"`
}
