package session

import (
	"time"

	"github.com/ent0n29/avatarstudio/internal/jobs"
)

// CreateRequest defines payload for opening a dashboard session.
type CreateRequest struct {
	APIKey string `json:"api_key"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
	FallbackCatalog bool      `json:"fallback_catalog"`
}

// SelectRequest changes the avatar, the voice, or both.
type SelectRequest struct {
	AvatarID string `json:"avatar_id"`
	VoiceID  string `json:"voice_id"`
}

type Selection struct {
	AvatarID   string `json:"avatar_id,omitempty"`
	AvatarName string `json:"avatar_name,omitempty"`
	VoiceID    string `json:"voice_id,omitempty"`
	VoiceName  string `json:"voice_name,omitempty"`
}

func (s Selection) Complete() bool {
	return s.AvatarID != "" && s.VoiceID != ""
}

const (
	ActionSelectedAvatar = "Selected Avatar"
	ActionSelectedVoice  = "Selected Voice"
	ActionGenerated      = "Generated Video"
	ActionCompleted      = "Video Completed"
	ActionFailed         = "Video Failed"
	ActionRemoved        = "Removed Video"
)

type HistoryEntry struct {
	At      time.Time `json:"timestamp"`
	Action  string    `json:"action"`
	Details string    `json:"details"`
}

type ActionCount struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

// Analytics is the summary rendered next to the activity history.
type Analytics struct {
	Jobs    jobs.Counts   `json:"jobs"`
	Actions []ActionCount `json:"actions"`
}

// View is the serialisable snapshot of a session. The API key is never part of it.
type View struct {
	ID             string      `json:"session_id"`
	Status         Status      `json:"status"`
	Selection      Selection   `json:"selection"`
	Jobs           jobs.Counts `json:"jobs"`
	TotalJobs      int         `json:"total_jobs"`
	Diagnostics    int         `json:"diagnostics"`
	StartedAt      time.Time   `json:"started_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
}
