package jobs

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ent0n29/avatarstudio/internal/pipio"
)

// MaxScriptLength is the upstream script limit, counted in characters.
const MaxScriptLength = 5000

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusUnknown    Status = "unknown"
)

// ParseStatus maps an upstream status string. Anything outside the known
// set, including an absent status, becomes StatusUnknown.
func ParseStatus(raw string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusProcessing:
		return StatusProcessing
	case StatusCompleted:
		return StatusCompleted
	case StatusFailed:
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// Terminal reports whether no further polling is expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Options struct {
	Format          string  `json:"format"`
	Resolution      string  `json:"resolution"`
	BackgroundColor string  `json:"backgroundColor"`
	SpeedFactor     float64 `json:"speedFactor"`
}

func DefaultOptions() Options {
	return Options{
		Format:          "mp4",
		Resolution:      "720p",
		BackgroundColor: "#FFFFFF",
		SpeedFactor:     1.0,
	}
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// WithDefaults fills zero-valued fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if strings.TrimSpace(o.Format) == "" {
		o.Format = d.Format
	}
	if strings.TrimSpace(o.Resolution) == "" {
		o.Resolution = d.Resolution
	}
	if strings.TrimSpace(o.BackgroundColor) == "" {
		o.BackgroundColor = d.BackgroundColor
	}
	if o.SpeedFactor == 0 {
		o.SpeedFactor = d.SpeedFactor
	}
	return o
}

func (o Options) Validate() error {
	switch o.Format {
	case "mp4", "webm":
	default:
		return pipio.Validationf("format must be mp4 or webm, got %q", o.Format)
	}
	switch o.Resolution {
	case "720p", "1080p":
	default:
		return pipio.Validationf("resolution must be 720p or 1080p, got %q", o.Resolution)
	}
	if !hexColor.MatchString(o.BackgroundColor) {
		return pipio.Validationf("backgroundColor must be a hex color, got %q", o.BackgroundColor)
	}
	if o.SpeedFactor < 0.5 || o.SpeedFactor > 1.5 {
		return pipio.Validationf("speedFactor must be between 0.5 and 1.5, got %v", o.SpeedFactor)
	}
	return nil
}

// ValidateScript enforces a non-blank script of at most MaxScriptLength characters.
func ValidateScript(script string) error {
	if strings.TrimSpace(script) == "" {
		return pipio.Validationf("script is required")
	}
	if n := utf8.RuneCountInString(script); n > MaxScriptLength {
		return pipio.Validationf("script is %d characters, limit is %d", n, MaxScriptLength)
	}
	return nil
}

// Job is one generation request. ArtifactURL is set if and only if Status is completed.
type Job struct {
	ID             string    `json:"id"`
	AvatarID       string    `json:"avatarId"`
	AvatarName     string    `json:"avatarName"`
	VoiceID        string    `json:"voiceId"`
	VoiceName      string    `json:"voiceName"`
	Script         string    `json:"script"`
	Options        Options   `json:"requestedParams"`
	Status         Status    `json:"status"`
	UpstreamStatus string    `json:"upstreamStatus,omitempty"`
	ArtifactURL    string    `json:"artifactUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type SubmitRequest struct {
	AvatarID string
	VoiceID  string
	Script   string
	Options  Options
}

type EventType string

const (
	EventJobCreated EventType = "job_created"
	EventJobUpdated EventType = "job_updated"
	EventJobRemoved EventType = "job_removed"
)

type Event struct {
	Type EventType `json:"type"`
	Job  Job       `json:"job"`
	At   time.Time `json:"at"`
}

// Counts tallies jobs per status.
type Counts struct {
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Unknown    int `json:"unknown"`
}

func (c Counts) Total() int {
	return c.Processing + c.Completed + c.Failed + c.Unknown
}

// RefreshReport summarises a RefreshAll pass.
type RefreshReport struct {
	Polled  int `json:"polled"`
	Changed int `json:"changed"`
	Failed  int `json:"failed"`
}
