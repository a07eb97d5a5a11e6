package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/avatarstudio/internal/jobs"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl MessageType = "client_control"
	TypeJobSnapshot   MessageType = "job_snapshot"
	TypeJobCreated    MessageType = "job_created"
	TypeJobUpdated    MessageType = "job_updated"
	TypeJobRemoved    MessageType = "job_removed"
	TypeRefreshResult MessageType = "refresh_result"
	TypeSystemEvent   MessageType = "system_event"
	TypeErrorEvent    MessageType = "error_event"
)

// Client control actions.
const (
	ActionPoll       = "poll"
	ActionRefreshAll = "refresh_all"
	ActionSnapshot   = "snapshot"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	JobID     string      `json:"job_id,omitempty"`
}

type JobSnapshot struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Jobs      []jobs.Job  `json:"jobs"`
	Counts    jobs.Counts `json:"counts"`
}

type JobEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Job       jobs.Job    `json:"job"`
	TSMs      int64       `json:"ts_ms"`
}

type RefreshResult struct {
	Type      MessageType        `json:"type"`
	SessionID string             `json:"session_id"`
	Report    jobs.RefreshReport `json:"report"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// FromJobEvent converts a tracker event into its wire message.
func FromJobEvent(sessionID string, ev jobs.Event) JobEvent {
	t := TypeJobUpdated
	switch ev.Type {
	case jobs.EventJobCreated:
		t = TypeJobCreated
	case jobs.EventJobRemoved:
		t = TypeJobRemoved
	}
	return JobEvent{
		Type:      t,
		SessionID: sessionID,
		Job:       ev.Job,
		TSMs:      ev.At.UnixMilli(),
	}
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.JobID = strings.TrimSpace(msg.JobID)
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		switch msg.Action {
		case ActionPoll:
			if msg.JobID == "" {
				return nil, errors.New("client_control poll requires job_id")
			}
		case ActionRefreshAll, ActionSnapshot:
		default:
			return nil, fmt.Errorf("client_control action %q is not supported", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// TypeOf reports the type tag of a known message value.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case ClientControl:
		return m.Type, true
	case JobSnapshot:
		return m.Type, true
	case JobEvent:
		return m.Type, true
	case RefreshResult:
		return m.Type, true
	case SystemEvent:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
