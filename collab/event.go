package collab

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType discriminates the closed set of collaboration events
type EventType string

// Client -> server event types
const (
	EventJoinProject      EventType = "join_project"
	EventLeaveProject     EventType = "leave_project"
	EventCodeChange       EventType = "code_change"
	EventCursorMove       EventType = "cursor_move"
	EventFileSwitch       EventType = "file_switch"
	EventChatMessage      EventType = "chat_message"
	EventVoiceJoin        EventType = "voice_join"
	EventVoiceLeave       EventType = "voice_leave"
	EventScreenShareStart EventType = "screen_share_start"
	EventScreenShareStop  EventType = "screen_share_stop"
)

// Server -> client event types
const (
	EventUserJoined         EventType = "user_joined"
	EventUserLeft           EventType = "user_left"
	EventProjectJoined      EventType = "project_joined"
	EventVoiceJoined        EventType = "voice_joined"
	EventVoiceLeft          EventType = "voice_left"
	EventScreenShareStarted EventType = "screen_share_started"
	EventScreenShareStopped EventType = "screen_share_stopped"
	EventError              EventType = "error"
)

// Range is a half-open [start, end) character range within a file
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ChangePayload carries one proposed or accepted edit operation
type ChangePayload struct {
	OperationID       string `json:"operation_id"`
	ParentOperationID string `json:"parent_operation_id,omitempty"`
	ChangeType        string `json:"change_type"`
	Range             Range  `json:"range"`
	OldContent        string `json:"old_content,omitempty"`
	NewContent        string `json:"new_content,omitempty"`
}

// CursorPayload is an ephemeral cursor position within a file
type CursorPayload struct {
	Line           int  `json:"line"`
	Column         int  `json:"column"`
	SelectionStart *int `json:"selection_start,omitempty"`
	SelectionEnd   *int `json:"selection_end,omitempty"`
}

// ErrorPayload is attached to error events sent back to the originator
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Event is the single wire envelope for every collaboration message. The
// Type field selects which payload fields are meaningful; ParseEvent enforces
// the required ones per type.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	ProjectID string    `json:"project_id,omitempty"`
	FileID    string    `json:"file_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Change      *ChangePayload `json:"change,omitempty"`
	Position    *CursorPayload `json:"position,omitempty"`
	Content     string         `json:"content,omitempty"`
	MessageType string         `json:"message_type,omitempty"`

	// Room snapshot fields, set on project_joined
	ActiveUsers []string `json:"active_users,omitempty"`
	OpenFiles   []string `json:"open_files,omitempty"`

	// Accepted file version, set on broadcast code_change
	Version int `json:"version,omitempty"`

	Error *ErrorPayload `json:"error,omitempty"`
}

// ParseEvent decodes and validates an inbound client event. Any missing
// required field yields ErrMalformedEvent; the connection stays up and the
// caller replies to the sender only.
func ParseEvent(raw []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := evt.validate(); err != nil {
		return Event{}, err
	}
	return evt, nil
}

func (e *Event) validate() error {
	switch e.Type {
	case EventJoinProject, EventLeaveProject, EventVoiceJoin, EventVoiceLeave,
		EventScreenShareStart, EventScreenShareStop:
		if e.ProjectID == "" {
			return fmt.Errorf("%w: missing project_id", ErrMalformedEvent)
		}
	case EventCodeChange:
		if e.ProjectID == "" || e.FileID == "" || e.Change == nil {
			return fmt.Errorf("%w: code_change requires project_id, file_id and change", ErrMalformedEvent)
		}
		if e.Change.OperationID == "" {
			return fmt.Errorf("%w: change is missing operation_id", ErrMalformedEvent)
		}
		if !validChangeType(e.Change.ChangeType) {
			return fmt.Errorf("%w: unknown change_type %q", ErrMalformedEvent, e.Change.ChangeType)
		}
		if e.Change.Range.Start < 0 || e.Change.Range.End < e.Change.Range.Start {
			return fmt.Errorf("%w: invalid range", ErrMalformedEvent)
		}
	case EventCursorMove:
		if e.ProjectID == "" || e.FileID == "" || e.Position == nil {
			return fmt.Errorf("%w: cursor_move requires project_id, file_id and position", ErrMalformedEvent)
		}
	case EventFileSwitch:
		if e.ProjectID == "" || e.FileID == "" {
			return fmt.Errorf("%w: file_switch requires project_id and file_id", ErrMalformedEvent)
		}
	case EventChatMessage:
		if e.ProjectID == "" || e.Content == "" {
			return fmt.Errorf("%w: chat_message requires project_id and content", ErrMalformedEvent)
		}
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrMalformedEvent, e.Type)
	}
	return nil
}

func validChangeType(t string) bool {
	switch OpKind(t) {
	case OpInsert, OpDelete, OpReplace:
		return true
	}
	return false
}
