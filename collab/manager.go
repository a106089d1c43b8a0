package collab

import (
	"fmt"
	"log"
	"time"
)

// Manager is the public face of the collaboration core. One instance serves
// all connections; it owns the registry, presence index, router and OT
// engine, and dispatches every inbound client event.
type Manager struct {
	registry *Registry
	presence *Presence
	router   *Router
	engine   *Engine
	store    Store
	logger   *log.Logger
}

func NewManager(store Store, logger *log.Logger) *Manager {
	registry := NewRegistry(logger)
	presence := NewPresence()
	return &Manager{
		registry: registry,
		presence: presence,
		router:   NewRouter(registry, presence, logger),
		engine:   NewEngine(store),
		store:    store,
		logger:   logger,
	}
}

// Connect registers a new user connection
func (m *Manager) Connect(userID string, conn Conn) {
	m.registry.Connect(userID, conn)
}

// Disconnect tears down a user's connection and removes them from every room
// they were in, notifying each affected room and closing the session of any
// room they leave empty. Already-appended operations are unaffected. Safe to
// call for users who never connected.
func (m *Manager) Disconnect(userID string) {
	m.registry.Disconnect(userID)
	m.teardown(userID)
}

// DisconnectConn tears the user down only while conn is still their
// registered connection. Read loops use this on exit so a loop whose
// connection was replaced by a reconnect leaves the replacement, and the
// user's room memberships, untouched.
func (m *Manager) DisconnectConn(userID string, conn Conn) {
	if !m.registry.DisconnectConn(userID, conn) {
		return
	}
	m.teardown(userID)
}

func (m *Manager) teardown(userID string) {
	for _, projectID := range m.presence.ProjectsOf(userID) {
		if m.presence.LeaveVoice(userID, projectID) {
			if err := m.store.SetVoiceState(projectID, false); err != nil {
				m.logger.Printf("Error clearing voice state for project %s: %v", projectID, err)
			}
		}
	}

	affected, emptied := m.presence.LeaveAll(userID)
	empty := make(map[string]struct{}, len(emptied))
	for _, projectID := range emptied {
		empty[projectID] = struct{}{}
	}

	for _, projectID := range affected {
		m.router.Broadcast(projectID, Event{
			Type:      EventUserLeft,
			UserID:    userID,
			ProjectID: projectID,
			Timestamp: time.Now().UTC(),
		}, userID)
		if _, ok := empty[projectID]; ok {
			if err := m.store.CloseSession(projectID); err != nil {
				m.logger.Printf("Error closing session for project %s: %v", projectID, err)
			}
		} else {
			m.roomMembersChanged(projectID)
		}
	}
}

// HandleMessage processes one raw inbound frame from a user. Malformed
// events and handler failures are reported to the sender only; nothing here
// ever crashes the connection or leaks to other room members.
func (m *Manager) HandleMessage(userID string, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("Panic handling message from %s: %v", userID, r)
			m.sendError(userID, ErrInternal, "An error occurred processing your request")
		}
	}()

	evt, err := ParseEvent(raw)
	if err != nil {
		m.sendError(userID, err, err.Error())
		return
	}

	evt.UserID = userID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	switch evt.Type {
	case EventJoinProject:
		err = m.handleJoinProject(userID, evt)
	case EventLeaveProject:
		err = m.handleLeaveProject(userID, evt)
	case EventCodeChange:
		err = m.handleCodeChange(userID, evt)
	case EventCursorMove:
		err = m.handleCursorMove(userID, evt)
	case EventFileSwitch:
		err = m.handleFileSwitch(userID, evt)
	case EventChatMessage:
		err = m.handleChatMessage(userID, evt)
	case EventVoiceJoin:
		err = m.handleVoiceSignal(userID, evt, EventVoiceJoined, true)
	case EventVoiceLeave:
		err = m.handleVoiceSignal(userID, evt, EventVoiceLeft, false)
	case EventScreenShareStart:
		err = m.handleScreenShare(userID, evt, EventScreenShareStarted, true)
	case EventScreenShareStop:
		err = m.handleScreenShare(userID, evt, EventScreenShareStopped, false)
	default:
		err = fmt.Errorf("%w: unhandled event type %q", ErrMalformedEvent, evt.Type)
	}

	if err != nil {
		m.logger.Printf("Error handling %s from %s: %v", evt.Type, userID, err)
		m.sendError(userID, err, err.Error())
	}
}

func (m *Manager) handleJoinProject(userID string, evt Event) error {
	exists, err := m.store.ProjectExists(evt.ProjectID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: project %s", ErrNotFound, evt.ProjectID)
	}

	allowed, err := m.store.CanRead(evt.ProjectID, userID)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: not a participant of project %s", ErrForbidden, evt.ProjectID)
	}

	// Snapshot the room before the join so the joiner's member list does
	// not include themselves.
	others := m.presence.MembersOf(evt.ProjectID)

	if first := m.presence.Join(userID, evt.ProjectID); first {
		if err := m.store.OpenSession(evt.ProjectID); err != nil {
			m.logger.Printf("Error opening session for project %s: %v", evt.ProjectID, err)
		}
	}
	m.roomMembersChanged(evt.ProjectID)

	// XP award is fire-and-forget; a gamification failure never blocks the
	// join.
	go func() {
		if err := m.store.AwardJoinXP(userID); err != nil {
			m.logger.Printf("Error awarding join XP to %s: %v", userID, err)
		}
	}()

	now := time.Now().UTC()
	m.router.Broadcast(evt.ProjectID, Event{
		Type:      EventUserJoined,
		UserID:    userID,
		ProjectID: evt.ProjectID,
		Timestamp: now,
	}, userID)

	m.registry.Deliver(userID, Event{
		Type:        EventProjectJoined,
		ProjectID:   evt.ProjectID,
		ActiveUsers: others,
		OpenFiles:   m.presence.OpenFiles(evt.ProjectID),
		Timestamp:   now,
	})
	return nil
}

func (m *Manager) handleLeaveProject(userID string, evt Event) error {
	if m.presence.LeaveVoice(userID, evt.ProjectID) {
		if err := m.store.SetVoiceState(evt.ProjectID, false); err != nil {
			m.logger.Printf("Error clearing voice state for project %s: %v", evt.ProjectID, err)
		}
	}

	empty := m.presence.Leave(userID, evt.ProjectID)

	m.router.Broadcast(evt.ProjectID, Event{
		Type:      EventUserLeft,
		UserID:    userID,
		ProjectID: evt.ProjectID,
		Timestamp: time.Now().UTC(),
	}, userID)

	if empty {
		if err := m.store.CloseSession(evt.ProjectID); err != nil {
			m.logger.Printf("Error closing session for project %s: %v", evt.ProjectID, err)
		}
	} else {
		m.roomMembersChanged(evt.ProjectID)
	}
	return nil
}

func (m *Manager) handleCodeChange(userID string, evt Event) error {
	allowed, err := m.store.CanWrite(evt.ProjectID, userID)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: write permission required on project %s", ErrForbidden, evt.ProjectID)
	}

	proposed := Operation{
		ID:         evt.Change.OperationID,
		ParentID:   evt.Change.ParentOperationID,
		FileID:     evt.FileID,
		Kind:       OpKind(evt.Change.ChangeType),
		Start:      evt.Change.Range.Start,
		End:        evt.Change.Range.End,
		OldContent: evt.Change.OldContent,
		NewContent: evt.Change.NewContent,
	}

	// The broadcast runs inside the engine's per-file critical section so
	// concurrent writers fan out their events in log-acceptance order.
	_, _, _, err = m.engine.Accept(userID, proposed, func(accepted Operation, _ string, version int) {
		m.router.Broadcast(evt.ProjectID, Event{
			Type:      EventCodeChange,
			UserID:    userID,
			ProjectID: evt.ProjectID,
			FileID:    evt.FileID,
			Version:   version,
			Change: &ChangePayload{
				OperationID:       accepted.ID,
				ParentOperationID: accepted.ParentID,
				ChangeType:        string(accepted.Kind),
				Range:             Range{Start: accepted.Start, End: accepted.End},
				OldContent:        accepted.OldContent,
				NewContent:        accepted.NewContent,
			},
			Timestamp: time.Now().UTC(),
		}, userID)
	})
	return err
}

func (m *Manager) handleCursorMove(userID string, evt Event) error {
	m.presence.SetCursor(userID, evt.ProjectID, evt.FileID, *evt.Position)

	m.router.Broadcast(evt.ProjectID, Event{
		Type:      EventCursorMove,
		UserID:    userID,
		ProjectID: evt.ProjectID,
		FileID:    evt.FileID,
		Position:  evt.Position,
		Timestamp: time.Now().UTC(),
	}, userID)
	return nil
}

func (m *Manager) handleFileSwitch(userID string, evt Event) error {
	m.presence.SetActiveFile(userID, evt.ProjectID, evt.FileID)

	m.router.Broadcast(evt.ProjectID, Event{
		Type:      EventFileSwitch,
		UserID:    userID,
		ProjectID: evt.ProjectID,
		FileID:    evt.FileID,
		Timestamp: time.Now().UTC(),
	}, userID)
	return nil
}

func (m *Manager) handleChatMessage(userID string, evt Event) error {
	messageType := evt.MessageType
	if messageType == "" {
		messageType = "text"
	}
	if err := m.store.SaveChatMessage(evt.ProjectID, userID, messageType, evt.Content); err != nil {
		return err
	}

	// Chat goes to the whole room, sender included, so every client renders
	// the same transcript.
	m.router.Broadcast(evt.ProjectID, Event{
		Type:        EventChatMessage,
		UserID:      userID,
		ProjectID:   evt.ProjectID,
		Content:     evt.Content,
		MessageType: messageType,
		Timestamp:   time.Now().UTC(),
	}, "")
	return nil
}

func (m *Manager) handleVoiceSignal(userID string, evt Event, out EventType, joined bool) error {
	// The persisted flag tracks whether the channel has anyone in it, so it
	// only flips when the first participant joins or the last one leaves.
	var flip bool
	if joined {
		flip = m.presence.JoinVoice(userID, evt.ProjectID)
	} else {
		flip = m.presence.LeaveVoice(userID, evt.ProjectID)
	}
	if flip {
		if err := m.store.SetVoiceState(evt.ProjectID, joined); err != nil {
			return err
		}
	}
	m.router.Broadcast(evt.ProjectID, Event{
		Type:      out,
		UserID:    userID,
		ProjectID: evt.ProjectID,
		Timestamp: time.Now().UTC(),
	}, "")
	return nil
}

func (m *Manager) handleScreenShare(userID string, evt Event, out EventType, active bool) error {
	if err := m.store.SetScreenShare(evt.ProjectID, userID, active); err != nil {
		return err
	}
	m.router.Broadcast(evt.ProjectID, Event{
		Type:      out,
		UserID:    userID,
		ProjectID: evt.ProjectID,
		Timestamp: time.Now().UTC(),
	}, "")
	return nil
}

// roomMembersChanged mirrors the live member set onto the session row
func (m *Manager) roomMembersChanged(projectID string) {
	members := m.presence.MembersOf(projectID)
	if len(members) == 0 {
		return
	}
	if err := m.store.SetSessionUsers(projectID, members); err != nil {
		m.logger.Printf("Error updating session users for project %s: %v", projectID, err)
	}
}

func (m *Manager) sendError(userID string, err error, message string) {
	m.registry.Deliver(userID, Event{
		Type:      EventError,
		Timestamp: time.Now().UTC(),
		Error: &ErrorPayload{
			Kind:    ErrorKind(err),
			Message: message,
		},
	})
}

// Members returns the live members of a project room, for diagnostics
func (m *Manager) Members(projectID string) []string {
	return m.presence.MembersOf(projectID)
}

// Stats reports connection and room counts for the health endpoint
func (m *Manager) Stats() (connections, rooms int) {
	return m.registry.Count(), m.presence.RoomCount()
}
