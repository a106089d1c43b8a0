package collab

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() (*Manager, *MemStore) {
	store := NewMemStore()
	return NewManager(store, testLogger()), store
}

func connectUser(m *Manager, userID string) *fakeConn {
	conn := &fakeConn{}
	m.Connect(userID, conn)
	return conn
}

func send(t *testing.T, m *Manager, userID string, evt Event) {
	t.Helper()
	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	m.HandleMessage(userID, raw)
}

func joinProject(t *testing.T, m *Manager, userID, projectID string) {
	t.Helper()
	send(t, m, userID, Event{Type: EventJoinProject, ProjectID: projectID})
}

func TestManagerJoinFlow(t *testing.T) {
	m, store := newTestManager()
	store.AddProject("p1", false, "alice", "bob")

	alice := connectUser(m, "alice")
	bob := connectUser(m, "bob")

	joinProject(t, m, "alice", "p1")
	require.Len(t, alice.EventsOfType(EventProjectJoined), 1)
	assert.Empty(t, alice.EventsOfType(EventProjectJoined)[0].ActiveUsers, "first joiner sees an empty room")
	assert.True(t, store.SessionActive("p1"), "first join opens the session")

	joinProject(t, m, "bob", "p1")
	joined := bob.EventsOfType(EventProjectJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, []string{"alice"}, joined[0].ActiveUsers, "joiner sees who was already there")

	notified := alice.EventsOfType(EventUserJoined)
	require.Len(t, notified, 1)
	assert.Equal(t, "bob", notified[0].UserID)
	assert.Empty(t, bob.EventsOfType(EventUserJoined), "joiner is not told about their own join")

	assert.Equal(t, []string{"alice", "bob"}, m.Members("p1"))

	// XP for joining is awarded asynchronously and never blocks the join
	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.xp["alice"] == 10
	}, time.Second, 10*time.Millisecond)
}

func TestManagerJoinUnknownProject(t *testing.T) {
	m, _ := newTestManager()
	alice := connectUser(m, "alice")

	joinProject(t, m, "alice", "ghost")

	errs := alice.EventsOfType(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "NotFound", errs[0].Error.Kind)
	assert.Empty(t, m.Members("ghost"))
}

func TestManagerJoinForbidden(t *testing.T) {
	m, store := newTestManager()
	store.AddProject("private", false, "alice")

	carol := connectUser(m, "carol")
	joinProject(t, m, "carol", "private")

	errs := carol.EventsOfType(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Forbidden", errs[0].Error.Kind)
	assert.Empty(t, m.Members("private"))
}

func TestManagerPublicProjectAllowsAnyReader(t *testing.T) {
	m, store := newTestManager()
	store.AddProject("open", true, "alice")

	carol := connectUser(m, "carol")
	joinProject(t, m, "carol", "open")

	assert.Empty(t, carol.EventsOfType(EventError))
	assert.Equal(t, []string{"carol"}, m.Members("open"))
}

func TestManagerMalformedEvents(t *testing.T) {
	m, store := newTestManager()
	store.AddProject("p1", false, "alice")
	alice := connectUser(m, "alice")

	frames := [][]byte{
		[]byte("not json at all"),
		[]byte(`{"type":"join_project"}`),
		[]byte(`{"type":"teleport","project_id":"p1"}`),
		[]byte(`{"type":"code_change","project_id":"p1","file_id":"f1","change":{"operation_id":"op-1","change_type":"insert","range":{"start":5,"end":2}}}`),
		[]byte(`{"type":"chat_message","project_id":"p1"}`),
	}
	for _, raw := range frames {
		m.HandleMessage("alice", raw)
	}

	errs := alice.EventsOfType(EventError)
	require.Len(t, errs, len(frames))
	for _, evt := range errs {
		assert.Equal(t, "MalformedEvent", evt.Error.Kind)
	}
	// A bad frame never costs the connection
	assert.True(t, m.registry.Connected("alice"))
}

func setupEditingRoom(t *testing.T) (*Manager, *MemStore, *fakeConn, *fakeConn) {
	t.Helper()
	m, store := newTestManager()
	store.AddProject("p1", false, "alice", "bob")
	store.AddFile("f1", "p1", "Hello World")

	alice := connectUser(m, "alice")
	bob := connectUser(m, "bob")
	joinProject(t, m, "alice", "p1")
	joinProject(t, m, "bob", "p1")
	return m, store, alice, bob
}

func codeChange(projectID, fileID, opID, parentID string) Event {
	return Event{
		Type:      EventCodeChange,
		ProjectID: projectID,
		FileID:    fileID,
		Change: &ChangePayload{
			OperationID:       opID,
			ParentOperationID: parentID,
			ChangeType:        "insert",
			Range:             Range{Start: 11, End: 11},
			NewContent:        "!",
		},
	}
}

func TestManagerCodeChangeBroadcast(t *testing.T) {
	m, store, alice, bob := setupEditingRoom(t)

	send(t, m, "alice", codeChange("p1", "f1", "op-1", ""))

	require.Empty(t, alice.EventsOfType(EventError))
	changes := bob.EventsOfType(EventCodeChange)
	require.Len(t, changes, 1)
	assert.Equal(t, "alice", changes[0].UserID)
	assert.Equal(t, 2, changes[0].Version)
	assert.Equal(t, "op-1", changes[0].Change.OperationID)

	assert.Empty(t, alice.EventsOfType(EventCodeChange), "originator gets no echo")

	state, err := store.FileState("f1")
	require.NoError(t, err)
	assert.Equal(t, "Hello World!", state.Content)
}

func TestManagerCodeChangeTransformsStaleProposal(t *testing.T) {
	m, _, alice, bob := setupEditingRoom(t)

	// Alice edits first; bob proposes against the same empty parent, so the
	// engine rebases his insert past hers before broadcasting.
	send(t, m, "alice", Event{
		Type: EventCodeChange, ProjectID: "p1", FileID: "f1",
		Change: &ChangePayload{
			OperationID: "op-a", ChangeType: "insert",
			Range: Range{Start: 5, End: 5}, NewContent: "X",
		},
	})
	send(t, m, "bob", Event{
		Type: EventCodeChange, ProjectID: "p1", FileID: "f1",
		Change: &ChangePayload{
			OperationID: "op-b", ChangeType: "insert",
			Range: Range{Start: 5, End: 5}, NewContent: "Y",
		},
	})

	require.Empty(t, bob.EventsOfType(EventError))

	// Alice hears bob's operation after the rebase, not as he sent it
	changes := alice.EventsOfType(EventCodeChange)
	require.Len(t, changes, 1)
	assert.Equal(t, "op-b", changes[0].Change.OperationID)
	assert.Equal(t, 6, changes[0].Change.Range.Start, "broadcast carries transformed positions")
	assert.Equal(t, "op-a", changes[0].Change.ParentOperationID, "parent rewritten to the head")
}

func TestManagerCodeChangeWithoutWritePermission(t *testing.T) {
	m, store, alice, bob := setupEditingRoom(t)
	store.RevokeWrite("p1", "bob")

	send(t, m, "bob", codeChange("p1", "f1", "op-1", ""))

	errs := bob.EventsOfType(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Forbidden", errs[0].Error.Kind)
	assert.Empty(t, alice.EventsOfType(EventCodeChange), "rejected edits are never broadcast")
	assert.Empty(t, store.Log("f1"))
}

func TestManagerCodeChangeOnLockedFile(t *testing.T) {
	m, store, alice, _ := setupEditingRoom(t)
	store.LockFile("f1", "bob")

	send(t, m, "alice", codeChange("p1", "f1", "op-1", ""))

	errs := alice.EventsOfType(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "FileLocked", errs[0].Error.Kind)
}

func TestManagerCodeChangeStaleParent(t *testing.T) {
	m, _, alice, _ := setupEditingRoom(t)

	send(t, m, "alice", codeChange("p1", "f1", "op-2", "vanished"))

	errs := alice.EventsOfType(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "StaleOperation", errs[0].Error.Kind)
}

func TestManagerChatBroadcast(t *testing.T) {
	m, store, alice, bob := setupEditingRoom(t)

	send(t, m, "alice", Event{Type: EventChatMessage, ProjectID: "p1", Content: "ship it"})

	// Chat reaches the whole room, sender included
	require.Len(t, alice.EventsOfType(EventChatMessage), 1)
	require.Len(t, bob.EventsOfType(EventChatMessage), 1)
	assert.Equal(t, "ship it", bob.EventsOfType(EventChatMessage)[0].Content)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.chat["p1"], 1)
	assert.Equal(t, "text", store.chat["p1"][0].MessageType)
}

func TestManagerCursorMoveBroadcast(t *testing.T) {
	m, _, alice, bob := setupEditingRoom(t)

	send(t, m, "alice", Event{
		Type: EventCursorMove, ProjectID: "p1", FileID: "f1",
		Position: &CursorPayload{Line: 12, Column: 4},
	})

	moves := bob.EventsOfType(EventCursorMove)
	require.Len(t, moves, 1)
	assert.Equal(t, 12, moves[0].Position.Line)
	assert.Empty(t, alice.EventsOfType(EventCursorMove))
}

func TestManagerFileSwitchUpdatesOpenFiles(t *testing.T) {
	m, _, _, bob := setupEditingRoom(t)

	send(t, m, "alice", Event{Type: EventFileSwitch, ProjectID: "p1", FileID: "f1"})

	require.Len(t, bob.EventsOfType(EventFileSwitch), 1)
	assert.Equal(t, []string{"f1"}, m.presence.OpenFiles("p1"))
}

func TestManagerVoiceAndScreenShare(t *testing.T) {
	m, store, alice, bob := setupEditingRoom(t)

	send(t, m, "alice", Event{Type: EventVoiceJoin, ProjectID: "p1"})
	require.Len(t, alice.EventsOfType(EventVoiceJoined), 1)
	require.Len(t, bob.EventsOfType(EventVoiceJoined), 1)

	send(t, m, "bob", Event{Type: EventScreenShareStart, ProjectID: "p1"})
	require.Len(t, alice.EventsOfType(EventScreenShareStarted), 1)

	store.mu.Lock()
	assert.True(t, store.voice["p1"])
	assert.Equal(t, "bob", store.screenShare["p1"])
	store.mu.Unlock()

	send(t, m, "bob", Event{Type: EventScreenShareStop, ProjectID: "p1"})
	store.mu.Lock()
	_, sharing := store.screenShare["p1"]
	store.mu.Unlock()
	assert.False(t, sharing)
}

func TestManagerLeaveProject(t *testing.T) {
	m, store, alice, bob := setupEditingRoom(t)

	send(t, m, "alice", Event{Type: EventLeaveProject, ProjectID: "p1"})
	left := bob.EventsOfType(EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "alice", left[0].UserID)
	assert.True(t, store.SessionActive("p1"), "session survives while a member remains")

	send(t, m, "bob", Event{Type: EventLeaveProject, ProjectID: "p1"})
	assert.False(t, store.SessionActive("p1"), "last leaver closes the session")
	assert.Empty(t, alice.EventsOfType(EventUserLeft), "nobody left to notify")
}

func TestManagerDisconnectIsIdempotent(t *testing.T) {
	m, store, _, bob := setupEditingRoom(t)

	m.Disconnect("alice")
	m.Disconnect("alice")

	left := bob.EventsOfType(EventUserLeft)
	require.Len(t, left, 1, "repeated disconnects emit a single departure")
	assert.Equal(t, "alice", left[0].UserID)
	assert.Equal(t, []string{"bob"}, m.Members("p1"))
	assert.True(t, store.SessionActive("p1"), "bob keeps the session alive")
}

func TestManagerDisconnectClosesEmptySession(t *testing.T) {
	m, store := newTestManager()
	store.AddProject("p1", false, "alice")
	connectUser(m, "alice")
	joinProject(t, m, "alice", "p1")
	require.True(t, store.SessionActive("p1"))

	// A dropped socket, not an explicit leave_project
	m.Disconnect("alice")

	assert.False(t, store.SessionActive("p1"), "last member dropping closes the session")
	assert.Empty(t, m.Members("p1"))
}

func TestManagerReconnectKeepsMembership(t *testing.T) {
	m, store := newTestManager()
	store.AddProject("p1", false, "alice")
	stale := connectUser(m, "alice")
	joinProject(t, m, "alice", "p1")

	// Reconnect replaces the registration; then the old read loop exits.
	fresh := connectUser(m, "alice")
	m.DisconnectConn("alice", stale)

	assert.Equal(t, []string{"alice"}, m.Members("p1"), "reconnect keeps the room membership")
	assert.True(t, store.SessionActive("p1"))
	assert.False(t, fresh.Closed())

	m.registry.Deliver("alice", Event{Type: EventChatMessage})
	assert.Len(t, fresh.EventsOfType(EventChatMessage), 1)
}

func TestManagerVoiceChannelOutlivesOneLeaver(t *testing.T) {
	m, store, _, _ := setupEditingRoom(t)

	send(t, m, "alice", Event{Type: EventVoiceJoin, ProjectID: "p1"})
	send(t, m, "bob", Event{Type: EventVoiceJoin, ProjectID: "p1"})

	send(t, m, "alice", Event{Type: EventVoiceLeave, ProjectID: "p1"})
	store.mu.Lock()
	active := store.voice["p1"]
	store.mu.Unlock()
	assert.True(t, active, "bob is still in the channel")

	send(t, m, "bob", Event{Type: EventVoiceLeave, ProjectID: "p1"})
	store.mu.Lock()
	active = store.voice["p1"]
	store.mu.Unlock()
	assert.False(t, active, "last participant leaving clears the channel")
}

func TestManagerDisconnectClearsVoiceChannel(t *testing.T) {
	m, store, _, _ := setupEditingRoom(t)

	send(t, m, "alice", Event{Type: EventVoiceJoin, ProjectID: "p1"})
	m.Disconnect("alice")

	store.mu.Lock()
	active := store.voice["p1"]
	store.mu.Unlock()
	assert.False(t, active, "sole participant dropping clears the channel")
	assert.Equal(t, []string{"bob"}, m.Members("p1"))
}

func TestManagerDisconnectLeavesEveryRoom(t *testing.T) {
	m, store := newTestManager()
	store.AddProject("p1", false, "alice", "bob")
	store.AddProject("p2", false, "alice", "bob")

	connectUser(m, "alice")
	bob := connectUser(m, "bob")
	joinProject(t, m, "alice", "p1")
	joinProject(t, m, "alice", "p2")
	joinProject(t, m, "bob", "p1")
	joinProject(t, m, "bob", "p2")

	m.Disconnect("alice")

	assert.Len(t, bob.EventsOfType(EventUserLeft), 2, "one departure per shared room")
	assert.Empty(t, m.presence.ProjectsOf("alice"))
}

func TestManagerStats(t *testing.T) {
	m, store := newTestManager()
	store.AddProject("p1", false, "alice")

	connectUser(m, "alice")
	connectUser(m, "bob")
	joinProject(t, m, "alice", "p1")

	connections, rooms := m.Stats()
	assert.Equal(t, 2, connections)
	assert.Equal(t, 1, rooms)
}
