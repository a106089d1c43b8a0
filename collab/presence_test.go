package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceJoinLeave(t *testing.T) {
	p := NewPresence()

	assert.True(t, p.Join("alice", "p1"), "first member of the room")
	assert.False(t, p.Join("bob", "p1"))
	assert.False(t, p.Join("alice", "p1"), "re-join is not a first join")

	assert.Equal(t, []string{"alice", "bob"}, p.MembersOf("p1"))
	assert.Equal(t, []string{"p1"}, p.ProjectsOf("alice"))

	assert.False(t, p.Leave("alice", "p1"), "room still occupied")
	assert.True(t, p.Leave("bob", "p1"), "room now empty")
	assert.Empty(t, p.MembersOf("p1"))
	assert.Equal(t, 0, p.RoomCount())
}

func TestPresenceMembershipIsBidirectional(t *testing.T) {
	p := NewPresence()
	p.Join("alice", "p1")
	p.Join("alice", "p2")
	p.Join("bob", "p1")

	// Every membership is visible from both sides of the index
	for _, projectID := range p.ProjectsOf("alice") {
		assert.Contains(t, p.MembersOf(projectID), "alice")
	}
	for _, userID := range p.MembersOf("p1") {
		assert.Contains(t, p.ProjectsOf(userID), "p1")
	}

	p.Leave("alice", "p1")
	assert.NotContains(t, p.MembersOf("p1"), "alice")
	assert.NotContains(t, p.ProjectsOf("alice"), "p1")
	assert.Contains(t, p.ProjectsOf("alice"), "p2")
}

func TestPresenceLeaveAll(t *testing.T) {
	p := NewPresence()
	p.Join("alice", "p2")
	p.Join("alice", "p1")
	p.Join("bob", "p1")

	affected, emptied := p.LeaveAll("alice")
	assert.Equal(t, []string{"p1", "p2"}, affected)
	assert.Equal(t, []string{"p2"}, emptied, "bob keeps p1 alive")
	assert.Empty(t, p.ProjectsOf("alice"))
	assert.Equal(t, []string{"bob"}, p.MembersOf("p1"))

	// A second LeaveAll for the same user touches nothing
	affected, emptied = p.LeaveAll("alice")
	assert.Empty(t, affected)
	assert.Empty(t, emptied)
}

func TestPresenceVoiceChannel(t *testing.T) {
	p := NewPresence()
	p.Join("alice", "p1")
	p.Join("bob", "p1")

	assert.True(t, p.JoinVoice("alice", "p1"), "first participant")
	assert.False(t, p.JoinVoice("bob", "p1"))
	assert.Equal(t, 2, p.VoiceCount("p1"))

	assert.False(t, p.LeaveVoice("alice", "p1"), "bob is still in the channel")
	assert.True(t, p.LeaveVoice("bob", "p1"), "channel now empty")
	assert.False(t, p.LeaveVoice("bob", "p1"), "double leave is a no-op")

	// Only room members can join the channel
	assert.False(t, p.JoinVoice("carol", "p1"))
	assert.Equal(t, 0, p.VoiceCount("p1"))

	// Leaving the room drops the member from the channel too
	p.JoinVoice("alice", "p1")
	p.Leave("alice", "p1")
	assert.Equal(t, 0, p.VoiceCount("p1"))
}

func TestPresenceLeaveUnknownRoom(t *testing.T) {
	p := NewPresence()
	assert.True(t, p.Leave("ghost", "nowhere"), "an absent room reads as empty")
}

func TestPresenceCursors(t *testing.T) {
	p := NewPresence()
	p.Join("alice", "p1")
	p.Join("bob", "p1")

	p.SetCursor("alice", "p1", "main.go", CursorPayload{Line: 3, Column: 7})
	p.SetActiveFile("bob", "p1", "util.go")
	assert.Equal(t, []string{"main.go", "util.go"}, p.OpenFiles("p1"))

	// Cursor updates from non-members are dropped
	p.SetCursor("carol", "p1", "sneaky.go", CursorPayload{})
	assert.Equal(t, []string{"main.go", "util.go"}, p.OpenFiles("p1"))

	// Leaving clears the member's cursor state
	p.Leave("alice", "p1")
	assert.Equal(t, []string{"util.go"}, p.OpenFiles("p1"))
}
