package collab

import (
	"sort"
	"sync"
)

// cursorState is the ephemeral per-user editing state within a room
type cursorState struct {
	fileID   string
	position CursorPayload
}

// Presence is the live room-membership index. Membership is bidirectional:
// a user is in rooms[p] exactly when p is in users[u]. Rooms with no
// remaining members are removed from the index entirely.
type Presence struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]struct{}    // projectID -> set of userIDs
	users   map[string]map[string]struct{}    // userID -> set of projectIDs
	cursors map[string]map[string]cursorState // projectID -> userID -> cursor
	voice   map[string]map[string]struct{}    // projectID -> voice channel members
}

func NewPresence() *Presence {
	return &Presence{
		rooms:   make(map[string]map[string]struct{}),
		users:   make(map[string]map[string]struct{}),
		cursors: make(map[string]map[string]cursorState),
		voice:   make(map[string]map[string]struct{}),
	}
}

// Join adds the user to a project room. Returns true if this made them the
// room's first member.
func (p *Presence) Join(userID, projectID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	first := len(p.rooms[projectID]) == 0
	if p.rooms[projectID] == nil {
		p.rooms[projectID] = make(map[string]struct{})
	}
	p.rooms[projectID][userID] = struct{}{}

	if p.users[userID] == nil {
		p.users[userID] = make(map[string]struct{})
	}
	p.users[userID][projectID] = struct{}{}
	return first
}

// Leave removes the user from a project room. Returns true if the room is
// now empty (and has been dropped from the index).
func (p *Presence) Leave(userID, projectID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leaveLocked(userID, projectID)
}

func (p *Presence) leaveLocked(userID, projectID string) bool {
	if members, ok := p.rooms[projectID]; ok {
		delete(members, userID)
		p.leaveVoiceLocked(userID, projectID)
		if cs, ok := p.cursors[projectID]; ok {
			delete(cs, userID)
			if len(cs) == 0 {
				delete(p.cursors, projectID)
			}
		}
		if len(members) == 0 {
			delete(p.rooms, projectID)
			delete(p.voice, projectID)
		}
	}
	if projects, ok := p.users[userID]; ok {
		delete(projects, projectID)
		if len(projects) == 0 {
			delete(p.users, userID)
		}
	}
	_, stillThere := p.rooms[projectID]
	return !stillThere
}

// LeaveAll removes the user from every room they are in, used on disconnect.
// It returns the affected project IDs and, separately, those whose rooms the
// departure left empty.
func (p *Presence) LeaveAll(userID string) (affected, emptied []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	affected = make([]string, 0, len(p.users[userID]))
	for projectID := range p.users[userID] {
		affected = append(affected, projectID)
	}
	sort.Strings(affected)
	for _, projectID := range affected {
		if p.leaveLocked(userID, projectID) {
			emptied = append(emptied, projectID)
		}
	}
	return affected, emptied
}

// MembersOf returns the users currently in a project room, sorted
func (p *Presence) MembersOf(projectID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	members := make([]string, 0, len(p.rooms[projectID]))
	for userID := range p.rooms[projectID] {
		members = append(members, userID)
	}
	sort.Strings(members)
	return members
}

// ProjectsOf returns the rooms a user is currently in, sorted
func (p *Presence) ProjectsOf(userID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	projects := make([]string, 0, len(p.users[userID]))
	for projectID := range p.users[userID] {
		projects = append(projects, projectID)
	}
	sort.Strings(projects)
	return projects
}

// SetCursor records the user's cursor within a room, overwriting any
// previous position. Cursor state is ephemeral and never persisted.
func (p *Presence) SetCursor(userID, projectID, fileID string, pos CursorPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.rooms[projectID][userID]; !ok {
		return
	}
	if p.cursors[projectID] == nil {
		p.cursors[projectID] = make(map[string]cursorState)
	}
	p.cursors[projectID][userID] = cursorState{fileID: fileID, position: pos}
}

// SetActiveFile records which file the user has open, keeping any cursor
func (p *Presence) SetActiveFile(userID, projectID, fileID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.rooms[projectID][userID]; !ok {
		return
	}
	if p.cursors[projectID] == nil {
		p.cursors[projectID] = make(map[string]cursorState)
	}
	cur := p.cursors[projectID][userID]
	cur.fileID = fileID
	p.cursors[projectID][userID] = cur
}

// JoinVoice puts a room member into the project's voice channel. Returns
// true when they are its first participant. Non-members are ignored.
func (p *Presence) JoinVoice(userID, projectID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.rooms[projectID][userID]; !ok {
		return false
	}
	first := len(p.voice[projectID]) == 0
	if p.voice[projectID] == nil {
		p.voice[projectID] = make(map[string]struct{})
	}
	p.voice[projectID][userID] = struct{}{}
	return first
}

// LeaveVoice removes the user from the project's voice channel. Returns
// true only when their departure left the channel empty.
func (p *Presence) LeaveVoice(userID, projectID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leaveVoiceLocked(userID, projectID)
}

func (p *Presence) leaveVoiceLocked(userID, projectID string) bool {
	members, ok := p.voice[projectID]
	if !ok {
		return false
	}
	if _, in := members[userID]; !in {
		return false
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(p.voice, projectID)
		return true
	}
	return false
}

// VoiceCount returns how many members are in the project's voice channel
func (p *Presence) VoiceCount(projectID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.voice[projectID])
}

// OpenFiles returns the distinct files room members currently have open
func (p *Presence) OpenFiles(projectID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, cur := range p.cursors[projectID] {
		if cur.fileID != "" {
			seen[cur.fileID] = struct{}{}
		}
	}
	files := make([]string, 0, len(seen))
	for fileID := range seen {
		files = append(files, fileID)
	}
	sort.Strings(files)
	return files
}

// RoomCount returns the number of rooms with at least one member
func (p *Presence) RoomCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rooms)
}
