package collab

import (
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory Store. It backs the package tests and is handy
// for running the websocket server without a database.
type MemStore struct {
	mu sync.Mutex

	projects    map[string]bool             // projectID -> public
	readers     map[string]map[string]bool  // projectID -> userID -> can read
	writers     map[string]map[string]bool  // projectID -> userID -> can write
	files       map[string]*FileState       // fileID -> snapshot
	logs        map[string][]Operation      // fileID -> accepted ops in order
	sessions    map[string]bool             // projectID -> session active
	sessionUser map[string][]string         // projectID -> live participants
	voice       map[string]bool             // projectID -> voice channel active
	screenShare map[string]string           // projectID -> sharing userID
	chat        map[string][]memChatMessage // projectID -> transcript
	xp          map[string]int              // userID -> awarded XP
}

type memChatMessage struct {
	UserID      string
	MessageType string
	Content     string
}

func NewMemStore() *MemStore {
	return &MemStore{
		projects:    make(map[string]bool),
		readers:     make(map[string]map[string]bool),
		writers:     make(map[string]map[string]bool),
		files:       make(map[string]*FileState),
		logs:        make(map[string][]Operation),
		sessions:    make(map[string]bool),
		sessionUser: make(map[string][]string),
		voice:       make(map[string]bool),
		screenShare: make(map[string]string),
		chat:        make(map[string][]memChatMessage),
		xp:          make(map[string]int),
	}
}

// AddProject registers a project; members get read and write access
func (s *MemStore) AddProject(projectID string, public bool, members ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[projectID] = public
	if s.readers[projectID] == nil {
		s.readers[projectID] = make(map[string]bool)
		s.writers[projectID] = make(map[string]bool)
	}
	for _, m := range members {
		s.readers[projectID][m] = true
		s.writers[projectID][m] = true
	}
}

// AddFile seeds a file snapshot with empty history
func (s *MemStore) AddFile(fileID, projectID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileID] = &FileState{
		FileID:    fileID,
		ProjectID: projectID,
		Content:   content,
		Version:   1,
	}
}

// RevokeWrite removes a member's write access, keeping read
func (s *MemStore) RevokeWrite(projectID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writers[projectID] != nil {
		s.writers[projectID][userID] = false
	}
}

// LockFile grants userID the exclusive edit lock on a file
func (s *MemStore) LockFile(fileID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[fileID]; ok {
		f.LockedBy = userID
		f.LockedAt = time.Now()
	}
}

func (s *MemStore) ProjectExists(projectID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.projects[projectID]
	return ok, nil
}

func (s *MemStore) CanRead(projectID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readers[projectID][userID] {
		return true, nil
	}
	return s.projects[projectID], nil
}

func (s *MemStore) CanWrite(projectID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writers[projectID][userID], nil
}

func (s *MemStore) FileState(fileID string) (*FileState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: file %s", ErrNotFound, fileID)
	}
	snapshot := *f
	return &snapshot, nil
}

func (s *MemStore) AppendChange(op Operation, newContent string, newVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[op.FileID]
	if !ok {
		return fmt.Errorf("%w: file %s", ErrNotFound, op.FileID)
	}
	s.logs[op.FileID] = append(s.logs[op.FileID], op)
	f.Content = newContent
	f.Version = newVersion
	f.HeadOperationID = op.ID
	return nil
}

func (s *MemStore) ChangesSince(fileID, sinceOpID string) ([]Operation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := s.logs[fileID]
	if sinceOpID == "" {
		return append([]Operation(nil), ops...), true, nil
	}
	for i, op := range ops {
		if op.ID == sinceOpID {
			return append([]Operation(nil), ops[i+1:]...), true, nil
		}
	}
	return nil, false, nil
}

// Log returns the accepted operations for a file, for assertions
func (s *MemStore) Log(fileID string) []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Operation(nil), s.logs[fileID]...)
}

func (s *MemStore) OpenSession(projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[projectID] = true
	return nil
}

func (s *MemStore) CloseSession(projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[projectID] = false
	s.sessionUser[projectID] = nil
	return nil
}

// SessionActive reports whether a project has a live session
func (s *MemStore) SessionActive(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[projectID]
}

func (s *MemStore) SetSessionUsers(projectID string, userIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionUser[projectID] = append([]string(nil), userIDs...)
	return nil
}

func (s *MemStore) SetVoiceState(projectID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice[projectID] = active
	return nil
}

func (s *MemStore) SetScreenShare(projectID, userID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		s.screenShare[projectID] = userID
	} else {
		delete(s.screenShare, projectID)
	}
	return nil
}

func (s *MemStore) SaveChatMessage(projectID, userID, messageType, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat[projectID] = append(s.chat[projectID], memChatMessage{
		UserID:      userID,
		MessageType: messageType,
		Content:     content,
	})
	return nil
}

func (s *MemStore) AwardJoinXP(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.xp[userID] += 10
	return nil
}
