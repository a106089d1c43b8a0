package collab

import "time"

// OpKind is the closed set of edit operation kinds
type OpKind string

const (
	OpInsert  OpKind = "insert"
	OpDelete  OpKind = "delete"
	OpReplace OpKind = "replace"
)

// Operation is a single edit against a file: a half-open [Start, End)
// character range plus replacement text. ParentID is the operation the edit
// was composed against; the change log rewrites it to the accepted head at
// append time.
type Operation struct {
	ID         string
	ParentID   string
	FileID     string
	UserID     string
	Kind       OpKind
	Start      int
	End        int
	OldContent string
	NewContent string
}

// FileState is the snapshot of a file the engine transforms against
type FileState struct {
	FileID          string
	ProjectID       string
	Content         string
	Version         int
	HeadOperationID string
	LockedBy        string // empty when unlocked
	LockedAt        time.Time
}

// Store is the persistence boundary of the collaboration core. Schema and
// query mechanics live behind it; the core only appends operations and
// messages, loads snapshots and asks permission questions.
type Store interface {
	// Projects and permissions
	ProjectExists(projectID string) (bool, error)
	CanRead(projectID, userID string) (bool, error)
	CanWrite(projectID, userID string) (bool, error)

	// File snapshots and the per-file operation log
	FileState(fileID string) (*FileState, error)
	// AppendChange durably appends an accepted operation and updates the
	// file's derived content snapshot and version in one step.
	AppendChange(op Operation, newContent string, newVersion int) error
	// ChangesSince returns the operations accepted after sinceOpID in log
	// order. ok is false when sinceOpID is not resolvable in the log; an
	// empty sinceOpID means the whole log.
	ChangesSince(fileID, sinceOpID string) (ops []Operation, ok bool, err error)

	// Session bookkeeping
	OpenSession(projectID string) error
	CloseSession(projectID string) error
	SetSessionUsers(projectID string, userIDs []string) error
	SetVoiceState(projectID string, active bool) error
	SetScreenShare(projectID, userID string, active bool) error
	SaveChatMessage(projectID, userID, messageType, content string) error

	// Gamification hook, fire and forget
	AwardJoinXP(userID string) error
}
