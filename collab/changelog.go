package collab

import (
	"fmt"
	"sync"
)

// ChangeLog is the append-only operation log, one ordered sequence per file.
// All mutation of file content flows through Append, which is serialized per
// file, making it the single-writer point even with many concurrent editors.
type ChangeLog struct {
	store Store

	mu        sync.Mutex
	fileLocks map[string]*sync.Mutex
}

func NewChangeLog(store Store) *ChangeLog {
	return &ChangeLog{
		store:     store,
		fileLocks: make(map[string]*sync.Mutex),
	}
}

// lockFile serializes the accept path for one file and returns the unlock
func (l *ChangeLog) lockFile(fileID string) func() {
	l.mu.Lock()
	fl, ok := l.fileLocks[fileID]
	if !ok {
		fl = &sync.Mutex{}
		l.fileLocks[fileID] = fl
	}
	l.mu.Unlock()

	fl.Lock()
	return fl.Unlock
}

// Append accepts an operation against the given snapshot. The stored
// operation's parent is rewritten to the current head regardless of what the
// client claimed, so the log forms a single causal chain per file. Once
// appended an operation is never rolled back.
func (l *ChangeLog) Append(state *FileState, op Operation, newContent string) (Operation, error) {
	op.FileID = state.FileID
	op.ParentID = state.HeadOperationID
	if err := l.store.AppendChange(op, newContent, state.Version+1); err != nil {
		return Operation{}, fmt.Errorf("appending change: %w", err)
	}
	return op, nil
}

// History returns the operations accepted after sinceOpID, in acceptance
// order. A sinceOpID that is no longer resolvable yields ErrStaleOperation;
// the client must refetch the file snapshot.
func (l *ChangeLog) History(fileID, sinceOpID string) ([]Operation, error) {
	ops, ok, err := l.store.ChangesSince(fileID, sinceOpID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStaleOperation
	}
	return ops, nil
}
