package collab

import (
	"time"
)

// LockTTL is how long an exclusive file lock survives without activity
// before the engine treats it as abandoned.
const LockTTL = 60 * time.Second

// Engine is the operational transform engine. It accepts client-proposed
// operations computed against possibly-stale file versions and rebases them
// onto the current server-side state before appending them to the log.
type Engine struct {
	log *ChangeLog
}

func NewEngine(store Store) *Engine {
	return &Engine{log: NewChangeLog(store)}
}

// Accept transforms a proposed operation against every operation accepted
// since its claimed parent, applies it to the current snapshot and appends
// it. Returns the accepted operation, the resulting file content and the new
// version. A non-nil publish callback is invoked with those results before
// the file's accept lock is released, so callers can fan the operation out
// in log-acceptance order.
//
// Fails with ErrFileLocked when another user holds a live exclusive lock,
// ErrStaleOperation when the claimed parent is gone from the log, and
// ErrNotFound when the file does not exist.
func (e *Engine) Accept(userID string, proposed Operation, publish func(accepted Operation, content string, version int)) (Operation, string, int, error) {
	unlock := e.log.lockFile(proposed.FileID)
	defer unlock()

	state, err := e.log.store.FileState(proposed.FileID)
	if err != nil {
		return Operation{}, "", 0, err
	}

	if state.LockedBy != "" && state.LockedBy != userID && time.Since(state.LockedAt) < LockTTL {
		return Operation{}, "", 0, ErrFileLocked
	}

	missed, err := e.log.History(proposed.FileID, proposed.ParentID)
	if err != nil {
		return Operation{}, "", 0, err
	}

	proposed.UserID = userID
	transformed := Transform(proposed, missed)
	newContent := Apply(state.Content, transformed)

	accepted, err := e.log.Append(state, transformed, newContent)
	if err != nil {
		return Operation{}, "", 0, err
	}
	if publish != nil {
		publish(accepted, newContent, state.Version+1)
	}
	return accepted, newContent, state.Version + 1, nil
}

// History exposes the underlying log, restartable from any operation
func (e *Engine) History(fileID, sinceOpID string) ([]Operation, error) {
	return e.log.History(fileID, sinceOpID)
}

// Transform rebases a proposed operation across the operations it missed,
// in log order. Positions shift so the proposal still edits the text its
// author saw. Concurrent edits at the same position are ordered by the
// lexicographically smaller operation ID, giving every replica the same
// total order.
func Transform(proposed Operation, missed []Operation) Operation {
	for _, applied := range missed {
		if applied.ID == proposed.ID {
			continue
		}
		proposed = transformAgainst(proposed, applied)
	}
	return proposed
}

func transformAgainst(op, applied Operation) Operation {
	switch applied.Kind {
	case OpInsert:
		return shiftForInsert(op, applied.Start, len(applied.NewContent), applied.ID)
	case OpDelete:
		return shiftForDelete(op, applied.Start, applied.End)
	case OpReplace:
		op = shiftForDelete(op, applied.Start, applied.End)
		return shiftForInsert(op, applied.Start, len(applied.NewContent), applied.ID)
	}
	return op
}

// shiftForInsert moves op right when text was inserted before it. An insert
// at the exact same position wins only if its operation ID sorts first.
func shiftForInsert(op Operation, at, length int, appliedID string) Operation {
	if length == 0 {
		return op
	}
	if at < op.Start || (at == op.Start && appliedID < op.ID) {
		op.Start += length
		op.End += length
	} else if at < op.End {
		// Insert landed inside the span this op touches; grow the span so
		// the inserted text survives a delete/replace around it.
		op.End += length
	}
	return op
}

// shiftForDelete pulls op left by however much of [s, e) was removed before
// each of its endpoints. Overlapping ranges shrink instead of going negative.
func shiftForDelete(op Operation, s, e int) Operation {
	removedBefore := func(x int) int {
		if x <= s {
			return 0
		}
		if x >= e {
			return e - s
		}
		return x - s
	}
	op.Start -= removedBefore(op.Start)
	op.End -= removedBefore(op.End)
	return op
}

// Apply folds one operation into a content snapshot. Offsets are clamped to
// the current length so a drifted client cannot index out of bounds.
func Apply(content string, op Operation) string {
	start := clamp(op.Start, 0, len(content))
	end := clamp(op.End, start, len(content))

	switch op.Kind {
	case OpInsert:
		return content[:start] + op.NewContent + content[start:]
	case OpDelete:
		return content[:start] + content[end:]
	case OpReplace:
		return content[:start] + op.NewContent + content[end:]
	}
	return content
}

// Replay rebuilds a snapshot by folding a log over base content. The file's
// content column is only ever a cache of this fold.
func Replay(base string, ops []Operation) string {
	for _, op := range ops {
		base = Apply(base, op)
	}
	return base
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
