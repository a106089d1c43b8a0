package collab

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *MemStore) {
	t.Helper()
	store := NewMemStore()
	store.AddProject("p1", false, "alice", "bob")
	store.AddFile("f1", "p1", "Hello World")
	return NewEngine(store), store
}

func TestEngineAcceptAppendsAndVersions(t *testing.T) {
	engine, store := newTestEngine(t)

	accepted, content, version, err := engine.Accept("alice", Operation{
		ID: "op-1", FileID: "f1", Kind: OpInsert, Start: 11, End: 11, NewContent: "!",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello World!", content)
	assert.Equal(t, 2, version)
	assert.Equal(t, "alice", accepted.UserID)
	assert.Empty(t, accepted.ParentID, "first op has no parent")

	state, err := store.FileState("f1")
	require.NoError(t, err)
	assert.Equal(t, "Hello World!", state.Content)
	assert.Equal(t, 2, state.Version)
	assert.Equal(t, "op-1", state.HeadOperationID)
}

func TestEngineRewritesParentToHead(t *testing.T) {
	engine, store := newTestEngine(t)

	for _, op := range []Operation{
		{ID: "op-1", FileID: "f1", Kind: OpInsert, Start: 11, End: 11, NewContent: "!"},
		{ID: "op-2", ParentID: "op-1", FileID: "f1", Kind: OpInsert, Start: 12, End: 12, NewContent: "!"},
	} {
		_, _, _, err := engine.Accept("alice", op, nil)
		require.NoError(t, err)
	}

	// Bob computed op-3 against op-1, missing op-2. The stored parent is the
	// head at accept time, not what bob claimed.
	accepted, _, version, err := engine.Accept("bob", Operation{
		ID: "op-3", ParentID: "op-1", FileID: "f1", Kind: OpInsert, Start: 0, End: 0, NewContent: ">",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "op-2", accepted.ParentID)
	assert.Equal(t, 4, version)

	log := store.Log("f1")
	require.Len(t, log, 3)
	for i := 1; i < len(log); i++ {
		assert.Equal(t, log[i-1].ID, log[i].ParentID, "log forms a single causal chain")
	}
}

func TestEnginePublishFollowsAcceptanceOrder(t *testing.T) {
	engine, _ := newTestEngine(t)

	var mu sync.Mutex
	var published []int

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(writer int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				op := Operation{
					ID:         fmt.Sprintf("w%d-%03d", writer, i),
					FileID:     "f1",
					Kind:       OpInsert,
					Start:      0,
					End:        0,
					NewContent: "x",
				}
				_, _, _, err := engine.Accept("alice", op, func(_ Operation, _ string, version int) {
					mu.Lock()
					published = append(published, version)
					mu.Unlock()
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	// The publish callback runs before the file's accept lock is released,
	// so concurrent writers observe publishes in log-acceptance order.
	require.Len(t, published, 100)
	for i := 1; i < len(published); i++ {
		require.Equal(t, published[i-1]+1, published[i])
	}
}

func TestEngineVersionsAreMonotonic(t *testing.T) {
	engine, _ := newTestEngine(t)

	prev := 1
	ops := []Operation{
		{ID: "op-1", FileID: "f1", Kind: OpInsert, Start: 0, End: 0, NewContent: "a"},
		{ID: "op-2", ParentID: "op-1", FileID: "f1", Kind: OpDelete, Start: 0, End: 1},
		{ID: "op-3", ParentID: "op-2", FileID: "f1", Kind: OpReplace, Start: 0, End: 5, NewContent: "Howdy"},
	}
	for _, op := range ops {
		_, _, version, err := engine.Accept("alice", op, nil)
		require.NoError(t, err)
		assert.Equal(t, prev+1, version)
		prev = version
	}
}

func TestEngineConcurrentEditsConverge(t *testing.T) {
	engine, store := newTestEngine(t)

	// Both clients propose against the empty head; acceptance order plus the
	// ID tie-break decides final placement.
	_, _, _, err := engine.Accept("alice", Operation{
		ID: "aaa", FileID: "f1", Kind: OpInsert, Start: 5, End: 5, NewContent: "X",
	}, nil)
	require.NoError(t, err)
	_, content, version, err := engine.Accept("bob", Operation{
		ID: "bbb", FileID: "f1", Kind: OpInsert, Start: 5, End: 5, NewContent: "Y",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "HelloXY World", content)
	assert.Equal(t, 3, version)
	assert.Equal(t, content, Replay("Hello World", store.Log("f1")))
}

func TestEngineStaleParent(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, _, _, err := engine.Accept("alice", Operation{
		ID: "op-1", FileID: "f1", Kind: OpInsert, Start: 0, End: 0, NewContent: "a",
	}, nil)
	require.NoError(t, err)

	_, _, _, err = engine.Accept("bob", Operation{
		ID: "op-2", ParentID: "gone", FileID: "f1", Kind: OpInsert, Start: 0, End: 0, NewContent: "b",
	}, nil)
	assert.ErrorIs(t, err, ErrStaleOperation)
}

func TestEngineFileLock(t *testing.T) {
	engine, store := newTestEngine(t)
	store.LockFile("f1", "bob")

	_, _, _, err := engine.Accept("alice", Operation{
		ID: "op-1", FileID: "f1", Kind: OpInsert, Start: 0, End: 0, NewContent: "a",
	}, nil)
	assert.ErrorIs(t, err, ErrFileLocked)

	// The lock holder can still edit
	_, _, _, err = engine.Accept("bob", Operation{
		ID: "op-2", FileID: "f1", Kind: OpInsert, Start: 0, End: 0, NewContent: "b",
	}, nil)
	assert.NoError(t, err)
}

func TestEngineExpiredLockIsIgnored(t *testing.T) {
	engine, store := newTestEngine(t)
	store.mu.Lock()
	store.files["f1"].LockedBy = "bob"
	store.files["f1"].LockedAt = time.Now().Add(-2 * LockTTL)
	store.mu.Unlock()

	_, _, _, err := engine.Accept("alice", Operation{
		ID: "op-1", FileID: "f1", Kind: OpInsert, Start: 0, End: 0, NewContent: "a",
	}, nil)
	assert.NoError(t, err, "an abandoned lock does not block edits")
}

func TestEngineUnknownFile(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, _, _, err := engine.Accept("alice", Operation{
		ID: "op-1", FileID: "missing", Kind: OpInsert, Start: 0, End: 0, NewContent: "a",
	}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistoryFromEmptyReturnsWholeLog(t *testing.T) {
	engine, _ := newTestEngine(t)

	for _, op := range []Operation{
		{ID: "op-1", FileID: "f1", Kind: OpInsert, Start: 0, End: 0, NewContent: "a"},
		{ID: "op-2", ParentID: "op-1", FileID: "f1", Kind: OpInsert, Start: 1, End: 1, NewContent: "b"},
	} {
		_, _, _, err := engine.Accept("alice", op, nil)
		require.NoError(t, err)
	}

	all, err := engine.History("f1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	since, err := engine.History("f1", "op-1")
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "op-2", since[0].ID)

	_, err = engine.History("f1", "never-existed")
	assert.ErrorIs(t, err, ErrStaleOperation)
}
