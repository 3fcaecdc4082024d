package store

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/quivergql/quiver/language"
)

func userName(t *testing.T, s *Store, op *language.OperationDescriptor) string {
	t.Helper()
	user, _ := s.Lookup(RootSelector(op)).Data["user"].(map[string]any)
	name, _ := user["name"].(string)
	return name
}

func setNameUpdater(name string) Updater {
	return func(p *Proxy) error {
		rec := p.GetOrCreate("1", "User")
		rec.SetScalar("name", name)
		return nil
	}
}

func TestRunAppliesCommitsInOrder(t *testing.T) {
	s := NewStore()
	op := mustDescriptor(t, userQuery, "UserQuery", language.Variables{"id": "1"})
	q := NewPublishQueue(s)

	q.CommitPayload(op, userPayload("Alice"))
	q.CommitPayload(op, userPayload("Eve"))
	affected, err := q.Run()
	require.NoError(t, err)
	require.Empty(t, affected) // no subscriptions yet

	require.Equal(t, "Eve", userName(t, s, op))
}

func TestRunReturnsDistinctAffectedRequests(t *testing.T) {
	s := NewStore()
	op := mustDescriptor(t, userQuery, "UserQuery", language.Variables{"id": "1"})
	q := NewPublishQueue(s)
	q.CommitPayload(op, userPayload("Alice"))
	_, err := q.Run()
	require.NoError(t, err)

	sel := RootSelector(op)
	s.Subscribe(s.Lookup(sel), func(Snapshot) {})
	s.Subscribe(s.Lookup(sel), func(Snapshot) {})

	q.CommitPayload(op, userPayload("Eve"))
	affected, err := q.Run()
	require.NoError(t, err)
	require.Equal(t, []RequestID{sel.RequestID()}, affected)
}

func TestOptimisticRevertIsOrderIndependent(t *testing.T) {
	s := NewStore()
	op := mustDescriptor(t, `query UserQuery($id: ID!) {
		user(id: $id) { id name email }
	}`, "UserQuery", language.Variables{"id": "1"})
	q := NewPublishQueue(s)
	q.CommitPayload(op, map[string]any{
		"user": map[string]any{"__typename": "User", "id": "1", "name": "Alice", "email": "a@x"},
	})
	_, err := q.Run()
	require.NoError(t, err)

	a := NewOptimisticUpdate(setNameUpdater("OptimisticA"))
	b := NewOptimisticUpdate(func(p *Proxy) error {
		p.GetOrCreate("1", "User").SetScalar("email", "b@x")
		return nil
	})
	q.ApplyOptimistic(a)
	q.ApplyOptimistic(b)
	_, err = q.Run()
	require.NoError(t, err)
	require.Equal(t, "OptimisticA", userName(t, s, op))

	// Reverting A leaves the store as if only B had ever been applied.
	q.RevertOptimistic(a.Token)
	_, err = q.Run()
	require.NoError(t, err)
	user := s.Lookup(RootSelector(op)).Data["user"].(map[string]any)
	require.Equal(t, "Alice", user["name"])
	require.Equal(t, "b@x", user["email"])
}

func TestCommitUnderOptimisticOverlay(t *testing.T) {
	s := NewStore()
	op := mustDescriptor(t, userQuery, "UserQuery", language.Variables{"id": "1"})
	q := NewPublishQueue(s)
	q.CommitPayload(op, userPayload("Alice"))
	_, err := q.Run()
	require.NoError(t, err)

	a := NewOptimisticUpdate(setNameUpdater("Optimistic"))
	q.ApplyOptimistic(a)
	_, err = q.Run()
	require.NoError(t, err)

	// A server payload lands under the overlay; the optimistic value stays
	// on top until reverted.
	q.CommitPayload(op, userPayload("ServerName"))
	_, err = q.Run()
	require.NoError(t, err)
	require.Equal(t, "Optimistic", userName(t, s, op))

	q.RevertOptimistic(a.Token)
	_, err = q.Run()
	require.NoError(t, err)
	require.Equal(t, "ServerName", userName(t, s, op))
}

func TestRevertAll(t *testing.T) {
	s := NewStore()
	op := mustDescriptor(t, userQuery, "UserQuery", language.Variables{"id": "1"})
	q := NewPublishQueue(s)
	q.CommitPayload(op, userPayload("Alice"))
	_, err := q.Run()
	require.NoError(t, err)

	q.ApplyOptimistic(NewOptimisticUpdate(setNameUpdater("A")))
	q.ApplyOptimistic(NewOptimisticUpdate(setNameUpdater("B")))
	_, err = q.Run()
	require.NoError(t, err)
	require.Equal(t, "B", userName(t, s, op))

	q.RevertAll()
	_, err = q.Run()
	require.NoError(t, err)
	require.Equal(t, "Alice", userName(t, s, op))
}

func TestUpdaterFailureDoesNotCorruptPass(t *testing.T) {
	s := NewStore()
	op := mustDescriptor(t, userQuery, "UserQuery", language.Variables{"id": "1"})
	q := NewPublishQueue(s)

	boom := errors.New("boom")
	q.CommitPayload(op, userPayload("Alice"))
	q.CommitUpdater(func(*Proxy) error { return boom })
	q.CommitUpdater(setNameUpdater("AfterFailure"))
	_, err := q.Run()
	require.ErrorIs(t, err, boom)

	// Work before and after the failing updater landed.
	require.Equal(t, "AfterFailure", userName(t, s, op))
}

func TestRevertUnknownTokenPanics(t *testing.T) {
	s := NewStore()
	q := NewPublishQueue(s)
	q.RevertOptimistic(uuid.New())
	require.Panics(t, func() { _, _ = q.Run() })
}

func TestCommitSource(t *testing.T) {
	s := NewStore()
	op := mustDescriptor(t, userQuery, "UserQuery", language.Variables{"id": "1"})
	q := NewPublishQueue(s)

	src := NewMapSource()
	root := NewRecord(RootID, RootType)
	root.Set(`user(id:"1")`, LinkValue("1"))
	src.Set(RootID, root)
	user := NewRecord("1", "User")
	user.Set("id", ScalarValue("1"))
	user.Set("name", ScalarValue("Alice"))
	src.Set("1", user)
	q.CommitSource(src)
	_, err := q.Run()
	require.NoError(t, err)

	require.True(t, s.Check(RootSelector(op)))
}
