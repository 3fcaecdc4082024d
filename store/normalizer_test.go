package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quivergql/quiver/language"
)

func TestNormalizeKeysRecordsByID(t *testing.T) {
	op := mustDescriptor(t, userQuery, "UserQuery", language.Variables{"id": "1"})
	src, err := NormalizeResponse(RootSelector(op), userPayload("Alice"))
	require.NoError(t, err)

	root := src.Get(RootID)
	require.NotNil(t, root)
	link, ok := root.Get(`user(id:"1")`)
	require.True(t, ok)
	id, isLink := link.Link()
	require.True(t, isLink)
	require.Equal(t, DataID("1"), id)

	user := src.Get("1")
	require.NotNil(t, user)
	require.Equal(t, "User", user.Type)
	name, _ := user.Get("name")
	scalar, _ := name.Scalar()
	require.Equal(t, "Alice", scalar)
}

func TestNormalizeFallsBackToClientIDs(t *testing.T) {
	op := mustDescriptor(t, `query SettingsQuery {
		settings { theme }
	}`, "SettingsQuery", nil)
	src, err := NormalizeResponse(RootSelector(op), map[string]any{
		"settings": map[string]any{"__typename": "Settings", "theme": "dark"},
	})
	require.NoError(t, err)

	id := ClientID(RootID, "settings")
	require.NotNil(t, src.Get(id))
	link, _ := src.Get(RootID).Get("settings")
	got, _ := link.Link()
	require.Equal(t, id, got)
}

func TestNormalizeLists(t *testing.T) {
	op := mustDescriptor(t, `query FriendsQuery {
		friends { id name }
	}`, "FriendsQuery", nil)
	src, err := NormalizeResponse(RootSelector(op), map[string]any{
		"friends": []any{
			map[string]any{"__typename": "User", "id": "2", "name": "Bob"},
			nil,
			map[string]any{"__typename": "User", "id": "3", "name": "Carol"},
		},
	})
	require.NoError(t, err)

	link, _ := src.Get(RootID).Get("friends")
	ids, isList := link.Links()
	require.True(t, isList)
	require.Equal(t, []DataID{"2", "", "3"}, ids)
	require.NotNil(t, src.Get("2"))
	require.NotNil(t, src.Get("3"))
}

func TestNormalizeExplicitNullAndAbsentKeys(t *testing.T) {
	op := mustDescriptor(t, `query UserQuery($id: ID!) {
		user(id: $id) { id name email }
	}`, "UserQuery", language.Variables{"id": "1"})
	src, err := NormalizeResponse(RootSelector(op), map[string]any{
		"user": map[string]any{"__typename": "User", "id": "1", "email": nil},
	})
	require.NoError(t, err)

	user := src.Get("1")
	email, ok := user.Get("email")
	require.True(t, ok)
	require.True(t, email.IsNull())
	_, ok = user.Get("name") // absent in payload, absent in record
	require.False(t, ok)
}

func TestNormalizeShapeMismatch(t *testing.T) {
	op := mustDescriptor(t, userQuery, "UserQuery", language.Variables{"id": "1"})
	_, err := NormalizeResponse(RootSelector(op), map[string]any{"user": "not an object"})
	require.Error(t, err)

	_, err = NormalizeResponse(RootSelector(op), map[string]any{"user": []any{"not an object"}})
	require.Error(t, err)
}

func TestNormalizeConnectionUsesStableKey(t *testing.T) {
	op := mustDescriptor(t, `query FeedQuery($count: Int, $cursor: String) {
		feed(first: $count, after: $cursor) @connection(key: "Feed_feed") {
			edges { cursor node { id name } }
			pageInfo { endCursor hasNextPage }
		}
	}`, "FeedQuery", language.Variables{"count": 2})
	src, err := NormalizeResponse(RootSelector(op), map[string]any{
		"feed": map[string]any{
			"__typename": "FeedConnection",
			"edges":      []any{},
			"pageInfo":   map[string]any{"__typename": "PageInfo", "endCursor": nil, "hasNextPage": false},
		},
	})
	require.NoError(t, err)

	// Pagination arguments are excluded from the storage key, so every page
	// of the connection lands on the same field.
	_, ok := src.Get(RootID).Get("__connection:Feed_feed")
	require.True(t, ok)
}

func TestResolvePathDescendsLinksAndLists(t *testing.T) {
	s := NewStore()
	op := mustDescriptor(t, `query UserQuery($id: ID!) {
		user(id: $id) {
			id
			friends { id name }
		}
	}`, "UserQuery", language.Variables{"id": "1"})
	seed(t, s, op, map[string]any{
		"user": map[string]any{
			"__typename": "User",
			"id":         "1",
			"friends": []any{
				map[string]any{"__typename": "User", "id": "2", "name": "Bob"},
			},
		},
	})

	sel, err := s.ResolvePath(RootSelector(op), []any{"user", "friends", 0})
	require.NoError(t, err)
	require.Equal(t, DataID("2"), sel.Root)
	require.Equal(t, RootSelector(op).Owner, sel.Owner)
}

func TestResolvePathErrors(t *testing.T) {
	s := NewStore()
	op := mustDescriptor(t, userQuery, "UserQuery", language.Variables{"id": "1"})
	seed(t, s, op, userPayload("Alice"))

	_, err := s.ResolvePath(RootSelector(op), []any{"missing"})
	require.Error(t, err)

	_, err = s.ResolvePath(RootSelector(op), []any{"user", "name"})
	require.Error(t, err) // scalar, not a link

	_, err = s.ResolvePath(RootSelector(op), []any{0})
	require.Error(t, err) // index where a field name was expected
}
