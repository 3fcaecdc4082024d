package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quivergql/quiver/language"
)

func mustDescriptor(t *testing.T, source, operationName string, vars language.Variables) *language.OperationDescriptor {
	t.Helper()
	req, err := language.NewRequest(source, operationName)
	require.NoError(t, err)
	return req.Describe(vars)
}

// seed normalizes a payload against the operation's root selector and
// publishes it, running one notify pass.
func seed(t *testing.T, s *Store, op *language.OperationDescriptor, payload map[string]any) {
	t.Helper()
	src, err := NormalizeResponse(RootSelector(op), payload)
	require.NoError(t, err)
	s.Publish(src)
	s.Notify()
}

const userQuery = `query UserQuery($id: ID!) {
	user(id: $id) {
		id
		name
	}
}`

func userPayload(name string) map[string]any {
	return map[string]any{
		"user": map[string]any{
			"__typename": "User",
			"id":         "1",
			"name":       name,
		},
	}
}
