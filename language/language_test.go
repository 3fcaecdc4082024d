package language

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustParseField(t *testing.T, query string) *Field {
	t.Helper()
	doc, err := ParseQuery(query)
	require.NoError(t, err)
	field, ok := doc.Operations[0].SelectionSet[0].(*Field)
	require.True(t, ok)
	return field
}

func TestVariablesCanonicalOrderIndependent(t *testing.T) {
	a := Variables{"b": 2, "a": map[string]any{"y": true, "x": []any{1, "s"}}}
	b := Variables{"a": map[string]any{"x": []any{1, "s"}, "y": true}, "b": 2}
	require.Equal(t, a.Canonical(), b.Canonical())
	require.True(t, a.Equal(b))
	require.Equal(t, `{"a":{"x":[1,"s"],"y":true},"b":2}`, a.Canonical())
}

func TestVariablesCanonicalEmpty(t *testing.T) {
	require.Equal(t, "{}", Variables(nil).Canonical())
	require.Equal(t, "{}", Variables{}.Canonical())
}

func TestStorageKeyNoArguments(t *testing.T) {
	field := mustParseField(t, "{ name }")
	require.Equal(t, "name", StorageKey(field, nil))
}

func TestStorageKeySortsArgumentsAndSubstitutesVariables(t *testing.T) {
	field := mustParseField(t, `query($n: Int!) { friends(first: $n, after: "c1") }`)
	require.Equal(t, `friends(after:"c1",first:10)`, StorageKey(field, Variables{"n": 10}))
}

func TestStorageKeyConnectionStable(t *testing.T) {
	page1 := mustParseField(t, `{ friends(first: 2) @connection(key: "User_friends") { edges { cursor } } }`)
	page2 := mustParseField(t, `{ friends(first: 2, after: "c2") @connection(key: "User_friends") { edges { cursor } } }`)
	require.Equal(t, StorageKey(page1, nil), StorageKey(page2, nil))
	require.Equal(t, "__connection:User_friends", StorageKey(page1, nil))
}

func TestConnectionInfoMissingKey(t *testing.T) {
	field := mustParseField(t, `{ friends(first: 2) @connection { edges { cursor } } }`)
	_, err := ConnectionInfo(field)
	require.ErrorIs(t, err, ErrMissingConnectionKey)
}

func TestShouldIncludeSkipAndInclude(t *testing.T) {
	doc, err := ParseQuery(`query($on: Boolean!, $off: Boolean!) {
		a @skip(if: $off)
		b @skip(if: $on)
		c @include(if: $on)
		d @include(if: $off)
	}`)
	require.NoError(t, err)
	vars := Variables{"on": true, "off": false}

	got := map[string]bool{}
	for _, sel := range doc.Operations[0].SelectionSet {
		field := sel.(*Field)
		got[field.Name] = ShouldInclude(field.Directives, vars)
	}
	require.Equal(t, map[string]bool{"a": true, "b": false, "c": true, "d": false}, got)
}

func TestCollectResolvesFragmentsByTypeCondition(t *testing.T) {
	doc, err := ParseQuery(`query {
		node { ...userFields ... on Post { title } }
	}
	fragment userFields on User { name }`)
	require.NoError(t, err)
	node := doc.Operations[0].SelectionSet[0].(*Field)

	asUser := Collect(doc, node.SelectionSet, nil, "User")
	require.Len(t, asUser, 1)
	require.Equal(t, "name", asUser[0].Name)

	asPost := Collect(doc, node.SelectionSet, nil, "Post")
	require.Len(t, asPost, 1)
	require.Equal(t, "title", asPost[0].Name)

	unknown := Collect(doc, node.SelectionSet, nil, "")
	require.Len(t, unknown, 2)
}

func TestCollectMergesDuplicateResponseNames(t *testing.T) {
	doc, err := ParseQuery(`{ user { id } user { name } }`)
	require.NoError(t, err)
	fields := Collect(doc, doc.Operations[0].SelectionSet, nil, "")
	require.Len(t, fields, 1)
	require.Len(t, fields[0].SelectionSet, 2)
}

func TestRequestIdentity(t *testing.T) {
	req, err := NewRequest(`query UserQuery($id: ID!) { user(id: $id) { name } }`, "UserQuery")
	require.NoError(t, err)
	require.Equal(t, Query, req.Kind)

	d1 := req.Describe(Variables{"id": "1"})
	d2 := req.Describe(Variables{"id": "1"})
	d3 := req.Describe(Variables{"id": "2"})
	require.Equal(t, d1.ID(), d2.ID())
	require.NotEqual(t, d1.ID(), d3.ID())
}

func TestNewRequestUnknownOperation(t *testing.T) {
	_, err := NewRequest(`query A { a } query B { b }`, "C")
	require.Error(t, err)
}
