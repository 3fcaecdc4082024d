package pagination

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	quiver "github.com/quivergql/quiver"
	"github.com/quivergql/quiver/language"
	"github.com/quivergql/quiver/network"
	"github.com/quivergql/quiver/store"
)

const feedQuery = `query FeedQuery($id: ID!, $count: Int, $cursor: String) {
	user(id: $id) {
		id
		feed(first: $count, after: $cursor) @connection(key: "User_feed") {
			edges {
				cursor
				node {
					id
					title
				}
			}
			pageInfo {
				startCursor
				endCursor
				hasNextPage
				hasPreviousPage
			}
		}
	}
}`

type pageInfo struct {
	startCursor any
	endCursor   any
	hasNext     bool
	hasPrevious bool
}

func feedPayload(cursors []string, info pageInfo) map[string]any {
	edges := make([]any, len(cursors))
	for i, cursor := range cursors {
		edges[i] = map[string]any{
			"cursor": cursor,
			"node": map[string]any{
				"__typename": "Story",
				"id":         "story:" + cursor,
				"title":      "Story " + cursor,
			},
		}
	}
	return map[string]any{
		"user": map[string]any{
			"__typename": "User",
			"id":         "u1",
			"feed": map[string]any{
				"__typename": "FeedConnection",
				"edges":      edges,
				"pageInfo": map[string]any{
					"__typename":      "PageInfo",
					"startCursor":     info.startCursor,
					"endCursor":       info.endCursor,
					"hasNextPage":     info.hasNext,
					"hasPreviousPage": info.hasPrevious,
				},
			},
		},
	}
}

type fixture struct {
	env *quiver.Environment
	net *network.MockNetwork
	op  *language.OperationDescriptor
	sel store.Selector
}

// newFixture seeds the first page and returns a selector rooted at the user
// record, the shape a mounted fragment consumer would hold.
func newFixture(t *testing.T, initial map[string]any) fixture {
	t.Helper()
	net := network.NewMockNetwork()
	env, err := quiver.NewEnvironment(quiver.Config{Network: net})
	require.NoError(t, err)

	req, err := language.NewRequest(feedQuery, "FeedQuery")
	require.NoError(t, err)
	op := req.Describe(language.Variables{"id": "u1", "count": 1})
	_, err = env.CommitPayload(op, initial)
	require.NoError(t, err)

	root := store.RootSelector(op)
	userField := language.Collect(op.Request.Document, root.Selections, op.Variables, "")[0]
	sel := store.Selector{
		Root:       "u1",
		Selections: userField.SelectionSet,
		Variables:  op.Variables,
		Owner:      op,
	}
	return fixture{env: env, net: net, op: op, sel: sel}
}

func newPaginator(t *testing.T, f fixture) *Paginator {
	t.Helper()
	p, err := New(Config{Environment: f.env, Selector: f.sel, Connection: "feed"})
	require.NoError(t, err)
	return p
}

func edgeCursors(t *testing.T, f fixture) []string {
	t.Helper()
	feed, _ := f.env.Lookup(f.sel).Data["feed"].(map[string]any)
	require.NotNil(t, feed)
	edges, _ := feed["edges"].([]any)
	cursors := make([]string, 0, len(edges))
	for _, raw := range edges {
		edge, _ := raw.(map[string]any)
		cursor, _ := edge["cursor"].(string)
		cursors = append(cursors, cursor)
	}
	return cursors
}

func firstPage() map[string]any {
	return feedPayload([]string{"cursor:1"}, pageInfo{
		startCursor: "cursor:1", endCursor: "cursor:1", hasNext: true, hasPrevious: false,
	})
}

func TestLoadNextAppendsNextPage(t *testing.T) {
	f := newFixture(t, firstPage())
	p := newPaginator(t, f)
	require.True(t, p.HasNext())
	require.False(t, p.HasPrevious())

	var completions []error
	p.LoadNext(1, LoadOptions{OnComplete: func(err error) { completions = append(completions, err) }})
	require.True(t, p.IsLoading())
	require.Equal(t, 1, f.net.FetchCount())

	fetch := f.net.LastFetch()
	require.Equal(t, "cursor:1", fetch.Variables["after"])
	require.Equal(t, 1, fetch.Variables["first"])
	require.Equal(t, "u1", fetch.Variables["id"])

	fetch.Next(&network.Payload{Data: feedPayload([]string{"cursor:2"}, pageInfo{
		endCursor: "cursor:2", hasNext: true,
	})})
	fetch.Complete()

	require.Equal(t, []error{nil}, completions)
	require.False(t, p.IsLoading())
	require.Equal(t, []string{"cursor:1", "cursor:2"}, edgeCursors(t, f))
	require.True(t, p.HasNext())
}

func TestLoadNextPreservesBackwardPageInfo(t *testing.T) {
	f := newFixture(t, feedPayload([]string{"cursor:1"}, pageInfo{
		startCursor: "cursor:1", endCursor: "cursor:1", hasNext: true, hasPrevious: true,
	}))
	p := newPaginator(t, f)

	p.LoadNext(1, LoadOptions{})
	fetch := f.net.LastFetch()
	fetch.Next(&network.Payload{Data: feedPayload([]string{"cursor:2"}, pageInfo{
		startCursor: "cursor:2", endCursor: "cursor:2", hasNext: false, hasPrevious: false,
	})})
	fetch.Complete()

	// Forward flags come from the new page; backward flags stay as they were.
	require.False(t, p.HasNext())
	require.True(t, p.HasPrevious())
	feed := f.env.Lookup(f.sel).Data["feed"].(map[string]any)
	info := feed["pageInfo"].(map[string]any)
	require.Equal(t, "cursor:1", info["startCursor"])
	require.Equal(t, "cursor:2", info["endCursor"])
}

func TestLoadPreviousPrependsPage(t *testing.T) {
	f := newFixture(t, feedPayload([]string{"cursor:1"}, pageInfo{
		startCursor: "cursor:1", endCursor: "cursor:1", hasNext: false, hasPrevious: true,
	}))
	p := newPaginator(t, f)
	require.True(t, p.HasPrevious())

	var got error = errors.New("sentinel")
	p.LoadPrevious(1, LoadOptions{OnComplete: func(err error) { got = err }})
	fetch := f.net.LastFetch()
	require.Equal(t, "cursor:1", fetch.Variables["before"])
	require.Equal(t, 1, fetch.Variables["last"])

	fetch.Next(&network.Payload{Data: feedPayload([]string{"cursor:0"}, pageInfo{
		startCursor: "cursor:0", hasPrevious: false,
	})})
	fetch.Complete()

	require.NoError(t, got)
	require.Equal(t, []string{"cursor:0", "cursor:1"}, edgeCursors(t, f))
	require.False(t, p.HasPrevious())
}

func TestLoadNextSkipsDuplicateCursors(t *testing.T) {
	f := newFixture(t, firstPage())
	p := newPaginator(t, f)

	p.LoadNext(2, LoadOptions{})
	fetch := f.net.LastFetch()
	// The server re-sends the boundary edge alongside the new one.
	fetch.Next(&network.Payload{Data: feedPayload([]string{"cursor:1", "cursor:2"}, pageInfo{
		endCursor: "cursor:2", hasNext: false,
	})})
	fetch.Complete()

	require.Equal(t, []string{"cursor:1", "cursor:2"}, edgeCursors(t, f))
}

func TestLoadNextErrorLeavesConnectionUnchanged(t *testing.T) {
	f := newFixture(t, firstPage())
	p := newPaginator(t, f)

	boom := errors.New("boom")
	var completions []error
	p.LoadNext(1, LoadOptions{OnComplete: func(err error) { completions = append(completions, err) }})
	f.net.LastFetch().Error(boom)

	require.Equal(t, []error{boom}, completions)
	require.Equal(t, []string{"cursor:1"}, edgeCursors(t, f))
	require.False(t, p.IsLoading())
	require.True(t, p.HasNext()) // still retryable
}

func TestExhaustedLoadCompletesWithoutFetching(t *testing.T) {
	f := newFixture(t, feedPayload([]string{"cursor:1"}, pageInfo{
		startCursor: "cursor:1", endCursor: "cursor:1", hasNext: false, hasPrevious: false,
	}))
	p := newPaginator(t, f)
	require.False(t, p.HasNext())

	var completions []error
	p.LoadNext(1, LoadOptions{OnComplete: func(err error) { completions = append(completions, err) }})
	require.Equal(t, []error{nil}, completions)
	require.Zero(t, f.net.FetchCount())
}

func TestConcurrentSameDirectionLoadPiggybacks(t *testing.T) {
	f := newFixture(t, firstPage())
	p := newPaginator(t, f)

	var first, second []error
	p.LoadNext(1, LoadOptions{OnComplete: func(err error) { first = append(first, err) }})
	p.LoadNext(1, LoadOptions{OnComplete: func(err error) { second = append(second, err) }})
	require.Equal(t, 1, f.net.FetchCount())

	boom := errors.New("boom")
	f.net.LastFetch().Error(boom)

	// The initiator sees the terminal error; the piggybacked caller only
	// learns the request it latched onto is over.
	require.Equal(t, []error{boom}, first)
	require.Equal(t, []error{nil}, second)
}

func TestOppositeDirectionLoadIsDropped(t *testing.T) {
	f := newFixture(t, feedPayload([]string{"cursor:1"}, pageInfo{
		startCursor: "cursor:1", endCursor: "cursor:1", hasNext: true, hasPrevious: true,
	}))
	p := newPaginator(t, f)

	p.LoadNext(1, LoadOptions{})
	called := false
	p.LoadPrevious(1, LoadOptions{OnComplete: func(error) { called = true }})
	require.Equal(t, 1, f.net.FetchCount())

	f.net.LastFetch().Complete()
	require.False(t, called)
}

func TestCancelSuppressesCompletion(t *testing.T) {
	f := newFixture(t, firstPage())
	p := newPaginator(t, f)

	called := false
	handle := p.LoadNext(1, LoadOptions{OnComplete: func(error) { called = true }})
	handle.Dispose()
	require.True(t, f.net.LastFetch().Canceled())
	require.False(t, p.IsLoading())

	// A straggling terminal from the canceled fetch changes nothing.
	f.net.LastFetch().Complete()
	require.False(t, called)
	require.Equal(t, []string{"cursor:1"}, edgeCursors(t, f))
}

func TestDisposeUnmountsPaginator(t *testing.T) {
	f := newFixture(t, firstPage())
	p := newPaginator(t, f)

	called := false
	p.LoadNext(1, LoadOptions{OnComplete: func(error) { called = true }})
	p.Dispose()
	require.True(t, f.net.LastFetch().Canceled())
	require.False(t, called)

	p.LoadNext(1, LoadOptions{OnComplete: func(error) { called = true }})
	require.Equal(t, 1, f.net.FetchCount())
	require.False(t, called)
}

func TestRefetchRestartsFromFreshVariables(t *testing.T) {
	f := newFixture(t, firstPage())
	p := newPaginator(t, f)

	p.LoadNext(1, LoadOptions{})
	require.Equal(t, 1, f.net.FetchCount())

	var got error = errors.New("sentinel")
	p.Refetch(context.Background(), language.Variables{"id": "u1", "count": 5}, func(err error) { got = err })
	require.True(t, f.net.Fetches()[0].Canceled())
	require.Equal(t, 2, f.net.FetchCount())

	fetch := f.net.LastFetch()
	require.Equal(t, 5, fetch.Variables["count"])
	fetch.Next(&network.Payload{Data: feedPayload([]string{"cursor:A"}, pageInfo{
		startCursor: "cursor:A", endCursor: "cursor:A", hasNext: true, hasPrevious: false,
	})})
	fetch.Complete()

	require.NoError(t, got)
	require.Equal(t, []string{"cursor:A"}, edgeCursors(t, f))
}

func TestNewValidatesConfiguration(t *testing.T) {
	f := newFixture(t, firstPage())

	_, err := New(Config{Selector: f.sel, Connection: "feed"})
	require.Error(t, err)
	_, err = New(Config{Environment: f.env, Selector: f.sel})
	require.Error(t, err)
	_, err = New(Config{Environment: f.env, Connection: "feed"})
	require.Error(t, err)
	_, err = New(Config{Environment: f.env, Selector: f.sel, Connection: "nope"})
	require.Error(t, err)

	// A field without @connection cannot be paginated.
	_, err = New(Config{Environment: f.env, Selector: f.sel, Connection: "id"})
	require.Error(t, err)
}
