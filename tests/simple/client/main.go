// A self-contained walkthrough: it starts a tiny GraphQL server over a
// canned story feed, then drives the client stack against it - resource
// cache, pagination, and an optimistic edit - logging each step.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	quiver "github.com/quivergql/quiver"
	"github.com/quivergql/quiver/language"
	"github.com/quivergql/quiver/network"
	"github.com/quivergql/quiver/pagination"
	"github.com/quivergql/quiver/resource"
	"github.com/quivergql/quiver/store"
	"github.com/quivergql/quiver/telemetry"
)

const feedQuery = `query FeedQuery($count: Int, $cursor: String) {
	viewer {
		id
		name
		feed(first: $count, after: $cursor) @connection(key: "Viewer_feed") {
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

type story struct {
	ID    string
	Title string
}

var stories = []story{
	{ID: "story-1", Title: "Getting Started with Go"},
	{ID: "story-2", Title: "Normalized Caching Explained"},
	{ID: "story-3", Title: "Cursor Pagination in Practice"},
	{ID: "story-4", Title: "Optimistic UI Without Tears"},
	{ID: "story-5", Title: "Draft: Untitled"},
}

type gqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// serveFeed answers FeedQuery with a window of the story list, honoring the
// first/after pagination variables.
func serveFeed(w http.ResponseWriter, r *http.Request) {
	var req gqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	first := 2
	if n, ok := req.Variables["first"].(float64); ok {
		first = int(n)
	} else if n, ok := req.Variables["count"].(float64); ok {
		first = int(n)
	}
	start := 0
	if after, ok := req.Variables["after"].(string); ok && after != "" {
		for i := range stories {
			if cursorOf(i) == after {
				start = i + 1
				break
			}
		}
	}
	end := start + first
	if end > len(stories) {
		end = len(stories)
	}

	edges := make([]any, 0, end-start)
	for i := start; i < end; i++ {
		edges = append(edges, map[string]any{
			"cursor": cursorOf(i),
			"node": map[string]any{
				"__typename": "Story",
				"id":         stories[i].ID,
				"title":      stories[i].Title,
			},
		})
	}
	pageInfo := map[string]any{
		"__typename":      "PageInfo",
		"startCursor":     nil,
		"endCursor":       nil,
		"hasNextPage":     end < len(stories),
		"hasPreviousPage": start > 0,
	}
	if len(edges) > 0 {
		pageInfo["startCursor"] = cursorOf(start)
		pageInfo["endCursor"] = cursorOf(end - 1)
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{
			"viewer": map[string]any{
				"__typename": "Viewer",
				"id":         "viewer",
				"name":       "Demo Viewer",
				"feed": map[string]any{
					"__typename": "StoryConnection",
					"edges":      edges,
					"pageInfo":   pageInfo,
				},
			},
		},
	})
}

func cursorOf(i int) string { return fmt.Sprintf("cursor:%d", i+1) }

func main() {
	addr := flag.String("addr", "127.0.0.1:0", "the address to serve the demo GraphQL endpoint on")
	flag.Parse()

	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		log.WithError(err).Fatal("listen")
	}
	server := &http.Server{Handler: http.HandlerFunc(serveFeed)}
	go func() { _ = server.Serve(lis) }()
	defer server.Close()
	endpoint := "http://" + lis.Addr().String()
	log.WithField("endpoint", endpoint).Info("demo GraphQL server up")

	reg := prometheus.NewRegistry()
	env, err := quiver.NewEnvironment(quiver.Config{
		Network: network.NewHTTP(endpoint),
	}, quiver.WithLogger(log), quiver.WithEventsLogger(telemetry.Metrics(reg)))
	if err != nil {
		log.WithError(err).Fatal("environment")
	}
	defer env.Close()

	req, err := language.NewRequest(feedQuery, "FeedQuery")
	if err != nil {
		log.WithError(err).Fatal("parse query")
	}
	op := req.Describe(language.Variables{"count": 2})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	caches := resource.NewRegistry()
	cache := caches.For(env)
	defer caches.Release(env)

	res, err := cache.Prepare(ctx, op, resource.StoreOrNetwork, resource.RenderFull, nil, "")
	if err != nil {
		log.WithError(err).Fatal("prepare")
	}
	if pending, ok := res.Suspend(); ok {
		log.Info("first render suspends on the network")
		if err := pending.Wait(ctx); err != nil {
			log.WithError(err).Fatal("fetch")
		}
		res, err = cache.Prepare(ctx, op, resource.StoreOrNetwork, resource.RenderFull, nil, "")
		if err != nil {
			log.WithError(err).Fatal("prepare")
		}
	}
	result, ok := res.Ready()
	if !ok {
		terr, _ := res.Err()
		log.WithError(terr).Fatal("resolve")
	}
	hold := cache.Retain(result)
	defer hold.Dispose()

	// A mounted consumer reads the viewer fragment, not the query root.
	root := store.RootSelector(op)
	viewerField := language.Collect(op.Request.Document, root.Selections, op.Variables, "")[0]
	sel := store.Selector{
		Root:       "viewer",
		Selections: viewerField.SelectionSet,
		Variables:  op.Variables,
		Owner:      op,
	}
	printFeed(log, env, sel, "initial page")

	paginator, err := pagination.New(pagination.Config{
		Environment: env,
		Selector:    sel,
		Connection:  "feed",
	})
	if err != nil {
		log.WithError(err).Fatal("paginator")
	}
	defer paginator.Dispose()

	for paginator.HasNext() {
		done := make(chan error, 1)
		paginator.LoadNext(2, pagination.LoadOptions{OnComplete: func(err error) { done <- err }})
		select {
		case err := <-done:
			if err != nil {
				log.WithError(err).Fatal("load next page")
			}
		case <-ctx.Done():
			log.Fatal("timed out paginating")
		}
		printFeed(log, env, sel, "after loadNext")
	}

	revert, err := env.ApplyOptimistic(func(p *store.Proxy) error {
		p.GetOrCreate("story-1", "Story").SetScalar("title", "Getting Started with Go (edited)")
		return nil
	})
	if err != nil {
		log.WithError(err).Fatal("optimistic update")
	}
	printFeed(log, env, sel, "with optimistic edit")
	revert.Dispose()
	printFeed(log, env, sel, "after revert")

	families, err := reg.Gather()
	if err != nil {
		log.WithError(err).Fatal("gather metrics")
	}
	for _, mf := range families {
		log.WithField("metric", mf.GetName()).Debug("recorded")
	}
}

func printFeed(log logrus.FieldLogger, env *quiver.Environment, sel store.Selector, label string) {
	snap := env.Lookup(sel)
	feed, _ := snap.Data["feed"].(map[string]any)
	if feed == nil {
		log.WithField("step", label).Warn("no feed in store")
		return
	}
	edges, _ := feed["edges"].([]any)
	titles := make([]string, 0, len(edges))
	for _, raw := range edges {
		edge, _ := raw.(map[string]any)
		node, _ := edge["node"].(map[string]any)
		title, _ := node["title"].(string)
		titles = append(titles, title)
	}
	log.WithField("step", label).WithField("stories", titles).Info("feed")
}
