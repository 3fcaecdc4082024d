package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quivergql/quiver/events"
)

func timeNow() time.Time { return time.Now() }

// Metrics registers the cache's Prometheus collectors with reg and returns
// an events.Logger feeding them.
func Metrics(reg prometheus.Registerer) events.Logger {
	factory := promauto.With(reg)

	fetches := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiver",
		Subsystem: "fetch",
		Name:      "total",
		Help:      "Fetches by outcome",
	}, []string{"outcome"})
	fetchDuration := factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "quiver",
		Subsystem: "fetch",
		Name:      "duration_seconds",
		Help:      "Fetch duration from start to terminal event",
	})
	publishedRecords := factory.NewCounter(prometheus.CounterOpts{
		Namespace: "quiver",
		Subsystem: "store",
		Name:      "published_records_total",
		Help:      "Records merged into the store",
	})
	notifyChanged := factory.NewCounter(prometheus.CounterOpts{
		Namespace: "quiver",
		Subsystem: "store",
		Name:      "notified_subscriptions_total",
		Help:      "Subscription callbacks fired by notify passes",
	})
	gcCollected := factory.NewCounter(prometheus.CounterOpts{
		Namespace: "quiver",
		Subsystem: "store",
		Name:      "gc_collected_total",
		Help:      "Records removed by mark-and-sweep",
	})
	resourceOps := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiver",
		Subsystem: "resource",
		Name:      "cache_total",
		Help:      "Resource cache accesses and evictions",
	}, []string{"op"})
	pageLoads := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiver",
		Subsystem: "pagination",
		Name:      "loads_total",
		Help:      "Page loads by direction",
	}, []string{"direction"})

	return func(e events.Event) {
		switch ev := e.(type) {
		case events.FetchFinish:
			outcome := "ok"
			if ev.Err != nil {
				outcome = "error"
			}
			fetches.WithLabelValues(outcome).Inc()
			fetchDuration.Observe(ev.Duration.Seconds())
		case events.StorePublish:
			publishedRecords.Add(float64(ev.Records))
		case events.StoreNotify:
			notifyChanged.Add(float64(ev.Changed))
		case events.StoreGC:
			gcCollected.Add(float64(ev.Collected))
		case events.ResourceHit:
			resourceOps.WithLabelValues("hit").Inc()
		case events.ResourceMiss:
			resourceOps.WithLabelValues("miss").Inc()
		case events.ResourceEvict:
			resourceOps.WithLabelValues("evict").Inc()
		case events.PageLoad:
			pageLoads.WithLabelValues(ev.Direction).Inc()
		}
	}
}
