// Package events defines the instrumentation events emitted by the cache
// core and the logger callback that receives them. The logger is an
// explicit dependency configured on the owning environment; there is no
// process-global dispatcher.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is the closed set of instrumentation events.
type Event interface {
	event()
}

// Logger receives events. Implementations must be cheap and non-blocking;
// they run synchronously on the emitting path.
type Logger func(Event)

// Nop discards all events.
func Nop(Event) {}

// Multi fans one event out to several loggers in order.
func Multi(loggers ...Logger) Logger {
	return func(e Event) {
		for _, l := range loggers {
			l(e)
		}
	}
}

// FetchStart is emitted when a network fetch begins.
type FetchStart struct {
	RequestID uuid.UUID
	Operation string
}

// FetchPayload is emitted for every payload a fetch delivers.
type FetchPayload struct {
	RequestID uuid.UUID
	Operation string
	Final     bool
}

// FetchFinish is emitted when a fetch terminates, by completion or error.
type FetchFinish struct {
	RequestID uuid.UUID
	Operation string
	Err       error
	Duration  time.Duration
}

// StorePublish is emitted after records are merged into the source.
type StorePublish struct {
	Records int
}

// StoreNotify is emitted after a notify pass.
type StoreNotify struct {
	Subscribers int
	Changed     int
}

// StoreGC is emitted after a mark-and-sweep pass.
type StoreGC struct {
	Live      int
	Collected int
	Duration  time.Duration
}

// ResourceHit is emitted when a prepared operation is served from the
// resource cache.
type ResourceHit struct{ Key string }

// ResourceMiss is emitted when a prepared operation creates a new resource
// cache entry.
type ResourceMiss struct{ Key string }

// ResourceEvict is emitted when a resource cache entry is discarded.
type ResourceEvict struct{ Key string }

// PageLoad is emitted when a pagination fetch is issued.
type PageLoad struct {
	Direction string
	Count     int
}

func (FetchStart) event()    {}
func (FetchPayload) event()  {}
func (FetchFinish) event()   {}
func (StorePublish) event()  {}
func (StoreNotify) event()   {}
func (StoreGC) event()       {}
func (ResourceHit) event()   {}
func (ResourceMiss) event()  {}
func (ResourceEvict) event() {}
func (PageLoad) event()      {}
