// Package sse streams committed store changes to clients as Server-Sent Events.
//
// Every change event carries the revision it was committed at as its SSE id,
// so a reconnecting EventSource resumes through Last-Event-ID. The broker
// keeps the most recent changes for replay; a client that fell further behind
// gets a single resync event and should reload.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/snix/internal/metrics"
	"github.com/starford/snix/internal/models"
)

const (
	defaultHistory = 256
	clientBuffer   = 64
)

// Filter selects what a subscriber receives.
type Filter struct {
	// Kinds limits change events to these kinds; empty means all.
	Kinds []string
	// After replays retained changes committed after this revision.
	// Zero replays nothing.
	After uint64
}

// Subscription is one connected client. C is closed on Unsubscribe or
// when the broker stops.
type Subscription struct {
	C     chan []byte
	kinds map[string]bool
	after uint64
}

func (s *Subscription) wants(kind string) bool {
	return kind == "" || len(s.kinds) == 0 || s.kinds[kind]
}

// frame is one encoded event. kind is empty for events every subscriber
// receives.
type frame struct {
	kind     string
	revision uint64
	raw      []byte
}

// Broker fans committed changes out to subscribers.
//
// A single event loop goroutine owns the subscriber set, the replay history
// and the throttle timestamp; public methods talk to it over channels.
type Broker struct {
	indexMin  time.Duration
	keepalive time.Duration
	history   int

	subscribeCh   chan *Subscription
	unsubscribeCh chan *Subscription
	changeCh      chan models.Change
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one index.updated event per
// throttle interval.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	b := &Broker{
		indexMin:      throttle,
		keepalive:     30 * time.Second,
		history:       defaultHistory,
		subscribeCh:   make(chan *Subscription),
		unsubscribeCh: make(chan *Subscription),
		changeCh:      make(chan models.Change, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[*Subscription]struct{})
	var (
		retained  []frame
		evicted   uint64 // newest revision no longer retained
		latest    uint64
		lastIndex time.Time
	)

	send := func(sub *Subscription, f frame) {
		if !sub.wants(f.kind) {
			return
		}
		select {
		case sub.C <- f.raw:
		default:
			// Client buffer full; skip to avoid blocking the loop.
		}
	}

	for {
		select {
		case <-b.stopCh:
			for sub := range clients {
				close(sub.C)
			}
			metrics.SetEventClients(0)
			return

		case sub := <-b.subscribeCh:
			clients[sub] = struct{}{}
			metrics.SetEventClients(len(clients))
			if sub.after == 0 {
				continue
			}
			var replay []frame
			for _, f := range retained {
				if f.revision > sub.after && sub.wants(f.kind) {
					replay = append(replay, f)
				}
			}
			if sub.after < evicted || sub.after > latest || len(replay) > cap(sub.C) {
				metrics.EventResync()
				send(sub, encode(latest, "resync", map[string]uint64{"revision": latest}, ""))
				continue
			}
			for _, f := range replay {
				send(sub, f)
			}

		case sub := <-b.unsubscribeCh:
			if _, ok := clients[sub]; ok {
				delete(clients, sub)
				close(sub.C)
				metrics.SetEventClients(len(clients))
			}

		case c := <-b.changeCh:
			if c.Revision > latest {
				latest = c.Revision
			}
			f := encode(c.Revision, c.Kind+".changed", c, c.Kind)
			if len(retained) == b.history {
				evicted = retained[0].revision
				retained = append(retained[:0], retained[1:]...)
			}
			retained = append(retained, f)
			for sub := range clients {
				send(sub, f)
			}

			now := time.Now()
			if now.Sub(lastIndex) >= b.indexMin {
				lastIndex = now
				idx := encode(c.Revision, "index.updated", map[string]uint64{"revision": c.Revision}, "")
				for sub := range clients {
					send(sub, idx)
				}
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

func encode(revision uint64, event string, data any, kind string) frame {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}
	raw := fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", revision, event, payload)
	return frame{kind: kind, revision: revision, raw: []byte(raw)}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client. Retained changes newer than f.After are queued
// before anything published later.
func (b *Broker) Subscribe(f Filter) *Subscription {
	sub := &Subscription{C: make(chan []byte, clientBuffer), after: f.After}
	if len(f.Kinds) > 0 {
		sub.kinds = make(map[string]bool, len(f.Kinds))
		for _, k := range f.Kinds {
			sub.kinds[k] = true
		}
	}
	if b.closed.Load() {
		close(sub.C)
		return sub
	}

	select {
	case b.subscribeCh <- sub:
	case <-b.stopped:
		close(sub.C)
	}
	return sub
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- sub:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// PublishChange emits a "<kind>.changed" event followed by a throttled
// index.updated event. It is a snippetservice.ChangeHook.
func (b *Broker) PublishChange(c models.Change) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- c:
	case <-b.stopped:
	}
}

// ParseFilter reads the kinds query parameter (comma separated) and the
// Last-Event-ID header, falling back to the last_event_id parameter.
func ParseFilter(r *http.Request) (Filter, error) {
	var f Filter
	q := r.URL.Query()
	if raw := q.Get("kinds"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			k = strings.ToLower(strings.TrimSpace(k))
			if k == "" {
				continue
			}
			if !models.IsChangeKind(k) {
				return Filter{}, fmt.Errorf("unknown change kind %q", k)
			}
			f.Kinds = append(f.Kinds, k)
		}
	}
	last := r.Header.Get("Last-Event-ID")
	if last == "" {
		last = q.Get("last_event_id")
	}
	if last != "" {
		n, err := strconv.ParseUint(strings.TrimSpace(last), 10, 64)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid Last-Event-ID %q", last)
		}
		f.After = n
	}
	return f, nil
}

// ServeHTTP is the SSE endpoint handler (GET /events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	filter, err := ParseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := b.Subscribe(filter)
	defer b.Unsubscribe(sub)

	ping := time.NewTicker(b.keepalive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
