// Package sse streams claim and vote activity to connected clients.
//
// Every frame carries a monotonically increasing id. A client that drops and
// reconnects with Last-Event-ID receives the frames it missed, as long as
// they are still in the backlog.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// FeedUpdated is broadcast at most once per throttle interval after any claim
// activity, telling clients to refetch the feed.
const FeedUpdated = "feed.updated"

const (
	defaultBacklog   = 128
	defaultHeartbeat = 15 * time.Second
	subscriberBuffer = 64
)

// Event is one activity notification.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type frame struct {
	seq uint64
	raw []byte
}

type subscription struct {
	ch    chan []byte
	after uint64
}

// Option configures a Broker.
type Option func(*Broker)

// WithBacklog sets how many recent frames are kept for replay.
func WithBacklog(n int) Option {
	return func(b *Broker) {
		if n >= 0 {
			b.backlogSize = n
		}
	}
}

// WithHeartbeat sets the interval of keepalive comments on idle streams.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// Broker fans claim activity out to SSE subscribers.
//
// The loop goroutine owns the subscriber set, the sequence counter, the
// backlog and the feed throttle. Everything else reaches it over channels.
type Broker struct {
	feedEvery   time.Duration
	backlogSize int
	heartbeat   time.Duration

	joinCh  chan subscription
	leaveCh chan chan []byte
	eventCh chan Event
	countCh chan chan int

	quit    chan struct{}
	done    chan struct{}
	closing atomic.Bool
}

// NewBroker starts a broker that emits feed.updated at most once per
// feedThrottle.
func NewBroker(feedThrottle time.Duration, opts ...Option) *Broker {
	if feedThrottle <= 0 {
		feedThrottle = 2 * time.Second
	}
	b := &Broker{
		feedEvery:   feedThrottle,
		backlogSize: defaultBacklog,
		heartbeat:   defaultHeartbeat,
		joinCh:      make(chan subscription),
		leaveCh:     make(chan chan []byte),
		eventCh:     make(chan Event, 256),
		countCh:     make(chan chan int),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.done)

	subs := make(map[chan []byte]struct{})
	backlog := make([]frame, 0, b.backlogSize)
	var (
		seq      uint64
		lastFeed time.Time
	)

	send := func(ev Event) {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		seq++
		f := frame{seq: seq, raw: []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Type, payload))}
		if b.backlogSize > 0 {
			if len(backlog) == b.backlogSize {
				backlog = append(backlog[:0], backlog[1:]...)
			}
			backlog = append(backlog, f)
		}
		for ch := range subs {
			select {
			case ch <- f.raw:
			default:
				// Subscriber is behind; it can catch up via Last-Event-ID.
			}
		}
	}

	for {
		select {
		case <-b.quit:
			for ch := range subs {
				close(ch)
			}
			return

		case s := <-b.joinCh:
			if s.after > 0 {
				for _, f := range backlog {
					if f.seq <= s.after {
						continue
					}
					select {
					case s.ch <- f.raw:
					default:
					}
				}
			}
			subs[s.ch] = struct{}{}

		case ch := <-b.leaveCh:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case ev := <-b.eventCh:
			send(ev)
			if ev.Type == FeedUpdated {
				continue
			}
			if now := time.Now(); now.Sub(lastFeed) >= b.feedEvery {
				lastFeed = now
				send(Event{Type: FeedUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countCh:
			resp <- len(subs)
		}
	}
}

// Close stops the broker and closes every subscriber channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closing.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.done
}

// Subscribe registers a subscriber. Frames with an id above after that are
// still in the backlog are queued first; after 0 skips replay.
func (b *Broker) Subscribe(after uint64) chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	if b.closing.Load() {
		close(ch)
		return ch
	}
	select {
	case b.joinCh <- subscription{ch: ch, after: after}:
	case <-b.done:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closing.Load() {
		return
	}
	select {
	case b.leaveCh <- ch:
	case <-b.done:
	}
}

// Subscribers returns the number of open streams.
func (b *Broker) Subscribers() int {
	if b.closing.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countCh <- resp:
	case <-b.done:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.done:
		return 0
	}
}

// PublishClaimEvent announces kind for claimID, followed by a throttled
// feed.updated.
func (b *Broker) PublishClaimEvent(kind, claimID string) {
	if b.closing.Load() {
		return
	}
	select {
	case b.eventCh <- Event{Type: kind, Data: map[string]string{"id": claimID}}:
	case <-b.done:
	}
}

// ServeHTTP streams events (GET /api/events). Idle streams get a comment
// line every heartbeat so intermediaries keep them open.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(lastEventID(r))
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

// lastEventID reads the resume point from the Last-Event-ID header, falling
// back to the lastEventId query parameter for clients that cannot set headers.
func lastEventID(r *http.Request) uint64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
