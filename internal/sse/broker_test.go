package sse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncRecorder guards the body so the handler goroutine and the test do not race.
type syncRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(p)
}

func (r *syncRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Body.String()
}

func next(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
		return ""
	}
}

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

// serve runs the handler until the returned stop func is called.
func serve(t *testing.T, b *Broker, req *http.Request) (*syncRecorder, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}
	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req.WithContext(ctx))
		close(done)
	}()
	deadline := time.Now().Add(time.Second)
	for b.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return w, func() {
		cancel()
		<-done
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers")
	}
	ch := b.Subscribe(0)
	if b.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber")
	}
	b.Unsubscribe(ch)
	if b.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe")
	}
}

func TestClaimEventsCarrySequenceAndThrottledFeed(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	b.PublishClaimEvent("claim.created", "c1")
	b.PublishClaimEvent("vote.cast", "c1")

	want := []string{
		"id: 1\nevent: claim.created\ndata: {\"id\":\"c1\"}",
		"id: 2\nevent: " + FeedUpdated,
		"id: 3\nevent: vote.cast",
	}
	for i, prefix := range want {
		if got := next(t, ch); !strings.HasPrefix(got, prefix) {
			t.Errorf("frame %d = %q, want prefix %q", i, got, prefix)
		}
	}
	time.Sleep(20 * time.Millisecond)
	if rest := drain(ch); len(rest) != 0 {
		t.Errorf("throttled feed.updated leaked: %q", rest)
	}
}

func TestSubscribeReplaysMissedFrames(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	first := b.Subscribe(0)
	b.PublishClaimEvent("claim.created", "a")
	b.PublishClaimEvent("claim.created", "b")
	b.PublishClaimEvent("claim.deleted", "a")
	for i := 0; i < 4; i++ {
		next(t, first)
	}
	b.Unsubscribe(first)

	// The client saw up to id 2 (feed.updated after "a").
	resumed := b.Subscribe(2)
	defer b.Unsubscribe(resumed)
	for _, want := range []string{"id: 3\n", "id: 4\n"} {
		if got := next(t, resumed); !strings.HasPrefix(got, want) {
			t.Errorf("replayed %q, want prefix %q", got, want)
		}
	}
	time.Sleep(20 * time.Millisecond)
	if rest := drain(resumed); len(rest) != 0 {
		t.Errorf("unexpected extra frames: %q", rest)
	}
}

func TestBacklogIsBounded(t *testing.T) {
	b := NewBroker(time.Hour, WithBacklog(2))
	defer b.Close()
	for i := 0; i < 5; i++ {
		b.PublishClaimEvent("claim.created", fmt.Sprintf("c%d", i))
	}
	time.Sleep(20 * time.Millisecond)

	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)
	for _, want := range []string{"id: 5\n", "id: 6\n"} {
		if got := next(t, ch); !strings.HasPrefix(got, want) {
			t.Errorf("replayed %q, want prefix %q", got, want)
		}
	}
	time.Sleep(20 * time.Millisecond)
	if rest := drain(ch); len(rest) != 0 {
		t.Errorf("frames older than the backlog replayed: %q", rest)
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	for i := 0; i < subscriberBuffer*2; i++ {
		b.PublishClaimEvent("vote.cast", "c")
	}
	if n := b.Subscribers(); n != 1 {
		t.Errorf("subscribers = %d", n)
	}
}

func TestHandlerStreamsAndResumes(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	b.PublishClaimEvent("claim.created", "old")
	time.Sleep(20 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set("Last-Event-ID", "1")
	w, stop := serve(t, b, req)

	b.PublishClaimEvent("claim.deleted", "gone")
	time.Sleep(50 * time.Millisecond)
	stop()

	body := w.body()
	if strings.Contains(body, "id: 1\n") {
		t.Errorf("frame before Last-Event-ID replayed: %q", body)
	}
	if !strings.Contains(body, "id: 2\nevent: "+FeedUpdated) || !strings.Contains(body, "event: claim.deleted") {
		t.Errorf("handler output = %q", body)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}

	time.Sleep(20 * time.Millisecond)
	if b.Subscribers() != 0 {
		t.Errorf("subscriber not removed after disconnect")
	}
}

func TestHandlerHeartbeat(t *testing.T) {
	b := NewBroker(time.Hour, WithHeartbeat(20*time.Millisecond))
	defer b.Close()

	w, stop := serve(t, b, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	time.Sleep(80 * time.Millisecond)
	stop()

	if !strings.Contains(w.body(), ": keepalive\n\n") {
		t.Errorf("no keepalive in %q", w.body())
	}
}

func TestLastEventIDQueryFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/events?lastEventId=7", nil)
	if got := lastEventID(req); got != 7 {
		t.Errorf("lastEventID = %d, want 7", got)
	}
	req.Header.Set("Last-Event-ID", "9")
	if got := lastEventID(req); got != 9 {
		t.Errorf("header should win, got %d", got)
	}
	if got := lastEventID(httptest.NewRequest(http.MethodGet, "/api/events?lastEventId=x", nil)); got != 0 {
		t.Errorf("garbage id = %d", got)
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe(0)

	b.Close()
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers after close")
	}
	b.PublishClaimEvent("claim.created", "x")
}
