package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"genestore/internal/slogutil"
)

func receive(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case e := <-s.C:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubRoutesByProject(t *testing.T) {
	h := NewHub(4)
	p1 := h.Subscribe("p1")
	all := h.Subscribe(AllProjects)
	defer p1.Close()
	defer all.Close()

	h.Publish(Event{Kind: Saved, ProjectID: "p2", SHA: "abc"})
	h.Publish(Event{Kind: Written, ProjectID: "p1"})

	if e := receive(t, all); e.ProjectID != "p2" || e.Kind != Saved {
		t.Errorf("all-projects first event = %+v", e)
	}
	if e := receive(t, all); e.ProjectID != "p1" {
		t.Errorf("all-projects second event = %+v", e)
	}
	e := receive(t, p1)
	if e.Kind != Written {
		t.Errorf("p1 event = %+v", e)
	}
	if e.Time == 0 {
		t.Error("Publish should stamp the event time")
	}
	select {
	case extra := <-p1.C:
		t.Errorf("p1 received another project's event: %+v", extra)
	default:
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub(1)
	s := h.Subscribe("p1")
	defer s.Close()

	h.Publish(Event{Kind: Written, ProjectID: "p1"})
	h.Publish(Event{Kind: Written, ProjectID: "p1"})

	if got := h.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func TestSubscriptionClose(t *testing.T) {
	h := NewHub(1)
	s := h.Subscribe("p1")
	if h.Subscribers("p1") != 1 {
		t.Fatalf("Subscribers() = %d", h.Subscribers("p1"))
	}
	s.Close()
	s.Close()

	if _, ok := <-s.C; ok {
		t.Error("C should be closed")
	}
	if h.Subscribers("p1") != 0 {
		t.Errorf("Subscribers() after Close = %d", h.Subscribers("p1"))
	}
	// publishing after close must not panic
	h.Publish(Event{Kind: Deleted, ProjectID: "p1"})
}

func TestWebsocketHandler(t *testing.T) {
	h := NewHub(8)
	mux := http.NewServeMux()
	mux.Handle("GET /events/{projectId}", Handler(h, slogutil.NewDiscardLogger()))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/p1"
	wc, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer wc.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers("p1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Publish(Event{Kind: Saved, ProjectID: "p1", SHA: "deadbeef"})

	_ = wc.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := wc.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.Kind != Saved || got.SHA != "deadbeef" {
		t.Errorf("event = %+v", got)
	}
}
