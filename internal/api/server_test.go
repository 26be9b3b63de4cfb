package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deskhive-io/deskhive/internal/confirm"
	"github.com/deskhive-io/deskhive/internal/diff"
	"github.com/deskhive-io/deskhive/internal/poller"
	"github.com/deskhive-io/deskhive/internal/queue"
	"github.com/deskhive-io/deskhive/pkg/protocol"
)

// fakeService is a scriptable Service implementation.
type fakeService struct {
	items      []queue.Item
	confirmErr error
	lastEvent  protocol.SessionEvent
	cancelled  []int64
	polls      int
}

func (f *fakeService) QueueItems(protocol.ProcessingStatus, bool) []queue.Item { return f.items }

func (f *fakeService) QueueItem(id int64) (queue.Item, bool) {
	for _, it := range f.items {
		if it.Ticket.ID == id {
			return it, true
		}
	}
	return queue.Item{}, false
}

func (f *fakeService) StartSession(id int64) (string, bool) {
	if _, ok := f.QueueItem(id); !ok {
		return "", false
	}
	return "sess-test", true
}

func (f *fakeService) HandleSessionEvent(_ context.Context, ev protocol.SessionEvent) {
	f.lastEvent = ev
}

func (f *fakeService) SetStatus(int64, protocol.ProcessingStatus, string) error { return nil }

func (f *fakeService) ProposeAction(_ context.Context, id int64, a protocol.Action) (protocol.Action, bool) {
	if _, ok := f.QueueItem(id); !ok {
		return protocol.Action{}, false
	}
	a.ID = "act-new"
	return a, true
}

func (f *fakeService) ConfirmAction(context.Context, int64, string) error { return f.confirmErr }

func (f *fakeService) ConfirmAll(context.Context, int64) []confirm.Result { return nil }

func (f *fakeService) CancelAction(int64, string) bool { return true }

func (f *fakeService) CancelAll(id int64) { f.cancelled = append(f.cancelled, id) }

func (f *fakeService) PollNow(context.Context) error { f.polls++; return nil }

func (f *fakeService) Reconfigure(poller.ConfigUpdate) error { return nil }

func (f *fakeService) PollerConfig() poller.Config {
	return poller.Config{Interval: 30 * time.Second}
}

func (f *fakeService) TicketContext(context.Context, int64) (string, error) {
	return "customer text", nil
}

func newTestServer(t *testing.T, svc *fakeService, key string) *httptest.Server {
	t.Helper()
	s := NewServer(svc, Config{Key: key}, nil, nil, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url, key string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func post(t *testing.T, url, key string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func item(id int64) queue.Item {
	return queue.Item{
		Ticket: protocol.Ticket{ID: id, Subject: "s", UpdatedAt: "a"},
		Status: protocol.StatusPending,
	}
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, "secret")

	resp := get(t, srv.URL+"/api/queue", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no key: status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = get(t, srv.URL+"/api/queue", "wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = get(t, srv.URL+"/api/queue", "secret")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("right key: status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Health stays open.
	resp = get(t, srv.URL+"/api/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestListQueue(t *testing.T) {
	svc := &fakeService{items: []queue.Item{item(1), item(2)}}
	srv := newTestServer(t, svc, "")

	resp := get(t, srv.URL+"/api/queue", "")
	defer resp.Body.Close()

	var items []queue.Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("items = %d, want 2", len(items))
	}
}

func TestGetItem(t *testing.T) {
	svc := &fakeService{items: []queue.Item{item(1)}}
	srv := newTestServer(t, svc, "")

	resp := get(t, srv.URL+"/api/queue/1", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("known item: status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = get(t, srv.URL+"/api/queue/99", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown item: status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = get(t, srv.URL+"/api/queue/bogus", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id: status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestProposeAction(t *testing.T) {
	svc := &fakeService{items: []queue.Item{item(1)}}
	srv := newTestServer(t, svc, "")

	resp := post(t, srv.URL+"/api/queue/1/actions", "", protocol.Action{
		Kind: protocol.ActionSendReply, Label: "Reply",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var stored protocol.Action
	json.NewDecoder(resp.Body).Decode(&stored)
	if stored.ID != "act-new" {
		t.Errorf("action = %+v", stored)
	}

	resp = post(t, srv.URL+"/api/queue/1/actions", "", map[string]string{"label": "no kind"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing kind: status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestConfirmAction_FailureSurfaces(t *testing.T) {
	svc := &fakeService{items: []queue.Item{item(1)}, confirmErr: errors.New("remote down")}
	srv := newTestServer(t, svc, "")

	resp := post(t, srv.URL+"/api/queue/1/actions/act-1/confirm", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if !strings.Contains(body["error"], "remote down") {
		t.Errorf("body = %v", body)
	}
}

func TestCancelAllAndPoll(t *testing.T) {
	svc := &fakeService{items: []queue.Item{item(1)}}
	srv := newTestServer(t, svc, "")

	resp := post(t, srv.URL+"/api/queue/1/cancel", "", nil)
	resp.Body.Close()
	if len(svc.cancelled) != 1 || svc.cancelled[0] != 1 {
		t.Errorf("cancelled = %v", svc.cancelled)
	}

	resp = post(t, srv.URL+"/api/poll", "", nil)
	resp.Body.Close()
	if svc.polls != 1 {
		t.Errorf("polls = %d", svc.polls)
	}
}

func TestSessionEventIngress(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc, "")

	resp := post(t, srv.URL+"/api/sessions/events", "", protocol.SessionEvent{
		SessionID: "sess-1", Type: protocol.EventError, Error: "boom",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if svc.lastEvent.SessionID != "sess-1" || svc.lastEvent.Error != "boom" {
		t.Errorf("event = %+v", svc.lastEvent)
	}

	resp = post(t, srv.URL+"/api/sessions/events", "", protocol.SessionEvent{Type: protocol.EventError})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing session_id: status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestEventStream(t *testing.T) {
	hub := NewHub(nil)
	s := NewServer(&fakeService{}, Config{}, nil, nil, hub)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if hub.ClientCount() != 1 {
		t.Errorf("clients = %d, want 1", hub.ClientCount())
	}

	hub.Broadcast(diff.Changes{Added: []protocol.Ticket{{ID: 7, UpdatedAt: "a"}}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var changes diff.Changes
	if err := json.Unmarshal(data, &changes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(changes.Added) != 1 || changes.Added[0].ID != 7 {
		t.Errorf("changes = %+v", changes)
	}
}
