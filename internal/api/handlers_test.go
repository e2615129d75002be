package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flockline/flockline/internal/channel"
	"github.com/flockline/flockline/internal/model"
	"github.com/flockline/flockline/internal/repo/memory"
	"github.com/flockline/flockline/internal/scheduler"
	"github.com/flockline/flockline/internal/service"
)

type fakeSender struct {
	mu   sync.Mutex
	seq  int
	fail error
}

func (f *fakeSender) Send(_ context.Context, handle, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.seq++
	return fmt.Sprintf("out-%d", f.seq), nil
}

func (f *fakeSender) SendWithMedia(ctx context.Context, handle, message, mediaURL string) (string, error) {
	return f.Send(ctx, handle, message)
}

type testServer struct {
	store  *memory.Store
	tenant model.Tenant
	sched  *scheduler.Scheduler
	mux    http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.NewStore()
	tenant := store.AddTenant("Grace Chapel", "255700000001")
	sender := &fakeSender{}

	queue := service.NewQueue(store.Queue(), store.Messages(), sender)
	responder := service.NewResponder(store.Participants())
	pipeline := service.NewPipeline(store.Participants(), store.Messages(), store.Audit(), queue, responder, sender, nil)
	tracker := service.NewTracker(store.Conversations())

	// Long interval so only the immediate tick happens (noop against an
	// empty store anyway).
	sched, err := scheduler.New(time.Hour, func(context.Context) (int64, error) { return 0, nil })
	if err != nil {
		t.Fatalf("scheduler.New() error: %v", err)
	}

	staff := channel.StaticDirectory{7: "Pastor Amani"}

	h := NewHandler(store.Tenants(), store.Messages(), store.Audit(), tracker, queue, pipeline, sched, staff)
	return &testServer{store: store, tenant: tenant, sched: sched, mux: Router(h)}
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = strings.NewReader(string(b))
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, target, reader)
	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode json: %v body=%q", err, rr.Body.String())
	}
	return m
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/v1/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("expected application/json, got %q", ct)
	}
	body := decodeJSON(t, rr)
	if v, ok := body["ok"].(bool); !ok || !v {
		t.Fatalf("expected {ok:true}, got %v", body)
	}
}

func TestSchedulerEndpoints(t *testing.T) {
	ts := newTestServer(t)
	defer ts.sched.Stop()

	rr := ts.do(t, http.MethodGet, "/v1/scheduler/status", nil)
	if running, _ := decodeJSON(t, rr)["running"].(bool); running {
		t.Fatalf("expected running=false initially")
	}

	rr = ts.do(t, http.MethodPost, "/v1/scheduler/start", nil)
	if running, _ := decodeJSON(t, rr)["running"].(bool); !running {
		t.Fatalf("expected running=true after start")
	}

	rr = ts.do(t, http.MethodPost, "/v1/scheduler/stop", nil)
	if running, _ := decodeJSON(t, rr)["running"].(bool); running {
		t.Fatalf("expected running=false after stop")
	}
}

func TestInbound_RegisterFlow(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/webhook/inbound", map[string]any{
		"to":        "255700000001",
		"from":      "255711111111",
		"body":      "REGISTER Jane Doe",
		"messageId": "wamid.REG1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}

	body := decodeJSON(t, rr)
	if dup, _ := body["duplicate"].(bool); dup {
		t.Fatalf("unexpected duplicate flag")
	}
	if cmd, _ := body["command"].(string); cmd != "REGISTER" {
		t.Fatalf("expected command REGISTER, got %v", body["command"])
	}

	p, err := ts.store.Participants().FindByHandle(context.Background(), ts.tenant.ID, "255711111111")
	if err != nil {
		t.Fatalf("participant not created: %v", err)
	}
	if p.FullName != "Jane Doe" {
		t.Fatalf("expected Jane Doe, got %q", p.FullName)
	}
}

func TestInbound_UnknownReceivingNumber(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/webhook/inbound", map[string]any{
		"to":        "255799999999",
		"from":      "255711111111",
		"body":      "hello",
		"messageId": "wamid.X1",
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestInbound_MissingFields(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/webhook/inbound", map[string]any{
		"to":   "255700000001",
		"body": "hello",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestInbound_DuplicateDelivery(t *testing.T) {
	ts := newTestServer(t)

	payload := map[string]any{
		"to":        "255700000001",
		"from":      "255711111111",
		"body":      "HELP",
		"messageId": "wamid.ABC123",
	}

	rr := ts.do(t, http.MethodPost, "/v1/webhook/inbound", payload)
	if rr.Code != http.StatusOK {
		t.Fatalf("first delivery: expected 200, got %d", rr.Code)
	}

	rr = ts.do(t, http.MethodPost, "/v1/webhook/inbound", payload)
	if rr.Code != http.StatusOK {
		t.Fatalf("second delivery: expected 200, got %d", rr.Code)
	}
	if dup, _ := decodeJSON(t, rr)["duplicate"].(bool); !dup {
		t.Fatalf("expected duplicate=true on redelivery")
	}
}

func TestDeliveryStatusCallback(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	// Seed an outbound message whose status the callback updates.
	if _, _, err := ts.store.Messages().Insert(ctx, model.Message{
		TenantID:          ts.tenant.ID,
		Handle:            "255711111111",
		Direction:         model.Outbound,
		Body:              "hi",
		ProviderMessageID: "out-1",
		Status:            model.StatusSent,
	}); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	rr := ts.do(t, http.MethodPost, "/v1/webhook/status", map[string]any{
		"messageId": "out-1",
		"status":    "DELIVERED",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}

	m, err := ts.store.Messages().GetByProviderID(ctx, "out-1")
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if m.Status != model.StatusDelivered {
		t.Fatalf("expected DELIVERED, got %s", m.Status)
	}
}

func TestDeliveryStatusCallback_InvalidStatus(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/webhook/status", map[string]any{
		"messageId": "out-1",
		"status":    "TELEPORTED",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestConversationSurface(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/webhook/inbound", map[string]any{
		"to":        "255700000001",
		"from":      "255722222222",
		"body":      "hello there",
		"messageId": "wamid.CONV1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("inbound: expected 200, got %d", rr.Code)
	}

	rr = ts.do(t, http.MethodGet, "/v1/conversations?channel=255700000001", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	items, _ := decodeJSON(t, rr)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one conversation, got %d", len(items))
	}

	rr = ts.do(t, http.MethodGet, "/v1/conversations/unread?channel=255700000001", nil)
	unread, _ := decodeJSON(t, rr)["items"].([]any)
	if len(unread) != 1 {
		t.Fatalf("expected one unread conversation, got %d", len(unread))
	}

	conv := items[0].(map[string]any)
	id := int64(conv["ID"].(float64))

	rr = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/conversations/%d/messages", id), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("messages: expected 200, got %d", rr.Code)
	}
	msgs, _ := decodeJSON(t, rr)["items"].([]any)
	// One inbound plus the onboarding reply.
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	rr = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/conversations/%d/read", id), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("read: expected 200, got %d", rr.Code)
	}

	rr = ts.do(t, http.MethodGet, "/v1/conversations/unread?channel=255700000001", nil)
	unread, _ = decodeJSON(t, rr)["items"].([]any)
	if len(unread) != 0 {
		t.Fatalf("expected no unread conversations after read, got %d", len(unread))
	}
}

func TestConversationSurface_MissingChannel(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/v1/conversations", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestQueueSurface(t *testing.T) {
	ts := newTestServer(t)

	// A long unclassified message lands in the staff queue.
	rr := ts.do(t, http.MethodPost, "/v1/webhook/inbound", map[string]any{
		"to":        "255700000001",
		"from":      "255733333333",
		"body":      strings.Repeat("z", 250),
		"messageId": "wamid.LONG1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("inbound: expected 200, got %d", rr.Code)
	}
	if escalated, _ := decodeJSON(t, rr)["escalated"].(bool); !escalated {
		t.Fatalf("expected escalation")
	}

	rr = ts.do(t, http.MethodGet, "/v1/queue?channel=255700000001", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	body := decodeJSON(t, rr)
	items, _ := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one pending item, got %d", len(items))
	}
	if total, _ := body["total"].(float64); total != 1 {
		t.Fatalf("expected total 1, got %v", body["total"])
	}

	item := items[0].(map[string]any)
	if item["Category"] != "OTHER" || item["Priority"] != "MEDIUM" {
		t.Fatalf("expected OTHER/MEDIUM, got %v/%v", item["Category"], item["Priority"])
	}
	id := int64(item["ID"].(float64))

	rr = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/queue/%d/assign", id), map[string]any{"assigneeId": 7})
	if rr.Code != http.StatusOK {
		t.Fatalf("assign: expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	assigned := decodeJSON(t, rr)
	if assigned["Status"] != "ASSIGNED" {
		t.Fatalf("expected ASSIGNED, got %v", assigned["Status"])
	}
	if assigned["AssigneeName"] != "Pastor Amani" {
		t.Fatalf("expected resolved assignee name, got %v", assigned["AssigneeName"])
	}

	rr = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/queue/%d/reply", id), map[string]any{
		"assigneeId": 7,
		"text":       "We hear you and will follow up.",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("reply: expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if got := decodeJSON(t, rr)["Status"]; got != "REPLIED" {
		t.Fatalf("expected REPLIED, got %v", got)
	}

	rr = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/queue/%d/close", id), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}

	// CLOSED is terminal; a second close maps to 409.
	rr = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/queue/%d/close", id), nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double close, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestQueueItem_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/v1/queue/999", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuditSurface(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/webhook/inbound", map[string]any{
		"to":        "255700000001",
		"from":      "255744444444",
		"body":      "HELP",
		"messageId": "wamid.AUD1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("inbound: expected 200, got %d", rr.Code)
	}

	rr = ts.do(t, http.MethodGet, "/v1/audit?channel=255700000001", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("audit: expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	items, _ := decodeJSON(t, rr)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(items))
	}
	entry := items[0].(map[string]any)
	if ok, _ := entry["Success"].(bool); !ok {
		t.Fatalf("expected success entry, got %v", entry)
	}
}

func TestRouterRoot(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "flockline" {
		t.Fatalf("expected body %q, got %q", "flockline", got)
	}
}
