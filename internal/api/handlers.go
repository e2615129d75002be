package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/flockline/flockline/internal/channel"
	"github.com/flockline/flockline/internal/model"
	"github.com/flockline/flockline/internal/repo"
	"github.com/flockline/flockline/internal/scheduler"
	"github.com/flockline/flockline/internal/service"
)

type Handler struct {
	tenants  repo.TenantRepository
	messages repo.MessageRepository
	audit    repo.AuditRepository
	tracker  *service.Tracker
	queue    *service.Queue
	pipeline *service.Pipeline
	sched    *scheduler.Scheduler
	staff    channel.StaffDirectory
}

func NewHandler(
	tenants repo.TenantRepository,
	messages repo.MessageRepository,
	audit repo.AuditRepository,
	tracker *service.Tracker,
	queue *service.Queue,
	pipeline *service.Pipeline,
	sched *scheduler.Scheduler,
	staff channel.StaffDirectory,
) *Handler {
	return &Handler{
		tenants:  tenants,
		messages: messages,
		audit:    audit,
		tracker:  tracker,
		queue:    queue,
		pipeline: pipeline,
		sched:    sched,
		staff:    staff,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

type inboundRequest struct {
	To        string `json:"to"`
	From      string `json:"from"`
	Body      string `json:"body"`
	MessageID string `json:"messageId"`
}

// Inbound receives a provider delivery callback. The receiving number ("to")
// routes the delivery to its tenant; an unknown number is rejected, never
// defaulted.
func (h *Handler) Inbound(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.To == "" || req.From == "" || req.MessageID == "" {
		http.Error(w, "to, from and messageId are required", http.StatusBadRequest)
		return
	}

	tenant, err := h.tenants.ResolveByChannelNumber(r.Context(), req.To)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			http.Error(w, "unknown receiving number", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	res, err := h.pipeline.HandleInbound(r.Context(), tenant, req.From, req.Body, req.MessageID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := map[string]any{
		"messageId": res.Message.ID,
		"duplicate": res.Duplicate,
		"escalated": res.QueueItem != nil,
	}
	if res.HasLabel {
		out["command"] = res.Label
	}
	writeJSON(w, http.StatusOK, out)
}

type statusRequest struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// DeliveryStatus records a provider status callback (delivered, read, failed)
// against the outbound message it refers to.
func (h *Handler) DeliveryStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	status := model.DeliveryStatus(req.Status)
	if req.MessageID == "" || !status.Valid() {
		http.Error(w, "messageId and a valid status are required", http.StatusBadRequest)
		return
	}

	if err := h.messages.UpdateStatus(r.Context(), req.MessageID, status); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.resolveTenant(w, r)
	if !ok {
		return
	}

	status := model.ConversationStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.ConversationActive
	}
	if !status.Valid() {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.tracker.ListByStatus(r.Context(), tenant.ID, status, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) ListUnreadConversations(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.resolveTenant(w, r)
	if !ok {
		return
	}

	items, err := h.tracker.ListUnread(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.tracker.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ListConversationMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.messages.ListByConversation(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.tracker.MarkRead(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) CloseConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.tracker.Close(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) ArchiveConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.tracker.Archive(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type queueItemView struct {
	model.QueueItem
	AssigneeName string `json:"AssigneeName,omitempty"`
}

func (h *Handler) queueView(r *http.Request, item model.QueueItem) queueItemView {
	v := queueItemView{QueueItem: item}
	if item.AssigneeID != nil && h.staff != nil {
		name, err := h.staff.ResolveAssigneeName(r.Context(), *item.AssigneeID)
		if err != nil {
			slog.Warn("assignee lookup failed", "assignee_id", *item.AssigneeID, "error", err)
		} else {
			v.AssigneeName = name
		}
	}
	return v
}

func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.resolveTenant(w, r)
	if !ok {
		return
	}

	status := model.QueueStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.QueuePending
	}

	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.queue.ListByStatus(r.Context(), tenant.ID, status, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	count, err := h.queue.CountByStatus(r.Context(), tenant.ID, status)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]queueItemView, 0, len(items))
	for _, item := range items {
		views = append(views, h.queueView(r, item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views, "total": count})
}

func (h *Handler) GetQueueItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := h.queue.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.queueView(r, item))
}

type assignRequest struct {
	AssigneeID int64 `json:"assigneeId"`
}

func (h *Handler) AssignQueueItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AssigneeID <= 0 {
		http.Error(w, "assigneeId is required", http.StatusBadRequest)
		return
	}

	item, err := h.queue.Assign(r.Context(), id, req.AssigneeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.queueView(r, item))
}

type replyRequest struct {
	AssigneeID int64  `json:"assigneeId"`
	Text       string `json:"text"`
	Close      bool   `json:"close"`
}

func (h *Handler) ReplyQueueItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AssigneeID <= 0 || req.Text == "" {
		http.Error(w, "assigneeId and text are required", http.StatusBadRequest)
		return
	}

	next := model.QueueReplied
	if req.Close {
		next = model.QueueClosed
	}

	item, err := h.queue.Reply(r.Context(), id, req.AssigneeID, req.Text, next)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.queueView(r, item))
}

func (h *Handler) CloseQueueItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.queue.Close(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.resolveTenant(w, r)
	if !ok {
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.audit.ListRecent(r.Context(), tenant.ID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// resolveTenant maps the channel query parameter to a tenant. Every staff
// surface is tenant-scoped, so the parameter is mandatory.
func (h *Handler) resolveTenant(w http.ResponseWriter, r *http.Request) (model.Tenant, bool) {
	ch := r.URL.Query().Get("channel")
	if ch == "" {
		http.Error(w, "channel query parameter is required", http.StatusBadRequest)
		return model.Tenant{}, false
	}
	tenant, err := h.tenants.ResolveByChannelNumber(r.Context(), ch)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			http.Error(w, "unknown channel", http.StatusNotFound)
			return model.Tenant{}, false
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return model.Tenant{}, false
	}
	return tenant, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
