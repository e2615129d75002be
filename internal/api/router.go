package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /v1/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /v1/scheduler/stop", h.SchedulerStop)

	mux.HandleFunc("POST /v1/webhook/inbound", h.Inbound)
	mux.HandleFunc("POST /v1/webhook/status", h.DeliveryStatus)

	mux.HandleFunc("GET /v1/conversations", h.ListConversations)
	mux.HandleFunc("GET /v1/conversations/unread", h.ListUnreadConversations)
	mux.HandleFunc("GET /v1/conversations/{id}", h.GetConversation)
	mux.HandleFunc("GET /v1/conversations/{id}/messages", h.ListConversationMessages)
	mux.HandleFunc("POST /v1/conversations/{id}/read", h.MarkConversationRead)
	mux.HandleFunc("POST /v1/conversations/{id}/close", h.CloseConversation)
	mux.HandleFunc("POST /v1/conversations/{id}/archive", h.ArchiveConversation)

	mux.HandleFunc("GET /v1/queue", h.ListQueue)
	mux.HandleFunc("GET /v1/queue/{id}", h.GetQueueItem)
	mux.HandleFunc("POST /v1/queue/{id}/assign", h.AssignQueueItem)
	mux.HandleFunc("POST /v1/queue/{id}/reply", h.ReplyQueueItem)
	mux.HandleFunc("POST /v1/queue/{id}/close", h.CloseQueueItem)

	mux.HandleFunc("GET /v1/audit", h.ListAudit)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("flockline"))
	})

	return mux
}
