package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/replybridge/internal/inboundlog"
	"github.com/wolfman30/replybridge/internal/session"
	"github.com/wolfman30/replybridge/pkg/logging"
)

type sessionAdmin interface {
	ResetAll(ctx context.Context) error
	Clear(ctx context.Context, sender string) error
	Snapshot(ctx context.Context, sender string) (session.History, bool, error)
}

type inboundLister interface {
	List(ctx context.Context, filter inboundlog.Filter) ([]inboundlog.Entry, error)
}

// AdminSessionsHandler exposes conversation session maintenance for operators.
type AdminSessionsHandler struct {
	sessions sessionAdmin
	inbound  inboundLister
	logger   *logging.Logger
}

// NewAdminSessionsHandler creates the handler. inbound may be nil when no database is configured.
func NewAdminSessionsHandler(sessions sessionAdmin, inbound inboundLister, logger *logging.Logger) *AdminSessionsHandler {
	if sessions == nil {
		panic("handlers: session store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminSessionsHandler{
		sessions: sessions,
		inbound:  inbound,
		logger:   logger,
	}
}

// SessionResponse is the body of GET /admin/sessions/{sender}.
type SessionResponse struct {
	Sender string         `json:"sender"`
	Turns  []session.Turn `json:"turns"`
	Length int            `json:"length"`
}

// ResetAll handles POST /admin/sessions/reset.
func (h *AdminSessionsHandler) ResetAll(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.ResetAll(r.Context()); err != nil {
		h.logger.Error("failed to reset sessions", "error", err)
		jsonError(w, "failed to reset sessions", http.StatusInternalServerError)
		return
	}
	h.logger.Warn("all sessions reset by admin")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// GetSession handles GET /admin/sessions/{sender}.
func (h *AdminSessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sender, ok := senderParam(w, r)
	if !ok {
		return
	}
	history, found, err := h.sessions.Snapshot(r.Context(), sender)
	if err != nil {
		h.logger.Error("failed to load session", "error", err, "sender", sender)
		jsonError(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	if !found {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Sender: sender, Turns: history, Length: len(history)})
}

// ClearSession handles DELETE /admin/sessions/{sender}.
func (h *AdminSessionsHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	sender, ok := senderParam(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Clear(r.Context(), sender); err != nil {
		h.logger.Error("failed to clear session", "error", err, "sender", sender)
		jsonError(w, "failed to clear session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListInbound handles GET /admin/inbound?sender=&channel=&since=&limit=.
func (h *AdminSessionsHandler) ListInbound(w http.ResponseWriter, r *http.Request) {
	if h.inbound == nil {
		jsonError(w, "inbound log database not configured", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	filter := inboundlog.Filter{
		Sender:  strings.TrimSpace(q.Get("sender")),
		Channel: strings.TrimSpace(q.Get("channel")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			jsonError(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		filter.Since = since
	}

	entries, err := h.inbound.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list inbound messages", "error", err)
		jsonError(w, "failed to list inbound messages", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []inboundlog.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": entries, "count": len(entries)})
}
