package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/oprema/internal/live"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/notify"
)

// streamKeepAlive is how often an idle stream sends a comment line.
const streamKeepAlive = 25 * time.Second

// NotificationsHandler handles notification endpoints.
type NotificationsHandler struct {
	Notifications *notify.Service
	Hub           *live.Hub
}

type broadcastRequest struct {
	UserIDs []string               `json:"user_ids"`
	Type    model.NotificationType `json:"type"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
}

// List handles GET /api/notifications. It trims the feed to the retention
// limit and returns the current snapshot.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Notifications.Feed(r.Context(), identity(r))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, snap)
}

// Stream handles GET /api/notifications/stream as Server-Sent Events. Each
// event carries a full snapshot.
func (h *NotificationsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	if r.Context().Err() != nil {
		return
	}
	if _, err := h.Notifications.Cleanup(r.Context(), actor.UID); err != nil {
		slog.Warn("notification cleanup failed", "user_id", actor.UID, "error", err)
	}

	sub, err := h.Hub.Subscribe(r.Context(), actor.UID)
	if err != nil {
		// The client went away before the stream started.
		if r.Context().Err() != nil {
			return
		}
		serviceError(w, r, err)
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	// The server write timeout would end long-lived streams.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		slog.Warn("clearing write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				slog.Error("encoding snapshot", "error", err)
				return
			}
			if _, err := w.Write([]byte("event: snapshot\ndata: " + string(data) + "\n\n")); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// Refresh handles POST /api/notifications/refresh.
func (h *NotificationsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.Hub.Refresh(r.Context(), identity(r).UID)
	w.WriteHeader(http.StatusNoContent)
}

// MarkRead handles PUT /api/notifications/{id}/read.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Notifications.MarkRead(r.Context(), identity(r), r.PathValue("id")); err != nil {
		serviceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "marked as read"})
}

// MarkAllRead handles PUT /api/notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	changed, err := h.Notifications.MarkAllRead(r.Context(), identity(r))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int64{"updated": changed})
}

// Delete handles DELETE /api/notifications/{id}.
func (h *NotificationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Notifications.Delete(r.Context(), identity(r), r.PathValue("id")); err != nil {
		serviceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "notification deleted"})
}

// Broadcast handles POST /api/notifications/broadcast.
func (h *NotificationsHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.Notifications.Broadcast(r.Context(), identity(r), req.UserIDs, req.Type, req.Title, req.Message)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}
