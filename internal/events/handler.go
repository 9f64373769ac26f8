package events

import (
	"net/http"
	"strconv"

	"docqa/internal/middleware"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeHTTP upgrades the request and subscribes it to index events.
// ?document_id=N limits the stream to one document.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var documentID *int64
	if raw := r.URL.Query().Get("document_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "document_id must be a positive integer", http.StatusBadRequest)
			return
		}
		documentID = &id
	}

	ctx, span := middleware.StartSpan(r.Context(), "WebSocket.Subscribe")
	defer span.End()
	if documentID != nil {
		span.SetAttributes(attribute.Int64("document.id", *documentID))
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		h.log.Warn().Err(err).Msg("Failed to upgrade WebSocket")
		middleware.AddSpanError(ctx, err)
		return
	}

	client := newClient(h, conn, documentID)
	if !h.join(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
