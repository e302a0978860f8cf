package eventlogger

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// EventReader reads stored events back by type.
type EventReader interface {
	GetByType(ctx context.Context, eventType string) ([]StoredEvent, error)
}

type Handler struct {
	reader EventReader
	logger *slog.Logger
}

func NewHandler(reader EventReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{reader: reader, logger: logger}
}

// Routes expects to be mounted under /events.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	return r
}

type eventResponse struct {
	ID        string            `json:"id"`
	Type      string            `json:"event_type"`
	Data      json.RawMessage   `json:"event_data"`
	Metadata  map[string]string `json:"event_metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("type")
	if eventType == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "type is required"})
		return
	}

	events, err := h.reader.GetByType(r.Context(), eventType)
	if err != nil {
		h.logger.Error("failed to read events", "event_type", eventType, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		data := e.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		out = append(out, eventResponse{
			ID:        e.ID.String(),
			Type:      e.Type,
			Data:      data,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
