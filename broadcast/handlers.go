package broadcast

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ruvnet/alienator-sub000/broker"
)

// CreateChannelRequest is the HTTP payload for channel creation.
type CreateChannelRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SubscribeRequest is the HTTP payload for channel subscription.
type SubscribeRequest struct {
	UserID string `json:"user_id"`
}

// BroadcastRequest is the HTTP payload for a channel broadcast.
type BroadcastRequest struct {
	Payload string            `json:"payload"`
	Headers map[string]string `json:"headers,omitempty"`
}

// BroadcastResponse confirms a broadcast.
type BroadcastResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ChannelListResponse lists live channels.
type ChannelListResponse struct {
	Channels []Channel `json:"channels"`
}

// RegisterRoutes mounts the channel REST surface.
func (m *Manager) RegisterRoutes(r chi.Router) {
	r.Post("/channels", m.handleCreateChannel)
	r.Get("/channels", m.handleListChannels)
	r.Get("/channels/{id}", m.handleGetChannel)
	r.Delete("/channels/{id}", m.handleDeleteChannel)
	r.Post("/channels/{id}/subscriptions", m.handleSubscribe)
	r.Post("/channels/{id}/broadcast", m.handleBroadcast)
	r.Delete("/subscriptions/{id}", m.handleUnsubscribe)
	r.Get("/metrics", m.handleMetrics)
}

func (m *Manager) handleCreateChannel(w http.ResponseWriter, req *http.Request) {
	var body CreateChannelRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.ID == "" || body.Name == "" {
		http.Error(w, "id and name are required", http.StatusBadRequest)
		return
	}

	ch, err := m.CreateChannel(body.ID, body.Name, body.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (m *Manager) handleListChannels(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, &ChannelListResponse{Channels: m.ListChannels()})
}

func (m *Manager) handleGetChannel(w http.ResponseWriter, req *http.Request) {
	ch, err := m.GetChannel(chi.URLParam(req, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (m *Manager) handleDeleteChannel(w http.ResponseWriter, req *http.Request) {
	if err := m.DeleteChannel(chi.URLParam(req, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (m *Manager) handleSubscribe(w http.ResponseWriter, req *http.Request) {
	var body SubscribeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	sub, err := m.Subscribe(body.UserID, chi.URLParam(req, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (m *Manager) handleUnsubscribe(w http.ResponseWriter, req *http.Request) {
	if err := m.Unsubscribe(chi.URLParam(req, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (m *Manager) handleBroadcast(w http.ResponseWriter, req *http.Request) {
	var body BroadcastRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := m.Broadcast(chi.URLParam(req, "id"), broker.Message{
		Payload: []byte(body.Payload),
		Headers: body.Headers,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &BroadcastResponse{Success: true})
}

func (m *Manager) handleMetrics(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, m.GetMetrics())
}

// writeError maps the package's error taxonomy onto HTTP statuses:
// not-found → 404, conflict → 409, everything else (broker publish
// failures included) → 503.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrChannelNotFound), errors.Is(err, ErrSubscriptionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrChannelExists), errors.Is(err, ErrChannelNotActive):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
