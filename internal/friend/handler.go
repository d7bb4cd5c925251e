package friend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"campuschat/internal/user"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

// replyText mirrors the user-visible text replies the UI expects for
// state conflicts. These are not protocol errors.
func replyText(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": msg})
}

func (h *Handler) SendRequest(w http.ResponseWriter, r *http.Request) {
	claims := user.FromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req RequestPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.Service.SendRequest(r.Context(), claims.Username, req.Recipient)
	if err != nil {
		switch {
		case errors.Is(err, ErrSelfRequest):
			replyText(w, http.StatusConflict, "Error: You cannot friend yourself!")
		case errors.Is(err, ErrAlreadyFriends):
			replyText(w, http.StatusConflict, "Error: You are already friends!")
		case errors.Is(err, ErrDuplicateRequest):
			replyText(w, http.StatusConflict, "Error: A friend request is already pending!")
		case errors.Is(err, ErrUnknownUser):
			replyText(w, http.StatusNotFound, "Error: User does not exist!")
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int{"request_id": id})
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Service.Accept)
}

func (h *Handler) Decline(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Service.Decline)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, username string, id int) error) {
	claims := user.FromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req DecisionPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := fn(r.Context(), claims.Username, req.RequestID); err != nil {
		switch {
		case errors.Is(err, ErrRequestNotFound):
			replyText(w, http.StatusNotFound, "Error: Friend request not found!")
		case errors.Is(err, ErrNotRecipient):
			http.Error(w, err.Error(), http.StatusForbidden)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	claims := user.FromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	other := r.URL.Query().Get("username")
	if other == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	if err := h.Service.Remove(r.Context(), claims.Username, other); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	claims := user.FromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	friends, err := h.Service.Friends(r.Context(), claims.Username)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(friends)
}

func (h *Handler) Requests(w http.ResponseWriter, r *http.Request) {
	claims := user.FromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	reqs, err := h.Service.IncomingRequests(r.Context(), claims.Username)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(reqs)
}
