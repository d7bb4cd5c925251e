package user

import (
	"encoding/json"
	"errors"
	"net/http"
)

type Handler struct {
	Service    *Service
	CookieName string
}

func NewHandler(s *Service, cookieName string) *Handler {
	return &Handler{Service: s, CookieName: cookieName}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	u, err := h.Service.Register(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			http.Error(w, "Error: User already exists!", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"username": u.Username})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	// Browser clients keep the session in a cookie; API clients use the
	// access_token from the body.
	http.SetCookie(w, &http.Cookie{
		Name:     h.CookieName,
		Value:    res.AccessToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	json.NewEncoder(w).Encode(res)
}

// SetRole handles the admin role-change endpoint.
func (h *Handler) SetRole(w http.ResponseWriter, r *http.Request) {
	actor := FromContext(r.Context())
	if actor == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Service.SetRole(r.Context(), actor, &req); err != nil {
		switch {
		case errors.Is(err, ErrNotAdmin):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, ErrNotFound):
			http.Error(w, "Error: User does not exist!", http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetCapabilities handles the admin can-post/can-chat endpoint.
func (h *Handler) SetCapabilities(w http.ResponseWriter, r *http.Request) {
	actor := FromContext(r.Context())
	if actor == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req UpdateCapabilitiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Service.SetCapabilities(r.Context(), actor, &req); err != nil {
		switch {
		case errors.Is(err, ErrNotAdmin):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, ErrNotFound):
			http.Error(w, "Error: User does not exist!", http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	users, err := h.Service.SearchUsers(r.Context(), q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(users)
}
