package forum

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"campuschat/internal/user"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func (h *Handler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	claims := user.FromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.Service.PostArticle(r.Context(), claims, &req)
	if err != nil {
		if errors.Is(err, ErrPostingDisabled) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int{"article_id": id})
}

func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := h.Service.Articles(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(articles)
}

func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "articleID"))
	if err != nil {
		http.Error(w, "invalid article id", http.StatusBadRequest)
		return
	}

	a, err := h.Service.ArticleWithComments(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrArticleNotFound) {
			http.Error(w, "Error: Article does not exist!", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(a)
}

func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	claims := user.FromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.Service.PostComment(r.Context(), claims, &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrPostingDisabled):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, ErrArticleNotFound):
			http.Error(w, "Error: Article does not exist!", http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int{"comment_id": id})
}
