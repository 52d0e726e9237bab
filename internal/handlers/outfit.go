package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fitpick/apiserver/internal/provider"
	"github.com/fitpick/apiserver/internal/services"
	"github.com/fitpick/apiserver/internal/store"
	"github.com/fitpick/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// OutfitHandler provides HTTP handlers for outfit generation.
type OutfitHandler struct {
	outfitService *services.OutfitService
}

// NewOutfitHandler constructs a handler with the provided service.
func NewOutfitHandler(outfitService *services.OutfitService) *OutfitHandler {
	return &OutfitHandler{outfitService: outfitService}
}

// OutfitRouter registers outfit routes on the given router. All routes
// require authentication.
func OutfitRouter(r chi.Router, outfitService *services.OutfitService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewOutfitHandler(outfitService)

	r.Use(authMiddleware)
	r.Post("/generate", handler.Generate)
	r.Get("/history", handler.History)
	r.Get("/history/{outfitID}/raw", handler.RawResponse)
}

// Generate produces a recommendation for the caller's season and event.
func (h *OutfitHandler) Generate(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Season = strings.TrimSpace(req.Season)
	req.Event = strings.TrimSpace(req.Event)
	if req.Season == "" || req.Event == "" {
		writeError(w, http.StatusBadRequest, "Season and event are required")
		return
	}

	outfit, err := h.outfitService.Generate(r.Context(), user, req.Season, req.Event)
	if err != nil {
		if errors.Is(err, provider.ErrUpstream) {
			writeError(w, http.StatusBadGateway, "Failed to generate outfit")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to generate outfit")
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{
		Outfit:      outfit.Outfit,
		User:        user.Username,
		GeneratedAt: outfit.GeneratedAt,
	})
}

// History lists the caller's generations, newest first.
func (h *OutfitHandler) History(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
	}

	items, err := h.outfitService.History(r.Context(), user.ID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	if items == nil {
		items = []types.Outfit{}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{Items: items})
}

// RawResponse streams the archived provider response for one of the
// caller's generations.
func (h *OutfitHandler) RawResponse(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	outfitID, err := strconv.ParseInt(chi.URLParam(r, "outfitID"), 10, 64)
	if err != nil || outfitID < 1 {
		writeError(w, http.StatusBadRequest, "Invalid outfit id")
		return
	}

	body, err := h.outfitService.RawResponse(r.Context(), user.ID, outfitID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, services.ErrNoArchive) {
			writeError(w, http.StatusNotFound, "Archived response not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load archived response")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

type GenerateRequest struct {
	Season string `json:"season"`
	Event  string `json:"event"`
}

type GenerateResponse struct {
	Outfit      string    `json:"outfit"`
	User        string    `json:"user"`
	GeneratedAt time.Time `json:"generatedAt"`
}

type HistoryResponse struct {
	Items []types.Outfit `json:"items"`
}
