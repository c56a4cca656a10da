package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fitsync/internal/models"
	"fitsync/internal/store"
	"fitsync/internal/sync"
)

// Handler exposes the sync subsystem over a small local control API:
// trigger/inspect syncs, inspect and retry the mutation queue, and list or
// resolve conflicts.
type Handler struct {
	engine    *sync.Engine
	resolver  *sync.Resolver
	scheduler *sync.Scheduler
}

func NewHandler(engine *sync.Engine, resolver *sync.Resolver, scheduler *sync.Scheduler) *Handler {
	return &Handler{
		engine:    engine,
		resolver:  resolver,
		scheduler: scheduler,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sync/trigger", h.TriggerSync)
		r.Get("/sync/status", h.GetSyncStatus)
		r.Post("/network", h.SetNetwork)
		r.Post("/foreground", h.Foreground)

		r.Get("/queue", h.ListQueue)
		r.Post("/queue/{id}/retry", h.RetryMutation)
		r.Delete("/queue/{id}", h.DiscardMutation)

		r.Get("/conflicts", h.ListConflicts)
		r.Post("/conflicts/{id}/resolve", h.ResolveConflict)

		r.Get("/strategy", h.GetStrategy)
		r.Put("/strategy", h.SetStrategy)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.SyncAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.engine.PullAll(r.Context()); err != nil {
		// Partial pull failures are reported in logs; the drain result is
		// still useful to the caller.
		w.WriteHeader(http.StatusMultiStatus)
	}
	json.NewEncoder(w).Encode(result)
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]any{
		"status":      h.engine.Status(),
		"last_result": h.engine.LastResult(),
	})
}

func (h *Handler) SetNetwork(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Online bool `json:"online"`
		Wifi   bool `json:"wifi"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.scheduler.SetNetwork(body.Online, body.Wifi)
	w.WriteHeader(http.StatusNoContent)
}

// Foreground signals that the app returned to the foreground, kicking an
// immediate sync pass.
func (h *Handler) Foreground(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Foreground()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	mutations, err := h.engine.QueuedMutations(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if mutations == nil {
		mutations = []*models.Mutation{}
	}
	json.NewEncoder(w).Encode(mutations)
}

func (h *Handler) RetryMutation(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RetryMutation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DiscardMutation(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DiscardMutation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.resolver.PendingConflicts(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if conflicts == nil {
		conflicts = []*models.Conflict{}
	}
	json.NewEncoder(w).Encode(conflicts)
}

func (h *Handler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Resolution models.Resolution `json:"resolution"`
		MergedData json.RawMessage   `json:"merged_data,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.resolver.ResolveManually(r.Context(), chi.URLParam(r, "id"), body.Resolution, body.MergedData)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"strategy": string(h.resolver.CurrentStrategy()),
	})
}

func (h *Handler) SetStrategy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Strategy models.Strategy `json:"strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.resolver.SetStrategy(r.Context(), body.Strategy); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
