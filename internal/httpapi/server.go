package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/majo1520/IT-STOCK-sub001/itemview"
	"github.com/majo1520/IT-STOCK-sub001/push"
	"github.com/majo1520/IT-STOCK-sub001/store"
)

// Coordinator is the slice of the refresh coordinator the admin surface uses.
type Coordinator interface {
	Refresh(ctx context.Context, mode itemview.Mode) itemview.Result
}

// Broadcaster is the slice of the invalidation broadcaster the handlers use.
type Broadcaster interface {
	PublishRefreshCompleted()
}

// Server exposes the item mutation API, the administrative refresh endpoint,
// the push channel, and a health probe.
type Server struct {
	router    chi.Router
	items     *store.ItemService
	coord     Coordinator
	events    Broadcaster
	manager   *push.Manager
	wsHandler http.Handler
	log       zerolog.Logger
}

// NewServer wires the routes. wsHandler is mounted at /ws.
func NewServer(items *store.ItemService, coord Coordinator, events Broadcaster, manager *push.Manager, wsHandler http.Handler, logger zerolog.Logger) *Server {
	s := &Server{
		items:     items,
		coord:     coord,
		events:    events,
		manager:   manager,
		wsHandler: wsHandler,
		log:       logger.With().Str("component", "httpapi").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/items", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Post("/refresh-cache", s.handleRefreshCache)
		r.Post("/bulk-delete", s.handleBulkDelete)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Put("/", s.handleUpdate)
			r.Delete("/", s.handleDelete)
			r.Post("/restore", s.handleRestore)
		})
	})
	r.Get("/ws", s.handleWS)
	r.Get("/health", s.handleHealth)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// refreshResponse is the administrative refresh status shape.
type refreshResponse struct {
	Success       bool   `json:"success"`
	ItemCount     int    `json:"itemCount"`
	RefreshTimeMs int64  `json:"refreshTimeMs"`
	Rebuilt       bool   `json:"rebuilt"`
	Error         string `json:"error,omitempty"`
}

// handleRefreshCache triggers refresh(manual). A rebuild failure is reported
// here and nowhere else; end users never see refresh errors.
func (s *Server) handleRefreshCache(w http.ResponseWriter, r *http.Request) {
	res := s.coord.Refresh(r.Context(), itemview.ModeManual)

	resp := refreshResponse{
		Success:       res.Success,
		ItemCount:     res.ItemCount,
		RefreshTimeMs: res.RefreshTimeMs(),
		Rebuilt:       res.Rebuilt,
	}
	status := http.StatusOK
	if res.Err != nil {
		resp.Error = res.Err.Error()
		status = http.StatusInternalServerError
	} else if s.events != nil {
		s.events.PublishRefreshCompleted()
	}

	s.writeJSON(w, status, resp)
}

type createItemRequest struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Quantity     int     `json:"quantity"`
	BoxID        *int64  `json:"boxId"`
	ParentItemID *int64  `json:"parentItemId"`
	Type         *string `json:"type"`
	EAN          *string `json:"ean"`
	SerialNumber *string `json:"serialNumber"`
	QRCode       *string `json:"qrCode"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	item := &store.Item{
		Name:         req.Name,
		Description:  req.Description,
		Quantity:     req.Quantity,
		BoxID:        req.BoxID,
		ParentItemID: req.ParentItemID,
		Type:         req.Type,
		EAN:          req.EAN,
		SerialNumber: req.SerialNumber,
		QRCode:       req.QRCode,
	}
	view, err := s.items.Create(r.Context(), item, nil)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}

	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	item := &store.Item{
		ID:           id,
		Name:         req.Name,
		Description:  req.Description,
		Quantity:     req.Quantity,
		BoxID:        req.BoxID,
		ParentItemID: req.ParentItemID,
		Type:         req.Type,
		EAN:          req.EAN,
		SerialNumber: req.SerialNumber,
		QRCode:       req.QRCode,
	}
	view, err := s.items.Update(r.Context(), item)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	if err := s.items.SoftDelete(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	view, err := s.items.Restore(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

type bulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.items.BulkDelete(r.Context(), req.IDs); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	view, err := s.items.ItemByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	views, err := s.items.ListItems(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.wsHandler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.manager.Count(),
	})
}

func (s *Server) itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item id"})
		return 0, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.log.Error().Err(err).Int("status", status).Msg("request failed")
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
