package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"gitlab.ozon.dev/qwestard/atabuy/internal/config"
	"gitlab.ozon.dev/qwestard/atabuy/internal/kanban"
	"gitlab.ozon.dev/qwestard/atabuy/internal/middleware"
	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
	"gitlab.ozon.dev/qwestard/atabuy/internal/repository"
	"gitlab.ozon.dev/qwestard/atabuy/internal/service"
	"gitlab.ozon.dev/qwestard/atabuy/internal/storage"
	"gitlab.ozon.dev/qwestard/atabuy/internal/tracking"
)

type Server struct {
	svc     *service.OrderService
	auditor middleware.Auditor
	token   string
	addr    string
	now     func() time.Time
}

func NewServer(svc *service.OrderService, auditor middleware.Auditor, cfg *config.Config) *Server {
	return &Server{
		svc:     svc,
		auditor: auditor,
		token:   cfg.AdminToken,
		addr:    cfg.Addr(),
		now:     time.Now,
	}
}

type BoardSnapshot struct {
	Columns    []kanban.Column `json:"columns"`
	Cancelled  kanban.Column   `json:"cancelled"`
	Unassigned []models.Order  `json:"unassigned"`
}

type StatusCatalog struct {
	Statuses            []models.StatusInfo `json:"statuses"`
	CancellationReasons []string            `json:"cancellation_reasons"`
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.handleWith(mux, "POST /orders", s.handleCreateOrder, true, false)
	s.handleWith(mux, "GET /orders", s.handleListOrders, false, true)
	s.handleWith(mux, "GET /orders/{id}", s.handleGetOrder, false, false)
	s.handleWith(mux, "PUT /orders/{id}", s.handleUpdateOrder, true, true)
	s.handleWith(mux, "POST /orders/{id}/history", s.handleAppendMilestone, true, true)
	s.handleWith(mux, "GET /orders/{id}/timeline", s.handleTimeline, false, false)
	s.handleWith(mux, "GET /board", s.handleBoard, false, true)
	s.handleWith(mux, "GET /statuses", s.handleStatuses, false, false)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listen on %s...", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleWith(mux *http.ServeMux, pattern string,
	handlerFunc http.HandlerFunc,
	logged bool, admin bool,
) {
	var h http.Handler = handlerFunc
	if admin {
		h = middleware.BearerAuthMiddleware(s.token)(h)
	}
	if logged {
		h = middleware.LogMiddleware(s.auditor, http.MethodPost, http.MethodPut)(h)
	}
	mux.Handle(pattern, h)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req service.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "bad JSON")
		return
	}
	o, err := s.svc.CreateOrder(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.ListFilter{Limit: 1000}
	if raw := q.Get("status"); raw != "" {
		st, ok := models.ParseStatus(raw)
		if !ok {
			writeDetail(w, http.StatusBadRequest, "unknown status")
			return
		}
		f.Status = st
	}
	if limit, err := strconv.ParseInt(q.Get("limit"), 10, 64); err == nil && limit > 0 {
		f.Limit = limit
	}
	if offset, err := strconv.ParseInt(q.Get("offset"), 10, 64); err == nil && offset > 0 {
		f.Offset = offset
	}

	orders, err := s.svc.ListOrders(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.svc.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var upd service.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeDetail(w, http.StatusBadRequest, "bad JSON")
		return
	}
	o, err := s.svc.UpdateStatus(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleAppendMilestone(w http.ResponseWriter, r *http.Request) {
	var req service.MilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "bad JSON")
		return
	}
	o, err := s.svc.AppendMilestone(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	o, err := s.svc.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tracking.Render(*o, s.now()))
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	orders, err := s.svc.ListOrders(r.Context(), repository.ListFilter{Limit: 1000})
	if err != nil {
		writeError(w, err)
		return
	}
	loaded := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		loaded = append(loaded, *o)
	}
	b := kanban.NewBoard()
	if _, err := b.Apply(kanban.OrdersLoaded{Orders: loaded}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BoardSnapshot{
		Columns:    b.Columns(),
		Cancelled:  b.Cancelled(),
		Unassigned: b.Unassigned(),
	})
}

func (s *Server) handleStatuses(w http.ResponseWriter, _ *http.Request) {
	cat := StatusCatalog{CancellationReasons: models.CancellationReasons()}
	for _, st := range append(models.Ordering(), models.StatusCancelled) {
		cat.Statuses = append(cat.Statuses, models.Describe(st))
	}
	writeJSON(w, http.StatusOK, cat)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidOrder), errors.Is(err, models.ErrUnknownStatus):
		code = http.StatusBadRequest
	case errors.Is(err, models.ErrOrderNotFound):
		code = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, storage.ErrOrderExists):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		log.Printf("[server] internal error: %v", err)
		writeDetail(w, code, "internal error")
		return
	}
	writeDetail(w, code, err.Error())
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
