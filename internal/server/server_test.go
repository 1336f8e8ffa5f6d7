package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/atabuy/internal/config"
	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
	"gitlab.ozon.dev/qwestard/atabuy/internal/repository"
	"gitlab.ozon.dev/qwestard/atabuy/internal/service"
	"gitlab.ozon.dev/qwestard/atabuy/internal/tracking"
)

type fakeRepo struct {
	orders  map[string]models.Order
	listErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: make(map[string]models.Order)}
}

func (r *fakeRepo) Create(_ context.Context, o *models.Order) error {
	if _, exists := r.orders[o.ID]; exists {
		return errors.New("order already exists")
	}
	r.orders[o.ID] = *o.Clone()
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*models.Order, error) {
	o, exists := r.orders[id]
	if !exists {
		return nil, nil
	}
	return o.Clone(), nil
}

func (r *fakeRepo) List(_ context.Context, f repository.ListFilter) ([]*models.Order, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var result []*models.Order
	for _, o := range r.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		result = append(result, o.Clone())
	}
	return result, nil
}

func (r *fakeRepo) UpdateTx(_ context.Context, id string, mutate func(*models.Order) error) (*models.Order, error) {
	o, exists := r.orders[id]
	if !exists {
		return nil, models.ErrOrderNotFound
	}
	c := o.Clone()
	if err := mutate(c); err != nil {
		return nil, err
	}
	r.orders[id] = *c.Clone()
	return c, nil
}

var _ repository.Repository = (*fakeRepo)(nil)

const testToken = "test-token"

var testNow = time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)

func newTestServer(repo *fakeRepo) *Server {
	cfg := &config.Config{HTTPPort: "8080", AdminToken: testToken}
	svc := service.NewOrderService(repo, nil, nil, nil, service.Options{
		Now: func() time.Time { return testNow },
	})
	s := NewServer(svc, nil, cfg)
	s.now = func() time.Time { return testNow }
	return s
}

func createTestMux(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func do(mux *http.ServeMux, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if admin {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func seed(repo *fakeRepo, id string, status models.OrderStatus) {
	o := models.Order{ID: id, Status: status, CreatedAt: testNow}
	o.AppendHistory(models.StatusConfirmed, testNow.Add(-48*time.Hour), "")
	o.AppendHistory(models.StatusWarehouse, testNow.Add(-24*time.Hour), "")
	o.AppendHistory(models.StatusDelivered, testNow.Add(72*time.Hour), "")
	repo.orders[id] = o
}

func TestHandleCreateOrder(t *testing.T) {
	repo := newFakeRepo()
	mux := createTestMux(newTestServer(repo))

	t.Run("valid order", func(t *testing.T) {
		rec := do(mux, http.MethodPost, "/orders", service.CreateOrderRequest{
			CustomerName:    "Aysel",
			DeliveryAddress: "Bakı",
			Items:           []models.LineItem{{ProductID: "p1", Price: 10, Quantity: 3}},
		}, false)
		require.Equal(t, http.StatusCreated, rec.Code)

		var got models.Order
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, models.StatusConfirmed, got.Status)
		assert.Equal(t, 30.0, got.Total)
		assert.Contains(t, repo.orders, got.ID)
	})

	t.Run("bad JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader("badjson"))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid order", func(t *testing.T) {
		rec := do(mux, http.MethodPost, "/orders", service.CreateOrderRequest{}, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "customer_name is required")
	})
}

func TestHandleListOrders(t *testing.T) {
	repo := newFakeRepo()
	mux := createTestMux(newTestServer(repo))
	seed(repo, "1", models.StatusConfirmed)
	seed(repo, "2", models.StatusAirplane)

	rec := do(mux, http.MethodGet, "/orders", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(mux, http.MethodGet, "/orders", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []models.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&orders))
	assert.Len(t, orders, 2)

	rec = do(mux, http.MethodGet, "/orders?status=airplane", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	orders = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "2", orders[0].ID)

	rec = do(mux, http.MethodGet, "/orders?status=shipping", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	repo.listErr = errors.New("db down")
	rec = do(mux, http.MethodGet, "/orders", nil, true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestHandleGetOrder(t *testing.T) {
	repo := newFakeRepo()
	mux := createTestMux(newTestServer(repo))
	seed(repo, "abc", models.StatusWarehouse)

	t.Run("order exists", func(t *testing.T) {
		rec := do(mux, http.MethodGet, "/orders/abc", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)
		var got models.Order
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "abc", got.ID)
		assert.Len(t, got.StatusHistory, 3)
	})

	t.Run("order not found", func(t *testing.T) {
		rec := do(mux, http.MethodGet, "/orders/nope", nil, false)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), `"detail"`)
	})
}

func TestHandleUpdateOrder(t *testing.T) {
	repo := newFakeRepo()
	mux := createTestMux(newTestServer(repo))
	seed(repo, "abc", models.StatusConfirmed)
	seed(repo, "done", models.StatusDelivered)

	t.Run("requires token", func(t *testing.T) {
		rec := do(mux, http.MethodPut, "/orders/abc", service.StatusUpdate{Status: models.StatusAirplane}, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, models.StatusConfirmed, repo.orders["abc"].Status)
	})

	t.Run("moves order", func(t *testing.T) {
		rec := do(mux, http.MethodPut, "/orders/abc", service.StatusUpdate{Status: models.StatusAirplane}, true)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, models.StatusAirplane, repo.orders["abc"].Status)
	})

	t.Run("unknown status", func(t *testing.T) {
		rec := do(mux, http.MethodPut, "/orders/abc", map[string]string{"status": "shipping"}, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("cannot cancel delivered", func(t *testing.T) {
		rec := do(mux, http.MethodPut, "/orders/done", service.StatusUpdate{Status: models.StatusCancelled}, true)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing order", func(t *testing.T) {
		rec := do(mux, http.MethodPut, "/orders/nope", service.StatusUpdate{Status: models.StatusAirplane}, true)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleAppendMilestone(t *testing.T) {
	repo := newFakeRepo()
	mux := createTestMux(newTestServer(repo))
	seed(repo, "abc", models.StatusWarehouse)

	rec := do(mux, http.MethodPost, "/orders/abc/history", service.MilestoneRequest{
		Status: models.StatusAirplane,
		Date:   testNow.Add(24 * time.Hour),
	}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, repo.orders["abc"].StatusHistory, 4)
}

func TestHandleTimeline(t *testing.T) {
	repo := newFakeRepo()
	mux := createTestMux(newTestServer(repo))
	seed(repo, "abc", models.StatusDelivered)

	rec := do(mux, http.MethodGet, "/orders/abc/timeline", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	var v tracking.View
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	assert.Equal(t, models.StatusWarehouse, v.Current.Key)
	assert.Equal(t, models.StatusDelivered, v.NominalStatus)
	require.Len(t, v.Milestones, 3)
	assert.Equal(t, 3, v.Milestones[2].DaysRemaining)
	assert.Equal(t, "3 gün sonra", v.Milestones[2].Countdown)
}

func TestHandleBoard(t *testing.T) {
	repo := newFakeRepo()
	mux := createTestMux(newTestServer(repo))
	seed(repo, "a", models.StatusConfirmed)
	seed(repo, "b", models.StatusCancelled)
	seed(repo, "c", "pending")

	rec := do(mux, http.MethodGet, "/board", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap BoardSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	require.Len(t, snap.Columns, 5)
	assert.Equal(t, models.StatusConfirmed, snap.Columns[0].Status)
	assert.Len(t, snap.Columns[0].Orders, 1)
	assert.Len(t, snap.Cancelled.Orders, 1)
	require.Len(t, snap.Unassigned, 1)
	assert.Equal(t, "c", snap.Unassigned[0].ID)
}

func TestHandleStatuses(t *testing.T) {
	mux := createTestMux(newTestServer(newFakeRepo()))
	rec := do(mux, http.MethodGet, "/statuses", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	var cat StatusCatalog
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cat))
	assert.Len(t, cat.Statuses, 6)
	assert.Equal(t, models.CancellationReasons(), cat.CancellationReasons)
}
