package kanban_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/atabuy/internal/kanban"
	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
	"gitlab.ozon.dev/qwestard/atabuy/internal/orderstore"
)

type fakeStore struct {
	mu        sync.Mutex
	orders    []models.Order
	listErr   error
	updateErr map[string]error
	updates   []orderstore.StatusUpdate
	updateIDs []string
	release   chan struct{}
}

func newFakeStore(orders []models.Order) *fakeStore {
	return &fakeStore{orders: orders, updateErr: make(map[string]error)}
}

func (s *fakeStore) ListOrders(context.Context) ([]models.Order, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.orders, nil
}

func (s *fakeStore) UpdateOrder(_ context.Context, id string, upd orderstore.StatusUpdate) (*models.Order, error) {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateIDs = append(s.updateIDs, id)
	s.updates = append(s.updates, upd)
	if err := s.updateErr[id]; err != nil {
		return nil, err
	}
	return &models.Order{ID: id, Status: upd.Status}, nil
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func TestControllerMoveSuccess(t *testing.T) {
	store := newFakeStore(sampleOrders())
	notes := &kanban.RecordingNotifier{}
	c := kanban.NewController(store, notes)
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, c.DragStart("1021"))
	require.NoError(t, c.DragOver(models.StatusAirplane))
	require.NoError(t, c.Drop(context.Background(), models.StatusAirplane, ""))
	c.Wait()

	assert.Equal(t, []orderstore.StatusUpdate{{Status: models.StatusAirplane}}, store.updates)
	assert.Equal(t, []string{"1021"}, store.updateIDs)
	o, _ := c.Order("1021")
	assert.Equal(t, models.StatusAirplane, o.Status)
	assert.Equal(t, []string{"1021"}, ids(c.Columns()[2].Orders))
	assert.Equal(t, []string{"1022"}, ids(c.Columns()[1].Orders))

	all := notes.All()
	require.Len(t, all, 1)
	assert.Equal(t, kanban.NotifySuccess, all[0].Kind)
}

func TestControllerSameColumnNoRequest(t *testing.T) {
	store := newFakeStore(sampleOrders())
	notes := &kanban.RecordingNotifier{}
	c := kanban.NewController(store, notes)
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, c.Move(context.Background(), "1021", models.StatusWarehouse, ""))
	c.Wait()

	assert.Equal(t, 0, store.calls())
	assert.Empty(t, notes.All())
}

func TestControllerServerErrorLeavesBoardUnchanged(t *testing.T) {
	store := newFakeStore(sampleOrders())
	store.updateErr["1021"] = &orderstore.StatusError{Code: 500}
	notes := &kanban.RecordingNotifier{}
	c := kanban.NewController(store, notes)
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, c.Move(context.Background(), "1021", models.StatusAirplane, ""))
	c.Wait()

	assert.Equal(t, []string{"1021", "1022"}, ids(c.Columns()[1].Orders))
	assert.Empty(t, c.Columns()[2].Orders)
	all := notes.All()
	require.Len(t, all, 1)
	assert.Equal(t, kanban.NotifyFailure, all[0].Kind)
	assert.False(t, c.Reconciling("1021"))
}

func TestControllerConcurrentDropsOnDifferentOrders(t *testing.T) {
	store := newFakeStore(sampleOrders())
	store.release = make(chan struct{})
	store.updateErr["1022"] = errors.New("network")
	notes := &kanban.RecordingNotifier{}
	c := kanban.NewController(store, notes)
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, c.Move(context.Background(), "1021", models.StatusAirplane, ""))
	assert.True(t, c.Reconciling("1021"))
	assert.ErrorIs(t, c.DragStart("1021"), kanban.ErrReconciling)
	c.DragCancel()

	require.NoError(t, c.Move(context.Background(), "1022", models.StatusDelivered, ""))
	close(store.release)
	c.Wait()

	assert.Equal(t, 2, store.calls())
	assert.Equal(t, []string{"1022"}, ids(c.Columns()[1].Orders))
	assert.Equal(t, []string{"1021"}, ids(c.Columns()[2].Orders))
	assert.Equal(t, []string{"1023"}, ids(c.Columns()[4].Orders))
	assert.Len(t, notes.All(), 2)
}

func TestControllerUpdateSurvivesCallerCancel(t *testing.T) {
	store := newFakeStore(sampleOrders())
	store.release = make(chan struct{})
	c := kanban.NewController(store, &kanban.RecordingNotifier{})
	require.NoError(t, c.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Move(ctx, "1020", models.StatusWarehouse, ""))
	cancel()
	close(store.release)
	c.Wait()

	o, _ := c.Order("1020")
	assert.Equal(t, models.StatusWarehouse, o.Status)
}

func TestControllerLoadFailure(t *testing.T) {
	store := newFakeStore(nil)
	store.listErr = orderstore.ErrUnauthorized
	notes := &kanban.RecordingNotifier{}
	c := kanban.NewController(store, notes)

	err := c.Load(context.Background())
	assert.ErrorIs(t, err, orderstore.ErrUnauthorized)
	all := notes.Drain()
	require.Len(t, all, 1)
	assert.Equal(t, kanban.MsgLoadFailed, all[0].Message)
	assert.Empty(t, notes.All())
}

func TestControllerReportsAllowDrop(t *testing.T) {
	c := kanban.NewController(newFakeStore(sampleOrders()), &kanban.RecordingNotifier{})
	require.NoError(t, c.Load(context.Background()))

	var accepted []models.OrderStatus
	c.OnAllowDrop(func(s models.OrderStatus) { accepted = append(accepted, s) })

	require.NoError(t, c.DragStart("1021"))
	require.NoError(t, c.DragOver(models.StatusAirplane))
	require.NoError(t, c.DragOver(models.StatusCancelled))
	assert.Equal(t, []models.OrderStatus{models.StatusAirplane, models.StatusCancelled}, accepted)

	c.DragCancel()
	assert.Error(t, c.DragOver(models.StatusAirplane))
	assert.Len(t, accepted, 2)
}
