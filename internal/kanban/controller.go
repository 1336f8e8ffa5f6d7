package kanban

import (
	"context"
	"log"
	"sync"

	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
	"gitlab.ozon.dev/qwestard/atabuy/internal/orderstore"
)

type Store interface {
	ListOrders(ctx context.Context) ([]models.Order, error)
	UpdateOrder(ctx context.Context, id string, upd orderstore.StatusUpdate) (*models.Order, error)
}

// Controller runs the board against the order service. Each drop issues its
// own request; requests for different orders may be in flight together.
type Controller struct {
	mu       sync.Mutex
	board    *Board
	store    Store
	notifier Notifier
	// allowDrop receives the drag-over acknowledgement; nil discards it.
	allowDrop func(models.OrderStatus)

	inflight sync.WaitGroup
}

func NewController(store Store, notifier Notifier) *Controller {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Controller{
		board:    NewBoard(),
		store:    store,
		notifier: notifier,
	}
}

// Load fetches the full order set. There is no auto-refresh; call Load again
// to see changes made elsewhere.
func (c *Controller) Load(ctx context.Context) error {
	orders, err := c.store.ListOrders(ctx)
	if err != nil {
		log.Printf("[kanban] load orders: %v", err)
		c.dispatch(ctx, LoadFailed{Err: err})
		return err
	}
	log.Printf("[kanban] loaded %d orders", len(orders))
	return c.dispatch(ctx, OrdersLoaded{Orders: orders})
}

func (c *Controller) DragStart(orderID string) error {
	return c.dispatch(context.Background(), DragStart{OrderID: orderID})
}

func (c *Controller) DragOver(status models.OrderStatus) error {
	return c.dispatch(context.Background(), DragOver{Status: status})
}

// OnAllowDrop registers fn to be told which column accepts the dragged card.
func (c *Controller) OnAllowDrop(fn func(models.OrderStatus)) {
	c.mu.Lock()
	c.allowDrop = fn
	c.mu.Unlock()
}

func (c *Controller) DragCancel() {
	_ = c.dispatch(context.Background(), DragCancel{})
}

// Drop releases the dragged card on a column. The status update runs in the
// background; use Wait to block until it is reconciled.
func (c *Controller) Drop(ctx context.Context, status models.OrderStatus, reason string) error {
	return c.dispatch(ctx, Drop{Status: status, Reason: reason})
}

// Move is DragStart followed by Drop on the target column.
func (c *Controller) Move(ctx context.Context, orderID string, status models.OrderStatus, reason string) error {
	if err := c.DragStart(orderID); err != nil {
		return err
	}
	return c.Drop(ctx, status, reason)
}

// Wait blocks until every issued status update has been reconciled.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

func (c *Controller) Columns() []Column {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Columns()
}

func (c *Controller) Cancelled() Column {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Cancelled()
}

func (c *Controller) Unassigned() []models.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Unassigned()
}

func (c *Controller) Order(id string) (models.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Order(id)
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Phase()
}

func (c *Controller) Reconciling(orderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Reconciling(orderID)
}

func (c *Controller) dispatch(ctx context.Context, msg Msg) error {
	c.mu.Lock()
	effects, err := c.board.Apply(msg)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	for _, eff := range effects {
		c.run(ctx, eff)
	}
	return nil
}

func (c *Controller) run(ctx context.Context, eff Effect) {
	switch e := eff.(type) {
	case RequestUpdate:
		c.inflight.Add(1)
		// once issued, an update runs to completion even if the caller goes away
		go c.requestUpdate(context.WithoutCancel(ctx), e)
	case Notify:
		c.notifier.Notify(e)
	case AllowDrop:
		c.mu.Lock()
		fn := c.allowDrop
		c.mu.Unlock()
		if fn != nil {
			fn(e.Status)
		}
	}
}

func (c *Controller) requestUpdate(ctx context.Context, e RequestUpdate) {
	defer c.inflight.Done()

	log.Printf("[kanban] order %s -> %s", e.OrderID, e.Status)
	updated, err := c.store.UpdateOrder(ctx, e.OrderID, orderstore.StatusUpdate{
		Status:             e.Status,
		CancellationReason: e.Reason,
	})
	if err != nil {
		log.Printf("[kanban] update order %s: %v", e.OrderID, err)
		_ = c.dispatch(ctx, UpdateFailed{OrderID: e.OrderID, Status: e.Status, Err: err})
		return
	}
	_ = c.dispatch(ctx, UpdateSucceeded{OrderID: e.OrderID, Status: e.Status, Order: updated})
}
