// Package kanban is the admin order board: orders bucketed by nominal status
// and moved between columns with a drag-and-drop protocol.
//
// Board is a pure reducer. Messages describe what happened (a drag started, a
// card was dropped, the server answered) and Apply returns the effects the
// caller must carry out (issue a status update, show a notification, ack the
// drop target). Controller wires those effects to the order service.
//
// Drag protocol:
//
//	Idle --DragStart--> Dragging --Drop--> (RequestUpdate) --> Idle
//	                               |                          order reconciling
//	                               +--Drop on own column--> Idle (no effect)
//
// Local state changes only after the server confirms, so a failed update
// needs no rollback.
package kanban

import (
	"errors"
	"fmt"

	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
)

var (
	ErrDragInProgress = errors.New("another drag is in progress")
	ErrNotDragging    = errors.New("no order is being dragged")
	ErrUnknownOrder   = errors.New("order is not on the board")
	ErrReconciling    = errors.New("order update is still in flight")
	ErrNotDropTarget  = errors.New("status is not a drop target")
)

const (
	MsgStatusUpdated = "Sifariş statusu yeniləndi"
	MsgUpdateFailed  = "Status yenilənə bilmədi"
	MsgLoadFailed    = "Sifarişlər yüklənə bilmədi"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDragging
)

func (p Phase) String() string {
	if p == PhaseDragging {
		return "dragging"
	}
	return "idle"
}

type Msg interface{ isMsg() }

type OrdersLoaded struct{ Orders []models.Order }
type LoadFailed struct{ Err error }
type DragStart struct{ OrderID string }
type DragOver struct{ Status models.OrderStatus }
type DragCancel struct{}
type Drop struct {
	Status models.OrderStatus
	Reason string
}
type UpdateSucceeded struct {
	OrderID string
	Status  models.OrderStatus
	// Order is the server's copy when it sent one back.
	Order *models.Order
}
type UpdateFailed struct {
	OrderID string
	Status  models.OrderStatus
	Err     error
}

func (OrdersLoaded) isMsg()    {}
func (LoadFailed) isMsg()      {}
func (DragStart) isMsg()       {}
func (DragOver) isMsg()        {}
func (DragCancel) isMsg()      {}
func (Drop) isMsg()            {}
func (UpdateSucceeded) isMsg() {}
func (UpdateFailed) isMsg()    {}

type Effect interface{ isEffect() }

// AllowDrop acknowledges a drag-over so the column accepts the drop.
type AllowDrop struct{ Status models.OrderStatus }

type RequestUpdate struct {
	OrderID string
	Status  models.OrderStatus
	Reason  string
}

type NotifyKind int

const (
	NotifySuccess NotifyKind = iota
	NotifyFailure
)

type Notify struct {
	Kind    NotifyKind
	Message string
	OrderID string
	Err     error
}

func (AllowDrop) isEffect()     {}
func (RequestUpdate) isEffect() {}
func (Notify) isEffect()        {}

type Column struct {
	Status models.OrderStatus `json:"status"`
	Info   models.StatusInfo  `json:"info"`
	Orders []models.Order     `json:"orders"`
}

type Board struct {
	orders   []models.Order
	index    map[string]int
	loaded   bool
	dragging string
	pending  map[string]models.OrderStatus
}

func NewBoard() *Board {
	return &Board{
		index:   make(map[string]int),
		pending: make(map[string]models.OrderStatus),
	}
}

func (b *Board) Phase() Phase {
	if b.dragging != "" {
		return PhaseDragging
	}
	return PhaseIdle
}

func (b *Board) Loaded() bool { return b.loaded }

// Dragging returns the id of the order being dragged.
func (b *Board) Dragging() (string, bool) {
	return b.dragging, b.dragging != ""
}

func (b *Board) Reconciling(orderID string) bool {
	_, ok := b.pending[orderID]
	return ok
}

func (b *Board) Order(id string) (models.Order, bool) {
	i, ok := b.index[id]
	if !ok {
		return models.Order{}, false
	}
	return b.orders[i], true
}

func (b *Board) Len() int { return len(b.orders) }

// Apply feeds one message through the state machine.
func (b *Board) Apply(msg Msg) ([]Effect, error) {
	switch m := msg.(type) {
	case OrdersLoaded:
		return b.load(m.Orders), nil
	case LoadFailed:
		return []Effect{Notify{Kind: NotifyFailure, Message: MsgLoadFailed, Err: m.Err}}, nil
	case DragStart:
		return nil, b.dragStart(m.OrderID)
	case DragOver:
		if b.dragging == "" {
			return nil, ErrNotDragging
		}
		if !IsDropTarget(m.Status) {
			return nil, fmt.Errorf("%w: %q", ErrNotDropTarget, m.Status)
		}
		return []Effect{AllowDrop{Status: m.Status}}, nil
	case DragCancel:
		b.dragging = ""
		return nil, nil
	case Drop:
		return b.drop(m)
	case UpdateSucceeded:
		return b.updateSucceeded(m), nil
	case UpdateFailed:
		delete(b.pending, m.OrderID)
		return []Effect{Notify{Kind: NotifyFailure, Message: MsgUpdateFailed, OrderID: m.OrderID, Err: m.Err}}, nil
	default:
		return nil, fmt.Errorf("kanban: unexpected message %T", msg)
	}
}

func (b *Board) load(orders []models.Order) []Effect {
	b.orders = make([]models.Order, len(orders))
	copy(b.orders, orders)
	b.index = make(map[string]int, len(orders))
	for i, o := range b.orders {
		b.index[o.ID] = i
	}
	b.loaded = true
	if _, ok := b.index[b.dragging]; !ok {
		b.dragging = ""
	}
	return nil
}

func (b *Board) dragStart(id string) error {
	if b.dragging != "" {
		return ErrDragInProgress
	}
	if _, ok := b.index[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	if b.Reconciling(id) {
		return fmt.Errorf("%w: %s", ErrReconciling, id)
	}
	b.dragging = id
	return nil
}

func (b *Board) drop(m Drop) ([]Effect, error) {
	id := b.dragging
	if id == "" {
		return nil, ErrNotDragging
	}
	// the drag source is cleared whatever happens next
	b.dragging = ""

	if !IsDropTarget(m.Status) {
		return nil, fmt.Errorf("%w: %q", ErrNotDropTarget, m.Status)
	}
	order := b.orders[b.index[id]]
	if order.Status == m.Status {
		return nil, nil
	}
	b.pending[id] = m.Status
	return []Effect{RequestUpdate{OrderID: id, Status: m.Status, Reason: m.Reason}}, nil
}

func (b *Board) updateSucceeded(m UpdateSucceeded) []Effect {
	delete(b.pending, m.OrderID)
	i, ok := b.index[m.OrderID]
	if !ok {
		// board was reloaded without this order meanwhile
		return []Effect{Notify{Kind: NotifySuccess, Message: MsgStatusUpdated, OrderID: m.OrderID}}
	}
	if m.Order != nil && m.Order.ID == m.OrderID {
		b.orders[i] = *m.Order
	}
	b.orders[i].Status = m.Status
	return []Effect{Notify{Kind: NotifySuccess, Message: MsgStatusUpdated, OrderID: m.OrderID}}
}

// Columns returns the pipeline columns in lifecycle order. Orders keep the
// order in which they were loaded.
func (b *Board) Columns() []Column {
	statuses := models.Ordering()
	cols := make([]Column, len(statuses))
	for i, s := range statuses {
		cols[i] = Column{Status: s, Info: models.Describe(s), Orders: b.bucket(s)}
	}
	return cols
}

func (b *Board) Column(s models.OrderStatus) []models.Order {
	return b.bucket(s)
}

// Cancelled is the side lane next to the pipeline.
func (b *Board) Cancelled() Column {
	return Column{
		Status: models.StatusCancelled,
		Info:   models.Describe(models.StatusCancelled),
		Orders: b.bucket(models.StatusCancelled),
	}
}

// Unassigned holds orders whose nominal status is neither a pipeline stage
// nor cancelled.
func (b *Board) Unassigned() []models.Order {
	var out []models.Order
	for _, o := range b.orders {
		if !IsDropTarget(o.Status) {
			out = append(out, o)
		}
	}
	return out
}

func (b *Board) bucket(s models.OrderStatus) []models.Order {
	out := []models.Order{}
	for _, o := range b.orders {
		if o.Status == s {
			out = append(out, o)
		}
	}
	return out
}

func IsDropTarget(s models.OrderStatus) bool {
	return models.Position(s) >= 0 || s == models.StatusCancelled
}
