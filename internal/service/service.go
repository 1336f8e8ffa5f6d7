package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"gitlab.ozon.dev/qwestard/atabuy/internal/audit"
	"gitlab.ozon.dev/qwestard/atabuy/internal/cache"
	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
	"gitlab.ozon.dev/qwestard/atabuy/internal/repository"
)

var ErrInvalidOrder = errors.New("invalid order")

// Outbox records a status event for later delivery.
type Outbox interface {
	CreateTask(ctx context.Context, orderID string, payload []byte) error
}

type Auditor interface {
	Log(record audit.AuditLog)
}

type Options struct {
	// AppendHistoryOnUpdate makes every status change also append a history
	// entry dated now. Off by default: the admin board only overwrites the
	// nominal status.
	AppendHistoryOnUpdate bool
	Now                   func() time.Time
}

type CreateOrderRequest struct {
	CustomerName    string            `json:"customer_name"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerPhone   string            `json:"customer_phone"`
	DeliveryAddress string            `json:"delivery_address"`
	Items           []models.LineItem `json:"items"`
	CouponCode      string            `json:"coupon_code,omitempty"`
	Discount        float64           `json:"discount,omitempty"`
}

type StatusUpdate struct {
	Status             models.OrderStatus `json:"status"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
}

type MilestoneRequest struct {
	Status  models.OrderStatus `json:"status"`
	Date    time.Time          `json:"date"`
	Message string             `json:"message,omitempty"`
}

type OrderService struct {
	repo    repository.Repository
	cache   *cache.ActiveOrdersCache
	outbox  Outbox
	auditor Auditor
	opts    Options
}

func NewOrderService(repo repository.Repository, activeCache *cache.ActiveOrdersCache, outbox Outbox, auditor Auditor, opts Options) *OrderService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if activeCache == nil {
		activeCache = cache.NewActiveOrdersCache()
	}
	return &OrderService{
		repo:    repo,
		cache:   activeCache,
		outbox:  outbox,
		auditor: auditor,
		opts:    opts,
	}
}

func (s *OrderService) RefreshActiveOrders(ctx context.Context) error {
	return s.cache.Refresh(ctx, s.repo)
}

func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}
	now := s.opts.Now().UTC()
	var subtotal float64
	for _, it := range req.Items {
		subtotal += it.Price * float64(it.Quantity)
	}
	discount := req.Discount
	if discount > subtotal {
		discount = subtotal
	}

	o := &models.Order{
		ID:              uuid.NewString(),
		Status:          models.StatusConfirmed,
		PaymentStatus:   models.PaymentPending,
		TrackingNumber:  newTrackingNumber(),
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		Items:           req.Items,
		Subtotal:        subtotal,
		Discount:        discount,
		CouponCode:      strings.TrimSpace(req.CouponCode),
		Total:           subtotal - discount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.AppendHistory(models.StatusConfirmed, now, "")

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, err
	}
	s.cache.Put(o)
	s.audit(audit.AuditLog{OrderID: o.ID, NewStatus: string(o.Status), Message: "Order created"})
	return o, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if o, ok := s.cache.Get(id); ok {
		return o, nil
	}
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, models.ErrOrderNotFound
	}
	s.cache.Put(o)
	return o, nil
}

func (s *OrderService) ListOrders(ctx context.Context, f repository.ListFilter) ([]*models.Order, error) {
	return s.repo.List(ctx, f)
}

var errUnchanged = errors.New("status unchanged")

// UpdateStatus changes the nominal status. Setting the status an order
// already has is a no-op and publishes nothing.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (*models.Order, error) {
	target := models.OrderStatus(strings.TrimSpace(string(upd.Status)))
	reason := strings.TrimSpace(upd.CancellationReason)

	var old models.OrderStatus
	var unchanged *models.Order
	o, err := s.repo.UpdateTx(ctx, id, func(o *models.Order) error {
		old = o.Status
		if o.Status == target {
			unchanged = o
			return errUnchanged
		}
		if err := models.CanTransition(o.Status, target); err != nil {
			return err
		}
		now := s.opts.Now().UTC()
		o.Status = target
		if target == models.StatusCancelled {
			o.CancellationReason = reason
		}
		if s.opts.AppendHistoryOnUpdate {
			o.AppendHistory(target, now, "")
		}
		o.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return unchanged, nil
	}
	if err != nil {
		s.forgetMissing(id, err)
		return nil, err
	}

	s.cache.Put(o)
	s.audit(audit.AuditLog{
		OrderID:   o.ID,
		OldStatus: string(old),
		NewStatus: string(o.Status),
		Message:   "Status changed",
	})
	s.publish(ctx, models.StatusChangedEvent{
		OrderID:   o.ID,
		OldStatus: old,
		NewStatus: o.Status,
		Reason:    o.CancellationReason,
		ChangedAt: o.UpdatedAt,
	})
	return o, nil
}

// AppendMilestone adds a planned history entry. It never touches the
// nominal status; the entry starts counting once its date has passed.
func (s *OrderService) AppendMilestone(ctx context.Context, id string, req MilestoneRequest) (*models.Order, error) {
	if !req.Status.Known() || req.Status == models.StatusCancelled {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownStatus, req.Status)
	}
	if req.Date.IsZero() {
		return nil, fmt.Errorf("%w: milestone date is required", ErrInvalidOrder)
	}
	o, err := s.repo.UpdateTx(ctx, id, func(o *models.Order) error {
		if o.Status == models.StatusCancelled {
			return fmt.Errorf("%w: order is cancelled", models.ErrInvalidTransition)
		}
		o.AppendHistory(req.Status, req.Date.UTC(), strings.TrimSpace(req.Message))
		o.UpdatedAt = s.opts.Now().UTC()
		return nil
	})
	if err != nil {
		s.forgetMissing(id, err)
		return nil, err
	}
	s.cache.Put(o)
	s.audit(audit.AuditLog{
		OrderID:   o.ID,
		NewStatus: string(req.Status),
		Message:   "Milestone planned for " + req.Date.UTC().Format(time.RFC3339),
	})
	return o, nil
}

// forgetMissing drops a cached order the store no longer has.
func (s *OrderService) forgetMissing(id string, err error) {
	if errors.Is(err, models.ErrOrderNotFound) {
		s.cache.Delete(id)
	}
}

func (s *OrderService) audit(rec audit.AuditLog) {
	if s.auditor == nil {
		return
	}
	rec.Timestamp = s.opts.Now().UTC()
	s.auditor.Log(rec)
}

// publish failures are logged only; the status change is already committed.
func (s *OrderService) publish(ctx context.Context, ev models.StatusChangedEvent) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[service] encode status event for %s: %v", ev.OrderID, err)
		return
	}
	if err := s.outbox.CreateTask(ctx, ev.OrderID, payload); err != nil {
		log.Printf("[service] enqueue status event for %s: %v", ev.OrderID, err)
	}
}

func validateCreate(req CreateOrderRequest) error {
	var problems []string
	if strings.TrimSpace(req.CustomerName) == "" {
		problems = append(problems, "customer_name is required")
	}
	if strings.TrimSpace(req.DeliveryAddress) == "" {
		problems = append(problems, "delivery_address is required")
	}
	if len(req.Items) == 0 {
		problems = append(problems, "at least one item is required")
	}
	for i, it := range req.Items {
		if it.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if it.Price < 0 {
			problems = append(problems, fmt.Sprintf("item %d: price must not be negative", i))
		}
	}
	if req.Discount < 0 {
		problems = append(problems, "discount must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOrder, strings.Join(problems, "; "))
	}
	return nil
}

func newTrackingNumber() string {
	return "ATB" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
