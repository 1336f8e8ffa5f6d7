package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrUnknownStatus     = errors.New("unknown order status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOrderNotFound     = errors.New("order not found")
)

const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

var historyDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// HistoryDate is a milestone date as it came over the wire. A value that does
// not parse is kept with Valid=false instead of failing the whole order.
type HistoryDate struct {
	Time  time.Time
	Raw   string
	Valid bool
}

func NewHistoryDate(t time.Time) HistoryDate {
	return HistoryDate{Time: t.UTC(), Raw: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func ParseHistoryDate(raw string) HistoryDate {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range historyDateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return HistoryDate{Time: t.UTC(), Raw: raw, Valid: true}
		}
	}
	return HistoryDate{Raw: raw}
}

// ReachedBy reports whether the date is at or before now. Invalid dates are
// never reached.
func (d HistoryDate) ReachedBy(now time.Time) bool {
	return d.Valid && !now.Before(d.Time)
}

func (d HistoryDate) MarshalJSON() ([]byte, error) {
	if d.Valid {
		return json.Marshal(d.Time.Format(time.RFC3339Nano))
	}
	if d.Raw == "" {
		return []byte("null"), nil
	}
	return json.Marshal(d.Raw)
}

func (d *HistoryDate) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		// numbers and objects end up as unreachable dates
		*d = HistoryDate{Raw: string(data)}
		return nil
	}
	*d = ParseHistoryDate(raw)
	return nil
}

type StatusHistoryEntry struct {
	Status  OrderStatus `json:"status"`
	Date    HistoryDate `json:"date"`
	Message string      `json:"message"`
}

type LineItem struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	Image     string  `json:"image,omitempty"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

type Order struct {
	ID                 string               `json:"id"`
	Status             OrderStatus          `json:"status"`
	StatusHistory      []StatusHistoryEntry `json:"status_history"`
	PaymentStatus      string               `json:"payment_status"`
	TrackingNumber     string               `json:"tracking_number,omitempty"`
	CustomerName       string               `json:"customer_name"`
	CustomerEmail      string               `json:"customer_email"`
	CustomerPhone      string               `json:"customer_phone"`
	DeliveryAddress    string               `json:"delivery_address"`
	Items              []LineItem           `json:"items"`
	Subtotal           float64              `json:"subtotal"`
	Discount           float64              `json:"discount"`
	CouponCode         string               `json:"coupon_code,omitempty"`
	Total              float64              `json:"total"`
	CancellationReason string               `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (o *Order) Clone() *Order {
	c := *o
	if o.StatusHistory != nil {
		c.StatusHistory = make([]StatusHistoryEntry, len(o.StatusHistory))
		copy(c.StatusHistory, o.StatusHistory)
	}
	if o.Items != nil {
		c.Items = make([]LineItem, len(o.Items))
		copy(c.Items, o.Items)
	}
	return &c
}

// AppendHistory adds a milestone at the end of the history. Entries are never
// re-sorted.
func (o *Order) AppendHistory(status OrderStatus, at time.Time, message string) {
	if message == "" {
		message = Describe(status).Text
	}
	o.StatusHistory = append(o.StatusHistory, StatusHistoryEntry{
		Status:  status,
		Date:    NewHistoryDate(at),
		Message: message,
	})
}

// StatusChangedEvent is published whenever the nominal status changes.
type StatusChangedEvent struct {
	OrderID   string      `json:"order_id"`
	OldStatus OrderStatus `json:"old_status"`
	NewStatus OrderStatus `json:"new_status"`
	Reason    string      `json:"reason,omitempty"`
	ChangedAt time.Time   `json:"changed_at"`
}
