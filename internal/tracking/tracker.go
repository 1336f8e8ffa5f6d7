package tracking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
	"gitlab.ozon.dev/qwestard/atabuy/internal/orderstore"
	"gitlab.ozon.dev/qwestard/atabuy/internal/poll"
	"gitlab.ozon.dev/qwestard/atabuy/internal/timeline"
)

var ErrEmptyOrderID = errors.New("empty order id")

const (
	MsgEmptyOrderID = "Sifariş ID daxil edin"
	MsgNotFound     = "Sifariş tapılmadı"
)

type OrderGetter interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
}

type Tracker struct {
	orders OrderGetter
	now    func() time.Time
}

func NewTracker(orders OrderGetter, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{orders: orders, now: now}
}

func (t *Tracker) Track(ctx context.Context, id string) (View, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return View{}, ErrEmptyOrderID
	}
	o, err := t.orders.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, orderstore.ErrNotFound) {
			return View{}, fmt.Errorf("%s: %w", MsgNotFound, err)
		}
		return View{}, err
	}
	return Render(*o, t.now()), nil
}

// WaitFor polls the order until its projected status reaches target.
// Transient failures count as not-ready attempts; anything else stops.
func (t *Tracker) WaitFor(ctx context.Context, id string, target models.OrderStatus, cfg poll.Config) (View, error) {
	var last View
	err := poll.Poll(ctx, cfg, func(ctx context.Context, _ int) (bool, error) {
		v, err := t.Track(ctx, id)
		if err != nil {
			if orderstore.IsTransient(err) {
				return false, nil
			}
			return false, err
		}
		last = v
		return timeline.Reached(v.Current.Key, target), nil
	})
	return last, err
}

func Fprint(w io.Writer, v View) {
	fmt.Fprintf(w, "Sifariş: %s\n", v.OrderID)
	if v.TrackingNumber != "" {
		fmt.Fprintf(w, "İzləmə nömrəsi: %s\n", v.TrackingNumber)
	}
	fmt.Fprintf(w, "Status: %s\n", v.Current.Text)
	for _, m := range v.Milestones {
		mark := "[ ]"
		if m.Checked {
			mark = "[x]"
		}
		date := m.Date.Raw
		if m.Date.Valid {
			date = m.Date.Time.Local().Format("02.01.2006 15:04")
		}
		line := fmt.Sprintf("  %s %-28s %s", mark, m.Message, date)
		if m.Countdown != "" {
			line += "  (" + m.Countdown + ")"
		}
		if m.Badge != "" {
			line += "  <" + m.Badge + ">"
		}
		fmt.Fprintln(w, line)
	}
}
