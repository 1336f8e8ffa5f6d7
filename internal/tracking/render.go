// Package tracking builds the customer-facing order timeline.
package tracking

import (
	"fmt"
	"time"

	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
	"gitlab.ozon.dev/qwestard/atabuy/internal/timeline"
)

const CurrentBadge = "Cari mərhələ"

type Milestone struct {
	Status        models.OrderStatus `json:"status"`
	Info          models.StatusInfo  `json:"info"`
	Message       string             `json:"message"`
	Date          models.HistoryDate `json:"date"`
	Checked       bool               `json:"checked"`
	Current       bool               `json:"current"`
	DaysRemaining int                `json:"days_remaining"`
	Badge         string             `json:"badge,omitempty"`
	Countdown     string             `json:"countdown,omitempty"`
}

type View struct {
	OrderID         string             `json:"order_id"`
	TrackingNumber  string             `json:"tracking_number,omitempty"`
	Current         models.StatusInfo  `json:"current"`
	NominalStatus   models.OrderStatus `json:"nominal_status"`
	CustomerName    string             `json:"customer_name"`
	DeliveryAddress string             `json:"delivery_address"`
	Total           float64            `json:"total"`
	Milestones      []Milestone        `json:"milestones"`
	RenderedAt      time.Time          `json:"rendered_at"`
}

// Render is a pure function of the order and the clock. Milestones keep the
// stored history order.
func Render(o models.Order, now time.Time) View {
	p := timeline.Project(o.StatusHistory, now)
	v := View{
		OrderID:         o.ID,
		TrackingNumber:  o.TrackingNumber,
		Current:         models.Describe(p.Current),
		NominalStatus:   o.Status,
		CustomerName:    o.CustomerName,
		DeliveryAddress: o.DeliveryAddress,
		Total:           o.Total,
		Milestones:      make([]Milestone, 0, len(p.Entries)),
		RenderedAt:      now,
	}
	for _, e := range p.Entries {
		m := Milestone{
			Status:        e.Status,
			Info:          models.Describe(e.Status),
			Message:       e.Message,
			Date:          e.Date,
			Checked:       e.IsPast,
			Current:       e.IsCurrent,
			DaysRemaining: e.DaysRemaining,
		}
		if m.Message == "" {
			m.Message = m.Info.Text
		}
		if e.IsCurrent {
			m.Badge = CurrentBadge
		}
		if !e.IsPast && e.DaysRemaining > 0 {
			m.Countdown = fmt.Sprintf("%d gün sonra", e.DaysRemaining)
		}
		v.Milestones = append(v.Milestones, m)
	}
	return v
}
