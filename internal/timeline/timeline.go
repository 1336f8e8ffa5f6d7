// Package timeline projects an order's status history onto wall-clock time.
//
// The history is a chronological list of planned or actual milestones, some of
// which may still lie in the future. The projected status is the latest
// milestone whose date has already passed, which may differ from the order's
// nominal status field.
package timeline

import (
	"math"
	"time"

	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
)

const day = 24 * time.Hour

type ProjectedEntry struct {
	models.StatusHistoryEntry
	Index         int
	IsPast        bool
	IsCurrent     bool
	DaysRemaining int
}

type Projection struct {
	Current models.OrderStatus
	Entries []ProjectedEntry
}

// CurrentStatus scans the history from the end and returns the status of the
// first entry already reached by now. With nothing reached it returns
// confirmed.
func CurrentStatus(history []models.StatusHistoryEntry, now time.Time) models.OrderStatus {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Date.ReachedBy(now) {
			return history[i].Status
		}
	}
	return models.StatusConfirmed
}

func IsPast(entry models.StatusHistoryEntry, now time.Time) bool {
	return entry.Date.ReachedBy(now)
}

// DaysRemaining is ceil((date-now)/24h) floored at zero.
func DaysRemaining(date models.HistoryDate, now time.Time) int {
	if !date.Valid {
		return 0
	}
	diff := date.Time.Sub(now)
	if diff <= 0 {
		return 0
	}
	return int(math.Ceil(float64(diff) / float64(day)))
}

// Project classifies every entry in stored order. Every entry carrying the
// projected status is marked current, so duplicate statuses yield more than one
// current entry.
func Project(history []models.StatusHistoryEntry, now time.Time) Projection {
	current := CurrentStatus(history, now)
	entries := make([]ProjectedEntry, len(history))
	for i, e := range history {
		entries[i] = ProjectedEntry{
			StatusHistoryEntry: e,
			Index:              i,
			IsPast:             IsPast(e, now),
			IsCurrent:          e.Status == current,
			DaysRemaining:      DaysRemaining(e.Date, now),
		}
	}
	return Projection{Current: current, Entries: entries}
}

// Reached reports whether the projected status is at or beyond target in the
// pipeline. A cancelled projection only reaches cancelled.
func Reached(current, target models.OrderStatus) bool {
	if current == target {
		return true
	}
	cp, tp := models.Position(current), models.Position(target)
	return cp >= 0 && tp >= 0 && cp >= tp
}
