package tracking_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
	"gitlab.ozon.dev/qwestard/atabuy/internal/orderstore"
	"gitlab.ozon.dev/qwestard/atabuy/internal/poll"
	"gitlab.ozon.dev/qwestard/atabuy/internal/tracking"
)

var day0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func at(days int) time.Time {
	return day0.AddDate(0, 0, days)
}

func scenarioOrder() models.Order {
	return models.Order{
		ID:             "AB12CD34",
		Status:         models.StatusDelivered,
		TrackingNumber: "ATB9F8E7D6C",
		StatusHistory: []models.StatusHistoryEntry{
			{Status: models.StatusConfirmed, Date: models.NewHistoryDate(at(0)), Message: "Sifariş təsdiqləndi"},
			{Status: models.StatusWarehouse, Date: models.NewHistoryDate(at(3)), Message: "Anbardan çıxdı"},
			{Status: models.StatusDelivered, Date: models.NewHistoryDate(at(10)), Message: ""},
		},
	}
}

func TestRenderTimeline(t *testing.T) {
	v := tracking.Render(scenarioOrder(), at(5))

	assert.Equal(t, "AB12CD34", v.OrderID)
	assert.Equal(t, models.StatusWarehouse, v.Current.Key)
	assert.Equal(t, models.StatusDelivered, v.NominalStatus)
	require.Len(t, v.Milestones, 3)

	first, second, third := v.Milestones[0], v.Milestones[1], v.Milestones[2]
	assert.True(t, first.Checked)
	assert.Empty(t, first.Badge)
	assert.Empty(t, first.Countdown)

	assert.True(t, second.Checked)
	assert.True(t, second.Current)
	assert.Equal(t, tracking.CurrentBadge, second.Badge)

	assert.False(t, third.Checked)
	assert.False(t, third.Current)
	assert.Equal(t, 5, third.DaysRemaining)
	assert.Equal(t, "5 gün sonra", third.Countdown)
	assert.Equal(t, "Ünvana çatdırıldı", third.Message)
}

func TestRenderWithoutHistory(t *testing.T) {
	v := tracking.Render(models.Order{ID: "X", Status: models.StatusAirplane}, at(0))
	assert.Equal(t, models.StatusConfirmed, v.Current.Key)
	assert.Empty(t, v.Milestones)
}

func TestRenderMalformedDateHasNoCountdown(t *testing.T) {
	o := models.Order{ID: "X", StatusHistory: []models.StatusHistoryEntry{
		{Status: models.StatusWarehouse, Date: models.ParseHistoryDate("tbd"), Message: "m"},
	}}
	v := tracking.Render(o, at(0))
	require.Len(t, v.Milestones, 1)
	assert.False(t, v.Milestones[0].Checked)
	assert.Empty(t, v.Milestones[0].Countdown)
	assert.Equal(t, models.StatusConfirmed, v.Current.Key)
}

type fakeGetter struct {
	orders map[string]models.Order
	errs   []error
	calls  int
}

func (f *fakeGetter) GetOrder(_ context.Context, id string) (*models.Order, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, &orderstore.StatusError{Code: 404}
	}
	return &o, nil
}

func TestTrackerTrack(t *testing.T) {
	getter := &fakeGetter{orders: map[string]models.Order{"AB12CD34": scenarioOrder()}}
	tr := tracking.NewTracker(getter, func() time.Time { return at(5) })

	v, err := tr.Track(context.Background(), "  AB12CD34 ")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWarehouse, v.Current.Key)

	_, err = tr.Track(context.Background(), "")
	assert.ErrorIs(t, err, tracking.ErrEmptyOrderID)
}

func TestTrackerNotFound(t *testing.T) {
	getter := &fakeGetter{orders: map[string]models.Order{}}
	tr := tracking.NewTracker(getter, nil)

	_, err := tr.Track(context.Background(), "missing")
	assert.ErrorIs(t, err, orderstore.ErrNotFound)
	assert.Contains(t, err.Error(), tracking.MsgNotFound)
}

func TestTrackerWaitFor(t *testing.T) {
	getter := &fakeGetter{orders: map[string]models.Order{"AB12CD34": scenarioOrder()}}
	clock := at(1)
	tr := tracking.NewTracker(getter, func() time.Time {
		clock = clock.AddDate(0, 0, 1)
		return clock
	})

	v, err := tr.WaitFor(context.Background(), "AB12CD34", models.StatusWarehouse,
		poll.Config{Interval: time.Millisecond, MaxAttempts: 5})
	require.NoError(t, err)
	assert.Equal(t, models.StatusWarehouse, v.Current.Key)
	assert.Equal(t, 2, getter.calls)
}

func TestTrackerWaitForGivesUp(t *testing.T) {
	getter := &fakeGetter{
		orders: map[string]models.Order{"AB12CD34": scenarioOrder()},
		errs:   []error{&orderstore.StatusError{Code: 503}},
	}
	tr := tracking.NewTracker(getter, func() time.Time { return at(1) })

	_, err := tr.WaitFor(context.Background(), "AB12CD34", models.StatusDelivered,
		poll.Config{Interval: time.Millisecond, MaxAttempts: 3})
	assert.ErrorIs(t, err, poll.ErrAttemptsExhausted)
	assert.Equal(t, 3, getter.calls)
}

func TestTrackerWaitForStopsOnNotFound(t *testing.T) {
	getter := &fakeGetter{orders: map[string]models.Order{}}
	tr := tracking.NewTracker(getter, nil)

	_, err := tr.WaitFor(context.Background(), "nope", models.StatusDelivered,
		poll.Config{Interval: time.Millisecond, MaxAttempts: 3})
	assert.True(t, errors.Is(err, orderstore.ErrNotFound))
	assert.Equal(t, 1, getter.calls)
}

func TestFprint(t *testing.T) {
	var buf bytes.Buffer
	tracking.Fprint(&buf, tracking.Render(scenarioOrder(), at(5)))
	out := buf.String()
	assert.Contains(t, out, "AB12CD34")
	assert.Contains(t, out, "ATB9F8E7D6C")
	assert.Contains(t, out, "[x] Anbardan çıxdı")
	assert.Contains(t, out, "(5 gün sonra)")
	assert.Contains(t, out, "<Cari mərhələ>")
}
