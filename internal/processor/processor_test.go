package taskprocessor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/atabuy/internal/repository"
)

type fakeTasks struct {
	tasks    map[int]*repository.Task
	deleted  []int
	failures map[int]repository.TaskStatus
}

func newFakeTasks(tasks ...*repository.Task) *fakeTasks {
	f := &fakeTasks{tasks: map[int]*repository.Task{}, failures: map[int]repository.TaskStatus{}}
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeTasks) CreateTask(context.Context, string, []byte) error { return nil }

func (f *fakeTasks) GetPendingTasks(_ context.Context, _, maxAttempts int) ([]*repository.Task, error) {
	var res []*repository.Task
	for id := 1; id <= len(f.tasks); id++ {
		t, ok := f.tasks[id]
		if ok && t.AttemptCount < maxAttempts && t.Status != repository.TaskStatusNoAttemptsLeft {
			res = append(res, t)
		}
	}
	return res, nil
}

func (f *fakeTasks) MarkTaskProcessing(_ context.Context, id int) error {
	f.tasks[id].Status = repository.TaskStatusProcessing
	return nil
}

func (f *fakeTasks) DeleteTask(_ context.Context, id int) error {
	f.deleted = append(f.deleted, id)
	delete(f.tasks, id)
	return nil
}

func (f *fakeTasks) UpdateTaskFailure(_ context.Context, id int, attempts int, status repository.TaskStatus, _ time.Time) error {
	f.tasks[id].AttemptCount = attempts
	f.tasks[id].Status = status
	f.failures[id] = status
	return nil
}

type fakePublisher struct {
	fail bool
	keys []string
}

func (p *fakePublisher) Publish(_, key string, _ []byte) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.keys = append(p.keys, key)
	return nil
}

func TestProcessPublishesAndDeletes(t *testing.T) {
	tasks := newFakeTasks(
		&repository.Task{ID: 1, OrderID: "A1", Payload: []byte("{}"), Status: repository.TaskStatusCreated},
		&repository.Task{ID: 2, OrderID: "B2", Payload: []byte("{}"), Status: repository.TaskStatusCreated},
	)
	pub := &fakePublisher{}
	p := NewTaskProcessor(tasks, pub, Config{Topic: "events"})

	p.ProcessPendingTasks(context.Background())
	assert.Equal(t, []string{"A1", "B2"}, pub.keys)
	assert.ElementsMatch(t, []int{1, 2}, tasks.deleted)
}

func TestProcessParksAfterMaxAttempts(t *testing.T) {
	tasks := newFakeTasks(&repository.Task{ID: 1, OrderID: "A1", Status: repository.TaskStatusCreated})
	pub := &fakePublisher{fail: true}
	p := NewTaskProcessor(tasks, pub, Config{Topic: "events", MaxAttempts: 2})

	p.ProcessPendingTasks(context.Background())
	require.Equal(t, repository.TaskStatusFailed, tasks.failures[1])

	p.ProcessPendingTasks(context.Background())
	assert.Equal(t, repository.TaskStatusNoAttemptsLeft, tasks.failures[1])
	assert.Equal(t, 2, tasks.tasks[1].AttemptCount)

	p.ProcessPendingTasks(context.Background())
	assert.Equal(t, 2, tasks.tasks[1].AttemptCount)
	assert.Empty(t, tasks.deleted)
}
