package taskprocessor

import (
	"context"
	"log"
	"time"

	"gitlab.ozon.dev/qwestard/atabuy/internal/kafka"
	"gitlab.ozon.dev/qwestard/atabuy/internal/repository"
)

type Config struct {
	Topic        string
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	RetryDelay   time.Duration
}

// TaskProcessor relays outbox tasks to the broker. A task is deleted once
// published; after MaxAttempts failures it is parked as NO_ATTEMPTS_LEFT.
type TaskProcessor struct {
	repo         repository.TaskRepository
	producer     kafka.Publisher
	topic        string
	pollInterval time.Duration
	limit        int
	maxAttempts  int
	retryDelay   time.Duration
	now          func() time.Time
}

func NewTaskProcessor(repo repository.TaskRepository, producer kafka.Publisher, cfg Config) *TaskProcessor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &TaskProcessor{
		repo:         repo,
		producer:     producer,
		topic:        cfg.Topic,
		pollInterval: cfg.PollInterval,
		limit:        cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		retryDelay:   cfg.RetryDelay,
		now:          time.Now,
	}
}

func (p *TaskProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessPendingTasks(ctx)
		}
	}
}

func (p *TaskProcessor) ProcessPendingTasks(ctx context.Context) {
	tasks, err := p.repo.GetPendingTasks(ctx, p.limit, p.maxAttempts)
	if err != nil {
		log.Printf("[outbox] error fetching pending tasks: %v", err)
		return
	}
	for _, task := range tasks {
		if err := p.repo.MarkTaskProcessing(ctx, task.ID); err != nil {
			log.Printf("[outbox] error marking task %d as PROCESSING: %v", task.ID, err)
			continue
		}

		if err := p.producer.Publish(p.topic, task.OrderID, task.Payload); err != nil {
			p.update(ctx, task, err)
			continue
		}
		log.Printf("[outbox] task %d for order %s published", task.ID, task.OrderID)
		if err := p.repo.DeleteTask(ctx, task.ID); err != nil {
			log.Printf("[outbox] error deleting task %d after successful publish: %v", task.ID, err)
		}
	}
}

func (p *TaskProcessor) update(ctx context.Context, task *repository.Task, err error) {
	newAttempt := task.AttemptCount + 1
	newStatus := repository.TaskStatusFailed
	if newAttempt >= p.maxAttempts {
		newStatus = repository.TaskStatusNoAttemptsLeft
	}
	nextAttempt := p.now().Add(p.retryDelay)
	if errUpd := p.repo.UpdateTaskFailure(ctx, task.ID, newAttempt, newStatus, nextAttempt); errUpd != nil {
		log.Printf("[outbox] error updating task %d on failure: %v", task.ID, errUpd)
	}
	log.Printf("[outbox] failed to publish task %d (attempt %d/%d): %v", task.ID, newAttempt, p.maxAttempts, err)
}
