package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/quote-engine/internal/pricing"
	"github.com/noah-isme/quote-engine/internal/quote"
)

// TypeQuoteCalculated is the task type consumed by persistence and checkout workers.
const TypeQuoteCalculated = "quote:calculated"

const (
	defaultQueue    = "quotes"
	defaultMaxRetry = 5
	defaultTimeout  = 30 * time.Second
)

// ErrEnqueuerUnavailable indicates no task client was configured.
var ErrEnqueuerUnavailable = errors.New("tasks: enqueuer not configured")

// QuoteCalculatedPayload is the JSON body of a quote:calculated task.
type QuoteCalculatedPayload struct {
	QuoteID      string            `json:"quoteId"`
	CalculatorID string            `json:"calculatorId"`
	Selection    pricing.Selection `json:"selection"`
	Breakdown    pricing.Breakdown `json:"breakdown"`
	Token        string            `json:"token,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// Enqueuer is the subset of *asynq.Client used to hand off tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher enqueues computed quotes for consumers outside this service.
type Publisher struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

// NewQuoteCalculatedTask builds the task for q.
func NewQuoteCalculatedTask(q quote.Quote) (*asynq.Task, error) {
	payload, err := json.Marshal(QuoteCalculatedPayload{
		QuoteID:      q.ID,
		CalculatorID: q.CalculatorID,
		Selection:    q.Selection,
		Breakdown:    q.Breakdown,
		Token:        q.Token,
		CreatedAt:    q.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("tasks: encode quote payload: %w", err)
	}
	return asynq.NewTask(TypeQuoteCalculated, payload), nil
}

// ParseQuoteCalculated decodes a task produced by NewQuoteCalculatedTask.
func ParseQuoteCalculated(t *asynq.Task) (QuoteCalculatedPayload, error) {
	var payload QuoteCalculatedPayload
	if t == nil || t.Type() != TypeQuoteCalculated {
		return payload, fmt.Errorf("tasks: unexpected task type")
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("tasks: decode quote payload: %w", err)
	}
	return payload, nil
}

// PublishQuote implements quote.Publisher. The quote id doubles as the task id so
// a retried publish never enqueues the same quote twice.
func (p *Publisher) PublishQuote(ctx context.Context, q quote.Quote) error {
	if p == nil || p.Client == nil {
		return ErrEnqueuerUnavailable
	}
	task, err := NewQuoteCalculatedTask(q)
	if err != nil {
		return err
	}
	_, err = p.Client.EnqueueContext(ctx, task, p.options(q.ID)...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("tasks: enqueue %s: %w", TypeQuoteCalculated, err)
	}
	return nil
}

func (p *Publisher) options(taskID string) []asynq.Option {
	queue := strings.TrimSpace(p.Queue)
	if queue == "" {
		queue = defaultQueue
	}
	maxRetry := p.MaxRetry
	if maxRetry <= 0 {
		maxRetry = defaultMaxRetry
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts := []asynq.Option{
		asynq.Queue(queue),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(timeout),
	}
	if taskID != "" {
		opts = append(opts, asynq.TaskID(taskID))
	}
	return opts
}
