package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pairchat/internal/mail"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

const TypeSendEmail = "email:send"

// TaskEnqueuer 把邮件任务写入 Redis，由 Worker 异步投递。
type TaskEnqueuer struct {
	client *asynq.Client
}

func NewTaskEnqueuer(opt asynq.RedisConnOpt) *TaskEnqueuer {
	return &TaskEnqueuer{client: asynq.NewClient(opt)}
}

func (q *TaskEnqueuer) Close() error {
	return q.client.Close()
}

func newEmailTask(m mail.Message) (*asynq.Task, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal email task: %w", err)
	}
	return asynq.NewTask(TypeSendEmail, payload, asynq.MaxRetry(5), asynq.Timeout(time.Minute)), nil
}

func (q *TaskEnqueuer) EnqueueEmail(ctx context.Context, m mail.Message) error {
	task, err := newEmailTask(m)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		log.Warn().Err(err).Str("to", m.To).Msg("enqueue email failed")
		return err
	}
	return nil
}

var _ mail.Enqueuer = (*TaskEnqueuer)(nil)

// Worker 消费邮件任务并交给 mail.Sender 投递。
type Worker struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	sender mail.Sender
}

func NewWorker(opt asynq.RedisConnOpt, sender mail.Sender) *Worker {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 2,
		LogLevel:    asynq.WarnLevel,
	})
	w := &Worker{srv: srv, mux: asynq.NewServeMux(), sender: sender}
	w.mux.HandleFunc(TypeSendEmail, w.handleSendEmail)
	return w
}

func (w *Worker) handleSendEmail(ctx context.Context, t *asynq.Task) error {
	var m mail.Message
	if err := json.Unmarshal(t.Payload(), &m); err != nil {
		log.Error().Err(err).Msg("email task payload invalid")
		// 格式错误的任务重试也无意义
		return fmt.Errorf("decode email task: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.sender.Send(ctx, m); err != nil {
		log.Warn().Err(err).Str("to", m.To).Msg("email delivery failed, will retry")
		return err
	}
	log.Info().Str("to", m.To).Str("subject", m.Subject).Msg("email delivered")
	return nil
}

// Start 在后台启动消费者，非阻塞。
func (w *Worker) Start() error {
	return w.srv.Start(w.mux)
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}
