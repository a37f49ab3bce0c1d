package consumer

import (
	"context"
	"sync"

	"github.com/irlmbm/companion-backend/internal/models"
	"github.com/irlmbm/companion-backend/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Handler processes one broker message to completion.
type Handler func(ctx context.Context, msg kafka.Message) error

// TaskConsumer runs a fixed-size pool of workers over the tasks topic.
// Each worker owns its own group reader and processes one envelope at
// a time to completion before committing — the prefetch-of-one policy
// that bounds per-worker memory and keeps a slow model call from
// monopolizing a backlog.
type TaskConsumer struct {
	newReader   func() *kafka.Reader
	concurrency int
	handler     Handler
	logger      *logger.Logger

	wg      sync.WaitGroup
	readers []*kafka.Reader
}

// NewTaskConsumer creates a TaskConsumer.
func NewTaskConsumer(newReader func() *kafka.Reader, concurrency int, handler Handler, logger *logger.Logger) *TaskConsumer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &TaskConsumer{
		newReader:   newReader,
		concurrency: concurrency,
		handler:     handler,
		logger:      logger,
	}
}

// Start launches the worker pool. It returns immediately; workers stop
// when ctx is cancelled.
func (c *TaskConsumer) Start(ctx context.Context) {
	for i := 0; i < c.concurrency; i++ {
		reader := c.newReader()
		c.readers = append(c.readers, reader)
		c.wg.Add(1)
		go c.run(ctx, i, reader)
	}
}

// run is one worker's fetch → handle → commit loop.
func (c *TaskConsumer) run(ctx context.Context, id int, reader *kafka.Reader) {
	defer c.wg.Done()

	workerLogger := c.logger.WithPayload(map[string]interface{}{"worker_id": id})
	workerLogger.Info("Worker started")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				workerLogger.Info("Worker stopping")
				return
			}
			workerLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error fetching message from Kafka")
			continue
		}

		if err := c.handler(ctx, msg); err != nil {
			workerLogger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("Error handling task message")
		}

		// Commit only after the task reached a terminal outcome, so a
		// crash mid-task redelivers the envelope to another worker.
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			workerLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to commit task message")
		}
	}
}

// Close stops all readers and waits for the workers to exit.
func (c *TaskConsumer) Close() error {
	var firstErr error
	for _, reader := range c.readers {
		if err := reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.wg.Wait()
	return firstErr
}
