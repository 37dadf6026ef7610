package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/dago-node-extract/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Worker represents the extraction worker
type Worker struct {
	id            string
	config        *config.Config
	redisClient   *redis.Client
	processor     *Processor
	recorder      JobRecorder
	logger        *zap.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	streamKey     string
	consumerGroup string
	resultStream  string
	errorStream   string
}

// NewWorker creates a new worker
func NewWorker(
	cfg *config.Config,
	redisClient *redis.Client,
	processor *Processor,
	recorder JobRecorder,
	logger *zap.Logger,
) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	if recorder == nil {
		recorder = nopJobRecorder{}
	}

	return &Worker{
		id:            cfg.WorkerID,
		config:        cfg,
		redisClient:   redisClient,
		processor:     processor,
		recorder:      recorder,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		streamKey:     cfg.StreamKey,
		consumerGroup: cfg.ConsumerGroup,
		resultStream:  cfg.ResultStream,
		errorStream:   cfg.ErrorStream(),
	}
}

// Start starts the worker
func (w *Worker) Start() error {
	w.logger.Info("starting extraction worker",
		zap.String("worker_id", w.id),
		zap.String("stream_key", w.streamKey),
		zap.String("consumer_group", w.consumerGroup),
	)

	// Create consumer group if it doesn't exist
	if err := w.ensureConsumerGroup(); err != nil {
		return fmt.Errorf("failed to ensure consumer group: %w", err)
	}

	w.wg.Add(1)
	go w.processWork()

	w.logger.Info("extraction worker started", zap.String("worker_id", w.id))
	return nil
}

// Stop stops the worker and waits for the in-flight job, bounded by ctx
func (w *Worker) Stop(ctx context.Context) error {
	w.logger.Info("stopping extraction worker", zap.String("worker_id", w.id))

	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("extraction worker stopped", zap.String("worker_id", w.id))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker did not stop in time: %w", ctx.Err())
	}
}

// ensureConsumerGroup creates the consumer group if it doesn't exist
func (w *Worker) ensureConsumerGroup() error {
	err := w.redisClient.XGroupCreateMkStream(w.ctx, w.streamKey, w.consumerGroup, "0").Err()
	if err != nil {
		// BUSYGROUP error means the group already exists, which is fine
		if err.Error() == "BUSYGROUP Consumer Group name already exists" {
			w.logger.Debug("consumer group already exists",
				zap.String("group", w.consumerGroup),
			)
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	w.logger.Info("created consumer group",
		zap.String("group", w.consumerGroup),
		zap.String("stream", w.streamKey),
	)
	return nil
}

// processWork processes work from the Redis stream
func (w *Worker) processWork() {
	defer w.wg.Done()
	w.logger.Info("starting work processing loop")

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Info("work processing loop stopped")
			return
		default:
			streams, err := w.redisClient.XReadGroup(w.ctx, &redis.XReadGroupArgs{
				Group:    w.consumerGroup,
				Consumer: w.id,
				Streams:  []string{w.streamKey, ">"},
				Count:    1,
				Block:    w.config.BlockTime,
			}).Result()

			if err != nil {
				if errors.Is(err, redis.Nil) || w.ctx.Err() != nil {
					continue
				}
				w.logger.Error("failed to read from stream",
					zap.Error(err),
				)
				time.Sleep(time.Second)
				continue
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					w.handleMessage(message)
				}
			}
		}
	}
}

// handleMessage handles a single extraction job message
func (w *Worker) handleMessage(message redis.XMessage) {
	messageID := message.ID
	w.logger.Debug("processing extraction job",
		zap.String("message_id", messageID),
	)

	data, ok := message.Values["data"].(string)
	if !ok {
		w.reject(messageID, messageID, fmt.Errorf("%w: missing or invalid 'data' field", ErrInvalidJob))
		return
	}

	job, err := ParseJob(data)
	if err != nil {
		w.reject(messageID, messageID, err)
		return
	}

	// Jobs run on their own context so that Stop lets the in-flight job
	// finish; the engine timeout bounds it.
	payload, err := w.processor.Process(context.Background(), job)
	if err != nil {
		w.logger.Error("failed to process extraction job",
			zap.String("message_id", messageID),
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		w.publish(w.errorStream, ErrorPayload(w.id, job.ID, err))
	} else {
		w.publish(w.resultStream, payload)
		w.logger.Info("published extraction result",
			zap.String("job_id", job.ID),
			zap.String("type", string(job.Type)),
		)
	}

	w.acknowledgeMessage(messageID)
}

// reject reports an unreadable job and acknowledges it
func (w *Worker) reject(messageID, jobID string, err error) {
	w.logger.Error("failed to parse extraction job",
		zap.String("message_id", messageID),
		zap.Error(err),
	)
	w.recorder.RecordJob("unknown", OutcomeInvalid, 0)
	w.publish(w.errorStream, ErrorPayload(w.id, jobID, err))
	w.acknowledgeMessage(messageID)
}

// publish adds a payload to a stream, retrying up to MAX_RETRIES times
func (w *Worker) publish(stream, payload string) {
	var err error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
		_, err = w.redisClient.XAdd(context.Background(), &redis.XAddArgs{
			Stream: stream,
			Values: map[string]interface{}{
				"data": payload,
			},
		}).Result()
		if err == nil {
			return
		}
	}
	w.logger.Error("failed to publish to stream",
		zap.String("stream", stream),
		zap.Int("attempts", w.config.MaxRetries+1),
		zap.Error(err),
	)
}

// acknowledgeMessage acknowledges a message from the stream
func (w *Worker) acknowledgeMessage(messageID string) {
	err := w.redisClient.XAck(context.Background(), w.streamKey, w.consumerGroup, messageID).Err()
	if err != nil {
		w.logger.Error("failed to acknowledge message",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
