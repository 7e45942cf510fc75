// Package worker provides an asynchronous worker pool that turns recorded
// messages into memories.
//
// The pool decouples inference from the webhook hot path: a message is
// acknowledged as soon as it is in the ledger, and its memory is derived in
// the background. A job that fails, or is dropped because the queue is full,
// leaves the message pending; the reconciler finds it again later. Failures
// are counted in the message status, and a message that keeps failing is
// eventually given up on.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/mnemo/pkg/eventstream"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/recorder"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 2 * time.Minute
	defaultMaxAttempts       = 5
	statusUpdateTimeout      = 5 * time.Second

	defaultRetryPolicy = storage.RetryPolicy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  10 * time.Second,
	}
)

// Job is a unit of work for the worker pool: derive the memory for one
// message.
type Job struct {
	MessageID         int64
	UserID            int64
	ProviderMessageID string

	// Attempts is how many earlier jobs for the message failed.
	Attempts int
}

// StatusSetter records a message's status.
type StatusSetter interface {
	SetMessageStatus(ctx context.Context, id int64, status string) error
}

// MediaLister returns the media linked to a message.
type MediaLister interface {
	ListMessageMedia(ctx context.Context, messageID int64) ([]*storage.MediaFile, error)
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Recorder writes memories and interactions.
	Recorder *recorder.Recorder

	// Inferer derives memories from messages.
	Inferer memory.Inferer

	// Media is the optional source of media context for inference.
	Media MediaLister

	// Publisher receives memory.recorded events. Optional.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Retry bounds retries of inference outages and transient storage errors.
	Retry storage.RetryPolicy

	// JobTimeout bounds a single job including its retries.
	JobTimeout time.Duration

	// Messages records failed attempts in the message status. Optional;
	// without it failed messages stay pending indefinitely.
	Messages StatusSetter

	// MaxAttempts is the number of failed jobs after which a message is
	// marked storage.StatusMemoryFailed and no longer swept. Defaults to 5.
	MaxAttempts int

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Pool processes memory jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool

	// inflight dedups jobs for the same message while one is queued or running.
	inflight sync.Map
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Recorder == nil {
		return nil, errors.New("worker pool requires a recorder")
	}
	if c.Inferer == nil {
		return nil, fmt.Errorf("worker pool requires an inferer: %w", memory.ErrNotConfigured)
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Retry.Attempts == 0 {
		c.Retry = defaultRetryPolicy
	}

	if c.JobTimeout == 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, the pool is closed or
// the message already has a job in flight.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}

	if _, busy := p.inflight.LoadOrStore(job.MessageID, struct{}{}); busy {
		p.logger.Debug("job already in flight", "message_id", job.MessageID)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"message_id", job.MessageID,
			"provider_message_id", job.ProviderMessageID,
		)
		return true
	default:
		p.inflight.Delete(job.MessageID)
		p.logger.Error("job not queued, queue full, job dropped",
			"message_id", job.MessageID,
			"provider_message_id", job.ProviderMessageID,
		)
		return false
	}
}

// Pending returns the number of queued jobs.
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
		p.inflight.Delete(job.MessageID)
	}

	p.logger.Debug("memory worker stopped", "worker_id", id)
}

// processJob derives and records the memory for a message, retrying
// inference outages and transient storage failures with backoff.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	var turn *recorder.Turn
	err := storage.RetryWhen(ctx, p.config.Retry, retryable, func(ctx context.Context) error {
		var err error
		turn, err = p.config.Recorder.EnsureMemory(ctx, job.MessageID, job.UserID, p.infer)
		if err != nil && retryable(err) {
			p.logger.Warn("memory attempt failed, retrying",
				"message_id", job.MessageID,
				"error", err,
			)
		}
		return err
	})
	if err != nil {
		p.logger.Error("memory not recorded",
			"message_id", job.MessageID,
			"provider_message_id", job.ProviderMessageID,
			"attempt", job.Attempts+1,
			"error", err,
		)
		p.recordFailure(job, err)
		return
	}

	if !turn.IsNew {
		p.logger.Debug("turn already recorded", "message_id", job.MessageID)
		return
	}

	p.logger.Info("conversation turn stored",
		"message_id", job.MessageID,
		"memory_id", turn.Memory.ID,
	)
	p.publish(ctx, job, turn)
}

// recordFailure counts a failed job in the message status, giving up on the
// message after MaxAttempts. A missing inferer is not the message's fault and
// is not counted.
func (p *Pool) recordFailure(job Job, cause error) {
	if p.config.Messages == nil || errors.Is(cause, memory.ErrNotConfigured) {
		return
	}

	attempts := job.Attempts + 1
	status := storage.RetryStatus(attempts)
	if attempts >= p.config.MaxAttempts {
		status = storage.StatusMemoryFailed
	}

	ctx, cancel := context.WithTimeout(context.Background(), statusUpdateTimeout)
	defer cancel()
	if err := p.config.Messages.SetMessageStatus(ctx, job.MessageID, status); err != nil {
		p.logger.Warn("could not record failed attempt", "message_id", job.MessageID, "error", err)
		return
	}
	if status == storage.StatusMemoryFailed {
		p.logger.Error("memory attempts exhausted, message will not be retried",
			"message_id", job.MessageID,
			"attempts", attempts,
		)
	}
}

// infer builds the inference request for a message, attaching its media.
func (p *Pool) infer(ctx context.Context, msg *storage.Message) (*memory.Inference, error) {
	req := memory.Request{
		UserID: msg.UserID,
		Text:   msg.Body,
	}

	if p.config.Media != nil && msg.NumMedia > 0 {
		files, err := p.config.Media.ListMessageMedia(ctx, msg.ID)
		if err != nil {
			return nil, fmt.Errorf("loading media context: %w", err)
		}
		for _, f := range files {
			req.MediaContext = append(req.MediaContext, memory.MediaRef{
				ContentType: f.ContentType,
				URL:         f.StorageURL,
				Hash:        f.ContentHash,
			})
		}
	}

	return p.config.Inferer.Infer(ctx, req)
}

func (p *Pool) publish(ctx context.Context, job Job, turn *recorder.Turn) {
	if p.config.Publisher == nil {
		return
	}

	event := eventstream.NewEvent(eventstream.EventTypeMemoryRecorded, turn.Memory.ExternalID)
	event.Memory = &eventstream.MemoryMeta{
		UserID:     turn.Memory.UserID,
		MemoryID:   turn.Memory.ID,
		MessageID:  storage.Int64Ptr(job.MessageID),
		ExternalID: turn.Memory.ExternalID,
		Kind:       string(turn.Memory.Kind),
	}
	if err := p.config.Publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish memory event",
			"message_id", job.MessageID,
			"error", err,
		)
	}
}

func retryable(err error) bool {
	return errors.Is(err, memory.ErrInferenceUnavailable) || storage.IsTransient(err)
}
