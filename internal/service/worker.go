package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"watermarkd/internal/domain"
	"watermarkd/internal/repository"
)

// verifyJob is one queued verification request. The image bytes are owned by
// the job from submission on.
type verifyJob struct {
	id    string
	image []byte
}

// VerificationWorker turns the synchronous extraction pipeline into a
// pollable asynchronous job: Submit writes a started record and enqueues; the
// worker goroutine advances the record to processing and then to a terminal
// state. Every job has a fresh id, so records never contend.
type VerificationWorker struct {
	extract   ExtractService
	ledger    repository.Ledger
	retention time.Duration
	jobs      chan verifyJob
	wg        sync.WaitGroup
	log       *zap.Logger
}

func NewVerificationWorker(
	extract ExtractService,
	ledger repository.Ledger,
	retention time.Duration,
	queueSize int,
	log *zap.Logger,
) *VerificationWorker {
	return &VerificationWorker{
		extract:   extract,
		ledger:    ledger,
		retention: retention,
		jobs:      make(chan verifyJob, queueSize),
		log:       log,
	}
}

// Start launches the consumer goroutine. ctx cancellation stops consumption;
// Stop waits for the in-flight job to finish.
func (w *VerificationWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-w.jobs:
				if !ok {
					return
				}
				w.process(job)
			}
		}
	}()
}

// Stop closes the queue and waits for the worker to drain.
func (w *VerificationWorker) Stop() {
	close(w.jobs)
	w.wg.Wait()
}

// Submit writes the started record and enqueues the job, returning the fresh
// verification id the client polls with. The started record is persisted
// before Submit returns, so polling can begin immediately.
func (w *VerificationWorker) Submit(ctx context.Context, image []byte) (string, error) {
	id := uuid.New().String()

	record := domain.NewVerificationRecord(id, w.retention)
	if err := w.ledger.Put(ctx, record); err != nil {
		return "", err
	}

	w.jobs <- verifyJob{id: id, image: image}

	w.log.Info("Verification job submitted",
		zap.String("verification_id", id),
		zap.Int("image_size", len(image)))

	return id, nil
}

func (w *VerificationWorker) process(job verifyJob) {
	// The submitting request may be long gone; jobs run on their own clock.
	ctx := context.Background()

	w.advance(ctx, job.id, domain.StatusProcessing, nil, "")

	result, err := w.extract.Verify(ctx, job.image)
	if err != nil {
		// Only escaped failures (codec crash, store unreachable) land here;
		// a clean "no mark" outcome is a completed job.
		w.log.Error("Verification job failed",
			zap.String("verification_id", job.id),
			zap.Error(err))
		w.advance(ctx, job.id, domain.StatusError, nil, err.Error())
		return
	}

	w.advance(ctx, job.id, domain.StatusCompleted, result, "")

	w.log.Info("Verification job completed",
		zap.String("verification_id", job.id),
		zap.Bool("has_watermark", result.HasWatermark))
}

func (w *VerificationWorker) advance(ctx context.Context, id string, status domain.VerificationStatus, result *domain.VerifyResult, errMsg string) {
	record := domain.NewVerificationRecord(id, w.retention)
	record.Status = status
	record.ResultData = result
	record.ErrorMessage = errMsg

	if err := w.ledger.Put(ctx, record); err != nil {
		w.log.Error("Failed to advance verification record",
			zap.String("verification_id", id),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
