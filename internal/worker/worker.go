package worker

import (
	"context"
	"log"
	"time"

	"github.com/bobarin/adshot/internal/generator"
	"github.com/bobarin/adshot/internal/queue"
)

// Worker runs queued video phases so their polling loops never occupy a
// request-handling goroutine. The HTTP layer enqueues and returns; outcomes
// land on the project row whether or not the caller is still connected.
type Worker struct {
	generator *generator.Generator
	queue     *queue.Queue
}

func New(gen *generator.Generator, q *queue.Queue) *Worker {
	return &Worker{
		generator: gen,
		queue:     q,
	}
}

// Start begins processing video jobs with the given concurrency and blocks
// until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueGenerateVideo)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Error dequeuing from %s: %v", queueName, err)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing job %s (project: %s, user: %s)", job.ID, job.ProjectID, job.UserID)

			if _, err := w.generator.RunVideoPhase(ctx, job.UserID, job.ProjectID); err != nil {
				// The phase already refunded and recorded the error where needed.
				log.Printf("Job %s failed (kind=%s, debited=%v): %v", job.ID, generator.KindOf(err), generator.WasDebited(err), err)
			} else {
				log.Printf("Job %s completed successfully", job.ID)
			}
		}
	}
}
