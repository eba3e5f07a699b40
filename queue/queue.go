package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/deemkeen/vidodon/db"
	"github.com/google/uuid"
)

// Job kinds produced by the federation engine.
const (
	JobTypeHTTPUnicast           = "activitypub-http-unicast"
	JobTypeHTTPBroadcast         = "activitypub-http-broadcast"
	JobTypeHTTPBroadcastParallel = "activitypub-http-broadcast-parallel"
	JobTypeRefresher             = "activitypub-refresher"
)

// BroadcastPayload is the contract for the delivery job kinds. Signing
// material is re-derived from the signing actor at execution time because
// HTTP signatures are time-bound.
type BroadcastPayload struct {
	Activity             json.RawMessage `json:"activity"`
	SigningActorUrl      string          `json:"signingActorUrl"`
	DestinationInboxUrls []string        `json:"destinationInboxUrls"`
}

// RefreshPayload is the contract for the refresher job kind.
type RefreshPayload struct {
	ObjectType string `json:"objectType"` // "video" | "actor" | "video-playlist"
	Url        string `json:"url"`
}

// HandlerFunc processes one job payload. A returned error makes the queue
// retry the whole job after a backoff.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Queue is a persistent job queue drained by a ticker worker. Failed jobs
// retry with exponential backoff and are dropped after too many attempts.
type Queue struct {
	store    *db.Store
	interval time.Duration

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func New(store *db.Store) *Queue {
	return &Queue{
		store:    store,
		interval: 10 * time.Second,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a handler to a job type. Registering twice for the same
// type is a programming error.
func (q *Queue) Register(jobType string, h HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.handlers[jobType]; ok {
		panic(fmt.Sprintf("queue: handler already registered for %s", jobType))
	}
	q.handlers[jobType] = h
}

// Enqueue marshals the payload and stores the job for the next worker pass.
func (q *Queue) Enqueue(jobType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := &db.Job{
		Id:          uuid.New(),
		Type:        jobType,
		Payload:     string(body),
		Attempts:    0,
		NextRetryAt: time.Now(),
		CreatedAt:   time.Now(),
	}
	return q.store.EnqueueJob(job)
}

// Start runs the worker loop until the context is cancelled.
func (q *Queue) Start(ctx context.Context) {
	log.Println("JobQueue: starting worker...")

	ticker := time.NewTicker(q.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				q.ProcessPending(ctx)
			case <-ctx.Done():
				log.Println("JobQueue: stopping worker")
				return
			}
		}
	}()
}

// ProcessPending drains one batch of due jobs.
func (q *Queue) ProcessPending(ctx context.Context) {
	jobs, err := q.store.ReadPendingJobs(50)
	if err != nil {
		log.Printf("JobQueue: Failed to read queue: %v", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	log.Printf("JobQueue: Processing %d pending jobs", len(jobs))

	for _, job := range jobs {
		if err := q.runJob(ctx, &job); err != nil {
			// Failed job - retry with exponential backoff
			job.Attempts++
			backoffMinutes := []int{1, 5, 15, 60, 240, 1440}[min(job.Attempts-1, 5)]
			nextRetry := time.Now().Add(time.Duration(backoffMinutes) * time.Minute)

			if job.Attempts >= 10 {
				// Give up after 10 attempts
				log.Printf("JobQueue: Giving up on %s job %s after %d attempts", job.Type, job.Id, job.Attempts)
				q.store.DeleteJob(job.Id)
			} else {
				log.Printf("JobQueue: %s job %s failed (attempt %d), retry in %dm: %v",
					job.Type, job.Id, job.Attempts, backoffMinutes, err)
				q.store.UpdateJobAttempt(job.Id, job.Attempts, nextRetry)
			}
		} else {
			q.store.DeleteJob(job.Id)
		}
	}
}

func (q *Queue) runJob(ctx context.Context, job *db.Job) error {
	q.mu.RLock()
	handler, ok := q.handlers[job.Type]
	q.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for job type %s", job.Type)
	}
	return handler(ctx, json.RawMessage(job.Payload))
}
