package db

import (
	"database/sql"
	"time"

	"github.com/deemkeen/vidodon/domain"
	"github.com/google/uuid"
)

// Activity log queries (inbound deduplication)

// CreateActivity stores an activity record. Returns true when the URI was
// unseen, false when the activity was already processed before.
func (s *Store) CreateActivity(a *domain.Activity) (bool, error) {
	created := false
	err := s.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO activities(id, activity_uri, activity_type, actor_uri, object_uri, raw_json, processed, local, created_at)
                             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
                             ON CONFLICT(activity_uri) DO NOTHING`,
			a.Id.String(), a.ActivityURI, a.ActivityType, a.ActorURI, a.ObjectURI, a.RawJSON, a.Processed, a.Local, a.CreatedAt)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		created = n > 0
		return nil
	})
	return created, err
}

func (s *Store) ReadActivityByURI(uri string) (*domain.Activity, error) {
	row := s.db.QueryRow(`SELECT id, activity_uri, activity_type, actor_uri, object_uri, raw_json, processed, local, created_at FROM activities WHERE activity_uri = ?`, uri)
	var a domain.Activity
	var idStr string
	err := row.Scan(&idStr, &a.ActivityURI, &a.ActivityType, &a.ActorURI, &a.ObjectURI, &a.RawJSON, &a.Processed, &a.Local, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Id, _ = uuid.Parse(idStr)
	return &a, nil
}

func (s *Store) MarkActivityProcessed(uri string) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE activities SET processed = 1 WHERE activity_uri = ?`, uri)
		return err
	})
}

// Job queue queries

// Job is one queued unit of asynchronous work.
type Job struct {
	Id          uuid.UUID
	Type        string
	Payload     string
	Attempts    int
	NextRetryAt time.Time
	CreatedAt   time.Time
}

func (s *Store) EnqueueJob(j *Job) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO job_queue(id, job_type, payload, attempts, next_retry_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			j.Id.String(), j.Type, j.Payload, j.Attempts, j.NextRetryAt, j.CreatedAt)
		return err
	})
}

func (s *Store) ReadPendingJobs(limit int) ([]Job, error) {
	rows, err := s.db.Query(`SELECT id, job_type, payload, attempts, next_retry_at, created_at FROM job_queue
                             WHERE next_retry_at <= ? ORDER BY created_at ASC LIMIT ?`, time.Now(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var idStr string
		if err := rows.Scan(&idStr, &j.Type, &j.Payload, &j.Attempts, &j.NextRetryAt, &j.CreatedAt); err != nil {
			return jobs, err
		}
		j.Id, _ = uuid.Parse(idStr)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ReadAllJobs returns every stored job regardless of schedule.
func (s *Store) ReadAllJobs() ([]Job, error) {
	rows, err := s.db.Query(`SELECT id, job_type, payload, attempts, next_retry_at, created_at FROM job_queue ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var idStr string
		if err := rows.Scan(&idStr, &j.Type, &j.Payload, &j.Attempts, &j.NextRetryAt, &j.CreatedAt); err != nil {
			return jobs, err
		}
		j.Id, _ = uuid.Parse(idStr)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Store) UpdateJobAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE job_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`, attempts, nextRetry, id.String())
		return err
	})
}

func (s *Store) DeleteJob(id uuid.UUID) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM job_queue WHERE id = ?`, id.String())
		return err
	})
}
