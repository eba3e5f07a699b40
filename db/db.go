package db

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/deemkeen/vidodon/domain"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// Store is the persistence layer handle. It is constructed once at process
// start and injected into every component that needs it.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the sqlite database at path and runs the
// migrations.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	// Try to enable WAL mode
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		log.Printf("Warning: Failed to enable WAL mode: %v", err)
	} else {
		log.Printf("Database journal mode: %s", journalMode)
	}

	// Optimize PRAGMAs for the concurrent federation workload
	db.Exec("PRAGMA synchronous = NORMAL")
	db.Exec("PRAGMA cache_size = -64000")
	db.Exec("PRAGMA temp_store = MEMORY")
	db.Exec("PRAGMA busy_timeout = 5000")
	db.Exec("PRAGMA foreign_keys = ON")

	store := &Store{db: db}
	if err := store.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// wrapTransaction runs the given function within a transaction, retrying on
// SQLITE_BUSY.
func (s *Store) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Printf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}

// Actor queries
const (
	sqlInsertActor = `INSERT INTO actors(id, preferred_username, domain, url, inbox_url, shared_inbox_url, outbox_url, followers_url, public_key_pem, private_key_pem, local, last_refreshed_at, created_at)
                      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectActor = `SELECT id, preferred_username, domain, url, inbox_url, shared_inbox_url, outbox_url, followers_url, public_key_pem, private_key_pem, local, last_refreshed_at, created_at FROM actors`
	sqlUpdateActor = `UPDATE actors SET preferred_username = ?, inbox_url = ?, shared_inbox_url = ?, outbox_url = ?, followers_url = ?, public_key_pem = ?, last_refreshed_at = ? WHERE url = ?`
	sqlDeleteActor = `DELETE FROM actors WHERE url = ?`
)

func (s *Store) CreateActor(a *domain.Actor) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertActor,
			a.Id.String(),
			a.PreferredUsername,
			a.Domain,
			a.Url,
			a.InboxUrl,
			a.SharedInboxUrl,
			a.OutboxUrl,
			a.FollowersUrl,
			a.PublicKeyPem,
			a.PrivateKeyPem,
			a.Local,
			a.LastRefreshedAt,
			a.CreatedAt,
		)
		return err
	})
}

func (s *Store) scanActor(row *sql.Row) (*domain.Actor, error) {
	var a domain.Actor
	var idStr string
	err := row.Scan(
		&idStr,
		&a.PreferredUsername,
		&a.Domain,
		&a.Url,
		&a.InboxUrl,
		&a.SharedInboxUrl,
		&a.OutboxUrl,
		&a.FollowersUrl,
		&a.PublicKeyPem,
		&a.PrivateKeyPem,
		&a.Local,
		&a.LastRefreshedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Id, _ = uuid.Parse(idStr)
	return &a, nil
}

func (s *Store) ReadActorByUrl(url string) (*domain.Actor, error) {
	return s.scanActor(s.db.QueryRow(sqlSelectActor+` WHERE url = ?`, url))
}

func (s *Store) ReadActorById(id uuid.UUID) (*domain.Actor, error) {
	return s.scanActor(s.db.QueryRow(sqlSelectActor+` WHERE id = ?`, id.String()))
}

func (s *Store) ReadLocalActorByUsername(username string) (*domain.Actor, error) {
	return s.scanActor(s.db.QueryRow(sqlSelectActor+` WHERE preferred_username = ? AND local = 1`, username))
}

// UpdateActor merges refreshed attributes into an existing actor row, keyed
// by the stable actor URL.
func (s *Store) UpdateActor(a *domain.Actor) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateActor,
			a.PreferredUsername,
			a.InboxUrl,
			a.SharedInboxUrl,
			a.OutboxUrl,
			a.FollowersUrl,
			a.PublicKeyPem,
			a.LastRefreshedAt,
			a.Url,
		)
		return err
	})
}

func (s *Store) UpdateActorRefreshedAt(url string, at time.Time) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE actors SET last_refreshed_at = ? WHERE url = ?`, at, url)
		return err
	})
}

// DeleteActorByUrl removes an actor and its follow edges, used when a remote
// actor is permanently gone.
func (s *Store) DeleteActorByUrl(url string) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT id FROM actors WHERE url = ?`, url)
		var idStr string
		if err := row.Scan(&idStr); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return err
		}
		if _, err := tx.Exec(`DELETE FROM actor_follows WHERE actor_id = ? OR target_actor_id = ?`, idStr, idStr); err != nil {
			return err
		}
		_, err := tx.Exec(sqlDeleteActor, url)
		return err
	})
}

// ActorFollow queries
const (
	sqlInsertFollow = `INSERT INTO actor_follows(id, actor_id, target_actor_id, url, state, score, created_at, updated_at)
                       VALUES (?, ?, ?, ?, ?, ?, ?, ?)
                       ON CONFLICT(actor_id, target_actor_id) DO NOTHING`
	sqlSelectFollow = `SELECT id, actor_id, target_actor_id, url, state, score, created_at, updated_at FROM actor_follows`
)

// CreateActorFollow inserts a follow edge; a second insert for the same
// (follower, target) pair is silently ignored.
func (s *Store) CreateActorFollow(f *domain.ActorFollow) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollow,
			f.Id.String(),
			f.ActorId.String(),
			f.TargetActorId.String(),
			f.Url,
			string(f.State),
			f.Score,
			f.CreatedAt,
			f.UpdatedAt,
		)
		return err
	})
}

func (s *Store) scanFollow(row *sql.Row) (*domain.ActorFollow, error) {
	var f domain.ActorFollow
	var idStr, actorIdStr, targetIdStr, stateStr string
	err := row.Scan(&idStr, &actorIdStr, &targetIdStr, &f.Url, &stateStr, &f.Score, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.Id, _ = uuid.Parse(idStr)
	f.ActorId, _ = uuid.Parse(actorIdStr)
	f.TargetActorId, _ = uuid.Parse(targetIdStr)
	f.State = domain.FollowState(stateStr)
	return &f, nil
}

func (s *Store) ReadActorFollowByUrl(url string) (*domain.ActorFollow, error) {
	return s.scanFollow(s.db.QueryRow(sqlSelectFollow+` WHERE url = ?`, url))
}

func (s *Store) ReadActorFollowByPair(actorId, targetActorId uuid.UUID) (*domain.ActorFollow, error) {
	return s.scanFollow(s.db.QueryRow(sqlSelectFollow+` WHERE actor_id = ? AND target_actor_id = ?`, actorId.String(), targetActorId.String()))
}

func (s *Store) UpdateActorFollowState(url string, state domain.FollowState) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE actor_follows SET state = ?, updated_at = ? WHERE url = ?`, string(state), time.Now(), url)
		return err
	})
}

func (s *Store) DeleteActorFollowByUrl(url string) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM actor_follows WHERE url = ?`, url)
		return err
	})
}

// AddScoreToInbox applies a score delta to every follow edge whose follower
// delivers through the given inbox URL, clamped at the score ceiling.
func (s *Store) AddScoreToInbox(inboxUrl string, delta int) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE actor_follows SET score = MIN(score + ?, ?), updated_at = ?
                           WHERE actor_id IN (SELECT id FROM actors WHERE inbox_url = ? OR shared_inbox_url = ?)`,
			delta, domain.FollowScoreMax, time.Now(), inboxUrl, inboxUrl)
		return err
	})
}

// AddScoreToServer applies a score delta to every follow edge of a server,
// used by the good/bad server hints.
func (s *Store) AddScoreToServer(serverDomain string, delta int) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE actor_follows SET score = MIN(score + ?, ?), updated_at = ?
                           WHERE actor_id IN (SELECT id FROM actors WHERE domain = ?)`,
			delta, domain.FollowScoreMax, time.Now(), serverDomain)
		return err
	})
}

// RemoveBadActorFollows deletes follow edges whose score decayed to zero or
// below and returns how many were swept.
func (s *Store) RemoveBadActorFollows() (int64, error) {
	var removed int64
	err := s.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM actor_follows WHERE score <= 0`)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}

// ReadFollowerInboxUrls returns the distinct delivery inbox URLs of all
// accepted followers of the given actor, preferring shared inboxes.
func (s *Store) ReadFollowerInboxUrls(targetActorId uuid.UUID) ([]string, error) {
	rows, err := s.db.Query(`SELECT CASE WHEN a.shared_inbox_url != '' THEN a.shared_inbox_url ELSE a.inbox_url END
                             FROM actor_follows f INNER JOIN actors a ON a.id = f.actor_id
                             WHERE f.target_actor_id = ? AND f.state = 'accepted'`, targetActorId.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return urls, err
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}
