package db

import (
	"database/sql"
	"log"
)

// Schema for the federation engine. Everything is created idempotently so a
// restart against an existing database is a no-op.
const (
	sqlCreateActorsTable = `CREATE TABLE IF NOT EXISTS actors(
                        id uuid NOT NULL PRIMARY KEY,
                        preferred_username varchar(100) NOT NULL,
                        domain varchar(255) NOT NULL,
                        url varchar(2000) UNIQUE NOT NULL,
                        inbox_url varchar(2000) NOT NULL,
                        shared_inbox_url varchar(2000) DEFAULT '',
                        outbox_url varchar(2000) DEFAULT '',
                        followers_url varchar(2000) DEFAULT '',
                        public_key_pem text DEFAULT '',
                        private_key_pem text DEFAULT '',
                        local int NOT NULL DEFAULT 0,
                        last_refreshed_at timestamp NOT NULL,
                        created_at timestamp default current_timestamp
                        )`

	sqlCreateActorFollowsTable = `CREATE TABLE IF NOT EXISTS actor_follows(
                        id uuid NOT NULL PRIMARY KEY,
                        actor_id uuid NOT NULL,
                        target_actor_id uuid NOT NULL,
                        url varchar(2000) NOT NULL,
                        state varchar(20) NOT NULL,
                        score int NOT NULL,
                        created_at timestamp default current_timestamp,
                        updated_at timestamp default current_timestamp,
                        UNIQUE(actor_id, target_actor_id)
                        )`

	sqlCreateVideosTable = `CREATE TABLE IF NOT EXISTS videos(
                        id uuid NOT NULL PRIMARY KEY,
                        url varchar(2000) UNIQUE NOT NULL,
                        name varchar(500) NOT NULL,
                        channel_actor_id uuid NOT NULL,
                        privacy varchar(20) NOT NULL,
                        likes int NOT NULL DEFAULT 0,
                        dislikes int NOT NULL DEFAULT 0,
                        views bigint NOT NULL DEFAULT 0,
                        local int NOT NULL DEFAULT 0,
                        last_refreshed_at timestamp NOT NULL,
                        created_at timestamp default current_timestamp
                        )`

	sqlCreateVideoSharesTable = `CREATE TABLE IF NOT EXISTS video_shares(
                        id uuid NOT NULL PRIMARY KEY,
                        actor_id uuid NOT NULL,
                        video_id uuid NOT NULL,
                        url varchar(2000) UNIQUE NOT NULL,
                        created_at timestamp default current_timestamp
                        )`

	sqlCreateRatesTable = `CREATE TABLE IF NOT EXISTS account_video_rates(
                        id uuid NOT NULL PRIMARY KEY,
                        account_actor_id uuid NOT NULL,
                        video_id uuid NOT NULL,
                        type varchar(10) NOT NULL,
                        url varchar(2000) NOT NULL,
                        created_at timestamp default current_timestamp,
                        UNIQUE(account_actor_id, video_id)
                        )`

	sqlCreateVideoViewsTable = `CREATE TABLE IF NOT EXISTS video_views(
                        id uuid NOT NULL PRIMARY KEY,
                        video_id uuid NOT NULL,
                        viewer_id varchar(500) NOT NULL,
                        views bigint NOT NULL DEFAULT 1,
                        expires_at timestamp,
                        created_at timestamp default current_timestamp
                        )`

	sqlCreateVideoCommentsTable = `CREATE TABLE IF NOT EXISTS video_comments(
                        id uuid NOT NULL PRIMARY KEY,
                        url varchar(2000) UNIQUE NOT NULL,
                        video_id uuid NOT NULL,
                        actor_id uuid NOT NULL,
                        text text NOT NULL DEFAULT '',
                        deleted int NOT NULL DEFAULT 0,
                        approved int NOT NULL DEFAULT 0,
                        approval_url varchar(2000) DEFAULT '',
                        created_at timestamp default current_timestamp
                        )`

	sqlCreateVideoPlaylistsTable = `CREATE TABLE IF NOT EXISTS video_playlists(
                        id uuid NOT NULL PRIMARY KEY,
                        url varchar(2000) UNIQUE NOT NULL,
                        name varchar(500) NOT NULL,
                        owner_actor_id uuid NOT NULL,
                        local int NOT NULL DEFAULT 0,
                        last_refreshed_at timestamp NOT NULL,
                        created_at timestamp default current_timestamp
                        )`

	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities(
                        id uuid NOT NULL PRIMARY KEY,
                        activity_uri varchar(2000) UNIQUE NOT NULL,
                        activity_type varchar(50) NOT NULL,
                        actor_uri varchar(2000) NOT NULL,
                        object_uri varchar(2000) DEFAULT '',
                        raw_json text NOT NULL,
                        processed int NOT NULL DEFAULT 0,
                        local int NOT NULL DEFAULT 0,
                        created_at timestamp default current_timestamp
                        )`

	sqlCreateJobQueueTable = `CREATE TABLE IF NOT EXISTS job_queue(
                        id uuid NOT NULL PRIMARY KEY,
                        job_type varchar(100) NOT NULL,
                        payload text NOT NULL,
                        attempts int NOT NULL DEFAULT 0,
                        next_retry_at timestamp NOT NULL,
                        created_at timestamp default current_timestamp
                        )`
)

var migrationIndices = []string{
	`CREATE INDEX IF NOT EXISTS idx_actors_url ON actors(url)`,
	`CREATE INDEX IF NOT EXISTS idx_actors_domain ON actors(domain)`,
	`CREATE INDEX IF NOT EXISTS idx_actor_follows_score ON actor_follows(score)`,
	`CREATE INDEX IF NOT EXISTS idx_actor_follows_target ON actor_follows(target_actor_id)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_url ON videos(url)`,
	`CREATE INDEX IF NOT EXISTS idx_video_shares_video ON video_shares(video_id)`,
	`CREATE INDEX IF NOT EXISTS idx_rates_video ON account_video_rates(video_id)`,
	`CREATE INDEX IF NOT EXISTS idx_video_views_video ON video_views(video_id)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_video ON video_comments(video_id)`,
	`CREATE INDEX IF NOT EXISTS idx_job_queue_retry ON job_queue(next_retry_at)`,
}

// RunMigrations creates all tables and indices.
func (s *Store) RunMigrations() error {
	tables := []string{
		sqlCreateActorsTable,
		sqlCreateActorFollowsTable,
		sqlCreateVideosTable,
		sqlCreateVideoSharesTable,
		sqlCreateRatesTable,
		sqlCreateVideoViewsTable,
		sqlCreateVideoCommentsTable,
		sqlCreateVideoPlaylistsTable,
		sqlCreateActivitiesTable,
		sqlCreateJobQueueTable,
	}

	err := s.wrapTransaction(func(tx *sql.Tx) error {
		for _, stmt := range tables {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		for _, stmt := range migrationIndices {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Println("Database migrations complete")
	return nil
}
