package db

import (
	"database/sql"
	"time"

	"github.com/deemkeen/vidodon/domain"
	"github.com/google/uuid"
)

// Video queries
const (
	sqlInsertVideo = `INSERT INTO videos(id, url, name, channel_actor_id, privacy, likes, dislikes, views, local, last_refreshed_at, created_at)
                      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectVideo = `SELECT id, url, name, channel_actor_id, privacy, likes, dislikes, views, local, last_refreshed_at, created_at FROM videos`
)

func (s *Store) CreateVideo(v *domain.Video) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertVideo,
			v.Id.String(),
			v.Url,
			v.Name,
			v.ChannelActorId.String(),
			string(v.Privacy),
			v.Likes,
			v.Dislikes,
			v.Views,
			v.Local,
			v.LastRefreshedAt,
			v.CreatedAt,
		)
		return err
	})
}

func (s *Store) scanVideo(row *sql.Row) (*domain.Video, error) {
	var v domain.Video
	var idStr, channelIdStr, privacyStr string
	err := row.Scan(&idStr, &v.Url, &v.Name, &channelIdStr, &privacyStr, &v.Likes, &v.Dislikes, &v.Views, &v.Local, &v.LastRefreshedAt, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.Id, _ = uuid.Parse(idStr)
	v.ChannelActorId, _ = uuid.Parse(channelIdStr)
	v.Privacy = domain.VideoPrivacy(privacyStr)
	return &v, nil
}

func (s *Store) ReadVideoByUrl(url string) (*domain.Video, error) {
	return s.scanVideo(s.db.QueryRow(sqlSelectVideo+` WHERE url = ?`, url))
}

func (s *Store) ReadVideoById(id uuid.UUID) (*domain.Video, error) {
	return s.scanVideo(s.db.QueryRow(sqlSelectVideo+` WHERE id = ?`, id.String()))
}

func (s *Store) ReadLocalVideos(limit int) ([]domain.Video, error) {
	rows, err := s.db.Query(sqlSelectVideo+` WHERE local = 1 ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []domain.Video
	for rows.Next() {
		var v domain.Video
		var idStr, channelIdStr, privacyStr string
		if err := rows.Scan(&idStr, &v.Url, &v.Name, &channelIdStr, &privacyStr, &v.Likes, &v.Dislikes, &v.Views, &v.Local, &v.LastRefreshedAt, &v.CreatedAt); err != nil {
			return videos, err
		}
		v.Id, _ = uuid.Parse(idStr)
		v.ChannelActorId, _ = uuid.Parse(channelIdStr)
		v.Privacy = domain.VideoPrivacy(privacyStr)
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// UpdateVideoFromRemote merges refreshed attributes into a cached remote
// video and resets its freshness timestamp.
func (s *Store) UpdateVideoFromRemote(v *domain.Video) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE videos SET name = ?, privacy = ?, likes = ?, dislikes = ?, views = ?, last_refreshed_at = ? WHERE url = ?`,
			v.Name, string(v.Privacy), v.Likes, v.Dislikes, v.Views, v.LastRefreshedAt, v.Url)
		return err
	})
}

func (s *Store) UpdateVideoRefreshedAt(url string, at time.Time) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE videos SET last_refreshed_at = ? WHERE url = ?`, at, url)
		return err
	})
}

// DeleteVideoByUrl removes a video together with its shares, rates, views
// and comments. Used when a remote video is permanently gone.
func (s *Store) DeleteVideoByUrl(url string) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT id FROM videos WHERE url = ?`, url)
		var idStr string
		if err := row.Scan(&idStr); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return err
		}
		for _, stmt := range []string{
			`DELETE FROM video_shares WHERE video_id = ?`,
			`DELETE FROM account_video_rates WHERE video_id = ?`,
			`DELETE FROM video_views WHERE video_id = ?`,
			`DELETE FROM video_comments WHERE video_id = ?`,
		} {
			if _, err := tx.Exec(stmt, idStr); err != nil {
				return err
			}
		}
		_, err := tx.Exec(`DELETE FROM videos WHERE id = ?`, idStr)
		return err
	})
}

// VideoShare queries

func (s *Store) ReadVideoShareByUrl(url string) (*domain.VideoShare, error) {
	row := s.db.QueryRow(`SELECT id, actor_id, video_id, url, created_at FROM video_shares WHERE url = ?`, url)
	var sh domain.VideoShare
	var idStr, actorIdStr, videoIdStr string
	err := row.Scan(&idStr, &actorIdStr, &videoIdStr, &sh.Url, &sh.CreatedAt)
	if err != nil {
		return nil, err
	}
	sh.Id, _ = uuid.Parse(idStr)
	sh.ActorId, _ = uuid.Parse(actorIdStr)
	sh.VideoId, _ = uuid.Parse(videoIdStr)
	return &sh, nil
}

// CreateVideoShare inserts a share keyed by the Announce activity URL.
// Returns true when the share was newly created, false when the same URL was
// already recorded.
func (s *Store) CreateVideoShare(sh *domain.VideoShare) (bool, error) {
	created := false
	err := s.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO video_shares(id, actor_id, video_id, url, created_at) VALUES (?, ?, ?, ?, ?)
                             ON CONFLICT(url) DO NOTHING`,
			sh.Id.String(), sh.ActorId.String(), sh.VideoId.String(), sh.Url, sh.CreatedAt)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		created = n > 0
		return nil
	})
	return created, err
}

func (s *Store) DeleteVideoShareByUrl(url string) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM video_shares WHERE url = ?`, url)
		return err
	})
}

// AccountVideoRate queries

func (s *Store) ReadRateByPair(accountActorId, videoId uuid.UUID) (*domain.AccountVideoRate, error) {
	row := s.db.QueryRow(`SELECT id, account_actor_id, video_id, type, url, created_at FROM account_video_rates
                          WHERE account_actor_id = ? AND video_id = ?`, accountActorId.String(), videoId.String())
	var r domain.AccountVideoRate
	var idStr, accStr, vidStr, typeStr string
	err := row.Scan(&idStr, &accStr, &vidStr, &typeStr, &r.Url, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Id, _ = uuid.Parse(idStr)
	r.AccountActorId, _ = uuid.Parse(accStr)
	r.VideoId, _ = uuid.Parse(vidStr)
	r.Type = domain.RateType(typeStr)
	return &r, nil
}

// ApplyRateChange upserts the rate row and adjusts both video counters in a
// single transaction, so a re-federation never observes a half-applied
// change. likesDelta and dislikesDelta carry the net counter adjustment.
func (s *Store) ApplyRateChange(rate *domain.AccountVideoRate, likesDelta, dislikesDelta int) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO account_video_rates(id, account_actor_id, video_id, type, url, created_at)
                           VALUES (?, ?, ?, ?, ?, ?)
                           ON CONFLICT(account_actor_id, video_id) DO UPDATE SET type = excluded.type, url = excluded.url`,
			rate.Id.String(), rate.AccountActorId.String(), rate.VideoId.String(), string(rate.Type), rate.Url, rate.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE videos SET likes = likes + ?, dislikes = dislikes + ? WHERE id = ?`,
			likesDelta, dislikesDelta, rate.VideoId.String())
		return err
	})
}

// RemoveRate deletes the rate row and decrements the matching counter, used
// by Undo Like/Dislike processing.
func (s *Store) RemoveRate(accountActorId, videoId uuid.UUID, rateType domain.RateType) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM account_video_rates WHERE account_actor_id = ? AND video_id = ? AND type = ?`,
			accountActorId.String(), videoId.String(), string(rateType))
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil
		}
		column := "likes"
		if rateType == domain.RateTypeDislike {
			column = "dislikes"
		}
		_, err = tx.Exec(`UPDATE videos SET `+column+` = `+column+` - 1 WHERE id = ?`, videoId.String())
		return err
	})
}

// VideoView queries

// CreateVideoView records a watch and bumps the video counter. A viewer with
// an unexpired view record for the same video is not counted again.
func (s *Store) CreateVideoView(view *domain.VideoView) (bool, error) {
	counted := false
	err := s.wrapTransaction(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT COUNT(1) FROM video_views WHERE video_id = ? AND viewer_id = ? AND (expires_at IS NULL OR expires_at > ?)`,
			view.VideoId.String(), view.ViewerId, time.Now())
		var existing int
		if err := row.Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}
		_, err := tx.Exec(`INSERT INTO video_views(id, video_id, viewer_id, views, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			view.Id.String(), view.VideoId.String(), view.ViewerId, view.Views, view.ExpiresAt, view.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE videos SET views = views + ? WHERE id = ?`, view.Views, view.VideoId.String())
		if err != nil {
			return err
		}
		counted = true
		return nil
	})
	return counted, err
}

// VideoComment queries

func (s *Store) CreateVideoComment(c *domain.VideoComment) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO video_comments(id, url, video_id, actor_id, text, deleted, approved, approval_url, created_at)
                           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Id.String(), c.Url, c.VideoId.String(), c.ActorId.String(), c.Text, c.Deleted, c.Approved, c.ApprovalUrl, c.CreatedAt)
		return err
	})
}

func (s *Store) ReadVideoCommentByUrl(url string) (*domain.VideoComment, error) {
	row := s.db.QueryRow(`SELECT id, url, video_id, actor_id, text, deleted, approved, approval_url, created_at FROM video_comments WHERE url = ?`, url)
	var c domain.VideoComment
	var idStr, videoIdStr, actorIdStr string
	err := row.Scan(&idStr, &c.Url, &videoIdStr, &actorIdStr, &c.Text, &c.Deleted, &c.Approved, &c.ApprovalUrl, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Id, _ = uuid.Parse(idStr)
	c.VideoId, _ = uuid.Parse(videoIdStr)
	c.ActorId, _ = uuid.Parse(actorIdStr)
	return &c, nil
}

func (s *Store) ApproveVideoComment(url, approvalUrl string) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE video_comments SET approved = 1, approval_url = ? WHERE url = ?`, approvalUrl, url)
		return err
	})
}

// VideoPlaylist queries

func (s *Store) CreateVideoPlaylist(p *domain.VideoPlaylist) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO video_playlists(id, url, name, owner_actor_id, local, last_refreshed_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.Id.String(), p.Url, p.Name, p.OwnerActorId.String(), p.Local, p.LastRefreshedAt, p.CreatedAt)
		return err
	})
}

func (s *Store) ReadVideoPlaylistByUrl(url string) (*domain.VideoPlaylist, error) {
	row := s.db.QueryRow(`SELECT id, url, name, owner_actor_id, local, last_refreshed_at, created_at FROM video_playlists WHERE url = ?`, url)
	var p domain.VideoPlaylist
	var idStr, ownerIdStr string
	err := row.Scan(&idStr, &p.Url, &p.Name, &ownerIdStr, &p.Local, &p.LastRefreshedAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Id, _ = uuid.Parse(idStr)
	p.OwnerActorId, _ = uuid.Parse(ownerIdStr)
	return &p, nil
}

func (s *Store) UpdateVideoPlaylistFromRemote(p *domain.VideoPlaylist) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE video_playlists SET name = ?, last_refreshed_at = ? WHERE url = ?`, p.Name, p.LastRefreshedAt, p.Url)
		return err
	})
}

func (s *Store) UpdateVideoPlaylistRefreshedAt(url string, at time.Time) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE video_playlists SET last_refreshed_at = ? WHERE url = ?`, at, url)
		return err
	})
}

func (s *Store) DeleteVideoPlaylistByUrl(url string) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM video_playlists WHERE url = ?`, url)
		return err
	})
}
