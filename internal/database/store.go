package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fbposts/internal/logger"
	"fbposts/pkg/post"
)

var ErrPostNotFound = errors.New("post not found")

// Store persists accepted records. It satisfies sink.Sink; posts already
// stored by an earlier run are left untouched.
type Store struct {
	db     *DB
	logger *logger.Logger
}

func NewStore(db *DB) *Store {
	return &Store{db: db, logger: logger.New("store")}
}

func (s *Store) Emit(ctx context.Context, rec post.Record) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}

	res, err := s.db.NamedExecContext(ctx, `
		INSERT OR IGNORE INTO posts (
			post_id, url, message, timestamp, comments_count, reactions_count,
			author_id, author_name, author_url, image, video, attached_post_url, stored_at
		) VALUES (
			:post_id, :url, :message, :timestamp, :comments_count, :reactions_count,
			:author_id, :author_name, :author_url, :image, :video, :attached_post_url, :stored_at
		)`, row)
	if err != nil {
		return fmt.Errorf("failed to store post %s: %w", rec.PostID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.DebugBg("Post %s already stored", rec.PostID)
	}
	return nil
}

// Close is a no-op; the DB is closed by its owner.
func (s *Store) Close() error {
	return nil
}

func (s *Store) Get(ctx context.Context, postID string) (post.Record, error) {
	var row postRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM posts WHERE post_id = ?`, postID)
	if errors.Is(err, sql.ErrNoRows) {
		return post.Record{}, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}
	if err != nil {
		return post.Record{}, fmt.Errorf("failed to get post %s: %w", postID, err)
	}
	return fromRow(row)
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM posts`); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

func toRow(rec post.Record) (postRow, error) {
	image, err := json.Marshal(rec.Image)
	if err != nil {
		return postRow{}, fmt.Errorf("failed to encode image of %s: %w", rec.PostID, err)
	}
	video, err := json.Marshal(rec.Video)
	if err != nil {
		return postRow{}, fmt.Errorf("failed to encode video of %s: %w", rec.PostID, err)
	}

	row := postRow{
		PostID:          rec.PostID,
		URL:             rec.URL,
		Message:         rec.Message,
		CommentsCount:   rec.CommentsCount,
		ReactionsCount:  rec.ReactionsCount,
		AuthorID:        rec.Author.ID,
		AuthorName:      rec.Author.Name,
		AuthorURL:       rec.Author.URL,
		Image:           string(image),
		Video:           string(video),
		AttachedPostURL: rec.AttachedPostURL.URL,
		StoredAt:        time.Now().Unix(),
	}
	if rec.Timestamp != nil {
		row.Timestamp = sql.NullInt64{Int64: *rec.Timestamp, Valid: true}
	}
	return row, nil
}

func fromRow(row postRow) (post.Record, error) {
	rec := post.Record{
		PostID:          row.PostID,
		URL:             row.URL,
		Message:         row.Message,
		CommentsCount:   row.CommentsCount,
		ReactionsCount:  row.ReactionsCount,
		Author:          post.Author{ID: row.AuthorID, Name: row.AuthorName, URL: row.AuthorURL},
		AttachedPostURL: post.Attachment{URL: row.AttachedPostURL},
	}
	if row.Timestamp.Valid {
		ts := row.Timestamp.Int64
		rec.Timestamp = &ts
	}
	if err := json.Unmarshal([]byte(row.Image), &rec.Image); err != nil {
		return post.Record{}, fmt.Errorf("failed to decode image of %s: %w", row.PostID, err)
	}
	if err := json.Unmarshal([]byte(row.Video), &rec.Video); err != nil {
		return post.Record{}, fmt.Errorf("failed to decode video of %s: %w", row.PostID, err)
	}
	return rec, nil
}
