package database

import (
	"database/sql"
)

// postRow mirrors the posts table. Media columns hold JSON objects.
type postRow struct {
	PostID          string        `db:"post_id"`
	URL             string        `db:"url"`
	Message         string        `db:"message"`
	Timestamp       sql.NullInt64 `db:"timestamp"`
	CommentsCount   int           `db:"comments_count"`
	ReactionsCount  int           `db:"reactions_count"`
	AuthorID        string        `db:"author_id"`
	AuthorName      string        `db:"author_name"`
	AuthorURL       string        `db:"author_url"`
	Image           string        `db:"image"`
	Video           string        `db:"video"`
	AttachedPostURL string        `db:"attached_post_url"`
	StoredAt        int64         `db:"stored_at"`
}

// Checkpoint is one target's stop point in one run.
type Checkpoint struct {
	ID           int64          `db:"id"`
	RunID        string         `db:"run_id"`
	Target       string         `db:"target"`
	Reason       string         `db:"reason"`
	Cursor       string         `db:"cursor"`
	Resumable    bool           `db:"resumable"`
	Pages        int            `db:"pages"`
	Emitted      int            `db:"emitted"`
	ErrorMessage sql.NullString `db:"error_message"`
	FinishedAt   int64          `db:"finished_at"`
}

// proxyRow mirrors the proxies table.
type proxyRow struct {
	ID             int64         `db:"id"`
	Host           string        `db:"host"`
	Port           int           `db:"port"`
	ProxyType      string        `db:"proxy_type"`
	Country        string        `db:"country"`
	Status         string        `db:"status"`
	ResponseTimeMs int64         `db:"response_time_ms"`
	FailCount      int           `db:"fail_count"`
	FirstSeenAt    int64         `db:"first_seen_at"`
	LastCheckedAt  sql.NullInt64 `db:"last_checked_at"`
	LastHealthyAt  sql.NullInt64 `db:"last_healthy_at"`
}

// ProxyStats contains statistics about the proxy cache
type ProxyStats struct {
	Total   int            `json:"total"`
	Healthy int            `json:"healthy"`
	ByType  map[string]int `json:"by_type"`
}
