package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbposts/internal/database"
	"fbposts/pkg/checker"
	"fbposts/pkg/pagination"
	"fbposts/pkg/post"
	"fbposts/pkg/proxysource"
)

func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fbposts.db")
	db, err := database.NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	store := database.NewStore(db)
	ts := int64(1700000000)
	require.NoError(t, store.Emit(ctx, post.Record{
		PostID: "p1", URL: "https://www.facebook.com/acme/posts/p1", Message: "hello",
		Timestamp: &ts, CommentsCount: 3, Author: post.Author{Name: "Acme"},
	}))
	require.NoError(t, store.SaveCheckpoint(ctx, "run-9", pagination.Summary{
		Target: "acme", Reason: pagination.ReasonRetriesExhausted, Cursor: "c4", Pages: 2, Emitted: 1,
		Err: errors.New("retries exhausted after 4 attempts"),
	}))
	require.NoError(t, store.SaveCheckpoint(ctx, "run-9", pagination.Summary{
		Target: "other", Reason: pagination.ReasonExhausted, Cursor: "done", Pages: 1,
	}))
	require.NoError(t, store.SaveHealth(ctx, []checker.CheckResult{
		{Proxy: proxysource.Proxy{Host: "10.0.0.1", Port: 8080, Type: "http"}, Status: checker.StatusHealthy, CheckedAt: time.Now()},
		{Proxy: proxysource.Proxy{Host: "10.0.0.2", Port: 1080, Type: "socks5"}, Status: checker.StatusTimeout, CheckedAt: time.Now()},
	}))
	return path
}

func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := newRootCommand()
	root.SetOut(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestDBCheckpoints(t *testing.T) {
	path := seedDB(t)

	out, err := execRoot(t, "db", "--path", path, "checkpoints", "run-9")
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-9")
	assert.Contains(t, out, "retries_exhausted: retries exhausted after 4 attempts")
	assert.Contains(t, out, "c4")
	assert.NotContains(t, out, "done", "exhausted targets have no resume cursor")

	_, err = execRoot(t, "db", "--path", path, "checkpoints", "run-0")
	assert.EqualError(t, err, "no checkpoints for run run-0")
}

func TestDBPost(t *testing.T) {
	path := seedDB(t)

	out, err := execRoot(t, "db", "--path", path, "post", "p1")
	require.NoError(t, err)
	var rec post.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "hello", rec.Message)
	assert.Equal(t, 3, rec.CommentsCount)
	require.NotNil(t, rec.Timestamp)
	assert.Equal(t, int64(1700000000), *rec.Timestamp)

	_, err = execRoot(t, "db", "--path", path, "post", "missing")
	assert.ErrorIs(t, err, database.ErrPostNotFound)
}

func TestDBStats(t *testing.T) {
	path := seedDB(t)

	out, err := execRoot(t, "db", "--path", path, "stats")
	require.NoError(t, err)
	assert.Equal(t, "posts: 1\nproxies: 2 known, 1 healthy\n  http: 1\n  socks5: 1\n", out)
}
