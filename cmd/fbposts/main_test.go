package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbposts/pkg/dedup"
	"fbposts/pkg/engine"
	"fbposts/pkg/pagination"
	"fbposts/pkg/pool"
)

func TestReadTargets(t *testing.T) {
	input := `
# pages to watch
acme

https://www.facebook.com/other
  acme
#disabled
`
	targets, err := readTargets(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "https://www.facebook.com/other"}, targets)
}

func TestLoadTargetsMergesArgsAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.txt")
	require.NoError(t, os.WriteFile(path, []byte("beta\n# skip\ngamma\n"), 0o644))

	targets, err := loadTargets([]string{"alpha"}, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, targets)

	_, err = loadTargets(nil, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestRenderReport(t *testing.T) {
	report := engine.Report{
		RunID:    "run-1",
		Duration: 1500 * time.Millisecond,
		Summaries: []pagination.Summary{
			{Target: "acme", Pages: 3, Emitted: 10, Dropped: map[string]int{"duplicate": 2, "invalid_record": 1}, Reason: pagination.ReasonExhausted},
			{Target: "slow", Pages: 1, Emitted: 4, Reason: pagination.ReasonRetriesExhausted, Cursor: "c2", Err: errors.New("retries exhausted after 4 attempts")},
		},
		Dedup: dedup.Stats{Accepted: 14, Suppressed: 2},
		Pool:  &pool.Stats{TotalProxies: 3, Evicted: 1, UserAgents: 2, TypeCount: map[string]int{"socks5": 1, "http": 2}},
	}

	var buf bytes.Buffer
	renderReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "Run run-1")
	assert.Contains(t, out, "3 (duplicate=2, invalid_record=1)")
	assert.Contains(t, out, "exhausted")
	assert.Contains(t, out, "retries_exhausted: retries exhausted after 4 attempts")
	assert.Contains(t, out, "c2")
	assert.Contains(t, out, "2 target(s), 1 failed")
	assert.Contains(t, out, "dedup: 14 accepted, 2 suppressed")
	assert.Contains(t, out, "pool: 3 proxies (http=2, socks5=1), 1 evicted, 2 user agent(s)")
}

func TestRenderReportDirectPool(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, engine.Report{RunID: "run-2", Pool: &pool.Stats{Direct: true, UserAgents: 1}})
	assert.Contains(t, buf.String(), "pool: direct, 1 user agent(s)")
	assert.Contains(t, buf.String(), "0 target(s), 0 failed")
}

func TestGenConfigAndVersion(t *testing.T) {
	t.Chdir(t.TempDir())

	var buf bytes.Buffer
	root := newRootCommand()
	root.SetOut(&buf)
	root.SetArgs([]string{"gen-config", "fbposts.yaml"})
	require.NoError(t, root.Execute())
	assert.FileExists(t, "fbposts.yaml")

	buf.Reset()
	root = newRootCommand()
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "fbposts v"+Version+"\n", buf.String())
}
