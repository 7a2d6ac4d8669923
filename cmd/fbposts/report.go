package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"fbposts/pkg/engine"
	"fbposts/pkg/pagination"
	"fbposts/pkg/pool"
)

// readTargets reads one target per line, skipping blank lines, # comments
// and repeats.
func readTargets(r io.Reader) ([]string, error) {
	var targets []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read targets: %w", err)
	}
	return targets, nil
}

func loadTargets(args []string, path string) ([]string, error) {
	targets := append([]string(nil), args...)
	if path == "" {
		return targets, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open targets file: %w", err)
	}
	defer f.Close()

	fromFile, err := readTargets(f)
	if err != nil {
		return nil, err
	}
	return append(targets, fromFile...), nil
}

// renderReport prints one row per target and a totals footer.
func renderReport(w io.Writer, report engine.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	t.SetTitle("Run %s (%s)", report.RunID, report.Duration.Round(time.Millisecond))

	t.AppendHeader(table.Row{"Target", "Pages", "Emitted", "Dropped", "Warnings", "Stopped", "Resume Cursor"})
	for _, s := range report.Summaries {
		cursor := ""
		if s.Reason.Resumable() {
			cursor = string(s.Cursor)
		}
		t.AppendRow(table.Row{s.Target, s.Pages, s.Emitted, droppedCell(s), s.Warnings, stoppedCell(s), cursor})
	}

	totals := report.Totals()
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d target(s), %d failed", totals.Targets, totals.Failed),
		totals.Pages, totals.Emitted, totals.Dropped, totals.Warnings, "", "",
	})
	t.SetCaption("%s; %s", dedupLine(report), poolLine(report.Pool))
	t.Render()
}

func dedupLine(report engine.Report) string {
	return fmt.Sprintf("dedup: %d accepted, %d suppressed", report.Dedup.Accepted, report.Dedup.Suppressed)
}

func poolLine(stats *pool.Stats) string {
	if stats == nil {
		return "pool: n/a"
	}
	if stats.Direct {
		return fmt.Sprintf("pool: direct, %d user agent(s)", stats.UserAgents)
	}
	types := make([]string, 0, len(stats.TypeCount))
	for typ, n := range stats.TypeCount {
		types = append(types, fmt.Sprintf("%s=%d", typ, n))
	}
	sort.Strings(types)
	return fmt.Sprintf("pool: %d proxies (%s), %d evicted, %d user agent(s)",
		stats.TotalProxies, strings.Join(types, ", "), stats.Evicted, stats.UserAgents)
}

func droppedCell(s pagination.Summary) string {
	if len(s.Dropped) == 0 {
		return "0"
	}
	reasons := make([]string, 0, len(s.Dropped))
	for reason, n := range s.Dropped {
		if n > 0 {
			reasons = append(reasons, fmt.Sprintf("%s=%d", reason, n))
		}
	}
	if len(reasons) == 0 {
		return "0"
	}
	sort.Strings(reasons)
	return fmt.Sprintf("%d (%s)", s.DroppedTotal(), strings.Join(reasons, ", "))
}

func stoppedCell(s pagination.Summary) string {
	if s.Err == nil {
		return s.Reason.String()
	}
	return fmt.Sprintf("%s: %v", s.Reason, s.Err)
}
