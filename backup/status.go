package backup

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/chutils/chutils/ch"
)

// Status is the progress of one backup or restore operation, read from the
// system.backups table.
type Status struct {
	ID        string
	Name      string
	State     string
	TotalSize string
	NumFiles  uint64
	FilesRead uint64
	BytesRead string
	Progress  float64
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Error     string
}

// Terminal reports whether the operation has finished, successfully or not.
func (s Status) Terminal() bool {
	switch s.State {
	case "BACKUP_CREATED", "BACKUP_FAILED", "RESTORED", "RESTORE_FAILED":
		return true
	}
	return false
}

// Status returns the state of backup and restore operations started within
// the last since duration, newest first. A non-empty ids list restricts the
// result to those operations.
func (c *Client) Status(ctx context.Context, ids []string, since time.Duration) ([]Status, error) {
	query := fmt.Sprintf(`SELECT
	id,
	name,
	status,
	formatReadableSize(total_size) AS total_size_fmt,
	num_files,
	files_read,
	formatReadableSize(bytes_read) AS bytes_read_fmt,
	if(total_size > 0, bytes_read * 100.0 / total_size, 0.0) AS progress_pct,
	start_time,
	end_time,
	if(end_time > start_time, dateDiff('second', start_time, end_time), dateDiff('second', start_time, now())) AS duration_seconds,
	error
FROM system.backups
WHERE start_time >= fromUnixTimestamp(%d)`, c.timeNow().Add(-since).Unix())

	if len(ids) > 0 {
		quoted := make([]string, len(ids))
		for i, id := range ids {
			quoted[i] = ch.QuoteString(id)
		}
		query += fmt.Sprintf(" AND id IN (%s)", strings.Join(quoted, ", "))
	}
	query += "\nORDER BY start_time DESC"

	rows, err := c.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed reading backup status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var statuses []Status
	for rows.Next() {
		var (
			s       Status
			durSecs int64
		)
		err = rows.Scan(&s.ID, &s.Name, &s.State, &s.TotalSize, &s.NumFiles,
			&s.FilesRead, &s.BytesRead, &s.Progress, &s.StartTime, &s.EndTime,
			&durSecs, &s.Error)
		if err != nil {
			return nil, fmt.Errorf("failed scanning backup status: %w", err)
		}
		s.Duration = time.Duration(durSecs) * time.Second
		statuses = append(statuses, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading backup status: %w", err)
	}

	return statuses, nil
}

// Wait polls Status on the given interval until all tracked operations reach
// a terminal state, or the context is cancelled. When ids is non-empty, every
// listed operation must be visible and terminal.
func (c *Client) Wait(
	ctx context.Context, ids []string, since, interval time.Duration,
) ([]Status, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		statuses, err := c.Status(ctx, ids, since)
		if err != nil {
			return nil, err
		}
		if done(statuses, ids) {
			return statuses, nil
		}

		select {
		case <-ctx.Done():
			return statuses, ctx.Err() //nolint:wrapcheck // Cancellation is expected.
		case <-ticker.C:
		}
	}
}

func done(statuses []Status, ids []string) bool {
	if len(statuses) == 0 {
		return false
	}
	seen := make([]string, 0, len(statuses))
	for _, s := range statuses {
		if !s.Terminal() {
			return false
		}
		seen = append(seen, s.ID)
	}
	for _, id := range ids {
		if !slices.Contains(seen, id) {
			return false
		}
	}
	return true
}
