package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/peterje/pocketdev/internal/models"
	"github.com/peterje/pocketdev/internal/terminal"
	"go.uber.org/zap"
)

// SessionStarted records a new running session, linking it to the project
// whose path is the session's working directory. It matches
// terminal.Hooks.OnStart.
func (s *Store) SessionStarted(info terminal.Info) {
	var pid *int
	if info.PID != 0 {
		pid = &info.PID
	}
	_, err := s.db.Exec(
		`INSERT INTO session_history (id, project_id, command, working_directory, status, pid, created_at)
		VALUES (?, (SELECT id FROM projects WHERE path = ?), ?, ?, ?, ?, ?)`,
		info.ID, info.WorkingDirectory, info.Command, info.WorkingDirectory, models.StatusRunning, pid, info.CreatedAt)
	if err != nil {
		s.logger.Warn("record session start", zap.String("session_id", info.ID), zap.Error(err))
	}
}

// SessionEnded marks the session exited (normal exit code) or stopped
// (killed). It matches terminal.Hooks.OnExit.
func (s *Store) SessionEnded(info terminal.Info) {
	status := models.StatusStopped
	if info.ExitCode != nil && *info.ExitCode >= 0 {
		status = models.StatusExited
	}
	ended := time.Now().UTC()
	if info.EndedAt != nil {
		ended = *info.EndedAt
	}
	_, err := s.db.Exec(
		`UPDATE session_history SET status = ?, exit_code = ?, ended_at = ? WHERE id = ?`,
		status, info.ExitCode, ended, info.ID)
	if err != nil {
		s.logger.Warn("record session end", zap.String("session_id", info.ID), zap.Error(err))
	}
}

// MarkStaleSessions stops every session a previous process left running.
func (s *Store) MarkStaleSessions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE session_history SET status = ?, ended_at = ? WHERE status = ?`,
		models.StatusStopped, time.Now().UTC(), models.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("mark stale sessions: %w", err)
	}
	return result.RowsAffected()
}

// ListSessions returns the most recent sessions first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]models.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, command, working_directory, status, pid, exit_code, created_at, ended_at
		FROM session_history ORDER BY created_at DESC LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	records := []models.SessionRecord{}
	for rows.Next() {
		var (
			r         models.SessionRecord
			projectID sql.NullInt64
			pid       sql.NullInt64
			exitCode  sql.NullInt64
			endedAt   sql.NullTime
		)
		if err := rows.Scan(&r.ID, &projectID, &r.Command, &r.WorkingDirectory, &r.Status, &pid, &exitCode, &r.CreatedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if projectID.Valid {
			r.ProjectID = &projectID.Int64
		}
		if pid.Valid {
			v := int(pid.Int64)
			r.PID = &v
		}
		if exitCode.Valid {
			v := int(exitCode.Int64)
			r.ExitCode = &v
		}
		if endedAt.Valid {
			r.EndedAt = &endedAt.Time
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// RecordCommand stores one executed command.
func (s *Store) RecordCommand(ctx context.Context, rec models.CommandRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO command_history (command, working_directory, exit_code, duration_ms, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.Command, rec.WorkingDirectory, rec.ExitCode, rec.DurationMS, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("record command: %w", err)
	}
	return nil
}

func (s *Store) ListCommands(ctx context.Context, limit int) ([]models.CommandRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command, working_directory, exit_code, duration_ms, created_at
		FROM command_history ORDER BY created_at DESC, id DESC LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	records := []models.CommandRecord{}
	for rows.Next() {
		var r models.CommandRecord
		if err := rows.Scan(&r.ID, &r.Command, &r.WorkingDirectory, &r.ExitCode, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
