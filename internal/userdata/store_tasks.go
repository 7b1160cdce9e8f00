package userdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const taskColumns = "id, user_id, title, due_at, completed_at, created_at"

// AddTask creates an open task for userID. A zero due time means no due date.
func (s *Store) AddTask(ctx context.Context, userID, title string, due time.Time) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, fmt.Errorf("%w: task title is empty", ErrInvalid)
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return Task{}, err
	}
	created := s.now()
	res, err := s.execWithRetry(ctx,
		"INSERT INTO tasks (user_id, title, due_at, completed_at, created_at) VALUES (?, ?, ?, '', ?)",
		strings.TrimSpace(userID), title, formatTime(due), formatTime(created))
	if err != nil {
		return Task{}, fmt.Errorf("add task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Task{}, fmt.Errorf("task id: %w", err)
	}
	return Task{
		ID:        id,
		UserID:    strings.TrimSpace(userID),
		Title:     title,
		DueAt:     parseTime(formatTime(due)),
		CreatedAt: parseTime(formatTime(created)),
	}, nil
}

// Tasks returns a user's tasks ordered by due time then id. Completed tasks
// are included only when includeDone is set.
func (s *Store) Tasks(ctx context.Context, userID string, includeDone bool) ([]Task, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + taskColumns + " FROM tasks WHERE user_id = ?"
	if !includeDone {
		query += " AND completed_at = ''"
	}
	query += " ORDER BY due_at = '', due_at, id"
	rows, err := s.db.QueryContext(ctx, query, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Task returns one task belonging to userID. taskID is the decimal id as it
// appears in request payloads.
func (s *Store) Task(ctx context.Context, userID, taskID string) (Task, error) {
	id, err := parseTaskID(taskID)
	if err != nil {
		return Task{}, err
	}
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ? AND user_id = ?", id, strings.TrimSpace(userID))
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, fmt.Errorf("task %s for %s: %w", taskID, userID, ErrNotFound)
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// CompleteTask marks a task done. Completing a completed task is a no-op.
func (s *Store) CompleteTask(ctx context.Context, userID, taskID string) error {
	task, err := s.Task(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if task.Done() {
		return nil
	}
	if _, err := s.execWithRetry(ctx, "UPDATE tasks SET completed_at = ? WHERE id = ?", formatTime(s.now()), task.ID); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// UsersWithOpenTasks returns the ids of users that have at least one open task.
func (s *Store) UsersWithOpenTasks(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT user_id FROM tasks WHERE completed_at = '' ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("list task owners: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func parseTaskID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: task id %q", ErrInvalid, value)
	}
	return id, nil
}

func scanTask(row rowScanner) (Task, error) {
	var (
		task                    Task
		due, completed, created string
	)
	if err := row.Scan(&task.ID, &task.UserID, &task.Title, &due, &completed, &created); err != nil {
		return Task{}, err
	}
	task.DueAt = parseTime(due)
	task.CompletedAt = parseTime(completed)
	task.CreatedAt = parseTime(created)
	return task, nil
}
