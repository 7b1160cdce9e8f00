package userdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
)

const userColumns = "id, name, channel, recipient, checkins_enabled, created_at, updated_at"

// UpsertUser creates or updates a user and ensures its data directory.
func (s *Store) UpsertUser(ctx context.Context, user User) error {
	user.ID = strings.TrimSpace(user.ID)
	if err := ValidateID(user.ID); err != nil {
		return err
	}
	user.Channel = strings.ToLower(strings.TrimSpace(user.Channel))
	if user.Channel == "" {
		return fmt.Errorf("%w: user %s requires a channel", ErrInvalid, user.ID)
	}
	now := formatTime(s.now())
	if _, err := s.execWithRetry(ctx, `
		INSERT INTO users (id, name, channel, recipient, checkins_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			channel = excluded.channel,
			recipient = excluded.recipient,
			checkins_enabled = excluded.checkins_enabled,
			updated_at = excluded.updated_at`,
		user.ID, strings.TrimSpace(user.Name), user.Channel, strings.TrimSpace(user.Recipient),
		boolToInt(user.CheckinsEnabled), now, now,
	); err != nil {
		return fmt.Errorf("upsert user %s: %w", user.ID, err)
	}
	if err := os.MkdirAll(s.DataDir(user.ID), 0o755); err != nil {
		return fmt.Errorf("create user data dir: %w", err)
	}
	return nil
}

// Get returns the user with id.
func (s *Store) Get(ctx context.Context, id string) (*User, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", strings.TrimSpace(id))
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &user, nil
}

// List returns every user ordered by id.
func (s *Store) List(ctx context.Context) ([]User, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Count returns the number of users.
func (s *Store) Count(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// AddCategory subscribes a user to a category. An existing subscription has
// its send time replaced.
func (s *Store) AddCategory(ctx context.Context, userID, name, sendTime string) error {
	name = NormalizeCategory(name)
	if name == "" {
		return fmt.Errorf("%w: category name is empty", ErrInvalid)
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}
	if _, err := s.execWithRetry(ctx, `
		INSERT INTO categories (user_id, name, send_time) VALUES (?, ?, ?)
		ON CONFLICT(user_id, name) DO UPDATE SET send_time = excluded.send_time`,
		strings.TrimSpace(userID), name, strings.TrimSpace(sendTime),
	); err != nil {
		return fmt.Errorf("add category %s: %w", name, err)
	}
	return nil
}

// RemoveCategory unsubscribes a user from a category.
func (s *Store) RemoveCategory(ctx context.Context, userID, name string) error {
	res, err := s.execWithRetry(ctx, "DELETE FROM categories WHERE user_id = ? AND name = ?",
		strings.TrimSpace(userID), NormalizeCategory(name))
	if err != nil {
		return fmt.Errorf("remove category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %s for %s: %w", name, userID, ErrNotFound)
	}
	return nil
}

// Categories returns a user's categories ordered by name.
func (s *Store) Categories(ctx context.Context, userID string) ([]Category, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, name, send_time FROM categories WHERE user_id = ? ORDER BY name",
		strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.UserID, &c.Name, &c.SendTime); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		user             User
		checkins         int
		created, updated string
	)
	if err := row.Scan(&user.ID, &user.Name, &user.Channel, &user.Recipient, &checkins, &created, &updated); err != nil {
		return User{}, err
	}
	user.CheckinsEnabled = checkins != 0
	user.CreatedAt = parseTime(created)
	user.UpdatedAt = parseTime(updated)
	return user, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
