package userdata

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// User is a person who receives messages.
type User struct {
	ID              string
	Name            string
	Channel         string
	Recipient       string
	CheckinsEnabled bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DisplayName returns Name, or ID when no name is set.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.ID
}

// Category is a message category a user subscribes to. SendTime overrides
// the configured schedule when set.
type Category struct {
	UserID   string
	Name     string
	SendTime string
}

// Task is a to-do item that drives task reminders.
type Task struct {
	ID          int64
	UserID      string
	Title       string
	DueAt       time.Time
	CompletedAt time.Time
	CreatedAt   time.Time
}

// Done reports whether the task has been completed.
func (t Task) Done() bool {
	return !t.CompletedAt.IsZero()
}

// Overdue reports whether an open task is past its due time at now.
func (t Task) Overdue(now time.Time) bool {
	return !t.Done() && !t.DueAt.IsZero() && t.DueAt.Before(now)
}

var identPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateID checks that id is usable as a user id and a directory name.
func ValidateID(id string) error {
	if !identPattern.MatchString(id) {
		return fmt.Errorf("%w: user id %q must be alphanumeric with _ . - separators", ErrInvalid, id)
	}
	return nil
}

// NormalizeCategory lowercases and trims a category name.
func NormalizeCategory(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
