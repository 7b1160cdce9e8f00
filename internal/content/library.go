// Package content holds the message library: per-category messages,
// check-in questions, and the task reminder template.
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed default_content.yaml
var defaultContent []byte

// ErrUnknownCategory is returned when a category has no messages.
var ErrUnknownCategory = errors.New("unknown category")

// Library is a parsed message library.
type Library struct {
	Categories   map[string][]string `yaml:"categories"`
	Checkin      Checkin             `yaml:"checkin"`
	TaskReminder string              `yaml:"task_reminder"`
}

// Checkin lists the questions sent in check-in prompts.
type Checkin struct {
	Questions []string `yaml:"questions"`
}

// Default returns the built-in library.
func Default() *Library {
	lib, err := Parse(defaultContent)
	if err != nil {
		panic(fmt.Sprintf("content: built-in library is invalid: %v", err))
	}
	return lib
}

// Parse decodes a YAML library and normalizes category names.
func Parse(data []byte) (*Library, error) {
	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	lib.normalize()
	return &lib, nil
}

// Load returns the built-in library merged with the file at path. An empty
// path or a missing file yields the built-in library unchanged.
func Load(path string) (*Library, error) {
	lib := Default()
	if strings.TrimSpace(path) == "" {
		return lib, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return lib, nil
		}
		return nil, fmt.Errorf("read content file: %w", err)
	}
	overlay, err := Parse(data)
	if err != nil {
		return nil, err
	}
	lib.merge(overlay)
	return lib, nil
}

func (l *Library) normalize() {
	categories := make(map[string][]string, len(l.Categories))
	for name, messages := range l.Categories {
		key := NormalizeCategory(name)
		if key == "" {
			continue
		}
		cleaned := cleanList(messages)
		if len(cleaned) == 0 {
			continue
		}
		categories[key] = append(categories[key], cleaned...)
	}
	l.Categories = categories
	l.Checkin.Questions = cleanList(l.Checkin.Questions)
	l.TaskReminder = strings.TrimSpace(l.TaskReminder)
}

func (l *Library) merge(overlay *Library) {
	for name, messages := range overlay.Categories {
		l.Categories[name] = messages
	}
	if len(overlay.Checkin.Questions) > 0 {
		l.Checkin.Questions = overlay.Checkin.Questions
	}
	if overlay.TaskReminder != "" {
		l.TaskReminder = overlay.TaskReminder
	}
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// NormalizeCategory lowercases a category and joins words with underscores.
func NormalizeCategory(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(name, "-", " "))), "_")
}

// CategoryTitle renders a category for display, e.g. "fun_facts" → "Fun Facts".
func CategoryTitle(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(NormalizeCategory(name), "_", " "))
}

// CategoryNames returns the known categories sorted by name.
func (l *Library) CategoryNames() []string {
	names := make([]string, 0, len(l.Categories))
	for name := range l.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasCategory reports whether category has messages.
func (l *Library) HasCategory(category string) bool {
	return len(l.Categories[NormalizeCategory(category)]) > 0
}

// Message picks the message for category on the calendar day of at. The
// pick rotates by day so repeated sends on one day are stable.
func (l *Library) Message(category string, at time.Time) (string, error) {
	messages := l.Categories[NormalizeCategory(category)]
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	y, m, d := at.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
	return messages[int(day%int64(len(messages)))], nil
}

// CheckinQuestions returns the check-in questions in order.
func (l *Library) CheckinQuestions() []string {
	out := make([]string, len(l.Checkin.Questions))
	copy(out, l.Checkin.Questions)
	return out
}

// FormatTaskReminder renders the reminder text for a task title and due time.
func (l *Library) FormatTaskReminder(title string, due time.Time) string {
	template := l.TaskReminder
	if template == "" {
		template = "Reminder: {title}{due}"
	}
	dueText := ""
	if !due.IsZero() {
		dueText = " (due " + due.Format("Mon Jan 2 15:04") + ")"
	}
	return strings.NewReplacer("{title}", strings.TrimSpace(title), "{due}", dueText).Replace(template)
}
