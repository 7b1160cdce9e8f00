package flagfile

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Extension is the suffix every protocol file carries.
const Extension = ".flag"

// ShutdownName is the well-known shutdown sentinel file name.
const ShutdownName = "shutdown_request" + Extension

const (
	requestInfix  = "_request_"
	responseInfix = "_response_"
)

// Kind identifies a request type by its file name prefix.
type Kind string

const (
	KindTestMessage   Kind = "test_message"
	KindCheckinPrompt Kind = "checkin_prompt"
	KindTaskReminder  Kind = "task_reminder"
	KindReschedule    Kind = "reschedule"
)

// Kinds returns every request kind the daemon owns, in routing order.
func Kinds() []Kind {
	return []Kind{KindTestMessage, KindCheckinPrompt, KindTaskReminder, KindReschedule}
}

// ParseKind accepts a kind with either dashes or underscores.
func ParseKind(value string) (Kind, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_")
	for _, kind := range Kinds() {
		if string(kind) == normalized {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown request kind %q", value)
}

// HasResponse reports whether the daemon writes a response file for kind.
func (k Kind) HasResponse() bool {
	return k == KindTestMessage || k == KindCheckinPrompt
}

// RequiredFields lists the payload fields that must be present and non-empty.
func (k Kind) RequiredFields() []string {
	switch k {
	case KindTestMessage:
		return []string{"user_id", "category"}
	case KindCheckinPrompt:
		return []string{"user_id"}
	case KindTaskReminder:
		return []string{"user_id", "task_id"}
	case KindReschedule:
		return []string{"user_id", "category", "timestamp"}
	default:
		return nil
	}
}

func (k Kind) String() string { return string(k) }

// Role classifies a protocol file found in the base directory.
type Role string

const (
	RoleRequest  Role = "request"
	RoleResponse Role = "response"
	RoleShutdown Role = "shutdown"
	RoleUnknown  Role = "unknown"
)

// RequestName builds the request file name for kind and key.
func RequestName(kind Kind, key string) string {
	return string(kind) + requestInfix + SanitizeKey(key) + Extension
}

// ResponseName builds the response file name for kind and key.
func ResponseName(kind Kind, key string) string {
	return string(kind) + responseInfix + SanitizeKey(key) + Extension
}

// RequestPattern is the glob matching every request file of kind.
func RequestPattern(kind Kind) string {
	return string(kind) + requestInfix + "*" + Extension
}

// SanitizeKey maps a key onto characters that are safe inside a file name.
func SanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "unnamed"
	}
	return out
}

// Classify splits a protocol file name into its role, kind and key.
func Classify(name string) (Role, Kind, string) {
	base := filepath.Base(name)
	if base == ShutdownName {
		return RoleShutdown, "", ""
	}
	if !strings.HasSuffix(base, Extension) {
		return RoleUnknown, "", ""
	}
	stem := strings.TrimSuffix(base, Extension)
	for _, kind := range Kinds() {
		if key, ok := strings.CutPrefix(stem, string(kind)+requestInfix); ok && key != "" {
			return RoleRequest, kind, key
		}
		if key, ok := strings.CutPrefix(stem, string(kind)+responseInfix); ok && key != "" {
			return RoleResponse, kind, key
		}
	}
	return RoleUnknown, "", ""
}

func sortedPaths(paths []string) []string {
	sort.Strings(paths)
	return paths
}
