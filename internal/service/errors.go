package service

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by Controller.Start. Everything else the
// controller encounters is logged and contained.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrPathAccess     = errors.New("path access error")
	ErrInitialization = errors.New("initialization error")
	ErrAlreadyRunning = errors.New("service already running")
)

// wrap tags err with marker and a "step: message" detail so callers can
// classify the failure with errors.Is.
func wrap(marker error, step, message string, err error) error {
	parts := make([]string, 0, 2)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	detail := strings.Join(parts, ": ")
	if detail == "" {
		detail = "service failure"
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}
