package flagfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Response is the body of a response file.
type Response struct {
	UserID    string    `json:"user_id"`
	Kind      Kind      `json:"kind"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// WriteResponse atomically writes the response file for kind and key.
func WriteResponse(dir string, kind Kind, key string, resp Response) (string, error) {
	if resp.Kind == "" {
		resp.Kind = kind
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("encode %s response: %w", kind, err)
	}
	path := filepath.Join(dir, ResponseName(kind, key))
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// ReadResponse decodes the response file at path.
func ReadResponse(path string) (Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// WaitResponse polls for the response to a request until it appears or ctx
// ends. The response file is removed once read.
func WaitResponse(ctx context.Context, dir string, kind Kind, key string, interval time.Duration) (Response, error) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	path := filepath.Join(dir, ResponseName(kind, key))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		resp, err := ReadResponse(path)
		if err == nil {
			_, _ = Remove(path)
			return resp, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return Response{}, err
		}
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
