package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const ntfyHealthTimeout = 5 * time.Second

// CheckDirectoryAccess passes when path is a directory the process can list,
// create files in and traverse.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	if problem := directoryProblem(path); problem != "" {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s)", path, problem)}
	}
	return Result{Name: name, Passed: true, Detail: path + " (read/write ok)"}
}

func directoryProblem(path string) string {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "does not exist"
	case err != nil:
		return "stat: " + err.Error()
	case !info.IsDir():
		return "is not a directory"
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return "insufficient permissions: " + err.Error()
	}
	return ""
}

// CheckNtfy passes when GET <server>/v1/health answers 200.
func CheckNtfy(ctx context.Context, server string) Result {
	res := Result{Name: "ntfy"}
	base := strings.TrimRight(strings.TrimSpace(server), "/")
	if base == "" {
		res.Detail = "missing server"
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, ntfyHealthTimeout)
	defer cancel()
	status, err := probe(ctx, base+"/v1/health")
	switch {
	case err != nil:
		res.Detail = fmt.Sprintf("health check failed (%v)", err)
	case status != http.StatusOK:
		res.Detail = fmt.Sprintf("health check failed (%d)", status)
	default:
		res.Passed, res.Detail = true, "Reachable"
	}
	return res
}

func probe(ctx context.Context, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := (&http.Client{Timeout: ntfyHealthTimeout}).Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// CheckURLConfigured passes when value is an absolute http or https URL.
func CheckURLConfigured(name, value string) Result {
	value = strings.TrimSpace(value)
	if value == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url %q", value)}
	}
	return Result{Name: name, Passed: true, Detail: "Configured"}
}
