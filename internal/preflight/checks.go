package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"subflow/internal/deps"
	"subflow/internal/history"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckHistory opens the history database and reads one row to confirm the
// schema is current.
func CheckHistory(ctx context.Context, path string) Result {
	const name = "History database"

	if dir := filepath.Dir(path); dir != "" {
		if err := unix.Access(dir, unix.W_OK); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: directory not writable: %v)", path, err)}
		}
	}
	store, err := history.Open(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer store.Close()
	if _, err := store.List(ctx, 1); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: query: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// FromStatus converts a binary availability status into a check result.
func FromStatus(status deps.Status) Result {
	result := Result{Name: status.Name, Passed: status.Available, Optional: status.Optional}
	switch {
	case status.Available:
		result.Detail = status.Command
	case status.Optional:
		result.Detail = status.Detail + " (optional; stage will degrade)"
	default:
		result.Detail = status.Detail
	}
	return result
}
