package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"memalerts/internal/queue"
	"memalerts/internal/services"
	"memalerts/internal/tags"
)

// Pinger is satisfied by the analysis pipeline client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker is satisfied by the backlog store.
type HealthChecker interface {
	CheckHealth(ctx context.Context) (queue.DatabaseHealth, error)
}

// CheckPipeline verifies that the analysis service answers its health endpoint.
func CheckPipeline(ctx context.Context, pinger Pinger) Result {
	const name = "Analysis pipeline"
	if pinger == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	if err := pinger.Ping(ctx); err != nil {
		return Result{Name: name, Detail: summarizePipelineError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckDatabase verifies the backlog schema and integrity.
func CheckDatabase(ctx context.Context, store HealthChecker) Result {
	const name = "Backlog database"
	if store == nil {
		return Result{Name: name, Detail: "not open"}
	}
	health, err := store.CheckHealth(ctx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	switch {
	case !health.DatabaseExists:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", health.DBPath)}
	case len(health.MissingTables) > 0:
		return Result{Name: name, Detail: "missing tables: " + strings.Join(health.MissingTables, ", ")}
	case len(health.MissingColumns) > 0:
		return Result{Name: name, Detail: "missing columns: " + strings.Join(health.MissingColumns, ", ")}
	case !health.IntegrityCheck:
		return Result{Name: name, Detail: "integrity check failed"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("schema v%d, %d submissions", health.SchemaVersion, health.TotalSubmissions)}
}

// CheckVocabulary verifies that the tag vocabulary parses. A missing file
// passes because canonicalization then keeps raw tags as unmapped.
func CheckVocabulary(path string) Result {
	const name = "Tag vocabulary"
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	vocab, err := tags.LoadVocabulary(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if vocab.Len() == 0 {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (empty)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d aliases)", path, vocab.Len())}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
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

func summarizePipelineError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (pipeline unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (pipeline unreachable)"
	}
	if errors.Is(err, services.ErrConfiguration) {
		return "base_url is not configured"
	}
	return err.Error()
}
