package preflight

import (
	"context"
	"strings"

	"memalerts/internal/config"
	"memalerts/internal/pipeline"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config. A nil
// pinger falls back to an HTTP client built from the pipeline settings.
func RunAll(ctx context.Context, cfg *config.Config, pinger Pinger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if strings.TrimSpace(cfg.Paths.UploadsDir) != "" {
		results = append(results, CheckDirectoryAccess("Uploads directory", cfg.Paths.UploadsDir))
	}
	results = append(results, CheckVocabulary(cfg.Tags.VocabularyPath))

	if pinger == nil {
		pinger = pipeline.NewHTTPClient(cfg.Pipeline)
	}
	results = append(results, CheckPipeline(ctx, pinger))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
