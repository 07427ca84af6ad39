package preflight

import (
	"context"

	"subline/internal/config"
	"subline/internal/services/asr"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory checks and, when provider is non-nil, the
// provider reachability check.
func RunAll(ctx context.Context, cfg *config.Config, provider asr.Provider) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Raw directory", cfg.Paths.RawDir),
		CheckDirectoryAccess("Stream directory", cfg.Paths.StreamDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if provider != nil {
		results = append(results, CheckProvider(ctx, provider))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
