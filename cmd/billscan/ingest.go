package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/zombor/billscan/internal/pipeline"
)

// ingestResult tallies what happened to the files handed to ingest
type ingestResult struct {
	Completed int
	Failed    int
	Rejected  int
}

// ingest runs every file through the pipeline, one session at a time.
// Completed bills reach the ledger through the pipeline's auto-commit listener.
func ingest(ctx context.Context, p *pipeline.Pipeline, files []string, retries int) (ingestResult, error) {
	var result ingestResult

	terminals := make(chan pipeline.Event, 1)
	unsubscribe := p.Subscribe(func(ev pipeline.Event) {
		if ev.Terminal() {
			terminals <- ev
		}
	})
	defer unsubscribe()

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return result, fmt.Errorf("reading %s: %w", path, err)
		}
		slog.Info("Scanning bill", "file", path, "size", humanize.IBytes(uint64(len(data))))

		p.SelectFile(pipeline.Upload{Name: filepath.Base(path), Data: data})
		if _, idle := p.Current().(pipeline.Idle); idle {
			ev := <-terminals
			slog.Error("Bill rejected", "file", path, "error", ev.State.(pipeline.Idle).Err)
			result.Rejected++
			p.Reset()
			continue
		}

		if err := p.Process(); err != nil {
			return result, fmt.Errorf("processing %s: %w", path, err)
		}

		attempts := 0
	wait:
		for {
			select {
			case <-ctx.Done():
				_ = p.Cancel()
				return result, ctx.Err()
			case ev := <-terminals:
				switch st := ev.State.(type) {
				case pipeline.Completed:
					for _, w := range st.Warnings {
						slog.Warn("Bill does not reconcile", "file", path, "warning", w)
					}
					result.Completed++
					break wait
				case pipeline.Failed:
					if st.Err.Reason.Retryable() && attempts < retries {
						attempts++
						slog.Warn("Retrying bill extraction", "file", path, "attempt", attempts, "error", st.Err)
						if err := p.Retry(); err != nil {
							return result, fmt.Errorf("retrying %s: %w", path, err)
						}
						continue
					}
					slog.Error("Bill extraction failed", "file", path, "reason", st.Err.Reason, "error", st.Err.Err)
					result.Failed++
					break wait
				}
			}
		}
		p.Reset()
	}
	return result, nil
}
