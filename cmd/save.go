package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"mixtape/internal/models"
	"mixtape/internal/tasks"
)

// Save pushes the working set to Spotify as a named playlist. With
// --playlist the existing playlist is updated in place, otherwise a
// new one is created.
func (r *Runner) Save(ctx context.Context, cmd *cli.Command) error {
	name := cmd.String("name")
	existingID := cmd.String("playlist")

	engine, err := r.engine()
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		for update := range progress {
			r.writePlain("%s\n", update.Message)
		}
		close(done)
	}()

	result, err := engine.Push(ctx, progress, name, existingID)
	close(progress)
	<-done
	if err != nil {
		if result != nil {
			r.reportBatches(result.BatchResults)
		}
		return err
	}

	failed := r.reportBatches(result.BatchResults)
	if failed > 0 {
		r.writePlainln("Saved %q with %d failed batch(es). Tracks were kept staged, retry with: mixtape save --name %q --playlist %s",
			name, failed, name, result.ID)
		return nil
	}

	r.writePlainln("✓ Saved %q (%s)", name, result.ID)
	return nil
}

// reportBatches prints one line per failed batch and returns the
// failure count.
func (r *Runner) reportBatches(batches []models.BatchResult) int {
	failed := 0
	for i, batch := range batches {
		if batch.Success {
			continue
		}
		failed++
		r.writePlain("✗ batch %d/%d (%s): %s\n", i+1, len(batches), batch.Type, batch.Error)
	}
	return failed
}
