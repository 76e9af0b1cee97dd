package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"mixtape/internal/models"
	"mixtape/internal/shared"
)

// TrackAdd stages a track in the working set, either the top search
// match for a query or a known URI.
func (r *Runner) TrackAdd(ctx context.Context, cmd *cli.Command) error {
	sets, err := r.workingSet()
	if err != nil {
		return err
	}

	if uri := cmd.String("uri"); uri != "" {
		if err := sets.Add(models.Track{ID: uri, URI: uri}); err != nil {
			return err
		}
		r.writePlain("✓ Staged %s\n", uri)
		return nil
	}

	query := cmd.StringArg("query")
	if query == "" {
		return fmt.Errorf("%w: search query or --uri", shared.ErrMissingArgument)
	}

	result, err := r.client.Search(ctx, query, 1, 0)
	if err != nil {
		return err
	}
	if len(result.Items) == 0 {
		return fmt.Errorf("%w: no match for %q", shared.ErrTrackNotFound, query)
	}

	track := result.Items[0]
	if err := sets.Add(track); err != nil {
		return err
	}
	r.writePlain("✓ Staged %s — %s\n  %s\n", track.Name, track.Artist, track.URI)
	return nil
}

// TrackRemove removes a staged track by URI.
func (r *Runner) TrackRemove(ctx context.Context, cmd *cli.Command) error {
	uri := cmd.StringArg("uri")
	if uri == "" {
		return fmt.Errorf("%w: track uri", shared.ErrMissingArgument)
	}

	sets, err := r.workingSet()
	if err != nil {
		return err
	}
	if err := sets.Remove(uri); err != nil {
		return err
	}
	r.writePlain("✓ Removed %s\n", uri)
	return nil
}

// TrackList prints the working set in order.
func (r *Runner) TrackList(ctx context.Context, cmd *cli.Command) error {
	sets, err := r.workingSet()
	if err != nil {
		return err
	}

	tracks, err := sets.List()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, cmd.Bool("pretty"))
	}

	if len(tracks) == 0 {
		r.writePlain("Working set is empty. Stage tracks with: mixtape track add <query>\n")
		return nil
	}

	r.writePlain("Working set (%d tracks):\n\n", len(tracks))
	for i, track := range tracks {
		name := track.Name
		if name == "" {
			name = track.URI
		}
		r.writePlain("%3d. %s — %s\n", i+1, name, track.Artist)
	}
	return nil
}

// TrackClear empties the working set.
func (r *Runner) TrackClear(ctx context.Context, cmd *cli.Command) error {
	sets, err := r.workingSet()
	if err != nil {
		return err
	}

	count, err := sets.Count()
	if err != nil {
		return err
	}
	if err := sets.Clear(); err != nil {
		return err
	}
	r.writePlain("✓ Cleared %d staged tracks\n", count)
	return nil
}
