package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"mixtape/internal/shared"
	"mixtape/internal/tasks"
)

// PlaylistList lists the current user's playlists with an optional limit.
func (r *Runner) PlaylistList(ctx context.Context, cmd *cli.Command) error {
	limit := int(cmd.Int("limit"))

	playlists, err := r.client.UserPlaylists(ctx)
	if err != nil {
		return err
	}

	if limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	if len(playlists) == 0 {
		r.writePlain("No playlists found\n")
		return nil
	}

	r.writePlain("Playlists (%d):\n\n", len(playlists))
	for i, pl := range playlists {
		marker := ""
		if pl.Collaborative {
			marker = " [collaborative]"
		}
		r.writePlain("%2d. %s (%d tracks)%s\n    %s\n", i+1, pl.Name, pl.TrackCount, marker, pl.ID)
	}
	return nil
}

// PlaylistShow prints one playlist with its full track listing.
func (r *Runner) PlaylistShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	detail, err := r.client.Playlist(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(detail, cmd.Bool("pretty"))
	}

	r.writePlain("%s (%d tracks)\n\n", detail.Name, len(detail.Tracks))
	for i, track := range detail.Tracks {
		r.writePlain("%3d. %s — %s\n", i+1, track.Name, track.Artist)
	}
	return nil
}

// PlaylistPull replaces the working set with a playlist's tracks.
func (r *Runner) PlaylistPull(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

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

	detail, err := engine.Pull(ctx, progress, id)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlainln("✓ Staged %d tracks from %q", len(detail.Tracks), detail.Name)
	return nil
}
