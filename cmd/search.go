package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"mixtape/internal/shared"
)

// Search queries the track catalog and prints the matches.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if query == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	limit := cmd.Int("limit")
	offset := cmd.Int("offset")

	r.logger.Infof("searching tracks for %q limit %d offset %d", query, limit, offset)

	result, err := r.client.Search(ctx, query, int(limit), int(offset))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if n := int(cmd.Int("add")); n > 0 {
		if n > len(result.Items) {
			return fmt.Errorf("%w: only %d results", shared.ErrInvalidArgument, len(result.Items))
		}
		sets, err := r.workingSet()
		if err != nil {
			return err
		}
		track := result.Items[n-1]
		if err := sets.Add(track); err != nil {
			return err
		}
		r.writePlain("✓ Staged %s — %s\n", track.Name, track.Artist)
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	if len(result.Items) == 0 {
		r.writePlain("No tracks found for %q\n", query)
		return nil
	}

	r.writePlain("Found %d tracks (showing %d):\n\n", result.Total, len(result.Items))
	for i, track := range result.Items {
		r.writePlain("%2d. %s — %s\n    %s\n    %s\n", i+1, track.Name, track.Artist, track.Album, track.URI)
	}
	return nil
}
