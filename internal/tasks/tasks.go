// package tasks orchestrates movement between the local working set and
// provider playlists.
//
// Operations emit progress updates via channels for non-blocking status
// reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"

	"mixtape/internal/models"
	"mixtape/internal/services"
	"mixtape/internal/shared"
)

// PlaylistService is the subset of the resource client the engine uses.
type PlaylistService interface {
	Playlist(ctx context.Context, id string) (*models.PlaylistDetail, error)
	SavePlaylist(ctx context.Context, name string, trackURIs []string, opts services.SaveOpts) (*models.SaveResult, error)
}

// WorkingSet is the staged-track store the engine reads and writes.
type WorkingSet interface {
	Add(track models.Track) error
	URIs() ([]string, error)
	Clear() error
}

// Engine moves tracks between the working set and provider playlists.
type Engine struct {
	client PlaylistService
	sets   WorkingSet
}

// NewEngine creates an Engine over the given service and working set.
func NewEngine(client PlaylistService, sets WorkingSet) *Engine {
	return &Engine{client: client, sets: sets}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Push saves the working set as a playlist. When existingID is set the
// playlist is updated in place; otherwise a new one is created. The
// working set is cleared only after a save with no failed batches.
func (e *Engine) Push(ctx context.Context, progress chan<- ProgressUpdate, name, existingID string) (*models.SaveResult, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: playlist name is required", shared.ErrInvalidArgument)
	}
	if e.client == nil || e.sets == nil {
		return nil, fmt.Errorf("%w: engine not initialized", shared.ErrInvalidConfig)
	}

	uris, err := e.sets.URIs()
	if err != nil {
		return nil, fmt.Errorf("failed to load working set: %w", err)
	}
	e.sendProgress(progress, loadWorkingSetUpdate(len(uris)))
	e.sendProgress(progress, resolvePlaylistUpdate(name, existingID != ""))

	result, err := e.client.SavePlaylist(ctx, name, uris, services.SaveOpts{
		ExistingPlaylistID: existingID,
		OnProgress: func(p services.Progress) {
			e.sendProgress(progress, writeBatchUpdate(p.BatchIndex+1, p.TotalBatches, p.Type, p.Success, p.Error))
		},
	})
	if err != nil {
		return nil, err
	}

	clean := true
	for _, batch := range result.BatchResults {
		if !batch.Success {
			clean = false
			break
		}
	}
	if clean {
		if err := e.sets.Clear(); err != nil {
			return result, fmt.Errorf("playlist saved but working set not cleared: %w", err)
		}
	}

	e.sendProgress(progress, doneUpdate(fmt.Sprintf("Saved playlist %s", result.ID), result))
	return result, nil
}

// Pull replaces the working set with the tracks of a provider playlist.
func (e *Engine) Pull(ctx context.Context, progress chan<- ProgressUpdate, playlistID string) (*models.PlaylistDetail, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist id is required", shared.ErrInvalidArgument)
	}
	if e.client == nil || e.sets == nil {
		return nil, fmt.Errorf("%w: engine not initialized", shared.ErrInvalidConfig)
	}

	e.sendProgress(progress, fetchPlaylistUpdate(playlistID))
	detail, err := e.client.Playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	if err := e.sets.Clear(); err != nil {
		return nil, fmt.Errorf("failed to clear working set: %w", err)
	}

	total := len(detail.Tracks)
	for i, track := range detail.Tracks {
		e.sendProgress(progress, stageTracksUpdate(i+1, total, track.Name))
		if err := e.sets.Add(track); err != nil {
			return nil, fmt.Errorf("failed to stage %s: %w", track.URI, err)
		}
	}

	e.sendProgress(progress, doneUpdate(fmt.Sprintf("Staged %d tracks from %s", total, detail.Name), detail))
	return detail, nil
}
