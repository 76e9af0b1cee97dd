package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	LoadWorkingSet Phase = iota
	ResolvePlaylist
	WriteBatch
	FetchPlaylist
	StageTracks
	Done
)

func (p Phase) String() string {
	switch p {
	case LoadWorkingSet:
		return "load_working_set"
	case ResolvePlaylist:
		return "resolve_playlist"
	case WriteBatch:
		return "write_batch"
	case FetchPlaylist:
		return "fetch_playlist"
	case StageTracks:
		return "stage_tracks"
	case Done:
		return "done"
	default:
		return ""
	}
}

func loadWorkingSetUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LoadWorkingSet,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Loaded %d staged tracks", count),
	}
}

func resolvePlaylistUpdate(name string, updating bool) ProgressUpdate {
	verb := "Creating"
	if updating {
		verb = "Updating"
	}
	return ProgressUpdate{
		Phase:   ResolvePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%s playlist %q...", verb, name),
	}
}

func writeBatchUpdate(step, total int, kind string, ok bool, detail string) ProgressUpdate {
	message := fmt.Sprintf("[%d/%d] ✓ %s", step, total, kind)
	if !ok {
		message = fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, kind, detail)
	}
	return ProgressUpdate{
		Phase:   WriteBatch,
		Step:    step,
		Total:   total,
		Message: message,
	}
}

func fetchPlaylistUpdate(id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching playlist %s...", id),
	}
}

func stageTracksUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StageTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Staging: %s", step, total, name),
	}
}

func doneUpdate(message string, data any) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    1,
		Total:   1,
		Message: message,
		Data:    data,
	}
}
