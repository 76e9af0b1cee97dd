// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for building a working set from
// an existing playlist:
//  1. [PlaylistListView] : Browse and select the user's playlists
//  2. [TrackListView] : Preview tracks before staging
//  3. [ConfirmView] : Confirm replacing the working set
//  4. [PullView] : Monitor real-time progress updates
//  5. [ResultView] : Display the staged result
//
// The [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the tasks engine, providing
// non-blocking status reporting while tracks are staged.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with
// contextual help displayed via charmbracelet/bubbles/help.
package ui
