// package models defines the normalized data contract between the Spotify
// integration layer and its consumers (CLI, TUI, working-set store).
package models

// Image represents an image resource at a single resolution.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Track is the normalized track record produced from provider responses.
//
// Immutable value type; two tracks are the same track iff their IDs match.
// AlbumImages preserves the provider's ordering (largest first); Image is
// the preferred single resolution for display.
type Track struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Artist      string  `json:"artist"`
	Album       string  `json:"album"`
	AlbumImages []Image `json:"album_images,omitempty"`
	Image       string  `json:"image,omitempty"`
	URI         string  `json:"uri"`
}

// SearchResult holds one page of track search results together with the
// provider-reported total across all pages.
type SearchResult struct {
	Items []Track `json:"items"`
	Total int     `json:"total"`
}

// PlaylistSummary describes a playlist without its track bodies, as
// returned by the listing endpoint.
type PlaylistSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TrackCount    int    `json:"track_count"`
	OwnerID       string `json:"owner_id"`
	Collaborative bool   `json:"collaborative"`
	Public        bool   `json:"public"`
}

// PlaylistDetail is a playlist with its full track listing, fetched on
// demand per playlist ID.
type PlaylistDetail struct {
	Name   string  `json:"name"`
	Tracks []Track `json:"tracks"`
}

// UserProfile represents the current user's profile. Only the ID is ever
// cached; display name and images are transient display data.
type UserProfile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Images      []Image `json:"images,omitempty"`
}

// Batch write types issued during a playlist save.
const (
	BatchReplace = "replace"
	BatchAppend  = "append"
	BatchClear   = "clear"
)

// BatchResult records the outcome of a single track write batch. One is
// collected per network batch, in issuance order.
type BatchResult struct {
	Type    string   `json:"type"`
	URIs    []string `json:"uris"`
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
}

/// SaveResult is the outcome of a playlist save: the playlist ID and the
// per-batch results the caller must inspect for partial failures.
type SaveResult struct {
	ID           string        `json:"id"`
	BatchResults []BatchResult `json:"batch_results"`
}
