// Spotify resource client built atop [Dispatcher].
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"

	"mixtape/internal/models"
	"mixtape/internal/shared"
)

const (
	// SpotifyBaseURL is the Web API root.
	SpotifyBaseURL = "https://api.spotify.com/v1"

	// DefaultSearchLimit is the page size used when a caller passes none.
	DefaultSearchLimit = 10
	// PlaylistPageSize is the page size for playlist listings.
	PlaylistPageSize = 50
	// TrackPageSize is the page size for playlist track pages.
	TrackPageSize = 100
	// BatchSize caps the track references carried by one write batch.
	BatchSize = 100
)

// TokenSource resolves a usable bearer token for outbound requests.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type spotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []spotifyImage `json:"images"`
}

type spotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []spotifyArtist `json:"artists"`
	Album   spotifyAlbum    `json:"album"`
	URI     string          `json:"uri"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []spotifyTrack `json:"items"`
		Total int            `json:"total"`
	} `json:"tracks"`
}

type spotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Images      []spotifyImage `json:"images"`
}

type spotifyOwner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type spotifySimplePlaylist struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Owner         spotifyOwner `json:"owner"`
	Collaborative bool         `json:"collaborative"`
	Public        bool         `json:"public"`
	Tracks        struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

type spotifyPaginatedPlaylists struct {
	Items []spotifySimplePlaylist `json:"items"`
	Total int                     `json:"total"`
	Next  *string                 `json:"next"`
}

type spotifyPlaylistTrack struct {
	Track spotifyTrack `json:"track"`
}

type spotifyPaginatedTracks struct {
	Items []spotifyPlaylistTrack `json:"items"`
	Total int                    `json:"total"`
	Next  *string                `json:"next"`
}

type spotifyPlaylistMeta struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client exposes the high-level catalog and playlist operations. Every
// operation resolves a token first and fails with
// [shared.ErrNotAuthenticated] when none is available.
type Client struct {
	base       string
	dispatcher *Dispatcher
	tokens     TokenSource
	logger     *log.Logger

	mu     sync.Mutex
	userID string
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API root. Used in tests.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.base = base }
}

// NewClient creates a resource client over the given dispatcher and
// token source.
func NewClient(tokens TokenSource, dispatcher *Dispatcher, logger *log.Logger, opts ...ClientOption) *Client {
	c := &Client{
		base:       SpotifyBaseURL,
		dispatcher: dispatcher,
		tokens:     tokens,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do performs an authenticated API call through the dispatcher. A JSON
// body is attached when payload is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) (*http.Response, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	apiURL := c.base + path
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var body []byte
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		header.Set("Content-Type", "application/json")
	}

	return c.dispatcher.Do(ctx, &Request{Method: method, URL: apiURL, Header: header, Body: body})
}

// get performs an authenticated GET to an absolute URL, used when
// following provider-issued next links.
func (c *Client) get(ctx context.Context, absolute string) (*http.Response, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return c.dispatcher.Do(ctx, &Request{Method: http.MethodGet, URL: absolute, Header: header})
}

func decodeBody(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func drainBody(resp *http.Response) string {
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return string(data)
}

func success(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func normalizeTrack(raw spotifyTrack) models.Track {
	track := models.Track{
		ID:    raw.ID,
		Name:  raw.Name,
		Album: raw.Album.Name,
		URI:   raw.URI,
	}
	if len(raw.Artists) > 0 {
		track.Artist = raw.Artists[0].Name
	}
	for _, img := range raw.Album.Images {
		track.AlbumImages = append(track.AlbumImages, models.Image(img))
	}
	// Provider order is largest first; the second entry is the medium
	// resolution when present.
	switch {
	case len(raw.Album.Images) >= 2:
		track.Image = raw.Album.Images[1].URL
	case len(raw.Album.Images) == 1:
		track.Image = raw.Album.Images[0].URL
	}
	return track
}

// Search queries the track catalog. Search is best effort: any
// non-success status degrades to an empty result rather than failing,
// since absent results are a valid state for the caller.
func (c *Client) Search(ctx context.Context, term string, limit, offset int) (*models.SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	query := url.Values{
		"q":      {term},
		"type":   {"track"},
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
	resp, err := c.do(ctx, http.MethodGet, "/search", query, nil)
	if err != nil {
		return nil, err
	}
	if !success(resp) {
		c.logger.Warnf("search returned status %d, degrading to empty result", resp.StatusCode)
		drainBody(resp)
		return &models.SearchResult{Items: []models.Track{}}, nil
	}

	var parsed spotifySearchResponse
	if err := decodeBody(resp, &parsed); err != nil {
		return nil, err
	}

	result := &models.SearchResult{Items: make([]models.Track, 0, len(parsed.Tracks.Items)), Total: parsed.Tracks.Total}
	for _, raw := range parsed.Tracks.Items {
		result.Items = append(result.Items, normalizeTrack(raw))
	}
	return result, nil
}

// CurrentUser fetches the authenticated user's profile. A 403 is
// surfaced as a [shared.StatusError] so callers can distinguish a
// provider-restricted profile from an unauthenticated session. Any other
// non-success status yields a nil profile without error.
func (c *Client) CurrentUser(ctx context.Context) (*models.UserProfile, error) {
	resp, err := c.do(ctx, http.MethodGet, "/me", nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusForbidden {
		return nil, shared.NewStatusError(resp.StatusCode, drainBody(resp))
	}
	if !success(resp) {
		c.logger.Debugf("profile unavailable, status %d", resp.StatusCode)
		drainBody(resp)
		return nil, nil
	}

	var raw spotifyUser
	if err := decodeBody(resp, &raw); err != nil {
		return nil, err
	}

	profile := &models.UserProfile{ID: raw.ID, DisplayName: raw.DisplayName}
	for _, img := range raw.Images {
		profile.Images = append(profile.Images, models.Image(img))
	}
	return profile, nil
}

// CurrentUserID resolves the user's ID, memoizing it for the process
// lifetime. The memo is cleared by Reset.
func (c *Client) CurrentUserID(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.userID != "" {
		id := c.userID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	profile, err := c.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	if profile == nil || profile.ID == "" {
		return "", fmt.Errorf("%w: could not resolve user profile", shared.ErrAPIRequest)
	}

	c.mu.Lock()
	c.userID = profile.ID
	c.mu.Unlock()
	return profile.ID, nil
}

// Reset clears the memoized user ID. Called on logout.
func (c *Client) Reset() {
	c.mu.Lock()
	c.userID = ""
	c.mu.Unlock()
}

// UserPlaylists lists every playlist of the current user, following the
// provider's next links until exhausted. Unlike Search this fails fast:
// a non-success status on any page discards the partial result, since
// callers need a complete membership list.
func (c *Client) UserPlaylists(ctx context.Context) ([]models.PlaylistSummary, error) {
	query := url.Values{"limit": {strconv.Itoa(PlaylistPageSize)}}

	var playlists []models.PlaylistSummary
	resp, err := c.do(ctx, http.MethodGet, "/me/playlists", query, nil)
	for {
		if err != nil {
			return nil, err
		}
		if !success(resp) {
			return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, shared.NewStatusError(resp.StatusCode, drainBody(resp)))
		}

		var page spotifyPaginatedPlaylists
		if err := decodeBody(resp, &page); err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			playlists = append(playlists, models.PlaylistSummary{
				ID:            raw.ID,
				Name:          raw.Name,
				TrackCount:    raw.Tracks.Total,
				OwnerID:       raw.Owner.ID,
				Collaborative: raw.Collaborative,
				Public:        raw.Public,
			})
		}

		if page.Next == nil || *page.Next == "" {
			return playlists, nil
		}
		resp, err = c.get(ctx, *page.Next)
	}
}

// Playlist fetches one playlist's name and full track listing, paging
// through the track endpoint until the reported total is reached. Fails
// fast on any page error.
func (c *Client) Playlist(ctx context.Context, id string) (*models.PlaylistDetail, error) {
	resp, err := c.do(ctx, http.MethodGet, "/playlists/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		drainBody(resp)
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	if !success(resp) {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, shared.NewStatusError(resp.StatusCode, drainBody(resp)))
	}

	var meta spotifyPlaylistMeta
	if err := decodeBody(resp, &meta); err != nil {
		return nil, err
	}

	detail := &models.PlaylistDetail{Name: meta.Name}
	for offset := 0; ; {
		query := url.Values{
			"limit":  {strconv.Itoa(TrackPageSize)},
			"offset": {strconv.Itoa(offset)},
		}
		resp, err := c.do(ctx, http.MethodGet, "/playlists/"+url.PathEscape(id)+"/tracks", query, nil)
		if err != nil {
			return nil, err
		}
		if !success(resp) {
			return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, shared.NewStatusError(resp.StatusCode, drainBody(resp)))
		}

		var page spotifyPaginatedTracks
		if err := decodeBody(resp, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			detail.Tracks = append(detail.Tracks, normalizeTrack(item.Track))
		}

		offset += len(page.Items)
		done := (page.Total > 0 && offset >= page.Total) ||
			page.Next == nil || *page.Next == "" || len(page.Items) == 0
		if done {
			return detail, nil
		}
	}
}

// SaveOpts carries the optional parameters of SavePlaylist.
type SaveOpts struct {
	// ExistingPlaylistID selects a playlist to update in place. When
	// empty a new playlist is created.
	ExistingPlaylistID string
	// OnProgress, when set, is invoked synchronously after each write
	// batch completes.
	OnProgress func(Progress)
}

// Progress reports one completed write batch during a save.
type Progress struct {
	BatchIndex   int
	TotalBatches int
	models.BatchResult
}

// batch is one planned track write.
type batch struct {
	kind   string
	method string
	uris   []string
}

// planBatches splits trackURIs into the ordered writes a save must
// issue. Updates lead with a replace of the first BatchSize entries (an
// empty set becomes a single clear); creations append everything.
func planBatches(trackURIs []string, updating bool) []batch {
	if updating {
		if len(trackURIs) == 0 {
			return []batch{{kind: models.BatchClear, method: http.MethodPut, uris: []string{}}}
		}
		head := trackURIs
		if len(head) > BatchSize {
			head = head[:BatchSize]
		}
		batches := []batch{{kind: models.BatchReplace, method: http.MethodPut, uris: head}}
		for i := BatchSize; i < len(trackURIs); i += BatchSize {
			end := min(i+BatchSize, len(trackURIs))
			batches = append(batches, batch{kind: models.BatchAppend, method: http.MethodPost, uris: trackURIs[i:end]})
		}
		return batches
	}

	var batches []batch
	for i := 0; i < len(trackURIs); i += BatchSize {
		end := min(i+BatchSize, len(trackURIs))
		batches = append(batches, batch{kind: models.BatchAppend, method: http.MethodPost, uris: trackURIs[i:end]})
	}
	return batches
}

// SavePlaylist persists a track set as a playlist, either updating an
// existing playlist in place or creating a fresh one.
//
// An empty name is a deliberate soft no-op returning (nil, nil). Writes
// are issued strictly sequentially in batches of at most BatchSize; each
// batch's outcome is recorded whether or not it succeeded. The call
// fails only when every issued batch failed; partial failure is a
// successful result the caller must inspect via BatchResults.
func (c *Client) SavePlaylist(ctx context.Context, name string, trackURIs []string, opts SaveOpts) (*models.SaveResult, error) {
	if name == "" {
		return nil, nil
	}

	playlistID := opts.ExistingPlaylistID
	if playlistID != "" {
		if err := c.renamePlaylist(ctx, playlistID, name); err != nil {
			return nil, err
		}
	} else {
		id, err := c.createPlaylist(ctx, name)
		if err != nil {
			return nil, err
		}
		playlistID = id
	}

	batches := planBatches(trackURIs, opts.ExistingPlaylistID != "")
	results := make([]models.BatchResult, 0, len(batches))
	failures := 0

	for i, b := range batches {
		result := models.BatchResult{Type: b.kind, URIs: b.uris, Success: true}

		resp, err := c.do(ctx, b.method, "/playlists/"+url.PathEscape(playlistID)+"/tracks", nil, map[string][]string{"uris": b.uris})
		switch {
		case err != nil:
			result.Success = false
			result.Error = err.Error()
		case !success(resp):
			result.Success = false
			result.Error = shared.NewStatusError(resp.StatusCode, drainBody(resp)).Error()
		default:
			drainBody(resp)
		}
		if !result.Success {
			failures++
			c.logger.Warnf("track write %d/%d failed: %s", i+1, len(batches), result.Error)
		}

		results = append(results, result)
		if opts.OnProgress != nil {
			opts.OnProgress(Progress{BatchIndex: i, TotalBatches: len(batches), BatchResult: result})
		}
	}

	if len(results) > 0 && failures == len(results) {
		return nil, fmt.Errorf("%w: all %d track writes failed", shared.ErrAPIRequest, len(results))
	}
	return &models.SaveResult{ID: playlistID, BatchResults: results}, nil
}

func (c *Client) renamePlaylist(ctx context.Context, id, name string) error {
	resp, err := c.do(ctx, http.MethodPut, "/playlists/"+url.PathEscape(id), nil, map[string]string{"name": name})
	if err != nil {
		return err
	}
	if !success(resp) {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, shared.NewStatusError(resp.StatusCode, drainBody(resp)))
	}
	drainBody(resp)
	return nil
}

func (c *Client) createPlaylist(ctx context.Context, name string) (string, error) {
	userID, err := c.CurrentUserID(ctx)
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/playlists", nil, map[string]string{"name": name})
	if err != nil {
		return "", err
	}
	if !success(resp) {
		return "", fmt.Errorf("%w: %v", shared.ErrAPIRequest, shared.NewStatusError(resp.StatusCode, drainBody(resp)))
	}

	var created spotifyPlaylistMeta
	if err := decodeBody(resp, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: playlist creation returned no id", shared.ErrAPIRequest)
	}
	return created.ID, nil
}
