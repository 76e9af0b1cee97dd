package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"mixtape/internal/shared"
	tu "mixtape/internal/testing"
)

func testClient(t *testing.T, script ...tu.Exchange) (*Client, *tu.ScriptedRoundTripper) {
	t.Helper()
	rt := tu.NewScriptedRoundTripper(script...)
	logger := shared.NewLogger(io.Discard)
	d := NewDispatcher(logger,
		WithClient(&http.Client{Transport: rt}),
		WithRequestRate(1000),
		WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	c := NewClient(&tu.MockTokenSource{Token: "test-token"}, d, logger)
	return c, rt
}

const searchBody = `{
	"tracks": {
		"items": [
			{
				"id": "t1",
				"name": "Song One",
				"artists": [{"id": "a1", "name": "First Artist"}, {"id": "a2", "name": "Second Artist"}],
				"album": {
					"id": "al1",
					"name": "Album One",
					"images": [
						{"url": "https://img/large", "height": 640, "width": 640},
						{"url": "https://img/medium", "height": 300, "width": 300},
						{"url": "https://img/small", "height": 64, "width": 64}
					]
				},
				"uri": "spotify:track:t1"
			},
			{
				"id": "t2",
				"name": "Song Two",
				"artists": [],
				"album": {"id": "al2", "name": "Album Two", "images": []},
				"uri": "spotify:track:t2"
			}
		],
		"total": 42
	}
}`

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("Normalizes Tracks", func(t *testing.T) {
		c, rt := testClient(t, tu.Exchange{Response: tu.JSONResponse(200, searchBody)})

		result, err := c.Search(ctx, "song", 0, 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Total != 42 {
			t.Errorf("expected total 42, got %d", result.Total)
		}
		if len(result.Items) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(result.Items))
		}

		first := result.Items[0]
		if first.Artist != "First Artist" {
			t.Errorf("expected first artist, got %s", first.Artist)
		}
		if first.Image != "https://img/medium" {
			t.Errorf("expected medium image preferred, got %s", first.Image)
		}
		if len(first.AlbumImages) != 3 {
			t.Errorf("expected all 3 image sizes kept, got %d", len(first.AlbumImages))
		}

		second := result.Items[1]
		if second.Artist != "" || second.Image != "" {
			t.Errorf("expected empty artist and image, got %q %q", second.Artist, second.Image)
		}

		q := rt.Requests[0].URL.Query()
		if q.Get("type") != "track" {
			t.Errorf("expected type=track, got %s", q.Get("type"))
		}
		if q.Get("limit") != "10" {
			t.Errorf("expected default limit 10, got %s", q.Get("limit"))
		}
		if rt.Requests[0].Header.Get("Authorization") != "Bearer test-token" {
			t.Error("expected bearer token on request")
		}
	})

	t.Run("Degrades To Empty On Error Status", func(t *testing.T) {
		c, _ := testClient(t, tu.Exchange{Response: tu.JSONResponse(404, `{"error":"gone"}`)})

		result, err := c.Search(ctx, "song", 10, 0)
		if err != nil {
			t.Fatalf("expected degraded result, got error %v", err)
		}
		if len(result.Items) != 0 || result.Total != 0 {
			t.Errorf("expected empty result, got %+v", result)
		}
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		rt := tu.NewScriptedRoundTripper()
		logger := shared.NewLogger(io.Discard)
		d := NewDispatcher(logger, WithClient(&http.Client{Transport: rt}), WithRequestRate(1000))
		c := NewClient(&tu.MockTokenSource{Err: shared.ErrNotAuthenticated}, d, logger)

		if _, err := c.Search(ctx, "song", 10, 0); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if rt.Count() != 0 {
			t.Errorf("expected zero network calls, got %d", rt.Count())
		}
	})
}

func TestCurrentUser(t *testing.T) {
	ctx := context.Background()

	t.Run("Profile Returned", func(t *testing.T) {
		c, _ := testClient(t, tu.Exchange{Response: tu.JSONResponse(200,
			`{"id": "user1", "display_name": "Test User", "images": [{"url": "https://img/u", "height": 64, "width": 64}]}`)})

		profile, err := c.CurrentUser(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if profile.ID != "user1" || profile.DisplayName != "Test User" {
			t.Errorf("unexpected profile %+v", profile)
		}
	})

	t.Run("Forbidden Is Distinguishable", func(t *testing.T) {
		c, _ := testClient(t, tu.Exchange{Response: tu.JSONResponse(403, `{"error":"restricted"}`)})

		_, err := c.CurrentUser(ctx)
		var statusErr *shared.StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("expected StatusError, got %v", err)
		}
		if statusErr.Code != 403 {
			t.Errorf("expected 403, got %d", statusErr.Code)
		}
		if !strings.Contains(statusErr.Body, "restricted") {
			t.Errorf("expected raw body preserved, got %q", statusErr.Body)
		}
	})

	t.Run("Other Error Status Yields Nil Profile", func(t *testing.T) {
		c, _ := testClient(t, tu.Exchange{Response: tu.JSONResponse(401, `{}`)})

		profile, err := c.CurrentUser(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if profile != nil {
			t.Errorf("expected nil profile, got %+v", profile)
		}
	})
}

func TestCurrentUserID(t *testing.T) {
	ctx := context.Background()

	t.Run("Memoized", func(t *testing.T) {
		c, rt := testClient(t, tu.Exchange{Response: tu.JSONResponse(200, `{"id": "user1"}`)})

		for i := 0; i < 3; i++ {
			id, err := c.CurrentUserID(ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if id != "user1" {
				t.Errorf("expected user1, got %s", id)
			}
		}
		if rt.Count() != 1 {
			t.Errorf("expected a single profile fetch, got %d", rt.Count())
		}
	})

	t.Run("Reset Clears Memo", func(t *testing.T) {
		c, rt := testClient(t,
			tu.Exchange{Response: tu.JSONResponse(200, `{"id": "user1"}`)},
			tu.Exchange{Response: tu.JSONResponse(200, `{"id": "user1"}`)},
		)

		c.CurrentUserID(ctx)
		c.Reset()
		c.CurrentUserID(ctx)
		if rt.Count() != 2 {
			t.Errorf("expected refetch after reset, got %d requests", rt.Count())
		}
	})

	t.Run("Unresolvable Profile", func(t *testing.T) {
		c, _ := testClient(t, tu.Exchange{Response: tu.JSONResponse(401, `{}`)})

		if _, err := c.CurrentUserID(ctx); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}

func playlistPage(count, total int, next string) string {
	items := make([]string, count)
	for i := range items {
		items[i] = `{"id": "p", "name": "Playlist", "owner": {"id": "user1"}, "tracks": {"total": 5}, "public": true}`
	}
	nextField := "null"
	if next != "" {
		nextField = `"` + next + `"`
	}
	return `{"items": [` + strings.Join(items, ",") + `], "total": ` + itoa(total) + `, "next": ` + nextField + `}`
}

func itoa(n int) string {
	data, _ := json.Marshal(n)
	return string(data)
}

func TestUserPlaylists(t *testing.T) {
	ctx := context.Background()

	t.Run("Aggregates All Pages", func(t *testing.T) {
		c, rt := testClient(t,
			tu.Exchange{Response: tu.JSONResponse(200, playlistPage(50, 110, "https://api.spotify.com/v1/me/playlists?offset=50&limit=50"))},
			tu.Exchange{Response: tu.JSONResponse(200, playlistPage(50, 110, "https://api.spotify.com/v1/me/playlists?offset=100&limit=50"))},
			tu.Exchange{Response: tu.JSONResponse(200, playlistPage(10, 110, ""))},
		)

		playlists, err := c.UserPlaylists(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(playlists) != 110 {
			t.Errorf("expected 110 playlists, got %d", len(playlists))
		}
		if rt.Count() != 3 {
			t.Errorf("expected 3 page fetches, got %d", rt.Count())
		}
		if got := rt.Requests[1].URL.Query().Get("offset"); got != "50" {
			t.Errorf("expected next link followed, got offset %s", got)
		}
	})

	t.Run("Fails Fast On Page Error", func(t *testing.T) {
		c, _ := testClient(t,
			tu.Exchange{Response: tu.JSONResponse(200, playlistPage(50, 110, "https://api.spotify.com/v1/me/playlists?offset=50&limit=50"))},
			tu.Exchange{Response: tu.JSONResponse(404, `{}`)},
		)

		if _, err := c.UserPlaylists(ctx); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}

func trackPage(count, total int, next string) string {
	items := make([]string, count)
	for i := range items {
		items[i] = `{"track": {"id": "t", "name": "Song", "artists": [{"name": "Artist"}], "album": {"name": "Album", "images": []}, "uri": "spotify:track:t"}}`
	}
	nextField := "null"
	if next != "" {
		nextField = `"` + next + `"`
	}
	return `{"items": [` + strings.Join(items, ",") + `], "total": ` + itoa(total) + `, "next": ` + nextField + `}`
}

func TestPlaylist(t *testing.T) {
	ctx := context.Background()

	t.Run("Pages Through Tracks", func(t *testing.T) {
		c, rt := testClient(t,
			tu.Exchange{Response: tu.JSONResponse(200, `{"id": "p1", "name": "My Playlist"}`)},
			tu.Exchange{Response: tu.JSONResponse(200, trackPage(100, 150, "https://api.spotify.com/v1/playlists/p1/tracks?offset=100"))},
			tu.Exchange{Response: tu.JSONResponse(200, trackPage(50, 150, ""))},
		)

		detail, err := c.Playlist(ctx, "p1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if detail.Name != "My Playlist" {
			t.Errorf("expected name, got %s", detail.Name)
		}
		if len(detail.Tracks) != 150 {
			t.Errorf("expected 150 tracks, got %d", len(detail.Tracks))
		}
		if rt.Count() != 3 {
			t.Errorf("expected metadata plus 2 track pages, got %d requests", rt.Count())
		}
		if got := rt.Requests[2].URL.Query().Get("offset"); got != "100" {
			t.Errorf("expected second page offset 100, got %s", got)
		}
	})

	t.Run("Not Found", func(t *testing.T) {
		c, _ := testClient(t, tu.Exchange{Response: tu.JSONResponse(404, `{}`)})

		if _, err := c.Playlist(ctx, "missing"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("Track Page Error Discards Partial Result", func(t *testing.T) {
		c, _ := testClient(t,
			tu.Exchange{Response: tu.JSONResponse(200, `{"id": "p1", "name": "My Playlist"}`)},
			tu.Exchange{Response: tu.JSONResponse(500, `{}`)},
		)

		if _, err := c.Playlist(ctx, "p1"); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}

func uris(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "spotify:track:" + itoa(i)
	}
	return out
}

func TestSavePlaylist(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty Name Is A No-Op", func(t *testing.T) {
		c, rt := testClient(t)

		result, err := c.SavePlaylist(ctx, "", uris(5), SaveOpts{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result != nil {
			t.Errorf("expected nil result, got %+v", result)
		}
		if rt.Count() != 0 {
			t.Errorf("expected zero network calls, got %d", rt.Count())
		}
	})

	t.Run("Update Splits Replace Then Append", func(t *testing.T) {
		c, rt := testClient(t, tu.Exchange{Response: tu.JSONResponse(200, `{}`)})

		var progress []Progress
		result, err := c.SavePlaylist(ctx, "Mix", uris(150), SaveOpts{
			ExistingPlaylistID: "p1",
			OnProgress:         func(p Progress) { progress = append(progress, p) },
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.ID != "p1" {
			t.Errorf("expected p1, got %s", result.ID)
		}

		// Rename, then exactly two track writes
		if rt.Count() != 3 {
			t.Fatalf("expected 3 requests, got %d", rt.Count())
		}
		if rt.Requests[0].Method != http.MethodPut || !strings.HasSuffix(rt.Requests[0].URL.Path, "/playlists/p1") {
			t.Errorf("expected rename PUT first, got %s %s", rt.Requests[0].Method, rt.Requests[0].URL.Path)
		}
		if rt.Requests[1].Method != http.MethodPut {
			t.Errorf("expected replace via PUT, got %s", rt.Requests[1].Method)
		}
		if rt.Requests[2].Method != http.MethodPost {
			t.Errorf("expected append via POST, got %s", rt.Requests[2].Method)
		}

		if len(result.BatchResults) != 2 {
			t.Fatalf("expected 2 batch results, got %d", len(result.BatchResults))
		}
		if result.BatchResults[0].Type != "replace" || len(result.BatchResults[0].URIs) != 100 {
			t.Errorf("unexpected first batch %+v", result.BatchResults[0].Type)
		}
		if result.BatchResults[1].Type != "append" || len(result.BatchResults[1].URIs) != 50 {
			t.Errorf("unexpected second batch %+v", result.BatchResults[1].Type)
		}

		if len(progress) != 2 {
			t.Fatalf("expected 2 progress calls, got %d", len(progress))
		}
		for i, p := range progress {
			if p.BatchIndex != i {
				t.Errorf("expected batch index %d, got %d", i, p.BatchIndex)
			}
			if p.TotalBatches != 2 {
				t.Errorf("expected total 2, got %d", p.TotalBatches)
			}
		}
	})

	t.Run("Update With Empty Tracks Issues One Clear", func(t *testing.T) {
		c, rt := testClient(t, tu.Exchange{Response: tu.JSONResponse(200, `{}`)})

		result, err := c.SavePlaylist(ctx, "Mix", nil, SaveOpts{ExistingPlaylistID: "p1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(result.BatchResults) != 1 || result.BatchResults[0].Type != "clear" {
			t.Fatalf("expected single clear batch, got %+v", result.BatchResults)
		}
		if !strings.Contains(rt.Bodies[1], `"uris":[]`) {
			t.Errorf("expected empty uris payload, got %s", rt.Bodies[1])
		}
	})

	t.Run("Create Flow", func(t *testing.T) {
		c, rt := testClient(t,
			tu.Exchange{Response: tu.JSONResponse(200, `{"id": "user1"}`)},
			tu.Exchange{Response: tu.JSONResponse(201, `{"id": "new-playlist"}`)},
			tu.Exchange{Response: tu.JSONResponse(201, `{}`)},
		)

		result, err := c.SavePlaylist(ctx, "Mix", uris(5), SaveOpts{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.ID != "new-playlist" {
			t.Errorf("expected new-playlist, got %s", result.ID)
		}

		if !strings.HasSuffix(rt.Requests[1].URL.Path, "/users/user1/playlists") {
			t.Errorf("expected create under user, got %s", rt.Requests[1].URL.Path)
		}
		if !strings.Contains(rt.Bodies[1], `"name":"Mix"`) {
			t.Errorf("expected name in create body, got %s", rt.Bodies[1])
		}
		if len(result.BatchResults) != 1 || result.BatchResults[0].Type != "append" {
			t.Errorf("expected single append batch, got %+v", result.BatchResults)
		}
	})

	t.Run("Create With No Tracks Skips Writes", func(t *testing.T) {
		c, rt := testClient(t,
			tu.Exchange{Response: tu.JSONResponse(200, `{"id": "user1"}`)},
			tu.Exchange{Response: tu.JSONResponse(201, `{"id": "new-playlist"}`)},
		)

		result, err := c.SavePlaylist(ctx, "Mix", nil, SaveOpts{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(result.BatchResults) != 0 {
			t.Errorf("expected no batches, got %+v", result.BatchResults)
		}
		if rt.Count() != 2 {
			t.Errorf("expected profile and create only, got %d requests", rt.Count())
		}
	})

	t.Run("All Batches Failing Fails The Save", func(t *testing.T) {
		c, _ := testClient(t,
			tu.Exchange{Response: tu.JSONResponse(200, `{}`)},  // rename
			tu.Exchange{Response: tu.JSONResponse(500, `{}`)},  // replace, retries exhausted
		)

		_, err := c.SavePlaylist(ctx, "Mix", uris(150), SaveOpts{ExistingPlaylistID: "p1"})
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("Partial Failure Is Flagged Not Fatal", func(t *testing.T) {
		script := []tu.Exchange{
			{Response: tu.JSONResponse(200, `{}`)}, // rename
		}
		// replace retries 503 four times, then the append succeeds
		for i := 0; i < 4; i++ {
			script = append(script, tu.Exchange{Response: tu.JSONResponse(503, `{}`)})
		}
		script = append(script, tu.Exchange{Response: tu.JSONResponse(201, `{}`)})
		c, _ := testClient(t, script...)

		result, err := c.SavePlaylist(ctx, "Mix", uris(150), SaveOpts{ExistingPlaylistID: "p1"})
		if err != nil {
			t.Fatalf("expected flagged success, got %v", err)
		}

		if result.BatchResults[0].Success {
			t.Error("expected first batch to be marked failed")
		}
		if result.BatchResults[0].Error == "" {
			t.Error("expected failure detail on first batch")
		}
		if !result.BatchResults[1].Success {
			t.Error("expected second batch to succeed")
		}
	})
}
