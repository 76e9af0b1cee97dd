package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"mixtape/internal/server"
	"mixtape/internal/shared"
)

const authTimeout = 2 * time.Minute

// AuthLogin performs the OAuth2 authorization flow with PKCE.
//
// Starts a local HTTP server, opens the browser for user authorization,
// and exchanges the callback code for tokens.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if r.config.Spotify.ClientID == "" {
		return fmt.Errorf("%w: Spotify client_id must be set in config.toml", shared.ErrMissingCredentials)
	}

	authURL, err := r.auth.AuthorizeURL()
	if err != nil {
		return fmt.Errorf("failed to build authorization URL: %w", err)
	}

	handler := server.NewCallbackHandler(r.auth)
	router := server.NewBasicRouter()
	router.Use(server.LogRequests(r.logger))
	router.Handler(handler)

	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	} else {
		r.writePlain("→ Opening browser for Spotify authorization...\n")
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	}

	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", authTimeout)

	if err := server.WaitForCallback(ctx, addr, router, handler, authTimeout); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	// The callback staged the code; this exchange proves it works.
	if _, err := r.auth.AccessToken(ctx); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("You can now use: mixtape search <query>\n")

	return nil
}

// AuthStatus reports whether a usable access token can be resolved.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	_, err := r.auth.AccessToken(ctx)
	if errors.Is(err, shared.ErrNotAuthenticated) {
		r.writePlain("✗ Not authenticated. Run: mixtape auth login\n")
		return nil
	}
	if err != nil {
		return err
	}

	profile, err := r.client.CurrentUser(ctx)
	if err != nil {
		var statusErr *shared.StatusError
		if errors.As(err, &statusErr) {
			r.writePlain("✓ Authenticated, but Spotify denied profile access (status %d)\n", statusErr.Code)
			return nil
		}
		return err
	}

	if profile == nil {
		r.writePlain("✓ Authenticated (profile unavailable)\n")
		return nil
	}
	name := profile.DisplayName
	if name == "" {
		name = profile.ID
	}
	r.writePlain("✓ Authenticated as %s\n", name)
	return nil
}

// AuthLogout discards every stored credential.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	r.auth.Logout()
	r.client.Reset()
	r.writePlain("✓ Logged out\n")
	return nil
}
