package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// Playlists lists the signed-in user's playlists with optional limit.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	catalog, err := r.requireCatalog(ctx)
	if err != nil {
		return err
	}

	r.logger.Debug("listing playlists", "limit", limit)

	playlists, err := catalog.GetPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("failed to list playlists: %w", reauthHint(err))
	}

	if limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if useJSON {
		return r.writeJSON(playlists, pretty)
	}

	if err := r.writePlain("Found %d playlists:\n\n", len(playlists)); err != nil {
		return err
	}
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", p.Description)
		}
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n", p.TrackCount)
		if p.Owner != "" {
			r.writePlain("   Owner: %s\n", p.Owner)
		}
		r.writePlain("\n")
	}

	return nil
}
